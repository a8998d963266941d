package config

import (
	"fmt"

	"github.com/pelletier/go-toml"
)

type Feature int

const (
	FeatLazy Feature = iota
	FeatArrows
	FeatGenerators
	FeatForceStrict
	FeatDefaultParams
	FeatRestParams
	FeatDestructuring
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnImplicitGlobal
	WarnShadow
	WarnDirectives
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	StdName    string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
	}

	features := map[Feature]Info{
		FeatLazy:          {"lazy", true, "Defer lowering of bodies the parser marked as lazy."},
		FeatArrows:        {"arrows", true, "Allow ES6 arrow functions."},
		FeatGenerators:    {"generators", true, "Allow ES6 generator functions."},
		FeatForceStrict:   {"force-strict", false, "Treat every function as strict-mode code."},
		FeatDefaultParams: {"default-params", true, "Allow default parameter initializers."},
		FeatRestParams:    {"rest-params", true, "Allow rest parameters."},
		FeatDestructuring: {"destructuring", true, "Allow destructuring parameter patterns."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements that can never execute."},
		WarnImplicitGlobal:  {"implicit-global", true, "Warn when a store targets an undeclared identifier."},
		WarnShadow:          {"shadow", false, "Warn when a declaration shadows an outer binding."},
		WarnDirectives:      {"directives", false, "Warn about unrecognized directive prologue strings."},
		WarnPedantic:        {"pedantic", false, "Issue all warnings demanded by the selected standard."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyStd selects a language level. "es5" turns the ES6-only surface off,
// "es6" turns it on; pedantic mode additionally forces strict functions.
func (c *Config) ApplyStd(stdName string) error {
	c.StdName = stdName
	isPedantic := c.IsWarningEnabled(WarnPedantic)

	type stdSettings struct {
		feature  Feature
		es5Value bool
		es6Value bool
	}

	settings := []stdSettings{
		{FeatArrows, false, true},
		{FeatGenerators, false, true},
		{FeatDefaultParams, false, true},
		{FeatRestParams, false, true},
		{FeatDestructuring, false, true},
		{FeatForceStrict, isPedantic, isPedantic},
		{FeatLazy, true, true},
	}

	switch stdName {
	case "es5":
		for _, s := range settings {
			c.SetFeature(s.feature, s.es5Value)
		}
	case "es6":
		for _, s := range settings {
			c.SetFeature(s.feature, s.es6Value)
		}
	default:
		return fmt.Errorf("unsupported standard '%s'. Supported: 'es5', 'es6'", stdName)
	}
	return nil
}

// LoadProfile applies a TOML compiler profile on top of the current
// configuration. Recognized keys: top-level "std", plus [features] and
// [warnings] tables of booleans keyed by flag name.
func (c *Config) LoadProfile(path string) error {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return fmt.Errorf("cannot load profile: %w", err)
	}

	if std, ok := tree.Get("std").(string); ok {
		if err := c.ApplyStd(std); err != nil {
			return err
		}
	}

	if sub, ok := tree.Get("features").(*toml.Tree); ok {
		for _, key := range sub.Keys() {
			enabled, ok := sub.Get(key).(bool)
			if !ok {
				return fmt.Errorf("profile feature '%s' must be a boolean", key)
			}
			ft, ok := c.FeatureMap[key]
			if !ok {
				return fmt.Errorf("unknown feature '%s' in profile", key)
			}
			c.SetFeature(ft, enabled)
		}
	}

	if sub, ok := tree.Get("warnings").(*toml.Tree); ok {
		for _, key := range sub.Keys() {
			enabled, ok := sub.Get(key).(bool)
			if !ok {
				return fmt.Errorf("profile warning '%s' must be a boolean", key)
			}
			wt, ok := c.WarningMap[key]
			if !ok {
				return fmt.Errorf("unknown warning '%s' in profile", key)
			}
			c.SetWarning(wt, enabled)
		}
	}

	return nil
}
