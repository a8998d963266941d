package config

import (
	"testing"

	"github.com/kestreljs/kestrel/pkg/cli"
)

func TestFlagGroupsOverrideStd(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("test")
	warnEntries, featEntries := cfg.SetupFlagGroups(fs)

	if err := fs.Parse([]string{"-Farrows", "-Fno-lazy", "-Wshadow", "-Wno-extra"}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyStd("es5"); err != nil {
		t.Fatal(err)
	}
	cfg.ApplyFlagGroups(warnEntries, featEntries)

	if !cfg.IsFeatureEnabled(FeatArrows) {
		t.Error("-Farrows must override the es5 default")
	}
	if cfg.IsFeatureEnabled(FeatLazy) {
		t.Error("-Fno-lazy must disable lazy lowering")
	}
	if cfg.IsFeatureEnabled(FeatGenerators) {
		t.Error("untouched es5 defaults must survive")
	}
	if !cfg.IsWarningEnabled(WarnShadow) || cfg.IsWarningEnabled(WarnExtra) {
		t.Error("warning toggles not applied")
	}
}

func TestDisableWinsOverEnable(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("test")
	warnEntries, featEntries := cfg.SetupFlagGroups(fs)

	if err := fs.Parse([]string{"-Wshadow", "-Wno-shadow"}); err != nil {
		t.Fatal(err)
	}
	cfg.ApplyFlagGroups(warnEntries, featEntries)
	if cfg.IsWarningEnabled(WarnShadow) {
		t.Error("explicit disable must win over enable")
	}
}
