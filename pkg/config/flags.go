package config

import "github.com/kestreljs/kestrel/pkg/cli"

// SetupFlagGroups exposes every warning and feature as a -W/-F toggle pair.
// The returned entries let the driver apply explicit toggles after -std and
// profile defaults have been resolved.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnEntries, featEntries []cli.FlagGroupEntry) {
	for wt := Warning(0); wt < WarnCount; wt++ {
		info := c.Warnings[wt]
		enabled, disabled := new(bool), new(bool)
		warnEntries = append(warnEntries, cli.FlagGroupEntry{
			Name:     info.Name,
			Prefix:   "W",
			Usage:    info.Description,
			Enabled:  enabled,
			Disabled: disabled,
		})
	}
	for ft := Feature(0); ft < FeatCount; ft++ {
		info := c.Features[ft]
		enabled, disabled := new(bool), new(bool)
		featEntries = append(featEntries, cli.FlagGroupEntry{
			Name:     info.Name,
			Prefix:   "F",
			Usage:    info.Description,
			Enabled:  enabled,
			Disabled: disabled,
		})
	}
	fs.AddFlagGroup("Warnings", "warning", warnEntries)
	fs.AddFlagGroup("Features", "feature", featEntries)
	return warnEntries, featEntries
}

// ApplyFlagGroups folds parsed -W/-F toggles into the configuration.
// Disables win over enables so "-Wfoo -Wno-foo" ends up off.
func (c *Config) ApplyFlagGroups(warnEntries, featEntries []cli.FlagGroupEntry) {
	for _, e := range warnEntries {
		wt := c.WarningMap[e.Name]
		if e.Enabled != nil && *e.Enabled {
			c.SetWarning(wt, true)
		}
		if e.Disabled != nil && *e.Disabled {
			c.SetWarning(wt, false)
		}
	}
	for _, e := range featEntries {
		ft := c.FeatureMap[e.Name]
		if e.Enabled != nil && *e.Enabled {
			c.SetFeature(ft, true)
		}
		if e.Disabled != nil && *e.Disabled {
			c.SetFeature(ft, false)
		}
	}
}
