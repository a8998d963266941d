package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/cli"
	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/ir"
	"github.com/kestreljs/kestrel/pkg/irgen"
	"github.com/kestreljs/kestrel/pkg/sem"
	"github.com/kestreljs/kestrel/pkg/source"
	"github.com/kestreljs/kestrel/pkg/util"
)

func main() {
	var (
		outputFile  string
		stdName     string
		profileFile string
		lowerLazy   bool
		pedantic    bool
	)

	cfg := config.NewConfig()

	app := cli.NewApp("kjsc")
	app.Synopsis = "[options] <file.ast.json> ..."
	app.Description = "Lowers parsed JavaScript syntax trees into the kestrel intermediate representation. " +
		"Input files are ESTree-shaped JSON documents as produced by the front-end parser."
	app.Repository = "https://github.com/kestreljs/kestrel"

	app.FlagSet.String(&outputFile, "o", "", "", "Write the IR listing to <file> instead of stdout", "file")
	app.FlagSet.String(&stdName, "std", "", "es6", "Language standard to target ('es5' or 'es6')", "std")
	app.FlagSet.String(&profileFile, "profile", "", "", "Load feature and warning settings from a TOML profile", "file")
	app.FlagSet.Bool(&lowerLazy, "lower-lazy", "", false, "Eagerly lower function bodies the parser marked deferrable")
	app.FlagSet.Bool(&pedantic, "pedantic", "", false, "Enable pedantic mode")

	warnEntries, featEntries := cfg.SetupFlagGroups(app.FlagSet)

	app.Action = func(args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("no input files")
		}

		if pedantic {
			cfg.SetWarning(config.WarnPedantic, true)
		}
		if err := cfg.ApplyStd(stdName); err != nil {
			return err
		}
		if profileFile != "" {
			if err := cfg.LoadProfile(profileFile); err != nil {
				return err
			}
		}
		// Explicit -W/-F toggles override std and profile defaults.
		cfg.ApplyFlagGroups(warnEntries, featEntries)

		registry := source.NewRegistry()
		util.SetRegistry(registry)

		module := ir.NewModule(moduleName(args[0]))
		gen := irgen.New(module, cfg)

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read '%s': %w", path, err)
			}
			buf := registry.Register(path, data)
			root, err := ast.DecodeJSON(data, buf.ID)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			sem.Analyze(root, cfg)
			gen.LowerProgram(root)
		}

		if lowerLazy {
			// Lowering a deferred body can surface further deferred
			// functions, so keep scanning until the module settles.
			for i := 0; i < len(module.Functions); i++ {
				if module.Functions[i].IsLazy() {
					gen.CompileLazyFunction(module.Functions[i])
				}
			}
		}

		listing := ir.Print(module)
		if outputFile == "" {
			fmt.Print(listing)
			return nil
		}
		return os.WriteFile(outputFile, []byte(listing), 0644)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "kjsc: %s\n", err)
		os.Exit(1)
	}
}

func moduleName(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{".json", ".ast"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}
