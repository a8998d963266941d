// Package util provides the compiler's diagnostic output: caret-annotated
// errors and warnings rendered against the registered source buffers.
package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/source"
)

var registry *source.Registry

// SetRegistry installs the source registry used to render code excerpts in
// error and warning messages.
func SetRegistry(r *source.Registry) { registry = r }

func location(rng source.Range) (filename string, line, col int) {
	if buf := registry.Buffer(rng.Buffer); buf != nil {
		return buf.Name, rng.Start.Line, rng.Start.Col
	}
	return "unknown", rng.Start.Line, rng.Start.Col
}

// printSourceLine prints the offending line and a caret under the range.
func printSourceLine(stream *os.File, rng source.Range) {
	if !rng.Valid() {
		return
	}
	text := registry.Line(rng.Buffer, rng.Start.Line)
	if text == "" {
		return
	}
	fmt.Fprintf(stream, "  %s\n", text)

	col := rng.Start.Col
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(stream, "  %s\033[32m^", strings.Repeat(" ", col-1))
	if rng.End.Line == rng.Start.Line && rng.End.Col > rng.Start.Col+1 {
		fmt.Fprintf(stream, "%s", strings.Repeat("~", rng.End.Col-rng.Start.Col-1))
	}
	fmt.Fprintln(stream, "\033[0m")
}

// Error prints a formatted error message and exits the program.
func Error(rng source.Range, format string, args ...interface{}) {
	filename, line, col := location(rng)
	fmt.Fprintf(os.Stderr, "%s:%d:%d: \033[31merror:\033[0m ", filename, line, col)
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	printSourceLine(os.Stderr, rng)
	os.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is
// enabled in the configuration.
func Warn(cfg *config.Config, wt config.Warning, rng source.Range, format string, args ...interface{}) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := location(rng)
	warningName := cfg.Warnings[wt].Name
	fmt.Fprintf(os.Stderr, "%s:%d:%d: \033[33mwarning:\033[0m ", filename, line, col)
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintf(os.Stderr, " [-W%s]\n", warningName)
	printSourceLine(os.Stderr, rng)
}
