package ir

import (
	"fmt"
	"strings"
)

// Print renders the module in a readable textual form, one function at a
// time in definition order.
func Print(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s\n", m.Name)
	for _, fn := range m.Functions {
		sb.WriteString("\n")
		printFunction(&sb, fn)
	}
	return sb.String()
}

func printFunction(sb *strings.Builder, fn *Function) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.String()
	}
	mode := ""
	if fn.Strict {
		mode = " strict"
	}
	fmt.Fprintf(sb, "%s @%s(%s)%s", fn.Kind, fn.Name, strings.Join(params, ", "), mode)

	if fn.IsLazy() {
		fmt.Fprintf(sb, " lazy @ %d:%d\n", fn.LazySource.Rng.Start.Line, fn.LazySource.Rng.Start.Col)
		return
	}
	sb.WriteString(" {\n")

	if len(fn.Variables) > 0 {
		vars := make([]string, len(fn.Variables))
		for i, v := range fn.Variables {
			vars[i] = v.Name
		}
		fmt.Fprintf(sb, "  frame: [%s]\n", strings.Join(vars, ", "))
	}

	for _, blk := range fn.Blocks {
		fmt.Fprintf(sb, "%s:\n", blk.Label)
		for _, instr := range blk.Instructions {
			sb.WriteString("  ")
			sb.WriteString(formatInstruction(instr))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
}

func formatInstruction(instr *Instruction) string {
	var sb strings.Builder
	if instr.Result != nil {
		fmt.Fprintf(&sb, "%s = ", instr.Result)
	}
	sb.WriteString(instr.Op.String())
	if instr.Operator != "" {
		fmt.Fprintf(&sb, ".%s", instr.Operator)
	}
	if instr.Name != "" {
		fmt.Fprintf(&sb, " '%s'", instr.Name)
	}
	for i, arg := range instr.Args {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	return sb.String()
}
