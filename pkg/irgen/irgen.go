// Package irgen lowers the analyzed tree into IR. Each function-like node
// becomes an ir.Function; a stack of function contexts tracks the function
// being emitted, its break/continue targets, and the frame slots arrows
// capture from it.
package irgen

import (
	"fmt"

	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/ir"
)

// scope is one frame of the lexical environment, a name-to-slot map linked
// to its parent. Frames popped off the chain are never mutated again, so a
// lazy stub can keep a pointer into the chain as its compile-time snapshot.
type scope struct {
	names  map[string]ir.Value
	parent *scope
}

func (s *scope) lookup(name string) (ir.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.names[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) insert(name string, v ir.Value) { s.names[name] = v }

// gotoLabel is one resolved break/continue target. Loops fill their entry
// before lowering the body, so a branch lowered inside the body always finds
// its blocks materialized.
type gotoLabel struct {
	breakTarget    *ir.BasicBlock
	continueTarget *ir.BasicBlock
	filled         bool
}

// functionContext carries the per-function lowering state. Contexts form a
// stack through prev; arrows copy their captured slots from the context
// below them.
type functionContext struct {
	gen      *Generator
	prev     *functionContext
	function *ir.Function
	semInfo  *ast.FunctionInfo

	savedScope *scope
	savedBlock *ir.BasicBlock

	labels []gotoLabel

	capturedThis      ir.Value
	capturedNewTarget ir.Value
	capturedArguments ir.Value

	anonymousCounter int

	// entryBlock/entryTerminator record the prologue split for the epilogue
	// merge.
	entryBlock      *ir.BasicBlock
	entryTerminator *ir.Instruction
}

type Generator struct {
	cfg          *config.Config
	module       *ir.Module
	builder      *ir.Builder
	fnContext    *functionContext
	currentScope *scope
	lazyScopes   map[*ir.Function]*scope
}

func New(module *ir.Module, cfg *config.Config) *Generator {
	return &Generator{
		cfg:        cfg,
		module:     module,
		builder:    ir.NewBuilder(module),
		lazyScopes: make(map[*ir.Function]*scope),
	}
}

func (g *Generator) Module() *ir.Module { return g.module }

func (g *Generator) enterScope() {
	g.currentScope = &scope{names: make(map[string]ir.Value), parent: g.currentScope}
}

func (g *Generator) exitScope() {
	if g.currentScope == nil {
		panic("irgen: scope stack underflow")
	}
	g.currentScope = g.currentScope.parent
}

// pushFunctionContext makes fn the active function. The caller must pair it
// with a deferred pop.
func (g *Generator) pushFunctionContext(fn *ir.Function, semInfo *ast.FunctionInfo) *functionContext {
	fc := &functionContext{
		gen:        g,
		prev:       g.fnContext,
		function:   fn,
		semInfo:    semInfo,
		savedScope: g.currentScope,
		savedBlock: g.builder.GetInsertionBlock(),
		labels:     make([]gotoLabel, semInfo.LabelCount),

		// new.target reads as undefined until something materializes it.
		capturedNewTarget: ir.LiteralUndefined{},
	}
	g.fnContext = fc
	g.enterScope()
	return fc
}

func (fc *functionContext) pop() {
	g := fc.gen
	if g.fnContext != fc {
		panic("irgen: unbalanced function context pop")
	}
	g.currentScope = fc.savedScope
	g.builder.SetInsertionBlock(fc.savedBlock)
	g.fnContext = fc.prev
}

func (g *Generator) curContext() *functionContext {
	if g.fnContext == nil {
		panic("irgen: no active function context")
	}
	return g.fnContext
}

func (g *Generator) curFunction() *ir.Function {
	return g.curContext().function
}

// genAnonymousName produces a compiler-internal name that cannot collide
// with source identifiers.
func (fc *functionContext) genAnonymousName(hint string) string {
	name := fmt.Sprintf("?anon_%d_%s", fc.anonymousCounter, hint)
	fc.anonymousCounter++
	return name
}

// loadCaptured reads a captured slot: frame variables load, plain values
// pass through.
func (g *Generator) loadCaptured(v ir.Value, what string) ir.Value {
	if v == nil {
		panic("irgen: captured " + what + " not materialized")
	}
	if variable, ok := v.(*ir.Variable); ok {
		return g.builder.CreateLoadFrame(variable)
	}
	return v
}
