package irgen

import (
	"fmt"

	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/ir"
	"github.com/kestreljs/kestrel/pkg/source"
)

// LowerProgram lowers the top-level code into the module's "global" function
// and returns it. The tree must have been analyzed first.
func (g *Generator) LowerProgram(root *ast.Node) *ir.Function {
	info := ast.InfoOf(root)
	if info == nil {
		panic("irgen: program has no semantic info")
	}
	if info.CompileError != "" {
		fn := g.genSyntaxErrorFunction("global", info.CompileError, root.Rng)
		g.module.TopLevel = fn
		return fn
	}
	fn := g.builder.CreateFunction("global", ir.FuncOrdinary, info.Strict, root.Rng)
	fn.Node = root
	g.module.TopLevel = fn
	g.lowerFunctionBody(fn, root, false)
	return fn
}

// LowerFunction lowers a single function-like node outside statement
// position. Arrows need an enclosing function context to capture from.
func (g *Generator) LowerFunction(node *ast.Node, nameHint string) *ir.Function {
	info := ast.InfoOf(node)
	if info == nil {
		panic("irgen: function has no semantic info")
	}
	name := ast.NameOf(node)
	if name == "" {
		name = nameHint
	}
	switch node.Kind {
	case ast.FuncDecl, ast.FuncExpr:
		if ast.IsGenerator(node) {
			return g.genGeneratorFunction(name, nil, node)
		}
		return g.genBasicFunction(name, nil, node, ir.FuncOrdinary)
	case ast.ArrowFunc:
		return g.genArrowFunction(name, node)
	}
	panic("irgen: node is not a function")
}

// genFunctionDeclaration lowers a hoisted declaration and stores the closure
// into the frame slot the prologue reserved for it.
func (g *Generator) genFunctionDeclaration(node *ast.Node) {
	d := node.Data.(*ast.FuncDeclNode)
	storage, ok := g.currentScope.lookup(d.Name)
	if !ok {
		panic("irgen: function declaration storage was not hoisted")
	}
	slot, ok := storage.(*ir.Variable)
	if !ok {
		panic("irgen: function declaration storage is not a frame slot")
	}

	var fn *ir.Function
	if d.IsGenerator {
		fn = g.genGeneratorFunction(d.Name, nil, node)
	} else {
		fn = g.genBasicFunction(d.Name, nil, node, ir.FuncOrdinary)
	}

	g.builder.SetLocation(node.Rng)
	closure := g.builder.CreateClosure(fn)
	g.builder.CreateStoreFrame(closure, slot)
}

// genFunctionExpression lowers a function expression to a closure value. A
// named expression can refer to itself, so the name is bound in a private
// scope around the function; the binding doubles as the lazy closure alias
// when the body is deferred.
func (g *Generator) genFunctionExpression(node *ast.Node, nameHint string) ir.Value {
	d := node.Data.(*ast.FuncExprNode)
	name := d.Name
	if name == "" {
		name = nameHint
	}
	if name == "" {
		name = g.curContext().genAnonymousName("closure")
	}

	var alias *ir.Variable
	if d.Name != "" {
		g.enterScope()
		defer g.exitScope()
		alias = g.builder.CreateVariable(g.curFunction(), d.Name)
		g.currentScope.insert(d.Name, alias)
	}

	var fn *ir.Function
	if d.IsGenerator {
		fn = g.genGeneratorFunction(name, alias, node)
	} else {
		fn = g.genBasicFunction(name, alias, node, ir.FuncOrdinary)
	}

	g.builder.SetLocation(node.Rng)
	closure := g.builder.CreateClosure(fn)
	if alias != nil {
		g.builder.CreateStoreFrame(closure, alias)
	}
	return closure
}

// genArrowFunctionExpression lowers an arrow and returns its closure value.
func (g *Generator) genArrowFunctionExpression(node *ast.Node, nameHint string) ir.Value {
	if nameHint == "" {
		nameHint = g.curContext().genAnonymousName("arrow")
	}
	fn := g.genArrowFunction(nameHint, node)
	g.builder.SetLocation(node.Rng)
	return g.builder.CreateClosure(fn)
}

func (g *Generator) genArrowFunction(name string, node *ast.Node) *ir.Function {
	d := node.Data.(*ast.ArrowFuncNode)
	info := d.Info
	if info.CompileError != "" {
		return g.genSyntaxErrorFunction(name, info.CompileError, node.Rng)
	}
	if g.fnContext == nil {
		panic("irgen: arrow function outside of a function")
	}

	fn := g.builder.CreateFunction(name, ir.FuncArrow, info.Strict, node.Rng)
	fn.Node = node

	fc := g.pushFunctionContext(fn, info)
	defer fc.pop()

	// An arrow has no this/new.target/arguments of its own; it reads the
	// slots of the function it was created in. Copied before the prologue
	// so default parameter expressions already see them.
	fc.capturedThis = fc.prev.capturedThis
	fc.capturedNewTarget = fc.prev.capturedNewTarget
	fc.capturedArguments = fc.prev.capturedArguments

	entry := g.builder.CreateBasicBlock(fn)
	g.builder.SetInsertionBlock(entry)
	g.emitFunctionPrologue(fn, node)

	if d.ExprBody {
		value := g.genExpression(d.Body)
		g.emitFunctionEpilogue(fn, node, value)
		return fn
	}
	g.genBlockStatements(ast.StmtsOf(d.Body))
	g.emitFunctionEpilogue(fn, node, ir.LiteralUndefined{})
	return fn
}

// genBasicFunction lowers an ordinary function or a generator's inner half.
// With lazy compilation on, a body the parser marked deferrable gets only a
// parameter skeleton and a LazySource; CompileLazyFunction finishes it.
func (g *Generator) genBasicFunction(name string, lazyAlias *ir.Variable, node *ast.Node, kind ir.DefinitionKind) *ir.Function {
	info := ast.InfoOf(node)
	if info.CompileError != "" {
		return g.genSyntaxErrorFunction(name, info.CompileError, node.Rng)
	}

	fn := g.builder.CreateFunction(name, kind, info.Strict, node.Rng)
	fn.Node = node
	fn.LazyClosureAlias = lazyAlias

	body := ast.BodyOf(node)
	if (kind == ir.FuncOrdinary || kind == ir.FuncGeneratorInner) && g.cfg.IsFeatureEnabled(config.FeatLazy) {
		if block, ok := body.Data.(*ast.BlockNode); ok && block.IsLazyBody {
			fn.LazySource = &ir.LazySource{
				BufferID: node.Rng.Buffer,
				NodeKind: node.Kind,
				Rng:      node.Rng,
			}
			g.lazyScopes[fn] = g.currentScope
			// The skeleton keeps the declared arity observable without a
			// body: one parameter per formal, named the way the real
			// prologue will name it. Binding stops at a rest parameter.
			g.builder.CreateParameter(fn, "this")
			anon := 0
			for _, p := range ast.ParamsOf(node) {
				if p.Kind == ast.RestElem {
					break
				}
				target := p
				if ap, ok := p.Data.(*ast.AssignPatternNode); ok {
					target = ap.Target
				}
				if id, ok := target.Data.(*ast.IdentNode); ok {
					g.builder.CreateParameter(fn, id.Name)
					continue
				}
				g.builder.CreateParameter(fn, fmt.Sprintf("?anon_%d_param", anon))
				anon++
			}
			return fn
		}
	}

	g.lowerFunctionBody(fn, node, kind == ir.FuncGeneratorInner)
	return fn
}

func (g *Generator) lowerFunctionBody(fn *ir.Function, node *ast.Node, isGeneratorInner bool) {
	info := ast.InfoOf(node)
	fc := g.pushFunctionContext(fn, info)
	defer fc.pop()

	entry := g.builder.CreateBasicBlock(fn)
	g.builder.SetInsertionBlock(entry)
	g.builder.SetLocation(node.Rng)

	if isGeneratorInner {
		g.builder.CreateStartGenerator()
		addr := g.builder.CreateAllocStack("isReturn")
		next := g.builder.CreateBasicBlock(fn)
		g.genResumeGenerator(addr, next)
	}

	g.emitFunctionPrologue(fn, node)
	g.initCaptureState(fc)

	body := ast.BodyOf(node)
	g.genBlockStatements(ast.StmtsOf(body))

	g.emitFunctionEpilogue(fn, node, ir.LiteralUndefined{})
}

// genGeneratorFunction lowers a generator as two functions: an outer one
// that packages the inner state machine into a generator object, and the
// inner half holding the actual body. Both share the node and its summary.
func (g *Generator) genGeneratorFunction(name string, lazyAlias *ir.Variable, node *ast.Node) *ir.Function {
	info := ast.InfoOf(node)
	if info.CompileError != "" {
		return g.genSyntaxErrorFunction(name, info.CompileError, node.Rng)
	}

	outer := g.builder.CreateFunction(name, ir.FuncGeneratorOuter, info.Strict, node.Rng)
	outer.Node = node
	outer.LazyClosureAlias = lazyAlias

	fc := g.pushFunctionContext(outer, info)
	defer fc.pop()

	entry := g.builder.CreateBasicBlock(outer)
	g.builder.SetInsertionBlock(entry)
	g.builder.SetLocation(node.Rng)

	g.emitFunctionPrologue(outer, node)
	g.initCaptureState(fc)

	inner := g.genBasicFunction(fc.genAnonymousName(name), nil, node, ir.FuncGeneratorInner)
	genObj := g.builder.CreateGenerator(inner)

	g.emitFunctionEpilogue(outer, node, genObj)
	return outer
}

// initCaptureState materializes the frame slots arrows below this function
// read their this/new.target/arguments through. Functions without arrows
// skip it entirely.
func (g *Generator) initCaptureState(fc *functionContext) {
	if !fc.semInfo.ContainsArrows {
		return
	}
	fn := fc.function

	thisVar := g.builder.CreateVariable(fn, fc.genAnonymousName("this"))
	fc.capturedThis = thisVar
	g.builder.CreateStoreFrame(fn.ThisParameter(), thisVar)

	ntVar := g.builder.CreateVariable(fn, fc.genAnonymousName("new.target"))
	fc.capturedNewTarget = ntVar
	g.builder.CreateStoreFrame(g.builder.CreateGetNewTarget(), ntVar)

	if fc.semInfo.ArrowsUseArguments {
		argVar := g.builder.CreateVariable(fn, fc.genAnonymousName("arguments"))
		fc.capturedArguments = argVar
		g.builder.CreateStoreFrame(g.builder.CreateArguments(), argVar)
	}
}

// emitFunctionPrologue sets up the frame: the implicit this parameter,
// hoisted variables initialized to undefined, frame slots for nested
// declarations, parameter binding, and the hoisted closures themselves. It
// ends by splitting off a fresh block for the body; the epilogue folds the
// split back when nothing else branches to it.
func (g *Generator) emitFunctionPrologue(fn *ir.Function, node *ast.Node) {
	fc := g.curContext()
	info := fc.semInfo

	g.builder.CreateParameter(fn, "this")

	for _, name := range info.VarNames {
		if _, exists := g.currentScope.names[name]; exists {
			continue
		}
		v := g.builder.CreateVariable(fn, name)
		g.currentScope.insert(name, v)
		g.builder.CreateStoreFrame(ir.LiteralUndefined{}, v)
	}

	// Hoisted declarations get storage only; the closure values are stored
	// when the declarations lower below.
	for _, closure := range info.Closures {
		name := closure.Data.(*ast.FuncDeclNode).Name
		if _, exists := g.currentScope.names[name]; exists {
			continue
		}
		g.currentScope.insert(name, g.builder.CreateVariable(fn, name))
	}

	g.emitParameters(fn, node)

	for _, closure := range info.Closures {
		g.genFunctionDeclaration(closure)
	}

	fc.entryBlock = g.builder.GetInsertionBlock()
	next := g.builder.CreateBasicBlock(fn)
	fc.entryTerminator = g.builder.CreateBranch(next)
	g.builder.SetInsertionBlock(next)
}

// emitParameters binds the formal parameters. A rest parameter collects the
// remaining arguments through the copyRestArgs builtin and must be last, so
// binding stops after it.
func (g *Generator) emitParameters(fn *ir.Function, node *ast.Node) {
	fc := g.curContext()
	params := ast.ParamsOf(node)

	// Every parameter binding gets its frame slot before any pattern binds,
	// so a default expression can reference a later parameter.
	for _, name := range fc.semInfo.ParamNames {
		if _, exists := g.currentScope.names[name]; exists {
			continue
		}
		g.currentScope.insert(name, g.builder.CreateVariable(fn, name))
	}

	for i, p := range params {
		g.builder.SetLocation(p.Rng)

		if rest, ok := p.Data.(*ast.RestElemNode); ok {
			value := g.builder.CreateCallBuiltin("copyRestArgs", []ir.Value{ir.LiteralNumber{Value: float64(i)}})
			g.declareAndStore(rest.Arg, value)
			return
		}

		target := p
		var defaultExpr *ast.Node
		if ap, ok := p.Data.(*ast.AssignPatternNode); ok {
			target = ap.Target
			defaultExpr = ap.Default
		}

		param := g.builder.CreateParameter(fn, g.paramName(target))
		var value ir.Value = param
		if defaultExpr != nil {
			value = g.emitOptionalInitialization(fn, param, defaultExpr)
		}
		g.declareAndStore(target, value)
	}
}

func (g *Generator) paramName(target *ast.Node) string {
	if id, ok := target.Data.(*ast.IdentNode); ok {
		return id.Name
	}
	return g.curContext().genAnonymousName("param")
}

// emitOptionalInitialization implements default parameter values: the
// default expression only evaluates when the argument arrived undefined.
func (g *Generator) emitOptionalInitialization(fn *ir.Function, value ir.Value, defaultExpr *ast.Node) ir.Value {
	cond := g.builder.CreateBinary("===", value, ir.LiteralUndefined{})
	current := g.builder.GetInsertionBlock()
	defaultBlock := g.builder.CreateBasicBlock(fn)
	contBlock := g.builder.CreateBasicBlock(fn)
	g.builder.CreateCondBranch(cond, defaultBlock, contBlock)

	g.builder.SetInsertionBlock(defaultBlock)
	defaultValue := g.genExpression(defaultExpr)
	defaultEnd := g.builder.GetInsertionBlock()
	g.builder.CreateBranch(contBlock)

	g.builder.SetInsertionBlock(contBlock)
	return g.builder.CreatePhi(value, current, defaultValue, defaultEnd)
}

// emitFunctionEpilogue terminates the function with a return of returnValue
// if the body fell through, then tries to merge the prologue split: when the
// body block's only user is the prologue branch, the two fold into one entry
// block. A back edge into the body block keeps the split.
func (g *Generator) emitFunctionEpilogue(fn *ir.Function, node *ast.Node, returnValue ir.Value) {
	fc := g.curContext()
	blk := g.builder.GetInsertionBlock()

	if blk.Terminator() == nil {
		if blk != fc.entryBlock && len(fn.BlockUsers(blk)) == 0 {
			// Dead fallthrough block after a terminating statement.
			fn.RemoveBlock(blk)
		} else {
			end := node.Rng
			end.Start = end.End
			g.builder.SetLocation(end)
			g.builder.CreateReturn(returnValue)
		}
	}

	if fc.entryTerminator != nil {
		ir.MergeEntryBlock(fn, fc.entryBlock, fc.entryTerminator)
	}

	// Sweep the empty detached blocks branches leave behind.
	for i := len(fn.Blocks) - 1; i > 0; i-- {
		b := fn.Blocks[i]
		if len(b.Instructions) == 0 && len(fn.BlockUsers(b)) == 0 {
			fn.RemoveBlock(b)
		}
	}
}

// genResumeGenerator emits the resume dispatch: deliver the resumed value,
// and if the resume was a return request, return it immediately; otherwise
// continue at entryPoint. Leaves the insertion point at entryPoint.
func (g *Generator) genResumeGenerator(isReturnAddr ir.Value, entryPoint *ir.BasicBlock) ir.Value {
	fn := g.curFunction()
	resumed := g.builder.CreateResumeGenerator(isReturnAddr)
	isReturn := g.builder.CreateLoadStack(isReturnAddr)

	returnBlock := g.builder.CreateBasicBlock(fn)
	g.builder.CreateCondBranch(isReturn, returnBlock, entryPoint)

	g.builder.SetInsertionBlock(returnBlock)
	g.builder.CreateReturn(resumed)

	g.builder.SetInsertionBlock(entryPoint)
	return resumed
}

// genSyntaxErrorFunction builds a function whose entire body throws a
// SyntaxError carrying message. Functions that failed analysis compile to
// this stub so the rest of the unit still lowers.
func (g *Generator) genSyntaxErrorFunction(name, message string, rng source.Range) *ir.Function {
	fn := g.builder.CreateFunction(name, ir.FuncOrdinary, true, rng)

	saved := g.builder.GetInsertionBlock()
	defer g.builder.SetInsertionBlock(saved)

	g.builder.CreateParameter(fn, "this")
	entry := g.builder.CreateBasicBlock(fn)
	g.builder.SetInsertionBlock(entry)
	g.builder.SetLocation(rng)

	ctor := g.builder.CreateLoadGlobal("SyntaxError")
	err := g.builder.CreateCall(ctor, ir.LiteralUndefined{}, []ir.Value{ir.LiteralString{Value: message}})
	g.builder.CreateThrow(err)
	return fn
}

// CompileLazyFunction lowers a deferred function body in the scope captured
// when the stub was made. Each stub compiles exactly once.
func (g *Generator) CompileLazyFunction(fn *ir.Function) {
	if fn.LazySource == nil {
		panic("irgen: function is not lazy")
	}
	snapshot, ok := g.lazyScopes[fn]
	if !ok {
		panic("irgen: lazy scope already consumed")
	}
	delete(g.lazyScopes, fn)

	savedScope := g.currentScope
	savedBlock := g.builder.GetInsertionBlock()
	defer func() {
		g.currentScope = savedScope
		g.builder.SetInsertionBlock(savedBlock)
	}()

	g.currentScope = snapshot
	if fn.LazyClosureAlias != nil {
		g.enterScope()
		g.currentScope.insert(fn.LazyClosureAlias.Name, fn.LazyClosureAlias)
	}

	// The prologue re-creates the parameter list from the real patterns.
	fn.LazySource = nil
	fn.Params = nil
	g.lowerFunctionBody(fn, fn.Node, fn.Kind == ir.FuncGeneratorInner)
}
