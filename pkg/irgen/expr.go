package irgen

import (
	"strings"

	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/ir"
	"github.com/kestreljs/kestrel/pkg/util"
)

func (g *Generator) genExpression(n *ast.Node) ir.Value {
	g.builder.SetLocation(n.Rng)

	switch d := n.Data.(type) {
	case *ast.NumberNode:
		return ir.LiteralNumber{Value: d.Value}
	case *ast.StringNode:
		return ir.LiteralString{Value: d.Value}
	case *ast.BoolNode:
		return ir.LiteralBool{Value: d.Value}

	case *ast.IdentNode:
		return g.genIdentifier(n, d)

	case *ast.AssignNode:
		return g.genAssignment(n, d)

	case *ast.BinaryNode:
		left := g.genExpression(d.Left)
		right := g.genExpression(d.Right)
		g.builder.SetLocation(n.Rng)
		return g.builder.CreateBinary(d.Op, left, right)

	case *ast.CallNode:
		return g.genCall(n, d)

	case *ast.MemberNode:
		obj := g.genExpression(d.Object)
		key := g.genMemberKey(d)
		g.builder.SetLocation(n.Rng)
		return g.builder.CreateLoadProperty(obj, key)

	case *ast.FuncExprNode:
		return g.genFunctionExpression(n, "")

	case *ast.ArrowFuncNode:
		return g.genArrowFunctionExpression(n, "")

	case *ast.YieldNode:
		return g.genYield(n, d)
	}

	switch n.Kind {
	case ast.Null:
		return ir.LiteralNull{}
	case ast.This:
		return g.genThis(n)
	case ast.NewTarget:
		return g.genNewTarget()
	}

	util.Error(n.Rng, "unsupported expression")
	return nil
}

func (g *Generator) genIdentifier(n *ast.Node, d *ast.IdentNode) ir.Value {
	if d.Name == "undefined" {
		return ir.LiteralUndefined{}
	}
	if d.Name == "arguments" {
		return g.genArguments(n)
	}
	if v, ok := g.currentScope.lookup(d.Name); ok {
		switch slot := v.(type) {
		case *ir.Variable:
			return g.builder.CreateLoadFrame(slot)
		default:
			return v
		}
	}
	return g.builder.CreateLoadGlobal(d.Name)
}

// genArguments resolves the arguments object. An arrow reads the one its
// enclosing function captured; a real function materializes its own, once.
func (g *Generator) genArguments(n *ast.Node) ir.Value {
	fc := g.curContext()
	if fc.function.Kind == ir.FuncArrow {
		if fc.capturedArguments == nil {
			panic("irgen: arrow reads arguments but no capture slot exists")
		}
		return g.loadCaptured(fc.capturedArguments, "arguments")
	}
	if fc.capturedArguments != nil {
		return g.loadCaptured(fc.capturedArguments, "arguments")
	}
	return g.builder.CreateArguments()
}

func (g *Generator) genThis(n *ast.Node) ir.Value {
	fc := g.curContext()
	if fc.function.Kind == ir.FuncArrow {
		if fc.capturedThis == nil {
			panic("irgen: arrow reads this but no capture slot exists")
		}
		return g.loadCaptured(fc.capturedThis, "this")
	}
	return fc.function.ThisParameter()
}

func (g *Generator) genNewTarget() ir.Value {
	fc := g.curContext()
	if fc.function.Kind == ir.FuncArrow {
		return g.loadCaptured(fc.capturedNewTarget, "new.target")
	}
	return g.builder.CreateGetNewTarget()
}

// genAssignment lowers plain and compound assignment; "a += b" reads the
// target, applies the operator, and stores back through the same reference.
func (g *Generator) genAssignment(n *ast.Node, d *ast.AssignNode) ir.Value {
	ref := g.createLRef(d.Target, false)

	if d.Op == "=" {
		value := g.genExpression(d.Value)
		g.builder.SetLocation(n.Rng)
		ref.emitStore(g, value)
		return value
	}

	op := strings.TrimSuffix(d.Op, "=")
	if op == d.Op || op == "" || op == "=" {
		util.Error(n.Rng, "unsupported assignment operator '%s'", d.Op)
	}
	current := ref.emitLoad(g)
	rhs := g.genExpression(d.Value)
	g.builder.SetLocation(n.Rng)
	value := g.builder.CreateBinary(op, current, rhs)
	ref.emitStore(g, value)
	return value
}

// genCall lowers a call; a member callee evaluates its object once and
// passes it as the receiver.
func (g *Generator) genCall(n *ast.Node, d *ast.CallNode) ir.Value {
	var callee ir.Value
	var thisValue ir.Value = ir.LiteralUndefined{}

	if member, ok := d.Callee.Data.(*ast.MemberNode); ok {
		obj := g.genExpression(member.Object)
		key := g.genMemberKey(member)
		callee = g.builder.CreateLoadProperty(obj, key)
		thisValue = obj
	} else {
		callee = g.genExpression(d.Callee)
	}

	args := make([]ir.Value, len(d.Args))
	for i, arg := range d.Args {
		args[i] = g.genExpression(arg)
	}
	g.builder.SetLocation(n.Rng)
	return g.builder.CreateCall(callee, thisValue, args)
}

// genYield suspends the generator and delivers the resumed value. Each yield
// carries its own resume dispatch.
func (g *Generator) genYield(n *ast.Node, d *ast.YieldNode) ir.Value {
	fc := g.curContext()
	if fc.function.Kind != ir.FuncGeneratorInner {
		util.Error(n.Rng, "'yield' is only valid inside a generator")
	}
	fn := fc.function

	var value ir.Value = ir.LiteralUndefined{}
	if d.Arg != nil {
		value = g.genExpression(d.Arg)
	}

	g.builder.SetLocation(n.Rng)
	addr := g.builder.CreateAllocStack("isReturn")
	resumePoint := g.builder.CreateBasicBlock(fn)
	g.builder.CreateSaveAndYield(value, resumePoint)

	g.builder.SetInsertionBlock(resumePoint)
	next := g.builder.CreateBasicBlock(fn)
	return g.genResumeGenerator(addr, next)
}
