package irgen

import (
	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/ir"
	"github.com/kestreljs/kestrel/pkg/util"
)

// genBlockStatements lowers a statement list. Statements after a terminator
// still lower, into a fresh unreferenced block, so their nested functions
// exist and their errors surface.
func (g *Generator) genBlockStatements(stmts []*ast.Node) bool {
	terminated := false
	for _, stmt := range stmts {
		if terminated {
			util.Warn(g.cfg, config.WarnUnreachableCode, stmt.Rng, "unreachable code")
			dead := g.builder.CreateBasicBlock(g.curFunction())
			g.builder.SetInsertionBlock(dead)
			terminated = false
		}
		terminated = g.genStatement(stmt)
	}
	return terminated
}

// genStatement lowers one statement and reports whether it terminated the
// current block.
func (g *Generator) genStatement(n *ast.Node) bool {
	g.builder.SetLocation(n.Rng)

	switch d := n.Data.(type) {
	case *ast.BlockNode:
		g.enterScope()
		defer g.exitScope()
		return g.genBlockStatements(d.Stmts)

	case *ast.VarStmtNode:
		for _, decl := range d.Decls {
			g.genVarDecl(decl)
		}
		return false

	case *ast.ExprStmtNode:
		g.genExpression(d.Expr)
		return false

	case *ast.ReturnNode:
		var value ir.Value = ir.LiteralUndefined{}
		if d.Arg != nil {
			value = g.genExpression(d.Arg)
		}
		g.builder.SetLocation(n.Rng)
		g.builder.CreateReturn(value)
		return true

	case *ast.IfNode:
		return g.genIfStatement(d)

	case *ast.WhileNode:
		g.genWhileStatement(d)
		return false

	case *ast.LabeledNode:
		return g.genLabeledStatement(d)

	case *ast.BranchNode:
		g.genBranchStatement(n.Kind, d)
		return true

	case *ast.ThrowNode:
		g.builder.CreateThrow(g.genExpression(d.Arg))
		return true

	case *ast.FuncDeclNode:
		// Hoisted; the prologue already lowered it.
		return false

	default:
		// Empty statement.
		return false
	}
}

// genVarDecl lowers one declarator. The prologue already created the frame
// slot and stored undefined, so a declarator without an initializer is done.
func (g *Generator) genVarDecl(decl *ast.Node) {
	d := decl.Data.(*ast.VarDeclNode)
	if d.Init == nil {
		return
	}
	value := g.genExpression(d.Init)
	g.builder.SetLocation(decl.Rng)
	g.createLRef(d.Target, false).emitStore(g, value)
}

func (g *Generator) genIfStatement(d *ast.IfNode) bool {
	fn := g.curFunction()
	cond := g.genExpression(d.Cond)

	thenBlock := g.builder.CreateBasicBlock(fn)
	contBlock := g.builder.CreateBasicBlock(fn)
	elseBlock := contBlock
	if d.Else != nil {
		elseBlock = g.builder.CreateBasicBlock(fn)
	}
	g.builder.CreateCondBranch(cond, thenBlock, elseBlock)

	g.builder.SetInsertionBlock(thenBlock)
	thenTerm := g.genStatement(d.Then)
	if !thenTerm {
		g.builder.CreateBranch(contBlock)
	}

	elseTerm := false
	if d.Else != nil {
		g.builder.SetInsertionBlock(elseBlock)
		elseTerm = g.genStatement(d.Else)
		if !elseTerm {
			g.builder.CreateBranch(contBlock)
		}
	}

	g.builder.SetInsertionBlock(contBlock)
	if thenTerm && elseTerm {
		// Both arms left; the join is unreachable.
		if len(fn.BlockUsers(contBlock)) == 0 {
			g.builder.CreateUnreachable()
			return true
		}
	}
	return false
}

// genWhileStatement fills the loop's break/continue entry before lowering
// the body so branches inside it always find their targets.
func (g *Generator) genWhileStatement(d *ast.WhileNode) {
	fn := g.curFunction()
	fc := g.curContext()

	condBlock := g.builder.CreateBasicBlock(fn)
	bodyBlock := g.builder.CreateBasicBlock(fn)
	exitBlock := g.builder.CreateBasicBlock(fn)

	g.builder.CreateBranch(condBlock)
	g.builder.SetInsertionBlock(condBlock)
	cond := g.genExpression(d.Cond)
	g.builder.CreateCondBranch(cond, bodyBlock, exitBlock)

	fc.setLabel(d.LabelIndex, gotoLabel{breakTarget: exitBlock, continueTarget: condBlock, filled: true})

	g.builder.SetInsertionBlock(bodyBlock)
	g.enterScope()
	terminated := g.genStatement(d.Body)
	g.exitScope()
	if !terminated {
		g.builder.CreateBranch(condBlock)
	}

	g.builder.SetInsertionBlock(exitBlock)
}

func (g *Generator) genLabeledStatement(d *ast.LabeledNode) bool {
	// A label on a loop shares the loop's target entry; the loop fills it.
	if _, isLoop := d.Stmt.Data.(*ast.WhileNode); isLoop {
		return g.genStatement(d.Stmt)
	}

	fn := g.curFunction()
	fc := g.curContext()
	exitBlock := g.builder.CreateBasicBlock(fn)
	fc.setLabel(d.LabelIndex, gotoLabel{breakTarget: exitBlock, filled: true})

	terminated := g.genStatement(d.Stmt)
	if !terminated {
		g.builder.CreateBranch(exitBlock)
	}
	g.builder.SetInsertionBlock(exitBlock)
	return false
}

func (g *Generator) genBranchStatement(kind ast.NodeKind, d *ast.BranchNode) {
	fc := g.curContext()
	lbl := fc.label(d.LabelIndex)

	target := lbl.breakTarget
	if kind == ast.Continue {
		target = lbl.continueTarget
	}
	if target == nil {
		panic("irgen: branch target block missing")
	}
	g.builder.CreateBranch(target)

	// Anything lowered after the branch lands in a detached block.
	dead := g.builder.CreateBasicBlock(g.curFunction())
	g.builder.SetInsertionBlock(dead)
}

func (fc *functionContext) setLabel(index int, lbl gotoLabel) {
	if index < 0 || index >= len(fc.labels) {
		panic("irgen: label index out of range")
	}
	fc.labels[index] = lbl
}

func (fc *functionContext) label(index int) gotoLabel {
	if index < 0 || index >= len(fc.labels) {
		panic("irgen: label index out of range")
	}
	lbl := fc.labels[index]
	if !lbl.filled {
		panic("irgen: branch to a label that was never materialized")
	}
	return lbl
}
