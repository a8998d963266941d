package irgen

import (
	"strings"
	"testing"

	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/ir"
)

func whileStmt(cond, body *ast.Node) *ast.Node {
	return ast.NewNode(ast.While, testRng, &ast.WhileNode{Cond: cond, Body: body, LabelIndex: -1})
}

func ifStmt(cond, then, els *ast.Node) *ast.Node {
	return ast.NewNode(ast.If, testRng, &ast.IfNode{Cond: cond, Then: then, Else: els})
}

func assign(op string, target, value *ast.Node) *ast.Node {
	return ast.NewNode(ast.Assign, testRng, &ast.AssignNode{Op: op, Target: target, Value: value})
}

func member(obj *ast.Node, prop string) *ast.Node {
	return ast.NewNode(ast.Member, testRng, &ast.MemberNode{Object: obj, Property: ident(prop)})
}

func call(callee *ast.Node, args ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.Call, testRng, &ast.CallNode{Callee: callee, Args: args})
}

func TestWhileLoopStructure(t *testing.T) {
	m, _ := lower(t, prog(
		whileStmt(ident("x"), block(breakStmt())),
	))
	top := m.TopLevel

	var condBranch *ir.Instruction
	for _, blk := range top.Blocks {
		if term := blk.Terminator(); term != nil && term.Op == ir.OpCondBranch {
			condBranch = term
		}
	}
	if condBranch == nil {
		t.Fatal("loop must test its condition with a conditional branch")
	}
	exitLabel := condBranch.Args[2].(ir.Label)

	// The break inside the body must branch straight to the loop exit.
	bodyLabel := condBranch.Args[1].(ir.Label)
	bodyTerm := bodyLabel.Block.Terminator()
	if bodyTerm == nil || bodyTerm.Op != ir.OpBranch {
		t.Fatal("break must terminate the body block with a branch")
	}
	if bodyTerm.Args[0].(ir.Label).Block != exitLabel.Block {
		t.Error("break does not target the loop exit")
	}

	// The body breaks, so the loop entry is the condition's only user.
	condLabel := ir.Label{Block: nil}
	for _, blk := range top.Blocks {
		for _, instr := range blk.Instructions {
			if instr == condBranch {
				condLabel = ir.Label{Block: blk}
			}
		}
	}
	if condLabel.Block == nil {
		t.Fatal("condition block not found")
	}
	if users := top.BlockUsers(condLabel.Block); len(users) != 1 {
		t.Errorf("condition block has %d users, want 1 (loop entry)", len(users))
	}
}

func TestIfElseJoins(t *testing.T) {
	m, _ := lower(t, prog(
		varDecl("x", num(0)),
		ifStmt(ident("x"),
			exprStmt(assign("=", ident("x"), num(1))),
			exprStmt(assign("=", ident("x"), num(2)))),
		exprStmt(ident("x")),
	))
	top := m.TopLevel

	var cond *ir.Instruction
	for _, blk := range top.Blocks {
		if term := blk.Terminator(); term != nil && term.Op == ir.OpCondBranch {
			cond = term
		}
	}
	if cond == nil {
		t.Fatal("if must lower to a conditional branch")
	}
	thenBlock := cond.Args[1].(ir.Label).Block
	elseBlock := cond.Args[2].(ir.Label).Block
	if thenBlock == elseBlock {
		t.Fatal("then and else arms must be distinct blocks")
	}
	thenTerm := thenBlock.Terminator()
	elseTerm := elseBlock.Terminator()
	if thenTerm.Args[0].(ir.Label).Block != elseTerm.Args[0].(ir.Label).Block {
		t.Error("both arms must join at the same continuation block")
	}
}

func TestCompoundAssignmentReadsModifiesWrites(t *testing.T) {
	m, _ := lower(t, prog(
		varDecl("x", num(1)),
		exprStmt(assign("+=", ident("x"), num(2))),
	))
	top := m.TopLevel

	bin := findInstr(top, ir.OpBinary)
	if bin == nil || bin.Operator != "+" {
		t.Fatal("+= must apply the + operator")
	}
	load := findInstr(top, ir.OpLoadFrame)
	if load == nil {
		t.Fatal("+= must read the current value")
	}
	if bin.Args[0] != load.Result {
		t.Error("the loaded value must feed the operator")
	}
}

func TestMethodCallPassesReceiver(t *testing.T) {
	m, _ := lower(t, prog(
		exprStmt(call(member(ident("o"), "m"), num(1))),
	))
	top := m.TopLevel

	loadObj := findInstr(top, ir.OpLoadGlobal)
	if loadObj == nil || loadObj.Name != "o" {
		t.Fatal("receiver object not loaded")
	}
	loadProp := findInstr(top, ir.OpLoadProperty)
	if loadProp == nil || loadProp.Args[0] != loadObj.Result {
		t.Fatal("method must be loaded off the receiver, once")
	}
	callInstr := findInstr(top, ir.OpCall)
	if callInstr == nil {
		t.Fatal("call missing")
	}
	if callInstr.Args[0] != loadProp.Result {
		t.Error("callee must be the loaded method")
	}
	if callInstr.Args[1] != loadObj.Result {
		t.Error("this argument must be the receiver, not a fresh load")
	}
}

func TestAssignToUndeclaredStoresGlobal(t *testing.T) {
	m, _ := lower(t, prog(
		exprStmt(assign("=", ident("nope"), num(1))),
	))
	top := m.TopLevel

	store := findInstr(top, ir.OpStoreGlobal)
	if store == nil || store.Name != "nope" {
		t.Fatal("undeclared assignment target must store to the global object")
	}
	if len(top.Variables) != 0 {
		t.Error("no frame slot may be created for an undeclared target")
	}
}

func TestDestructuringVarDecl(t *testing.T) {
	pattern := ast.NewNode(ast.ArrayPattern, testRng, &ast.ArrayPatternNode{
		Elements: []*ast.Node{ident("x"), ident("y")},
	})
	decl := ast.NewNode(ast.VarDecl, testRng, &ast.VarDeclNode{Target: pattern, Init: ident("arr")})
	m, _ := lower(t, prog(
		ast.NewNode(ast.VarStmt, testRng, &ast.VarStmtNode{Decls: []*ast.Node{decl}}),
	))
	top := m.TopLevel

	names := variableNames(top)
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Fatalf("hoisted pattern bindings = %v, want [x y]", names)
	}
	loads := 0
	for _, blk := range top.Blocks {
		for _, instr := range blk.Instructions {
			if instr.Op == ir.OpLoadProperty {
				loads++
			}
		}
	}
	if loads != 2 {
		t.Errorf("expected one element load per binding, got %d", loads)
	}
}

func TestPrintedListing(t *testing.T) {
	m, _ := lower(t, prog(funcDecl("f", block(ret(num(1))))))
	out := ir.Print(m)

	for _, want := range []string{"module test", "function @global", "function @f", "return"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}
