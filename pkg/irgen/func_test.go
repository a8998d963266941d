package irgen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/ir"
	"github.com/kestreljs/kestrel/pkg/sem"
	"github.com/kestreljs/kestrel/pkg/source"
)

var testRng = source.Range{
	Start: source.Pos{Line: 1, Col: 1},
	End:   source.Pos{Line: 1, Col: 2},
}

func prog(stmts ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.Program, testRng, &ast.ProgramNode{Stmts: stmts})
}

func block(stmts ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.Block, testRng, &ast.BlockNode{Stmts: stmts})
}

func lazyBody(stmts ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.Block, testRng, &ast.BlockNode{Stmts: stmts, IsLazyBody: true})
}

func ident(name string) *ast.Node {
	return ast.NewNode(ast.Ident, testRng, &ast.IdentNode{Name: name})
}

func num(v float64) *ast.Node {
	return ast.NewNode(ast.Number, testRng, &ast.NumberNode{Value: v})
}

func exprStmt(e *ast.Node) *ast.Node {
	return ast.NewNode(ast.ExprStmt, testRng, &ast.ExprStmtNode{Expr: e})
}

func ret(e *ast.Node) *ast.Node {
	return ast.NewNode(ast.Return, testRng, &ast.ReturnNode{Arg: e})
}

func varDecl(name string, init *ast.Node) *ast.Node {
	decl := ast.NewNode(ast.VarDecl, testRng, &ast.VarDeclNode{Target: ident(name), Init: init})
	return ast.NewNode(ast.VarStmt, testRng, &ast.VarStmtNode{Decls: []*ast.Node{decl}})
}

func funcDecl(name string, body *ast.Node, params ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.FuncDecl, testRng, &ast.FuncDeclNode{Name: name, Params: params, Body: body})
}

func genDecl(name string, body *ast.Node, params ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.FuncDecl, testRng, &ast.FuncDeclNode{Name: name, Params: params, Body: body, IsGenerator: true})
}

func funcExpr(name string, body *ast.Node, params ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.FuncExpr, testRng, &ast.FuncExprNode{Name: name, Params: params, Body: body})
}

func arrowExpr(bodyExpr *ast.Node) *ast.Node {
	return ast.NewNode(ast.ArrowFunc, testRng, &ast.ArrowFuncNode{Body: bodyExpr, ExprBody: true})
}

func yieldExpr(arg *ast.Node) *ast.Node {
	return ast.NewNode(ast.Yield, testRng, &ast.YieldNode{Arg: arg})
}

func thisExpr() *ast.Node { return ast.NewNode(ast.This, testRng, nil) }

func breakStmt() *ast.Node {
	return ast.NewNode(ast.Break, testRng, &ast.BranchNode{LabelIndex: -1})
}

func restParam(name string) *ast.Node {
	return ast.NewNode(ast.RestElem, testRng, &ast.RestElemNode{Arg: ident(name)})
}

func defaultParam(name string, def *ast.Node) *ast.Node {
	return ast.NewNode(ast.AssignPattern, testRng, &ast.AssignPatternNode{Target: ident(name), Default: def})
}

func arrayPattern(elems ...*ast.Node) *ast.Node {
	return ast.NewNode(ast.ArrayPattern, testRng, &ast.ArrayPatternNode{Elements: elems})
}

func lower(t *testing.T, root *ast.Node) (*ir.Module, *Generator) {
	t.Helper()
	cfg := config.NewConfig()
	sem.Analyze(root, cfg)
	module := ir.NewModule("test")
	g := New(module, cfg)
	g.LowerProgram(root)
	return module, g
}

func findFunc(t *testing.T, m *ir.Module, name string) *ir.Function {
	t.Helper()
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %q not found in module", name)
	return nil
}

func allOps(fn *ir.Function) []ir.Op {
	var ops []ir.Op
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instructions {
			ops = append(ops, instr.Op)
		}
	}
	return ops
}

func findInstr(fn *ir.Function, op ir.Op) *ir.Instruction {
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instructions {
			if instr.Op == op {
				return instr
			}
		}
	}
	return nil
}

func paramNames(fn *ir.Function) []string {
	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name
	}
	return names
}

func variableNames(fn *ir.Function) []string {
	names := make([]string, len(fn.Variables))
	for i, v := range fn.Variables {
		names[i] = v.Name
	}
	return names
}

func TestEmptyFunctionMergesToSingleBlock(t *testing.T) {
	m, _ := lower(t, prog(funcDecl("f", block())))
	f := findFunc(t, m, "f")

	if len(f.Blocks) != 1 {
		t.Fatalf("expected the prologue split to merge back, got %d blocks", len(f.Blocks))
	}
	want := []ir.Op{ir.OpReturn}
	if diff := cmp.Diff(want, allOps(f)); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicateVarHoistsOnce(t *testing.T) {
	m, _ := lower(t, prog(
		varDecl("x", nil),
		varDecl("x", nil),
	))
	top := m.TopLevel

	if diff := cmp.Diff([]string{"x"}, variableNames(top)); diff != "" {
		t.Errorf("hoisted variables mismatch (-want +got):\n%s", diff)
	}
	stores := 0
	for _, blk := range top.Blocks {
		for _, instr := range blk.Instructions {
			if instr.Op == ir.OpStoreFrame {
				stores++
			}
		}
	}
	if stores != 1 {
		t.Errorf("expected a single undefined initialization, got %d stores", stores)
	}
}

func TestArrowCapturesEnclosingThis(t *testing.T) {
	m, _ := lower(t, prog(
		funcDecl("f", block(varDecl("g", arrowExpr(thisExpr())))),
	))
	f := findFunc(t, m, "f")

	var thisSlot *ir.Variable
	for _, v := range f.Variables {
		if strings.HasSuffix(v.Name, "_this") {
			thisSlot = v
		}
	}
	if thisSlot == nil {
		t.Fatalf("expected a captured this slot in f, variables: %v", variableNames(f))
	}

	var arrow *ir.Function
	for _, fn := range m.Functions {
		if fn.Kind == ir.FuncArrow {
			arrow = fn
		}
	}
	if arrow == nil {
		t.Fatal("arrow function missing from module")
	}

	load := findInstr(arrow, ir.OpLoadFrame)
	if load == nil {
		t.Fatal("arrow does not load its captured this")
	}
	if load.Args[0] != ir.Value(thisSlot) {
		t.Errorf("arrow loads %v, want the enclosing function's slot %v", load.Args[0], thisSlot)
	}
}

func TestFunctionWithoutArrowsSkipsCaptureState(t *testing.T) {
	m, _ := lower(t, prog(funcDecl("f", block(ret(thisExpr())))))
	f := findFunc(t, m, "f")
	if len(f.Variables) != 0 {
		t.Errorf("no capture slots expected, got %v", variableNames(f))
	}
	if ret := findInstr(f, ir.OpReturn); ret == nil || ret.Args[0] != ir.Value(f.ThisParameter()) {
		t.Error("this must lower to the this parameter directly")
	}
}

func TestGeneratorSplitsIntoOuterAndInner(t *testing.T) {
	m, _ := lower(t, prog(
		genDecl("gen", block(exprStmt(yieldExpr(num(1))))),
	))

	outer := findFunc(t, m, "gen")
	if outer.Kind != ir.FuncGeneratorOuter {
		t.Fatalf("outer kind = %v, want generator outer", outer.Kind)
	}
	inner := findFunc(t, m, "?anon_0_gen")
	if inner.Kind != ir.FuncGeneratorInner {
		t.Fatalf("inner kind = %v, want generator inner", inner.Kind)
	}

	if findInstr(outer, ir.OpCreateGenerator) == nil {
		t.Error("outer must materialize the generator object")
	}
	retInstr := findInstr(outer, ir.OpReturn)
	if retInstr == nil {
		t.Fatal("outer must return the generator object")
	}
	if findInstr(outer, ir.OpSaveAndYield) != nil {
		t.Error("yield must lower into the inner function only")
	}

	entry := inner.EntryBlock()
	wantPrefix := []ir.Op{ir.OpStartGenerator, ir.OpAllocStack, ir.OpResumeGenerator}
	got := make([]ir.Op, 0, len(wantPrefix))
	for i := 0; i < len(wantPrefix) && i < len(entry.Instructions); i++ {
		got = append(got, entry.Instructions[i].Op)
	}
	if diff := cmp.Diff(wantPrefix, got); diff != "" {
		t.Errorf("inner preamble mismatch (-want +got):\n%s", diff)
	}
	if findInstr(inner, ir.OpSaveAndYield) == nil {
		t.Error("inner must contain the yield suspension")
	}
}

func TestRestParameterStopsBinding(t *testing.T) {
	m, _ := lower(t, prog(
		funcDecl("f", block(), ident("a"), ident("b"), restParam("r")),
	))
	f := findFunc(t, m, "f")

	if diff := cmp.Diff([]string{"this", "a", "b"}, paramNames(f)); diff != "" {
		t.Errorf("parameter list mismatch (-want +got):\n%s", diff)
	}

	rest := findInstr(f, ir.OpCallBuiltin)
	if rest == nil || rest.Name != "copyRestArgs" {
		t.Fatal("rest parameter must lower through copyRestArgs")
	}
	if idx, ok := rest.Args[0].(ir.LiteralNumber); !ok || idx.Value != 2 {
		t.Errorf("copyRestArgs index = %v, want 2", rest.Args[0])
	}
}

func TestDefaultParameterEmitsConditionalInit(t *testing.T) {
	m, _ := lower(t, prog(
		funcDecl("f", block(), defaultParam("a", num(1))),
	))
	f := findFunc(t, m, "f")

	if diff := cmp.Diff([]string{"this", "a"}, paramNames(f)); diff != "" {
		t.Errorf("parameter list mismatch (-want +got):\n%s", diff)
	}
	bin := findInstr(f, ir.OpBinary)
	if bin == nil || bin.Operator != "===" {
		t.Fatal("default parameter must compare against undefined with ===")
	}
	if findInstr(f, ir.OpCondBranch) == nil {
		t.Error("default parameter must branch on the comparison")
	}
	if findInstr(f, ir.OpPhi) == nil {
		t.Error("default parameter must join through a phi")
	}
}

func TestDefaultExpressionSeesLaterParameter(t *testing.T) {
	m, _ := lower(t, prog(
		funcDecl("f", block(), defaultParam("a", ident("b")), ident("b")),
	))
	f := findFunc(t, m, "f")

	if instr := findInstr(f, ir.OpLoadGlobal); instr != nil {
		t.Fatalf("default expression resolved %q to a global", instr.Name)
	}
	load := findInstr(f, ir.OpLoadFrame)
	if load == nil {
		t.Fatal("default expression must read the parameter's frame slot")
	}
	if slot, ok := load.Args[0].(*ir.Variable); !ok || slot.Name != "b" {
		t.Errorf("default expression reads %v, want the frame slot of b", load.Args[0])
	}
}

func TestDeclarationHoistsWithoutUndefinedStore(t *testing.T) {
	m, _ := lower(t, prog(funcDecl("f", block())))
	top := m.TopLevel

	if diff := cmp.Diff([]string{"f"}, variableNames(top)); diff != "" {
		t.Fatalf("top-level frame mismatch (-want +got):\n%s", diff)
	}
	stores := 0
	for _, blk := range top.Blocks {
		for _, instr := range blk.Instructions {
			if instr.Op != ir.OpStoreFrame {
				continue
			}
			stores++
			if _, undef := instr.Args[0].(ir.LiteralUndefined); undef {
				t.Error("hoisted declaration slot must not be initialized to undefined")
			}
		}
	}
	if stores != 1 {
		t.Errorf("expected only the closure store, got %d frame stores", stores)
	}
}

func TestLazyGeneratorInnerDefers(t *testing.T) {
	root := prog(genDecl("gen", lazyBody(exprStmt(yieldExpr(num(1))))))
	m, g := lower(t, root)

	outer := findFunc(t, m, "gen")
	if outer.IsLazy() {
		t.Fatal("the outer half always lowers eagerly")
	}
	inner := findFunc(t, m, "?anon_0_gen")
	if !inner.IsLazy() {
		t.Fatal("a deferrable generator body must lower to a stub")
	}

	g.CompileLazyFunction(inner)

	entry := inner.EntryBlock()
	wantPrefix := []ir.Op{ir.OpStartGenerator, ir.OpAllocStack, ir.OpResumeGenerator}
	got := make([]ir.Op, 0, len(wantPrefix))
	for i := 0; i < len(wantPrefix) && i < len(entry.Instructions); i++ {
		got = append(got, entry.Instructions[i].Op)
	}
	if diff := cmp.Diff(wantPrefix, got); diff != "" {
		t.Errorf("resumed inner preamble mismatch (-want +got):\n%s", diff)
	}
	if findInstr(inner, ir.OpSaveAndYield) == nil {
		t.Error("compiled inner must contain the yield suspension")
	}
}

func TestLazyStubParamsMatchDeclaredPatterns(t *testing.T) {
	root := prog(funcDecl("f", lazyBody(), arrayPattern(ident("a"), ident("b")), ident("c")))
	m, g := lower(t, root)
	f := findFunc(t, m, "f")

	want := []string{"this", "?anon_0_param", "c"}
	if diff := cmp.Diff(want, paramNames(f)); diff != "" {
		t.Fatalf("stub parameter list mismatch (-want +got):\n%s", diff)
	}

	g.CompileLazyFunction(f)
	if diff := cmp.Diff(want, paramNames(f)); diff != "" {
		t.Errorf("parameters changed across lazy compilation (-stub +compiled):\n%s", diff)
	}
}

func TestLazyFunctionRoundTrip(t *testing.T) {
	root := prog(funcDecl("f", lazyBody(ret(ident("a"))), ident("a")))
	m, g := lower(t, root)
	f := findFunc(t, m, "f")

	if !f.IsLazy() {
		t.Fatal("function body marked deferrable must lower to a stub")
	}
	if len(f.Blocks) != 0 {
		t.Fatalf("lazy stub must have no blocks, got %d", len(f.Blocks))
	}
	stubParams := paramNames(f)

	g.CompileLazyFunction(f)

	if f.IsLazy() {
		t.Fatal("function still lazy after compilation")
	}
	if len(f.Blocks) == 0 {
		t.Fatal("compiled function has no blocks")
	}
	if diff := cmp.Diff(stubParams, paramNames(f)); diff != "" {
		t.Errorf("parameters changed across lazy compilation (-stub +compiled):\n%s", diff)
	}
	if findInstr(f, ir.OpReturn) == nil {
		t.Error("compiled body must contain the return")
	}

	defer func() {
		if recover() == nil {
			t.Error("second lazy compilation must panic")
		}
	}()
	g.CompileLazyFunction(f)
}

func TestNamedFunctionExpressionAlias(t *testing.T) {
	m, _ := lower(t, prog(varDecl("g", funcExpr("rec", block()))))
	top := m.TopLevel

	names := variableNames(top)
	wantNames := map[string]bool{"g": false, "rec": false}
	for _, n := range names {
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
		}
	}
	for n, seen := range wantNames {
		if !seen {
			t.Errorf("top-level frame missing slot %q, have %v", n, names)
		}
	}

	rec := findFunc(t, m, "rec")
	if rec.LazyClosureAlias == nil || rec.LazyClosureAlias.Name != "rec" {
		t.Error("named function expression must record its self-binding alias")
	}
}

func TestSyntaxErrorFunctionThrows(t *testing.T) {
	m, _ := lower(t, prog(funcDecl("f", block(breakStmt()))))
	f := findFunc(t, m, "f")

	want := []ir.Op{ir.OpLoadGlobal, ir.OpCall, ir.OpThrow}
	if diff := cmp.Diff(want, allOps(f)); diff != "" {
		t.Fatalf("error stub ops mismatch (-want +got):\n%s", diff)
	}
	load := findInstr(f, ir.OpLoadGlobal)
	if load.Name != "SyntaxError" {
		t.Errorf("stub constructs %q, want SyntaxError", load.Name)
	}
}

func TestAnonymousNamesAreMonotonic(t *testing.T) {
	fc := &functionContext{}
	first := fc.genAnonymousName("this")
	second := fc.genAnonymousName("arrow")
	if first != "?anon_0_this" || second != "?anon_1_arrow" {
		t.Errorf("got %q, %q", first, second)
	}
}

func TestCurFunctionPanicsWithoutContext(t *testing.T) {
	g := New(ir.NewModule("test"), config.NewConfig())
	defer func() {
		if recover() == nil {
			t.Error("curFunction must panic without an active context")
		}
	}()
	g.curFunction()
}
