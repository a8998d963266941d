// Package sem runs the pre-lowering semantic pass. It annotates every
// function-like node with a FunctionInfo: hoisted variables, nested closure
// declarations, parameter names, resolved break/continue targets, arrow
// capture requirements, and strictness. Lowering consumes these summaries and
// never re-walks the tree for them.
package sem

import (
	"fmt"

	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/util"
)

type analyzer struct {
	cfg *config.Config
}

// Analyze computes a FunctionInfo for the program and every function nested
// in it. Errors that would abort a single function (unsupported syntax, bad
// labels) are recorded in that function's CompileError instead of failing the
// whole unit.
func Analyze(root *ast.Node, cfg *config.Config) {
	if root.Kind != ast.Program {
		panic("sem: root must be a Program")
	}
	a := &analyzer{cfg: cfg}
	a.analyzeFunction(root, nil, cfg.IsFeatureEnabled(config.FeatForceStrict))
}

type labelEntry struct {
	name   string // "" for an unlabeled loop
	index  int
	isLoop bool
}

// funcState is the per-function walk state. owner points at the nearest
// enclosing non-arrow function's summary; arrows report their capture needs
// there.
type funcState struct {
	info   *ast.FunctionInfo
	owner  *ast.FunctionInfo
	labels []labelEntry
}

func (a *analyzer) analyzeFunction(n *ast.Node, enclosingOwner *ast.FunctionInfo, inheritStrict bool) *ast.FunctionInfo {
	info := &ast.FunctionInfo{Strict: inheritStrict}
	ast.SetInfo(n, info)

	owner := info
	if n.Kind == ast.ArrowFunc {
		if enclosingOwner == nil {
			panic("sem: arrow function without an enclosing function")
		}
		owner = enclosingOwner
		owner.ContainsArrows = true
		if !a.cfg.IsFeatureEnabled(config.FeatArrows) {
			a.setError(info, "arrow functions are not supported by the selected standard")
		}
	}
	if ast.IsGenerator(n) && !a.cfg.IsFeatureEnabled(config.FeatGenerators) {
		a.setError(info, "generator functions are not supported by the selected standard")
	}

	a.analyzeParams(n, info)

	body := ast.BodyOf(n)
	if body == nil {
		return info
	}

	st := &funcState{info: info, owner: owner}
	if arrow, ok := n.Data.(*ast.ArrowFuncNode); ok && arrow.ExprBody {
		a.walkExpr(body, st)
		return info
	}

	if !info.Strict && a.hasUseStrict(ast.StmtsOf(body)) {
		info.Strict = true
	}
	for _, stmt := range ast.StmtsOf(body) {
		a.walkStmt(stmt, st)
	}
	return info
}

func (a *analyzer) analyzeParams(n *ast.Node, info *ast.FunctionInfo) {
	params := ast.ParamsOf(n)
	for i, p := range params {
		switch p.Kind {
		case ast.RestElem:
			if !a.cfg.IsFeatureEnabled(config.FeatRestParams) {
				a.setError(info, "rest parameters are not supported by the selected standard")
			}
			if i != len(params)-1 {
				a.setError(info, "rest parameter must be the last formal parameter")
			}
		case ast.AssignPattern:
			if !a.cfg.IsFeatureEnabled(config.FeatDefaultParams) {
				a.setError(info, "default parameter values are not supported by the selected standard")
			}
		case ast.ArrayPattern, ast.ObjectPattern:
			if !a.cfg.IsFeatureEnabled(config.FeatDestructuring) {
				a.setError(info, "destructuring parameters are not supported by the selected standard")
			}
		}
		collectBindingNames(p, &info.ParamNames)
	}
}

// collectBindingNames appends every identifier bound by a pattern.
func collectBindingNames(p *ast.Node, out *[]string) {
	if p == nil {
		return
	}
	switch d := p.Data.(type) {
	case *ast.IdentNode:
		*out = append(*out, d.Name)
	case *ast.RestElemNode:
		collectBindingNames(d.Arg, out)
	case *ast.AssignPatternNode:
		collectBindingNames(d.Target, out)
	case *ast.ArrayPatternNode:
		for _, elem := range d.Elements {
			collectBindingNames(elem, out)
		}
	case *ast.ObjectPatternNode:
		for _, prop := range d.Properties {
			if pd, ok := prop.Data.(*ast.PropertyNode); ok {
				collectBindingNames(pd.Value, out)
			}
		}
	}
}

func (a *analyzer) hasUseStrict(stmts []*ast.Node) bool {
	for _, stmt := range stmts {
		es, ok := stmt.Data.(*ast.ExprStmtNode)
		if !ok || es.Expr.Kind != ast.String {
			break
		}
		directive := es.Expr.Data.(*ast.StringNode).Value
		if directive == "use strict" {
			return true
		}
		util.Warn(a.cfg, config.WarnDirectives, stmt.Rng, "unrecognized directive '%s'", directive)
	}
	return false
}

func (a *analyzer) walkStmt(n *ast.Node, st *funcState) {
	if n == nil {
		return
	}
	switch d := n.Data.(type) {
	case *ast.BlockNode:
		for _, stmt := range d.Stmts {
			a.walkStmt(stmt, st)
		}

	case *ast.VarStmtNode:
		for _, decl := range d.Decls {
			a.walkStmt(decl, st)
		}

	case *ast.VarDeclNode:
		collectBindingNames(d.Target, &st.info.VarNames)
		a.walkExpr(d.Init, st)

	case *ast.ExprStmtNode:
		a.walkExpr(d.Expr, st)

	case *ast.ReturnNode:
		a.walkExpr(d.Arg, st)

	case *ast.IfNode:
		a.walkExpr(d.Cond, st)
		a.walkStmt(d.Then, st)
		a.walkStmt(d.Else, st)

	case *ast.WhileNode:
		d.LabelIndex = a.allocLabel(st, "", true)
		a.walkExpr(d.Cond, st)
		a.walkStmt(d.Body, st)
		a.popLabel(st)

	case *ast.LabeledNode:
		if a.findLabel(st, d.Name) != nil {
			a.setError(st.info, "label '%s' is already in use", d.Name)
		}
		// A label wrapping a loop shares the loop's index, so continue
		// through the label reaches the loop's continue target.
		if loop, ok := d.Stmt.Data.(*ast.WhileNode); ok {
			d.LabelIndex = a.allocLabel(st, d.Name, true)
			loop.LabelIndex = d.LabelIndex
			a.walkExpr(loop.Cond, st)
			a.walkStmt(loop.Body, st)
			a.popLabel(st)
			return
		}
		d.LabelIndex = a.allocLabel(st, d.Name, false)
		a.walkStmt(d.Stmt, st)
		a.popLabel(st)

	case *ast.BranchNode:
		isContinue := n.Kind == ast.Continue
		entry := a.resolveBranch(st, d.Label, isContinue)
		if entry == nil {
			a.setError(st.info, "%s", branchError(d.Label, isContinue))
			return
		}
		d.LabelIndex = entry.index

	case *ast.ThrowNode:
		a.walkExpr(d.Arg, st)

	case *ast.FuncDeclNode:
		// Declarations hoist as closures, not as undefined-initialized vars.
		st.info.Closures = append(st.info.Closures, n)
		a.analyzeFunction(n, nil, st.info.Strict)

	default:
		// Empty and anything without nested work.
	}
}

func (a *analyzer) walkExpr(n *ast.Node, st *funcState) {
	if n == nil {
		return
	}
	switch d := n.Data.(type) {
	case *ast.IdentNode:
		if st.info != st.owner && d.Name == "arguments" {
			st.owner.ArrowsUseArguments = true
		}

	case *ast.AssignNode:
		a.walkExpr(d.Target, st)
		a.walkExpr(d.Value, st)

	case *ast.BinaryNode:
		a.walkExpr(d.Left, st)
		a.walkExpr(d.Right, st)

	case *ast.CallNode:
		a.walkExpr(d.Callee, st)
		for _, arg := range d.Args {
			a.walkExpr(arg, st)
		}

	case *ast.MemberNode:
		a.walkExpr(d.Object, st)
		if d.Computed {
			a.walkExpr(d.Property, st)
		}

	case *ast.FuncExprNode:
		a.analyzeFunction(n, nil, st.info.Strict)

	case *ast.ArrowFuncNode:
		a.analyzeFunction(n, st.owner, st.info.Strict)

	case *ast.YieldNode:
		if d.Delegate {
			a.setError(st.info, "'yield*' delegation is not supported")
		}
		a.walkExpr(d.Arg, st)

	case *ast.AssignPatternNode:
		a.walkExpr(d.Target, st)
		a.walkExpr(d.Default, st)

	case *ast.ArrayPatternNode:
		for _, elem := range d.Elements {
			a.walkExpr(elem, st)
		}

	case *ast.ObjectPatternNode:
		for _, prop := range d.Properties {
			a.walkExpr(prop, st)
		}

	case *ast.PropertyNode:
		a.walkExpr(d.Value, st)
	}
}

func (a *analyzer) allocLabel(st *funcState, name string, isLoop bool) int {
	index := st.info.LabelCount
	st.info.LabelCount++
	st.labels = append(st.labels, labelEntry{name: name, index: index, isLoop: isLoop})
	return index
}

func (a *analyzer) popLabel(st *funcState) {
	st.labels = st.labels[:len(st.labels)-1]
}

func (a *analyzer) findLabel(st *funcState, name string) *labelEntry {
	if name == "" {
		return nil
	}
	for i := len(st.labels) - 1; i >= 0; i-- {
		if st.labels[i].name == name {
			return &st.labels[i]
		}
	}
	return nil
}

func (a *analyzer) resolveBranch(st *funcState, label string, isContinue bool) *labelEntry {
	if label != "" {
		entry := a.findLabel(st, label)
		if entry == nil || (isContinue && !entry.isLoop) {
			return nil
		}
		return entry
	}
	for i := len(st.labels) - 1; i >= 0; i-- {
		if st.labels[i].isLoop {
			return &st.labels[i]
		}
	}
	return nil
}

func branchError(label string, isContinue bool) string {
	kw := "break"
	if isContinue {
		kw = "continue"
	}
	if label == "" {
		return fmt.Sprintf("'%s' is only valid inside a loop", kw)
	}
	return fmt.Sprintf("label '%s' is not defined for '%s'", label, kw)
}

func (a *analyzer) setError(info *ast.FunctionInfo, format string, args ...interface{}) {
	if info.CompileError == "" {
		info.CompileError = fmt.Sprintf(format, args...)
	}
}
