// Package ast defines the tree the lowering stage consumes. The driver
// decodes parser output (see json.go) into these nodes; the semantic pass
// annotates function-like nodes with a FunctionInfo before lowering runs.
package ast

import "github.com/kestreljs/kestrel/pkg/source"

type NodeKind int

const (
	// Expressions
	Number NodeKind = iota
	String
	Bool
	Null
	Ident
	This
	NewTarget
	Assign
	Binary
	Call
	Member
	FuncExpr
	ArrowFunc
	Yield

	// Binding patterns
	RestElem
	AssignPattern
	ArrayPattern
	ObjectPattern
	Property

	// Statements
	Program
	Block
	VarStmt
	VarDecl
	ExprStmt
	Return
	If
	While
	Labeled
	Break
	Continue
	Throw
	FuncDecl
	Empty
)

// Node is a uniform tree node; Data holds the kind-specific payload.
type Node struct {
	Kind NodeKind
	Rng  source.Range
	Data interface{}
}

// FunctionInfo is the semantic summary of one function-like node. It is
// computed once, before lowering, and shared between a generator's outer and
// inner halves.
type FunctionInfo struct {
	VarNames     []string // hoisted var declarations, duplicates kept
	Closures     []*Node  // FuncDecl nodes hoisted to the top of the body
	ParamNames   []string // binding names introduced by the parameter list
	LabelCount   int      // number of break/continue targets in the body
	ContainsArrows     bool
	ArrowsUseArguments bool
	Strict             bool
	CompileError       string // non-empty turns the function into an error stub
}

type NumberNode struct{ Value float64 }
type StringNode struct{ Value string }
type BoolNode struct{ Value bool }
type IdentNode struct{ Name string }

type AssignNode struct {
	Op     string // only "=" is accepted
	Target *Node
	Value  *Node
}

type BinaryNode struct {
	Op    string
	Left  *Node
	Right *Node
}

type CallNode struct {
	Callee *Node
	Args   []*Node
}

type MemberNode struct {
	Object   *Node
	Property *Node
	Computed bool
}

type FuncExprNode struct {
	Name        string // "" for anonymous
	Params      []*Node
	Body        *Node
	IsGenerator bool
	Info        *FunctionInfo
}

type ArrowFuncNode struct {
	Params   []*Node
	Body     *Node
	ExprBody bool // body is an expression, not a block
	Info     *FunctionInfo
}

type YieldNode struct {
	Arg      *Node // may be nil
	Delegate bool
}

type RestElemNode struct{ Arg *Node }

type AssignPatternNode struct {
	Target  *Node
	Default *Node
}

type ArrayPatternNode struct{ Elements []*Node } // nil element = elision

type ObjectPatternNode struct{ Properties []*Node }

type PropertyNode struct {
	Key      *Node
	Value    *Node
	Computed bool
}

type ProgramNode struct {
	Stmts []*Node
	Info  *FunctionInfo
}

type BlockNode struct {
	Stmts      []*Node
	IsLazyBody bool // parser skipped the body; Stmts holds the reparse
}

type VarStmtNode struct{ Decls []*Node }

type VarDeclNode struct {
	Target *Node // Ident or binding pattern
	Init   *Node // may be nil
}

type ExprStmtNode struct{ Expr *Node }

type ReturnNode struct{ Arg *Node } // nil for bare return

type IfNode struct {
	Cond *Node
	Then *Node
	Else *Node // may be nil
}

type WhileNode struct {
	Cond       *Node
	Body       *Node
	LabelIndex int
}

type LabeledNode struct {
	Name       string
	Stmt       *Node
	LabelIndex int
}

type BranchNode struct { // Break and Continue
	Label      string // "" for unlabeled
	LabelIndex int
}

type ThrowNode struct{ Arg *Node }

type FuncDeclNode struct {
	Name        string
	Params      []*Node
	Body        *Node
	IsGenerator bool
	Info        *FunctionInfo
}

func NewNode(kind NodeKind, rng source.Range, data interface{}) *Node {
	return &Node{Kind: kind, Rng: rng, Data: data}
}

// InfoOf returns the semantic summary of a function-like node, or nil.
func InfoOf(n *Node) *FunctionInfo {
	switch d := n.Data.(type) {
	case *ProgramNode:
		return d.Info
	case *FuncDeclNode:
		return d.Info
	case *FuncExprNode:
		return d.Info
	case *ArrowFuncNode:
		return d.Info
	}
	return nil
}

// SetInfo installs the semantic summary on a function-like node.
func SetInfo(n *Node, info *FunctionInfo) {
	switch d := n.Data.(type) {
	case *ProgramNode:
		d.Info = info
	case *FuncDeclNode:
		d.Info = info
	case *FuncExprNode:
		d.Info = info
	case *ArrowFuncNode:
		d.Info = info
	default:
		panic("ast: SetInfo on non-function node")
	}
}

// ParamsOf returns the parameter pattern list of a function-like node.
func ParamsOf(n *Node) []*Node {
	switch d := n.Data.(type) {
	case *FuncDeclNode:
		return d.Params
	case *FuncExprNode:
		return d.Params
	case *ArrowFuncNode:
		return d.Params
	}
	return nil
}

// BodyOf returns the body of a function-like node. For a Program the body is
// the node itself.
func BodyOf(n *Node) *Node {
	switch d := n.Data.(type) {
	case *ProgramNode:
		return n
	case *FuncDeclNode:
		return d.Body
	case *FuncExprNode:
		return d.Body
	case *ArrowFuncNode:
		return d.Body
	}
	return nil
}

// NameOf returns the declared name of a function-like node, or "".
func NameOf(n *Node) string {
	switch d := n.Data.(type) {
	case *FuncDeclNode:
		return d.Name
	case *FuncExprNode:
		return d.Name
	}
	return ""
}

// IsGenerator reports whether a function-like node is a generator.
func IsGenerator(n *Node) bool {
	switch d := n.Data.(type) {
	case *FuncDeclNode:
		return d.IsGenerator
	case *FuncExprNode:
		return d.IsGenerator
	}
	return false
}

// StmtsOf returns the statement list of a Program or Block node.
func StmtsOf(n *Node) []*Node {
	switch d := n.Data.(type) {
	case *ProgramNode:
		return d.Stmts
	case *BlockNode:
		return d.Stmts
	}
	return nil
}
