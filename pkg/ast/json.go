package ast

import (
	"encoding/json"
	"fmt"

	"github.com/kestreljs/kestrel/pkg/source"
)

// DecodeJSON converts an ESTree-shaped JSON document into the internal tree.
// bufferID identifies the registered source buffer the positions refer to.
// Blocks may carry a non-standard "lazy": true marker, meaning the parser
// pre-parsed the body and lowering may defer it.
func DecodeJSON(data []byte, bufferID uint32) (*Node, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid AST document: %w", err)
	}
	d := &decoder{buffer: bufferID}
	root, err := d.node(raw)
	if err != nil {
		return nil, err
	}
	if root == nil || root.Kind != Program {
		return nil, fmt.Errorf("AST root must be a Program")
	}
	return root, nil
}

type decoder struct {
	buffer uint32
}

func (d *decoder) node(raw map[string]interface{}) (*Node, error) {
	if raw == nil {
		return nil, nil
	}
	typ, _ := raw["type"].(string)
	rng := d.rangeOf(raw)

	switch typ {
	case "Program":
		stmts, err := d.nodeList(raw["body"])
		if err != nil {
			return nil, err
		}
		return NewNode(Program, rng, &ProgramNode{Stmts: stmts}), nil

	case "Literal":
		switch v := raw["value"].(type) {
		case float64:
			return NewNode(Number, rng, &NumberNode{Value: v}), nil
		case string:
			return NewNode(String, rng, &StringNode{Value: v}), nil
		case bool:
			return NewNode(Bool, rng, &BoolNode{Value: v}), nil
		case nil:
			return NewNode(Null, rng, nil), nil
		default:
			return nil, fmt.Errorf("%s: unsupported literal value", d.at(rng))
		}

	case "Identifier":
		name, _ := raw["name"].(string)
		return NewNode(Ident, rng, &IdentNode{Name: name}), nil

	case "ThisExpression":
		return NewNode(This, rng, nil), nil

	case "MetaProperty":
		meta := childName(raw, "meta")
		prop := childName(raw, "property")
		if meta == "new" && prop == "target" {
			return NewNode(NewTarget, rng, nil), nil
		}
		return nil, fmt.Errorf("%s: unsupported meta property %s.%s", d.at(rng), meta, prop)

	case "AssignmentExpression":
		op, _ := raw["operator"].(string)
		target, err := d.child(raw, "left")
		if err != nil {
			return nil, err
		}
		value, err := d.child(raw, "right")
		if err != nil {
			return nil, err
		}
		return NewNode(Assign, rng, &AssignNode{Op: op, Target: target, Value: value}), nil

	case "BinaryExpression", "LogicalExpression":
		op, _ := raw["operator"].(string)
		left, err := d.child(raw, "left")
		if err != nil {
			return nil, err
		}
		right, err := d.child(raw, "right")
		if err != nil {
			return nil, err
		}
		return NewNode(Binary, rng, &BinaryNode{Op: op, Left: left, Right: right}), nil

	case "CallExpression":
		callee, err := d.child(raw, "callee")
		if err != nil {
			return nil, err
		}
		args, err := d.nodeList(raw["arguments"])
		if err != nil {
			return nil, err
		}
		return NewNode(Call, rng, &CallNode{Callee: callee, Args: args}), nil

	case "MemberExpression":
		obj, err := d.child(raw, "object")
		if err != nil {
			return nil, err
		}
		prop, err := d.child(raw, "property")
		if err != nil {
			return nil, err
		}
		computed, _ := raw["computed"].(bool)
		return NewNode(Member, rng, &MemberNode{Object: obj, Property: prop, Computed: computed}), nil

	case "FunctionExpression":
		params, err := d.nodeList(raw["params"])
		if err != nil {
			return nil, err
		}
		body, err := d.child(raw, "body")
		if err != nil {
			return nil, err
		}
		gen, _ := raw["generator"].(bool)
		return NewNode(FuncExpr, rng, &FuncExprNode{
			Name:        childName(raw, "id"),
			Params:      params,
			Body:        body,
			IsGenerator: gen,
		}), nil

	case "ArrowFunctionExpression":
		params, err := d.nodeList(raw["params"])
		if err != nil {
			return nil, err
		}
		body, err := d.child(raw, "body")
		if err != nil {
			return nil, err
		}
		exprBody, _ := raw["expression"].(bool)
		return NewNode(ArrowFunc, rng, &ArrowFuncNode{Params: params, Body: body, ExprBody: exprBody}), nil

	case "YieldExpression":
		arg, err := d.child(raw, "argument")
		if err != nil {
			return nil, err
		}
		delegate, _ := raw["delegate"].(bool)
		return NewNode(Yield, rng, &YieldNode{Arg: arg, Delegate: delegate}), nil

	case "RestElement":
		arg, err := d.child(raw, "argument")
		if err != nil {
			return nil, err
		}
		return NewNode(RestElem, rng, &RestElemNode{Arg: arg}), nil

	case "AssignmentPattern":
		target, err := d.child(raw, "left")
		if err != nil {
			return nil, err
		}
		def, err := d.child(raw, "right")
		if err != nil {
			return nil, err
		}
		return NewNode(AssignPattern, rng, &AssignPatternNode{Target: target, Default: def}), nil

	case "ArrayPattern":
		elems, err := d.nodeListWithHoles(raw["elements"])
		if err != nil {
			return nil, err
		}
		return NewNode(ArrayPattern, rng, &ArrayPatternNode{Elements: elems}), nil

	case "ObjectPattern":
		props, err := d.nodeList(raw["properties"])
		if err != nil {
			return nil, err
		}
		return NewNode(ObjectPattern, rng, &ObjectPatternNode{Properties: props}), nil

	case "Property":
		key, err := d.child(raw, "key")
		if err != nil {
			return nil, err
		}
		value, err := d.child(raw, "value")
		if err != nil {
			return nil, err
		}
		computed, _ := raw["computed"].(bool)
		return NewNode(Property, rng, &PropertyNode{Key: key, Value: value, Computed: computed}), nil

	case "BlockStatement":
		stmts, err := d.nodeList(raw["body"])
		if err != nil {
			return nil, err
		}
		lazy, _ := raw["lazy"].(bool)
		return NewNode(Block, rng, &BlockNode{Stmts: stmts, IsLazyBody: lazy}), nil

	case "VariableDeclaration":
		decls, err := d.nodeList(raw["declarations"])
		if err != nil {
			return nil, err
		}
		return NewNode(VarStmt, rng, &VarStmtNode{Decls: decls}), nil

	case "VariableDeclarator":
		target, err := d.child(raw, "id")
		if err != nil {
			return nil, err
		}
		init, err := d.child(raw, "init")
		if err != nil {
			return nil, err
		}
		return NewNode(VarDecl, rng, &VarDeclNode{Target: target, Init: init}), nil

	case "ExpressionStatement":
		expr, err := d.child(raw, "expression")
		if err != nil {
			return nil, err
		}
		return NewNode(ExprStmt, rng, &ExprStmtNode{Expr: expr}), nil

	case "ReturnStatement":
		arg, err := d.child(raw, "argument")
		if err != nil {
			return nil, err
		}
		return NewNode(Return, rng, &ReturnNode{Arg: arg}), nil

	case "IfStatement":
		cond, err := d.child(raw, "test")
		if err != nil {
			return nil, err
		}
		then, err := d.child(raw, "consequent")
		if err != nil {
			return nil, err
		}
		els, err := d.child(raw, "alternate")
		if err != nil {
			return nil, err
		}
		return NewNode(If, rng, &IfNode{Cond: cond, Then: then, Else: els}), nil

	case "WhileStatement":
		cond, err := d.child(raw, "test")
		if err != nil {
			return nil, err
		}
		body, err := d.child(raw, "body")
		if err != nil {
			return nil, err
		}
		return NewNode(While, rng, &WhileNode{Cond: cond, Body: body, LabelIndex: -1}), nil

	case "LabeledStatement":
		stmt, err := d.child(raw, "body")
		if err != nil {
			return nil, err
		}
		return NewNode(Labeled, rng, &LabeledNode{Name: childName(raw, "label"), Stmt: stmt, LabelIndex: -1}), nil

	case "BreakStatement":
		return NewNode(Break, rng, &BranchNode{Label: childName(raw, "label"), LabelIndex: -1}), nil

	case "ContinueStatement":
		return NewNode(Continue, rng, &BranchNode{Label: childName(raw, "label"), LabelIndex: -1}), nil

	case "ThrowStatement":
		arg, err := d.child(raw, "argument")
		if err != nil {
			return nil, err
		}
		return NewNode(Throw, rng, &ThrowNode{Arg: arg}), nil

	case "FunctionDeclaration":
		params, err := d.nodeList(raw["params"])
		if err != nil {
			return nil, err
		}
		body, err := d.child(raw, "body")
		if err != nil {
			return nil, err
		}
		gen, _ := raw["generator"].(bool)
		name := childName(raw, "id")
		if name == "" {
			return nil, fmt.Errorf("%s: function declaration requires a name", d.at(rng))
		}
		return NewNode(FuncDecl, rng, &FuncDeclNode{
			Name:        name,
			Params:      params,
			Body:        body,
			IsGenerator: gen,
		}), nil

	case "EmptyStatement":
		return NewNode(Empty, rng, nil), nil
	}

	return nil, fmt.Errorf("%s: unsupported node type '%s'", d.at(rng), typ)
}

func (d *decoder) child(raw map[string]interface{}, key string) (*Node, error) {
	sub, ok := raw[key].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	return d.node(sub)
}

func (d *decoder) nodeList(raw interface{}) ([]*Node, error) {
	items, _ := raw.([]interface{})
	nodes := make([]*Node, 0, len(items))
	for _, item := range items {
		sub, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a node object in list")
		}
		n, err := d.node(sub)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// nodeListWithHoles keeps nil entries for array pattern elisions.
func (d *decoder) nodeListWithHoles(raw interface{}) ([]*Node, error) {
	items, _ := raw.([]interface{})
	nodes := make([]*Node, 0, len(items))
	for _, item := range items {
		if item == nil {
			nodes = append(nodes, nil)
			continue
		}
		sub, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a node object in list")
		}
		n, err := d.node(sub)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (d *decoder) rangeOf(raw map[string]interface{}) source.Range {
	rng := source.Range{Buffer: d.buffer}
	if loc, ok := raw["loc"].(map[string]interface{}); ok {
		rng.Start = posOf(loc["start"])
		rng.End = posOf(loc["end"])
	}
	if spans, ok := raw["range"].([]interface{}); ok && len(spans) == 2 {
		if off, ok := spans[0].(float64); ok {
			rng.Start.Off = int(off)
		}
		if off, ok := spans[1].(float64); ok {
			rng.End.Off = int(off)
		}
	}
	return rng
}

// posOf converts an ESTree position; columns arrive 0-based.
func posOf(raw interface{}) source.Pos {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return source.Pos{}
	}
	pos := source.Pos{}
	if line, ok := m["line"].(float64); ok {
		pos.Line = int(line)
	}
	if col, ok := m["column"].(float64); ok {
		pos.Col = int(col) + 1
	}
	return pos
}

func childName(raw map[string]interface{}, key string) string {
	sub, ok := raw[key].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := sub["name"].(string)
	return name
}

func (d *decoder) at(rng source.Range) string {
	return fmt.Sprintf("%d:%d", rng.Start.Line, rng.Start.Col)
}
