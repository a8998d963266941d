package irgen

import (
	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/config"
	"github.com/kestreljs/kestrel/pkg/ir"
	"github.com/kestreljs/kestrel/pkg/util"
)

// lref is a resolved reference to a storage location. Stores through an
// unresolved identifier hit the global object.
type lref interface {
	emitLoad(g *Generator) ir.Value
	emitStore(g *Generator, v ir.Value)
}

type frameRef struct{ slot *ir.Variable }

func (r frameRef) emitLoad(g *Generator) ir.Value     { return g.builder.CreateLoadFrame(r.slot) }
func (r frameRef) emitStore(g *Generator, v ir.Value) { g.builder.CreateStoreFrame(v, r.slot) }

type globalRef struct {
	name string
	node *ast.Node
}

func (r globalRef) emitLoad(g *Generator) ir.Value { return g.builder.CreateLoadGlobal(r.name) }

func (r globalRef) emitStore(g *Generator, v ir.Value) {
	util.Warn(g.cfg, config.WarnImplicitGlobal, r.node.Rng, "assignment creates implicit global '%s'", r.name)
	g.builder.CreateStoreGlobal(v, r.name)
}

// memberRef evaluates object and key eagerly, once, at lref creation.
type memberRef struct{ obj, key ir.Value }

func (r memberRef) emitLoad(g *Generator) ir.Value { return g.builder.CreateLoadProperty(r.obj, r.key) }

func (r memberRef) emitStore(g *Generator, v ir.Value) {
	g.builder.CreateStoreProperty(v, r.obj, r.key)
}

// patternRef destructures the stored value element by element; nothing
// happens until the store.
type patternRef struct {
	node    *ast.Node
	declare bool
}

func (r patternRef) emitLoad(g *Generator) ir.Value {
	panic("irgen: cannot load through a destructuring pattern")
}

func (r patternRef) emitStore(g *Generator, v ir.Value) {
	g.emitPatternStore(r.node, v, r.declare)
}

// createLRef resolves an assignment target. With declare set, an identifier
// that has no binding yet gets a fresh frame slot in the current scope
// instead of falling through to the global object.
func (g *Generator) createLRef(node *ast.Node, declare bool) lref {
	switch d := node.Data.(type) {
	case *ast.IdentNode:
		if v, ok := g.currentScope.lookup(d.Name); ok {
			if slot, ok := v.(*ir.Variable); ok {
				return frameRef{slot: slot}
			}
		}
		if declare {
			slot := g.builder.CreateVariable(g.curFunction(), d.Name)
			g.currentScope.insert(d.Name, slot)
			return frameRef{slot: slot}
		}
		return globalRef{name: d.Name, node: node}

	case *ast.MemberNode:
		obj := g.genExpression(d.Object)
		return memberRef{obj: obj, key: g.genMemberKey(d)}

	case *ast.ArrayPatternNode, *ast.ObjectPatternNode:
		return patternRef{node: node, declare: declare}
	}
	util.Error(node.Rng, "invalid assignment target")
	return nil
}

// declareAndStore binds a parameter or declaration target to value, creating
// frame slots as needed.
func (g *Generator) declareAndStore(target *ast.Node, value ir.Value) {
	g.createLRef(target, true).emitStore(g, value)
}

func (g *Generator) emitPatternStore(node *ast.Node, value ir.Value, declare bool) {
	switch d := node.Data.(type) {
	case *ast.ArrayPatternNode:
		for i, elem := range d.Elements {
			if elem == nil {
				continue
			}
			g.emitPatternElement(elem, g.builder.CreateLoadProperty(value, ir.LiteralNumber{Value: float64(i)}), declare)
		}

	case *ast.ObjectPatternNode:
		for _, prop := range d.Properties {
			pd := prop.Data.(*ast.PropertyNode)
			var key ir.Value
			if pd.Computed {
				key = g.genExpression(pd.Key)
			} else {
				key = g.propertyKeyValue(pd.Key)
			}
			g.emitPatternElement(pd.Value, g.builder.CreateLoadProperty(value, key), declare)
		}

	default:
		panic("irgen: node is not a destructuring pattern")
	}
}

// emitPatternElement stores one extracted element, applying a nested default
// when the pattern carries one.
func (g *Generator) emitPatternElement(target *ast.Node, value ir.Value, declare bool) {
	if ap, ok := target.Data.(*ast.AssignPatternNode); ok {
		value = g.emitOptionalInitialization(g.curFunction(), value, ap.Default)
		target = ap.Target
	}
	g.createLRef(target, declare).emitStore(g, value)
}

// propertyKeyValue turns a non-computed property key into a constant.
func (g *Generator) propertyKeyValue(key *ast.Node) ir.Value {
	switch d := key.Data.(type) {
	case *ast.IdentNode:
		return ir.LiteralString{Value: d.Name}
	case *ast.StringNode:
		return ir.LiteralString{Value: d.Value}
	case *ast.NumberNode:
		return ir.LiteralNumber{Value: d.Value}
	}
	util.Error(key.Rng, "unsupported property key")
	return nil
}

// genMemberKey yields the property key value of a member expression.
func (g *Generator) genMemberKey(d *ast.MemberNode) ir.Value {
	if d.Computed {
		return g.genExpression(d.Property)
	}
	return g.propertyKeyValue(d.Property)
}
