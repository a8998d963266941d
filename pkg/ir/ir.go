// Package ir defines the intermediate representation lowering produces:
// a module of functions, each a list of basic blocks holding instructions in
// SSA-like form. Frame variables and parameters are first-class values so the
// lowering stage can wire closures and captures without a separate symbol
// layer.
package ir

import (
	"fmt"

	"github.com/kestreljs/kestrel/pkg/ast"
	"github.com/kestreljs/kestrel/pkg/source"
)

type DefinitionKind int

const (
	FuncOrdinary DefinitionKind = iota
	FuncArrow
	FuncGeneratorOuter
	FuncGeneratorInner
)

func (k DefinitionKind) String() string {
	switch k {
	case FuncArrow:
		return "arrow"
	case FuncGeneratorOuter:
		return "generator"
	case FuncGeneratorInner:
		return "generator-inner"
	}
	return "function"
}

type Op int

const (
	OpBranch Op = iota
	OpCondBranch
	OpReturn
	OpThrow
	OpUnreachable
	OpStoreFrame
	OpLoadFrame
	OpAllocStack
	OpLoadStack
	OpStoreStack
	OpLoadProperty
	OpStoreProperty
	OpLoadGlobal
	OpStoreGlobal
	OpBinary
	OpCall
	OpCallBuiltin
	OpPhi
	OpCreateFunction
	OpCreateArguments
	OpGetNewTarget
	OpCreateGenerator
	OpStartGenerator
	OpResumeGenerator
	OpSaveAndYield
)

var opNames = map[Op]string{
	OpBranch:          "branch",
	OpCondBranch:      "cond_branch",
	OpReturn:          "return",
	OpThrow:           "throw",
	OpUnreachable:     "unreachable",
	OpStoreFrame:      "store_frame",
	OpLoadFrame:       "load_frame",
	OpAllocStack:      "alloc_stack",
	OpLoadStack:       "load_stack",
	OpStoreStack:      "store_stack",
	OpLoadProperty:    "load_property",
	OpStoreProperty:   "store_property",
	OpLoadGlobal:      "load_global",
	OpStoreGlobal:     "store_global",
	OpBinary:          "binary",
	OpCall:            "call",
	OpCallBuiltin:     "call_builtin",
	OpPhi:             "phi",
	OpCreateFunction:  "create_function",
	OpCreateArguments: "create_arguments",
	OpGetNewTarget:    "get_new_target",
	OpCreateGenerator: "create_generator",
	OpStartGenerator:  "start_generator",
	OpResumeGenerator: "resume_generator",
	OpSaveAndYield:    "save_and_yield",
}

func (op Op) String() string { return opNames[op] }

// Value is anything an instruction can produce or consume.
type Value interface {
	isValue()
	String() string
}

type LiteralUndefined struct{}
type LiteralNull struct{}
type LiteralNumber struct{ Value float64 }
type LiteralString struct{ Value string }
type LiteralBool struct{ Value bool }

// Temporary is an SSA value produced by one instruction.
type Temporary struct{ ID int }

// Variable is a frame slot owned by a function; closures reach it through
// their scope chain.
type Variable struct {
	Name string
	Func *Function
}

// Parameter is a formal parameter of a function. Index 0 is always the
// implicit this parameter.
type Parameter struct {
	Name  string
	Index int
	Func  *Function
}

// Label is a block reference inside a terminator or phi.
type Label struct{ Block *BasicBlock }

func (LiteralUndefined) isValue() {}
func (LiteralNull) isValue()      {}
func (LiteralNumber) isValue()    {}
func (LiteralString) isValue()    {}
func (LiteralBool) isValue()      {}
func (*Temporary) isValue()       {}
func (*Variable) isValue()        {}
func (*Parameter) isValue()       {}
func (Label) isValue()            {}
func (*Function) isValue()        {}

func (LiteralUndefined) String() string { return "undefined" }
func (LiteralNull) String() string      { return "null" }
func (v LiteralNumber) String() string  { return fmt.Sprintf("%v", v.Value) }
func (v LiteralString) String() string  { return fmt.Sprintf("%q", v.Value) }
func (v LiteralBool) String() string    { return fmt.Sprintf("%v", v.Value) }
func (v *Temporary) String() string     { return fmt.Sprintf("%%%d", v.ID) }
func (v *Variable) String() string      { return fmt.Sprintf("[%s]", v.Name) }
func (v *Parameter) String() string     { return fmt.Sprintf("%%%s", v.Name) }
func (v Label) String() string          { return "%" + v.Block.Label }
func (f *Function) String() string      { return "@" + f.Name }

type Instruction struct {
	Op       Op
	Result   Value
	Args     []Value
	Operator string // binary operator or builtin name
	Name     string // global/property/slot name where the op needs one
	Rng      source.Range
}

// IsTerminator reports whether the instruction ends a basic block.
func (i *Instruction) IsTerminator() bool {
	switch i.Op {
	case OpBranch, OpCondBranch, OpReturn, OpThrow, OpUnreachable, OpSaveAndYield:
		return true
	}
	return false
}

type BasicBlock struct {
	Label        string
	Instructions []*Instruction
}

// Terminator returns the block's final instruction if it is a terminator.
func (b *BasicBlock) Terminator() *Instruction {
	if n := len(b.Instructions); n > 0 && b.Instructions[n-1].IsTerminator() {
		return b.Instructions[n-1]
	}
	return nil
}

// LazySource records where a deferred function's body lives so it can be
// lowered later.
type LazySource struct {
	BufferID uint32
	NodeKind ast.NodeKind
	Rng      source.Range
}

type Function struct {
	Name      string
	Kind      DefinitionKind
	Strict    bool
	Rng       source.Range
	Params    []*Parameter
	Variables []*Variable
	Blocks    []*BasicBlock

	// LazyClosureAlias names the variable a named function expression binds
	// itself to; a deferred body resolves its own name through it.
	LazyClosureAlias *Variable

	// LazySource is set while the body is deferred; nil once lowered.
	LazySource *LazySource

	Node   *ast.Node
	Module *Module

	nextBlockID int
}

// IsLazy reports whether the function body has not been lowered yet.
func (f *Function) IsLazy() bool { return f.LazySource != nil }

// ThisParameter returns the implicit this parameter.
func (f *Function) ThisParameter() *Parameter {
	if len(f.Params) == 0 {
		panic("ir: function has no this parameter")
	}
	return f.Params[0]
}

// EntryBlock returns the first basic block.
func (f *Function) EntryBlock() *BasicBlock {
	if len(f.Blocks) == 0 {
		panic("ir: function has no blocks")
	}
	return f.Blocks[0]
}

// BlockUsers returns every instruction in the function that references b
// through a Label argument.
func (f *Function) BlockUsers(b *BasicBlock) []*Instruction {
	var users []*Instruction
	for _, blk := range f.Blocks {
		for _, instr := range blk.Instructions {
			for _, arg := range instr.Args {
				if lbl, ok := arg.(Label); ok && lbl.Block == b {
					users = append(users, instr)
					break
				}
			}
		}
	}
	return users
}

// RemoveBlock unlinks b from the function's block list.
func (f *Function) RemoveBlock(b *BasicBlock) {
	for i, blk := range f.Blocks {
		if blk == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

type Module struct {
	Name      string
	Functions []*Function
	TopLevel  *Function
}

func NewModule(name string) *Module {
	return &Module{Name: name}
}

// MergeEntryBlock folds the prologue's split back together: if term is an
// unconditional branch out of entry and the successor's only user is term
// itself, the successor's instructions move into entry and the successor is
// removed. A missing successor, or one with other users (a loop back edge,
// say), leaves the split in place.
func MergeEntryBlock(f *Function, entry *BasicBlock, term *Instruction) bool {
	if term == nil || term.Op != OpBranch || len(term.Args) != 1 {
		return false
	}
	lbl, ok := term.Args[0].(Label)
	if !ok || lbl.Block == nil {
		return false
	}
	next := lbl.Block
	users := f.BlockUsers(next)
	if len(users) != 1 || users[0] != term {
		return false
	}
	if n := len(entry.Instructions); n == 0 || entry.Instructions[n-1] != term {
		panic("ir: entry terminator is not the last instruction of entry")
	}
	entry.Instructions = entry.Instructions[:len(entry.Instructions)-1]
	entry.Instructions = append(entry.Instructions, next.Instructions...)
	f.RemoveBlock(next)
	return true
}
