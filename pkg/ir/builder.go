package ir

import (
	"fmt"

	"github.com/kestreljs/kestrel/pkg/source"
)

// Builder emits instructions into an insertion block and owns temporary
// numbering. Temporary ids are monotonic per builder so moving the insertion
// point never recycles a value.
type Builder struct {
	module      *Module
	insertBlock *BasicBlock
	tempCount   int
	loc         source.Range
}

func NewBuilder(module *Module) *Builder {
	return &Builder{module: module}
}

func (b *Builder) Module() *Module { return b.module }

// SetLocation sets the source range stamped on instructions emitted next.
func (b *Builder) SetLocation(rng source.Range) { b.loc = rng }

func (b *Builder) SetInsertionBlock(blk *BasicBlock) { b.insertBlock = blk }
func (b *Builder) GetInsertionBlock() *BasicBlock    { return b.insertBlock }

func (b *Builder) CreateFunction(name string, kind DefinitionKind, strict bool, rng source.Range) *Function {
	fn := &Function{Name: name, Kind: kind, Strict: strict, Rng: rng, Module: b.module}
	b.module.Functions = append(b.module.Functions, fn)
	return fn
}

func (b *Builder) CreateParameter(fn *Function, name string) *Parameter {
	p := &Parameter{Name: name, Index: len(fn.Params), Func: fn}
	fn.Params = append(fn.Params, p)
	return p
}

func (b *Builder) CreateVariable(fn *Function, name string) *Variable {
	v := &Variable{Name: name, Func: fn}
	fn.Variables = append(fn.Variables, v)
	return v
}

func (b *Builder) CreateBasicBlock(fn *Function) *BasicBlock {
	blk := &BasicBlock{Label: fmt.Sprintf("bb%d", fn.nextBlockID)}
	fn.nextBlockID++
	fn.Blocks = append(fn.Blocks, blk)
	return blk
}

func (b *Builder) newTemp() *Temporary {
	t := &Temporary{ID: b.tempCount}
	b.tempCount++
	return t
}

func (b *Builder) emit(instr *Instruction) *Instruction {
	if b.insertBlock == nil {
		panic("ir: no insertion block")
	}
	instr.Rng = b.loc
	b.insertBlock.Instructions = append(b.insertBlock.Instructions, instr)
	return instr
}

func (b *Builder) CreateBranch(dest *BasicBlock) *Instruction {
	return b.emit(&Instruction{Op: OpBranch, Args: []Value{Label{dest}}})
}

func (b *Builder) CreateCondBranch(cond Value, onTrue, onFalse *BasicBlock) *Instruction {
	return b.emit(&Instruction{Op: OpCondBranch, Args: []Value{cond, Label{onTrue}, Label{onFalse}}})
}

func (b *Builder) CreateReturn(v Value) *Instruction {
	return b.emit(&Instruction{Op: OpReturn, Args: []Value{v}})
}

func (b *Builder) CreateThrow(v Value) *Instruction {
	return b.emit(&Instruction{Op: OpThrow, Args: []Value{v}})
}

func (b *Builder) CreateUnreachable() *Instruction {
	return b.emit(&Instruction{Op: OpUnreachable})
}

func (b *Builder) CreateStoreFrame(v Value, dst *Variable) *Instruction {
	return b.emit(&Instruction{Op: OpStoreFrame, Args: []Value{v, dst}})
}

func (b *Builder) CreateLoadFrame(src *Variable) Value {
	instr := &Instruction{Op: OpLoadFrame, Result: b.newTemp(), Args: []Value{src}}
	b.emit(instr)
	return instr.Result
}

// CreateAllocStack reserves a named function-local stack slot and returns its
// address value.
func (b *Builder) CreateAllocStack(name string) Value {
	instr := &Instruction{Op: OpAllocStack, Result: b.newTemp(), Name: name}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreateLoadStack(addr Value) Value {
	instr := &Instruction{Op: OpLoadStack, Result: b.newTemp(), Args: []Value{addr}}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreateStoreStack(v, addr Value) *Instruction {
	return b.emit(&Instruction{Op: OpStoreStack, Args: []Value{v, addr}})
}

func (b *Builder) CreateLoadProperty(obj, key Value) Value {
	instr := &Instruction{Op: OpLoadProperty, Result: b.newTemp(), Args: []Value{obj, key}}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreateStoreProperty(v, obj, key Value) *Instruction {
	return b.emit(&Instruction{Op: OpStoreProperty, Args: []Value{v, obj, key}})
}

func (b *Builder) CreateLoadGlobal(name string) Value {
	instr := &Instruction{Op: OpLoadGlobal, Result: b.newTemp(), Name: name}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreateStoreGlobal(v Value, name string) *Instruction {
	return b.emit(&Instruction{Op: OpStoreGlobal, Args: []Value{v}, Name: name})
}

func (b *Builder) CreateBinary(op string, left, right Value) Value {
	instr := &Instruction{Op: OpBinary, Result: b.newTemp(), Args: []Value{left, right}, Operator: op}
	b.emit(instr)
	return instr.Result
}

// CreateCall emits a call; thisValue is the receiver, undefined for plain
// calls.
func (b *Builder) CreateCall(callee, thisValue Value, args []Value) Value {
	all := append([]Value{callee, thisValue}, args...)
	instr := &Instruction{Op: OpCall, Result: b.newTemp(), Args: all}
	b.emit(instr)
	return instr.Result
}

// CreateCallBuiltin calls an internal runtime helper by name.
func (b *Builder) CreateCallBuiltin(name string, args []Value) Value {
	instr := &Instruction{Op: OpCallBuiltin, Result: b.newTemp(), Args: args, Name: name}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreatePhi(v1 Value, b1 *BasicBlock, v2 Value, b2 *BasicBlock) Value {
	instr := &Instruction{Op: OpPhi, Result: b.newTemp(), Args: []Value{v1, Label{b1}, v2, Label{b2}}}
	b.emit(instr)
	return instr.Result
}

// CreateClosure materializes a function value in the current scope.
func (b *Builder) CreateClosure(fn *Function) Value {
	instr := &Instruction{Op: OpCreateFunction, Result: b.newTemp(), Args: []Value{fn}}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreateArguments() Value {
	instr := &Instruction{Op: OpCreateArguments, Result: b.newTemp()}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreateGetNewTarget() Value {
	instr := &Instruction{Op: OpGetNewTarget, Result: b.newTemp()}
	b.emit(instr)
	return instr.Result
}

// CreateGenerator materializes the generator object wrapping the inner
// function.
func (b *Builder) CreateGenerator(inner *Function) Value {
	instr := &Instruction{Op: OpCreateGenerator, Result: b.newTemp(), Args: []Value{inner}}
	b.emit(instr)
	return instr.Result
}

func (b *Builder) CreateStartGenerator() *Instruction {
	return b.emit(&Instruction{Op: OpStartGenerator})
}

// CreateResumeGenerator delivers the resumed value; isReturnAddr receives
// whether the resume was a return request.
func (b *Builder) CreateResumeGenerator(isReturnAddr Value) Value {
	instr := &Instruction{Op: OpResumeGenerator, Result: b.newTemp(), Args: []Value{isReturnAddr}}
	b.emit(instr)
	return instr.Result
}

// CreateSaveAndYield suspends the generator with value and resumes execution
// at next.
func (b *Builder) CreateSaveAndYield(value Value, next *BasicBlock) *Instruction {
	return b.emit(&Instruction{Op: OpSaveAndYield, Args: []Value{value, Label{next}}})
}
