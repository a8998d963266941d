package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kestreljs/kestrel/pkg/source"
)

func testFunction() (*Builder, *Function) {
	b := NewBuilder(NewModule("test"))
	fn := b.CreateFunction("f", FuncOrdinary, false, source.Range{})
	return b, fn
}

func blockOps(b *BasicBlock) []Op {
	ops := make([]Op, len(b.Instructions))
	for i, instr := range b.Instructions {
		ops[i] = instr.Op
	}
	return ops
}

func TestMergeEntryBlockFolds(t *testing.T) {
	b, fn := testFunction()
	entry := b.CreateBasicBlock(fn)
	next := b.CreateBasicBlock(fn)

	b.SetInsertionBlock(entry)
	v := b.CreateVariable(fn, "x")
	b.CreateStoreFrame(LiteralUndefined{}, v)
	term := b.CreateBranch(next)

	b.SetInsertionBlock(next)
	b.CreateReturn(LiteralUndefined{})

	if !MergeEntryBlock(fn, entry, term) {
		t.Fatal("expected merge to happen")
	}
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 block after merge, got %d", len(fn.Blocks))
	}
	want := []Op{OpStoreFrame, OpReturn}
	if diff := cmp.Diff(want, blockOps(entry)); diff != "" {
		t.Errorf("merged entry ops mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeEntryBlockSkipsSecondUser(t *testing.T) {
	b, fn := testFunction()
	entry := b.CreateBasicBlock(fn)
	next := b.CreateBasicBlock(fn)
	loop := b.CreateBasicBlock(fn)

	b.SetInsertionBlock(entry)
	term := b.CreateBranch(next)

	b.SetInsertionBlock(next)
	b.CreateBranch(loop)

	// Back edge makes next a branch target twice.
	b.SetInsertionBlock(loop)
	b.CreateBranch(next)

	if MergeEntryBlock(fn, entry, term) {
		t.Fatal("merge must not happen when the successor has another user")
	}
	if len(fn.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(fn.Blocks))
	}
}

func TestMergeEntryBlockSkipsNonBranch(t *testing.T) {
	b, fn := testFunction()
	entry := b.CreateBasicBlock(fn)
	b.SetInsertionBlock(entry)
	term := b.CreateReturn(LiteralUndefined{})

	if MergeEntryBlock(fn, entry, term) {
		t.Fatal("merge must not happen on a non-branch terminator")
	}
	if MergeEntryBlock(fn, entry, nil) {
		t.Fatal("merge must not happen without a terminator")
	}
}

func TestBlockUsersCountsPhis(t *testing.T) {
	b, fn := testFunction()
	b1 := b.CreateBasicBlock(fn)
	b2 := b.CreateBasicBlock(fn)
	join := b.CreateBasicBlock(fn)

	b.SetInsertionBlock(b1)
	b.CreateBranch(join)
	b.SetInsertionBlock(b2)
	b.CreateBranch(join)

	b.SetInsertionBlock(join)
	b.CreatePhi(LiteralNumber{Value: 1}, b1, LiteralNumber{Value: 2}, b2)

	if got := len(fn.BlockUsers(b1)); got != 1 {
		t.Errorf("expected the phi to count as a user of b1, got %d users", got)
	}
	if got := len(fn.BlockUsers(join)); got != 2 {
		t.Errorf("expected 2 users of join, got %d", got)
	}
}

func TestRemoveBlock(t *testing.T) {
	b, fn := testFunction()
	b1 := b.CreateBasicBlock(fn)
	b2 := b.CreateBasicBlock(fn)
	fn.RemoveBlock(b1)
	if len(fn.Blocks) != 1 || fn.Blocks[0] != b2 {
		t.Fatal("RemoveBlock did not unlink the block")
	}
}

func TestTerminatorDetection(t *testing.T) {
	b, fn := testFunction()
	blk := b.CreateBasicBlock(fn)
	b.SetInsertionBlock(blk)
	b.CreateLoadGlobal("x")
	if blk.Terminator() != nil {
		t.Fatal("load is not a terminator")
	}
	b.CreateThrow(LiteralUndefined{})
	if blk.Terminator() == nil {
		t.Fatal("throw must terminate the block")
	}
}
