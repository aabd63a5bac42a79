package kvcache

import (
	"testing"

	"github.com/google/uuid"
)

func TestAllocateOneLowestIndexFirst(t *testing.T) {
	p := NewBlockPool(4)
	owner := uuid.New()

	id, err := p.AllocateOne(owner)
	if err != nil {
		t.Fatalf("AllocateOne: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected lowest-indexed block 0, got %d", id)
	}
}

func TestAllocateOneExhaustion(t *testing.T) {
	p := NewBlockPool(2)
	owner := uuid.New()

	if _, err := p.AllocateOne(owner); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AllocateOne(owner); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AllocateOne(owner); err != ErrNoFreeBlocks {
		t.Fatalf("expected ErrNoFreeBlocks, got %v", err)
	}
}

func TestConservationInvariant(t *testing.T) {
	const n = 8
	p := NewBlockPool(n)
	a, b := uuid.New(), uuid.New()

	p.AllocateOne(a)
	p.AllocateOne(a)
	p.AllocateOne(b)

	total := p.FreeCount() + p.RequestBlockCount(a) + p.RequestBlockCount(b)
	if total != n {
		t.Fatalf("free_count + owner lengths = %d, want %d", total, n)
	}
}

func TestFreeRequestReleasesAllBlocks(t *testing.T) {
	p := NewBlockPool(4)
	owner := uuid.New()

	p.AllocateOne(owner)
	p.AllocateOne(owner)
	p.FreeRequest(owner)

	if got := p.FreeCount(); got != 4 {
		t.Fatalf("FreeCount() = %d, want 4", got)
	}
	if got := p.ActiveRequestCount(); got != 0 {
		t.Fatalf("ActiveRequestCount() = %d, want 0", got)
	}
}

func TestFreeRequestUnknownOwnerIsNoop(t *testing.T) {
	p := NewBlockPool(4)
	p.FreeRequest(uuid.New())
	if got := p.FreeCount(); got != 4 {
		t.Fatalf("FreeCount() = %d, want 4", got)
	}
}

func TestBulkFreeEquivalentToIndividualFrees(t *testing.T) {
	p1 := NewBlockPool(6)
	p2 := NewBlockPool(6)
	owner := uuid.New()

	var ids1, ids2 []int
	for i := 0; i < 3; i++ {
		id, _ := p1.AllocateOne(owner)
		ids1 = append(ids1, id)
		id2, _ := p2.AllocateOne(owner)
		ids2 = append(ids2, id2)
	}

	p1.FreeRequest(owner)
	for _, id := range ids2 {
		p2.FreeOne(id)
	}

	if p1.FreeCount() != p2.FreeCount() {
		t.Fatalf("bulk free left %d free, sequential free left %d", p1.FreeCount(), p2.FreeCount())
	}
}

func TestFreeOneInvalidIDFails(t *testing.T) {
	p := NewBlockPool(2)
	if err := p.FreeOne(5); err == nil {
		t.Fatal("expected error for invalid block id")
	}
}

func TestFreeOneDoubleFreeIsNoop(t *testing.T) {
	p := NewBlockPool(2)
	owner := uuid.New()
	id, _ := p.AllocateOne(owner)
	if err := p.FreeOne(id); err != nil {
		t.Fatal(err)
	}
	if err := p.FreeOne(id); err != nil {
		t.Fatalf("double free should be a no-op, got error: %v", err)
	}
	if got := p.FreeCount(); got != 2 {
		t.Fatalf("FreeCount() = %d, want 2", got)
	}
}

func TestAllocateManyRollsBackOnPartialFailure(t *testing.T) {
	p := NewBlockPool(3)
	owner := uuid.New()

	// 64 tokens at block size 16 needs 4 blocks; only 3 exist.
	_, err := p.AllocateMany(owner, 64, 16)
	if err != ErrNoFreeBlocks {
		t.Fatalf("expected ErrNoFreeBlocks, got %v", err)
	}
	if got := p.FreeCount(); got != 3 {
		t.Fatalf("FreeCount() = %d after rollback, want 3", got)
	}
	if got := p.ActiveRequestCount(); got != 0 {
		t.Fatalf("ActiveRequestCount() = %d after rollback, want 0", got)
	}
}

func TestAllocateManyCeilingDivision(t *testing.T) {
	p := NewBlockPool(8)
	owner := uuid.New()

	ids, err := p.AllocateMany(owner, 33, 16) // ceil(33/16) = 3
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("AllocateMany returned %d blocks, want 3", len(ids))
	}
}
