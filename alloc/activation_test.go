package alloc

import "testing"

func TestActivationArena_Allocate_FitsWithinCapacity(t *testing.T) {
	// GIVEN an activation arena with 64 bytes of capacity, 32-byte alignment
	a := NewActivationArena(0, 64, 8, 4)

	// WHEN a 10-byte allocation is made
	addr, ok := a.Allocate(10)

	// THEN it succeeds at the (aligned) base
	if !ok {
		t.Fatal("Allocate: got ok=false, want true")
	}
	if addr != 0 {
		t.Errorf("got addr %d, want 0", addr)
	}
}

func TestActivationArena_Allocate_ExceedsCapacity_ReturnsFalse(t *testing.T) {
	// GIVEN an activation arena with only 16 bytes of capacity
	a := NewActivationArena(0, 16, 1, 1)

	// WHEN an allocation larger than capacity is requested
	_, ok := a.Allocate(32)

	// THEN it is rejected rather than silently overflowing
	if ok {
		t.Error("Allocate: got ok=true, want false (exceeds capacity)")
	}
}

func TestActivationArena_Flush_ResetsToBase(t *testing.T) {
	// GIVEN an arena with an outstanding allocation
	a := NewActivationArena(100, 1000, 1, 1)
	a.Allocate(50)

	// WHEN the arena is flushed
	a.Flush()

	// THEN the next allocation starts again from base
	addr, ok := a.Allocate(10)
	if !ok || addr != 100 {
		t.Errorf("post-flush allocation: got (%d, %v), want (100, true)", addr, ok)
	}
}

func TestActivationArena_Limit_PastCapacity(t *testing.T) {
	// GIVEN an arena of 64 bytes starting at 0 with no alignment
	a := NewActivationArena(0, 64, 1, 1)

	// WHEN Limit is queried
	limit := a.Limit()

	// THEN it reports the first address past capacity
	if limit != 64 {
		t.Errorf("Limit(): got %d, want 64", limit)
	}
}
