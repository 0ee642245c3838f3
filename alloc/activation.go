package alloc

// ActivationArena is the bump allocator of spec.md §4.10: allocations are
// never freed individually; the whole arena resets to its base on a stage
// boundary (spec.md §4.5's per-stage StagePrograms own transient
// activations that don't need to survive past the stage).
type ActivationArena struct {
	base      uint64
	next      uint64
	limit     uint64
	alignment uint64
}

// NewActivationArena creates a bump allocator starting at base (immediately
// past the weight arena's Limit(), per spec.md §4.10's initialization
// order) with a fixed capacity.
func NewActivationArena(base uint64, capacity uint64, dramReqSize, dramChannels int) *ActivationArena {
	align := uint64(dramReqSize * dramChannels)
	if align == 0 {
		align = 1
	}
	return &ActivationArena{base: base, next: base, limit: base + capacity, alignment: align}
}

// Allocate reserves size bytes from the arena, or reports ok=false if doing
// so would exceed the arena's fixed capacity (a configuration error: the
// run's HBM_act_buf_size is too small for the model's activations).
func (a *ActivationArena) Allocate(size uint64) (addr uint64, ok bool) {
	addr = alignUp(a.next, a.alignment)
	if addr+size > a.limit {
		return 0, false
	}
	a.next = addr + size
	return addr, true
}

// Flush resets the bump pointer to base, releasing every outstanding
// allocation at once (spec.md §4.10: "activations (bump allocator ...
// flushable on stage boundary)").
func (a *ActivationArena) Flush() {
	a.next = a.base
}

// Limit returns the first address past the arena's reserved capacity — the
// base the KV-cache arena must start from (spec.md §4.10's initialization
// order).
func (a *ActivationArena) Limit() uint64 {
	return alignUp(a.limit, a.alignment)
}
