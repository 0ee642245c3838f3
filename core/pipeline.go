package core

import "github.com/neupims-sim/neupims-sim/tile"

// max4 is spec.md §4.8's "max(size, 4)" floor on systolic latency.
func max4(size int64) int64 {
	if size < 4 {
		return 4
	}
	return size
}

// SystolicPipeline models the single systolic array resource shared by all
// GEMM/GEMM_PRELOAD instructions on a core (spec.md §4.8).
type SystolicPipeline struct {
	CoreHeight, CoreWidth int64

	lastIssueCycle int64
	lastStartCycle int64
	hasIssued      bool

	inflight []*tile.Instruction
}

// NewSystolicPipeline creates a pipeline sized to the core's systolic
// array dimensions.
func NewSystolicPipeline(height, width int64) *SystolicPipeline {
	return &SystolicPipeline{CoreHeight: height, CoreWidth: width}
}

// Dispatch computes inst's FinishCycle and queues it in-flight. now is the
// earliest cycle the instruction could start; the actual start is clamped
// to respect the >=4-cycle spacing between consecutive systolic issues,
// and GEMM_PRELOAD reuses the previous tile's start_cycle + core_height
// (spec.md §4.8).
func (p *SystolicPipeline) Dispatch(inst *tile.Instruction, now int64) {
	start := now
	if p.hasIssued && start < p.lastIssueCycle+4 {
		start = p.lastIssueCycle + 4
	}
	if inst.Opcode == tile.GEMMPreload && p.hasIssued {
		reuse := p.lastStartCycle + p.CoreHeight
		if reuse > start {
			start = reuse
		}
	}

	latency := p.CoreHeight + p.CoreWidth - 2 + max4(inst.Size)
	if inst.Opcode == tile.GEMMPreload {
		latency += p.CoreHeight + p.CoreHeight - 1
	}

	inst.FinishCycle = start + latency
	p.lastIssueCycle = start
	p.lastStartCycle = start
	p.hasIssued = true
	p.inflight = append(p.inflight, inst)
}

// RetireReady removes and returns every in-flight instruction whose
// FinishCycle has elapsed by now.
func (p *SystolicPipeline) RetireReady(now int64) []*tile.Instruction {
	var ready []*tile.Instruction
	kept := p.inflight[:0]
	for _, in := range p.inflight {
		if in.FinishCycle <= now {
			ready = append(ready, in)
		} else {
			kept = append(kept, in)
		}
	}
	p.inflight = kept
	return ready
}

// VectorLatencyFn derives the compute cycles for a vector opcode from its
// row size, parameterized externally from hardware.json's per-op vector
// latency constants (spec.md §4.6.2): "(add_tree_iter, vec_op_iter) and
// per-op latency constants".
type VectorLatencyFn func(opcode tile.Opcode, size int64) int64

// VectorPipeline models one lane of the vector unit; a core owns a pool
// of these and dispatches to whichever has the earliest free cycle
// (spec.md §4.8 phase 5: "least-loaded vector pipeline").
type VectorPipeline struct {
	freeAt   int64
	inflight []*tile.Instruction
	latency  VectorLatencyFn
}

// VectorPool is the set of vector lanes a core load-balances across.
type VectorPool struct {
	lanes []*VectorPipeline
}

// NewVectorPool creates width independent vector lanes sharing fn to
// compute per-instruction latency.
func NewVectorPool(width int, fn VectorLatencyFn) *VectorPool {
	vp := &VectorPool{}
	for i := 0; i < width; i++ {
		vp.lanes = append(vp.lanes, &VectorPipeline{latency: fn})
	}
	return vp
}

// Dispatch assigns inst to the lane with the earliest free-at cycle,
// computes its FinishCycle, and advances that lane's free-at.
func (vp *VectorPool) Dispatch(inst *tile.Instruction, now int64) {
	best := 0
	for i := 1; i < len(vp.lanes); i++ {
		if vp.lanes[i].freeAt < vp.lanes[best].freeAt {
			best = i
		}
	}
	lane := vp.lanes[best]
	start := now
	if lane.freeAt > start {
		start = lane.freeAt
	}
	lat := lane.latency(inst.Opcode, inst.Size)
	inst.FinishCycle = start + lat
	lane.freeAt = inst.FinishCycle
	lane.inflight = append(lane.inflight, inst)
}

// RetireReady removes and returns every in-flight instruction across all
// lanes whose FinishCycle has elapsed by now.
func (vp *VectorPool) RetireReady(now int64) []*tile.Instruction {
	var ready []*tile.Instruction
	for _, lane := range vp.lanes {
		kept := lane.inflight[:0]
		for _, in := range lane.inflight {
			if in.FinishCycle <= now {
				ready = append(ready, in)
			} else {
				kept = append(kept, in)
			}
		}
		lane.inflight = kept
	}
	return ready
}
