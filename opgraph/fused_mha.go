package opgraph

import "github.com/neupims-sim/neupims-sim/tile"

// FusedMHAOp lowers the NPU-only fused multi-head-attention path of
// spec.md §4.6.4: QKV projection, logits, softmax, and the weighted sum,
// lowered back to back under one operation id (SPEC_FULL.md §12.3).
type FusedMHAOp struct {
	QKVProj  *MatMul
	Logits   *MatMul // Q x K^T
	Weighted *MatMul // softmax(logits) x V
	Softmax  *VectorOp

	KernelFusion bool
}

// LowerToTiles chains QKV projection, logits, softmax, and the weighted
// sum. When KernelFusion is set, Logits takes QKVProj's output tensor as
// its activation and Weighted takes Softmax's output tensor as its
// activation. Each stage still emits its own MOVIN and MOVOUT
// instructions, so no DRAM round-trip between stages is removed.
func (op *FusedMHAOp) LowerToTiles(c *Context, operationID int, platform tile.Platform) []tile.TileHandle {
	var handles []tile.TileHandle
	handles = append(handles, op.QKVProj.LowerToTiles(c, operationID, platform)...)

	if op.KernelFusion {
		op.Logits.Activation = op.QKVProj.Output
	}
	handles = append(handles, op.Logits.LowerToTiles(c, operationID, platform)...)
	handles = append(handles, op.Softmax.LowerToTiles(c, operationID, platform)...)

	if op.KernelFusion {
		op.Weighted.Activation = op.Softmax.Output
	}
	handles = append(handles, op.Weighted.LowerToTiles(c, operationID, platform)...)
	return handles
}

// OpTypeOf reports the sum-type tag FusedMHA is filed under in stats
// (spec.md §9).
func (op *FusedMHAOp) OpTypeOf() tile.OpType { return tile.OpFusedMHA }
