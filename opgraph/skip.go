package opgraph

import "github.com/neupims-sim/neupims-sim/tile"

// SkipOp lowers Reshape/Split/Concat into "skip tiles" — placeholder
// entries that retire immediately because they only relabel existing
// buffers rather than moving or computing data (spec.md §4.6.4).
type SkipOp struct {
	OpType tile.OpType // OpReshape, OpSplit, or OpConcat
}

// LowerToTiles emits a single Bar-status tile with zero outstanding
// counters, so it retires the instant the core examines it.
func (op *SkipOp) LowerToTiles(c *Context, operationID int, platform tile.Platform) []tile.TileHandle {
	t, h := c.NewTile(op.OpType, operationID, platform)
	t.Status = tile.Bar
	return []tile.TileHandle{h}
}

// SplitDecodingOp returns three logical views (Q, K, V) onto the same
// underlying buffers and extends the K/V tensors by one token position
// each, per spec.md §4.6.4: "SplitDecoding returns three logical views on
// the same buffers, calling add_token() on the K/V tensors to extend them
// one position."
type SplitDecodingOp struct {
	K, V *Tensor
}

// Apply performs the (zero-instruction) view split and the K/V extension;
// it still emits a skip tile for stats/stage-accounting uniformity.
func (op *SplitDecodingOp) Apply(c *Context, operationID int, platform tile.Platform) []tile.TileHandle {
	op.K.AddToken()
	op.V.AddToken()
	skip := &SkipOp{OpType: tile.OpSplitDecoding}
	return skip.LowerToTiles(c, operationID, platform)
}
