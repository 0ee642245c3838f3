// Package opgraph implements the operation-to-tile compiler of spec.md
// §4.6/§4.7: lowering a symbolic model graph (matmul, softmax, layernorm,
// fused MHA, PIM GEMV) into Tiles of SRAM-addressed Instructions, using a
// double-buffered scratchpad budget and an explicit multi-level tile-size
// search.
package opgraph

import "github.com/neupims-sim/neupims-sim/tile"

// Context is the explicit SimulationContext spec.md §9's design note asks
// for in place of the source's mutable global Config/Singleton allocators:
// shared compiler state (id counters, the tile pool, and the hardware
// geometry the tiler searches against) threaded by reference through every
// Operation's lowering call.
type Context struct {
	Pool *tile.Pool

	CoreWidth  int64
	CoreHeight int64
	SpadSize   int64 // total scratchpad bytes; each tile gets at most half
	Precision  int64

	HeadsPerTile int // floor(page_size / d_k), spec.md §4.6.3
	DK           int

	nextOperationID int
}

// NewContext creates a compiler Context sharing pool across every
// Operation lowered against it.
func NewContext(pool *tile.Pool, coreWidth, coreHeight, spadSize, precision int64, dK, pageSize int) *Context {
	headsPerTile := 1
	if dK > 0 {
		headsPerTile = pageSize / dK
		if headsPerTile < 1 {
			headsPerTile = 1
		}
	}
	return &Context{
		Pool: pool, CoreWidth: coreWidth, CoreHeight: coreHeight,
		SpadSize: spadSize, Precision: precision, DK: dK, HeadsPerTile: headsPerTile,
	}
}

// NextOperationID allocates a fresh operation id, replacing the source's
// static counter (spec.md §9's "Global process-wide state" design note).
func (c *Context) NextOperationID() int {
	id := c.nextOperationID
	c.nextOperationID++
	return id
}

// NewTile allocates a tile from the shared pool, pre-filling its
// provenance fields.
func (c *Context) NewTile(opType tile.OpType, operationID int, platform tile.Platform) (*tile.Tile, tile.TileHandle) {
	t, h := c.Pool.Alloc()
	t.OpType = opType
	t.OperationID = operationID
	t.StagePlatform = platform
	return t, h
}

// ceilDiv is the "halve the largest dimension (ceil)" helper spec.md
// §4.6.1's tile-size search repeatedly applies.
func ceilDiv(n, d int64) int64 {
	if d <= 0 {
		return n
	}
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}
