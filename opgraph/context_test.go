package opgraph

import (
	"testing"

	"github.com/neupims-sim/neupims-sim/tile"
)

func TestNewContext_ComputesHeadsPerTile(t *testing.T) {
	// GIVEN a page size of 128 and d_k of 64
	c := NewContext(tile.NewPool(), 128, 128, 1<<20, 2, 64, 128)

	// THEN HeadsPerTile = floor(128/64) = 2
	if c.HeadsPerTile != 2 {
		t.Errorf("HeadsPerTile: got %d, want 2", c.HeadsPerTile)
	}
}

func TestNewContext_DKZero_HeadsPerTileDefaultsToOne(t *testing.T) {
	// GIVEN a degenerate d_k of 0
	c := NewContext(tile.NewPool(), 128, 128, 1<<20, 2, 0, 128)

	// THEN HeadsPerTile falls back to 1 rather than dividing by zero
	if c.HeadsPerTile != 1 {
		t.Errorf("HeadsPerTile: got %d, want 1", c.HeadsPerTile)
	}
}

func TestContext_NextOperationID_Increments(t *testing.T) {
	// GIVEN a fresh context
	c := NewContext(tile.NewPool(), 128, 128, 1<<20, 2, 64, 128)

	// WHEN NextOperationID is called repeatedly
	id0 := c.NextOperationID()
	id1 := c.NextOperationID()

	// THEN ids are sequential starting from 0
	if id0 != 0 || id1 != 1 {
		t.Errorf("got id0=%d id1=%d, want 0 and 1", id0, id1)
	}
}

func TestContext_NewTile_SetsProvenanceFields(t *testing.T) {
	// GIVEN a context and an operation id
	c := NewContext(tile.NewPool(), 128, 128, 1<<20, 2, 64, 128)

	// WHEN a tile is allocated for that operation
	tl, h := c.NewTile(tile.OpMatMul, 7, tile.SA)

	// THEN its provenance fields are pre-filled and it resolves via the pool
	if tl.OpType != tile.OpMatMul || tl.OperationID != 7 || tl.StagePlatform != tile.SA {
		t.Errorf("got %+v, want OpType=MatMul OperationID=7 StagePlatform=SA", tl)
	}
	if c.Pool.Get(h) != tl {
		t.Error("expected the pool to resolve the handle back to the same tile")
	}
}
