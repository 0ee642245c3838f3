package opgraph

import (
	"testing"

	"github.com/neupims-sim/neupims-sim/alloc"
	"github.com/neupims-sim/neupims-sim/tile"
)

func TestSkipOp_LowerToTiles_EmitsBarTile(t *testing.T) {
	// GIVEN a SkipOp for a Reshape
	pool := tile.NewPool()
	c := NewContext(pool, 128, 128, 1<<20, 2, 64, 128)
	op := &SkipOp{OpType: tile.OpReshape}

	// WHEN it is lowered
	handles := op.LowerToTiles(c, 1, tile.SA)

	// THEN exactly one Bar-status tile is produced, retiring immediately
	if len(handles) != 1 {
		t.Fatalf("got %d handles, want 1", len(handles))
	}
	tl := pool.Get(handles[0])
	if tl.Status != tile.Bar {
		t.Errorf("Status: got %v, want Bar", tl.Status)
	}
	if !tl.Retired() {
		t.Error("expected a skip tile to already satisfy the retirement invariant")
	}
}

func TestSplitDecodingOp_Apply_ExtendsKVAndEmitsSkipTile(t *testing.T) {
	// GIVEN K/V NPU-layout tensors with no tokens yet
	pool := tile.NewPool()
	c := NewContext(pool, 128, 128, 1<<20, 2, 4, 128)
	a := alloc.NewNPUKVAllocator(0, 4, 2)
	k := NewKVBlockedNPU(a, 4)
	v := NewKVBlockedNPU(a, 4)
	op := &SplitDecodingOp{K: k, V: v}

	// WHEN Apply runs
	handles := op.Apply(c, 1, tile.SA)

	// THEN both K and V gained one token, and a skip tile was emitted
	if k.NumTokens != 1 || v.NumTokens != 1 {
		t.Errorf("got K.NumTokens=%d V.NumTokens=%d, want 1 and 1", k.NumTokens, v.NumTokens)
	}
	if len(handles) != 1 {
		t.Fatalf("got %d handles, want 1", len(handles))
	}
	if pool.Get(handles[0]).OpType != tile.OpSplitDecoding {
		t.Errorf("OpType: got %v, want OpSplitDecoding", pool.Get(handles[0]).OpType)
	}
}
