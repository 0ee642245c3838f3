package opgraph

import (
	"testing"

	"github.com/neupims-sim/neupims-sim/tile"
)

func TestChooseTileShape_FitsWithoutHalving_ReturnsFullDims(t *testing.T) {
	// GIVEN a scratchpad budget large enough to hold the whole operand set
	c := NewContext(tile.NewPool(), 128, 128, 1<<20, 2, 64, 128)

	// WHEN choosing a tile shape for a small matmul
	shape := ChooseTileShape(c, 8, 8, 8, false)

	// THEN no halving was needed: the inner block equals the full dims and
	// each outer multiplier is 1
	if shape.M != 8 || shape.K != 8 || shape.N != 8 {
		t.Errorf("shape: got (%d,%d,%d), want (8,8,8)", shape.M, shape.K, shape.N)
	}
	if shape.OuterM != 1 || shape.OuterK != 1 || shape.OuterN != 1 {
		t.Errorf("outer multipliers: got (%d,%d,%d), want (1,1,1)", shape.OuterM, shape.OuterK, shape.OuterN)
	}
}

func TestChooseTileShape_HalvesLargestDimUntilFootprintFits(t *testing.T) {
	// GIVEN a scratchpad budget too small for the full (M,K,N) footprint
	c := NewContext(tile.NewPool(), 128, 128, 256, 2, 64, 128)

	// WHEN choosing a tile shape for a matmul whose largest dim is M
	shape := ChooseTileShape(c, 64, 4, 4, false)

	// THEN the projected footprint (m*k+k*n+m*n)*precision fits within
	// spad_size/2, and the outer multiplier recovers the full M extent
	footprint := (shape.M*shape.K + shape.K*shape.N + shape.M*shape.N) * c.Precision
	if footprint > c.SpadSize/2 {
		t.Errorf("footprint %d exceeds budget %d", footprint, c.SpadSize/2)
	}
	if shape.M*shape.OuterM < 64 {
		t.Errorf("OuterM*M: got %d, want >= 64 (covers full M)", shape.M*shape.OuterM)
	}
}

func TestChooseTileShape_AllowTranspose_SwapsWhenKSmallerThanM(t *testing.T) {
	// GIVEN allowTranspose set and K < M
	c := NewContext(tile.NewPool(), 128, 128, 1<<20, 2, 64, 128)

	// WHEN choosing a tile shape
	shape := ChooseTileShape(c, 64, 8, 16, true)

	// THEN transpose is favored for better operand reuse (spec.md §4.6.1)
	if !shape.Transpose {
		t.Error("Transpose: got false, want true (K < M with allowTranspose)")
	}
}

func TestChooseTileShape_DisallowTranspose_NeverSet(t *testing.T) {
	c := NewContext(tile.NewPool(), 128, 128, 1<<20, 2, 64, 128)
	shape := ChooseTileShape(c, 64, 8, 16, false)
	if shape.Transpose {
		t.Error("Transpose: got true, want false (allowTranspose=false)")
	}
}
