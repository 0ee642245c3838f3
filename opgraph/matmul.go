package opgraph

import "github.com/neupims-sim/neupims-sim/tile"

// TileShape is the (m, k, n) inner-loop block size spec.md §4.6.1's search
// produces, plus the outer multipliers (M/m, K/k, N/n).
type TileShape struct {
	M, K, N             int64
	OuterM, OuterK, OuterN int64
	Transpose           bool
}

// ChooseTileShape implements spec.md §4.6.1: "start with (M, K, N), then
// while projected SRAM footprint (m*k + k*n + m*n) * precision >
// spad_size/2, halve the largest dimension (ceil)."
func ChooseTileShape(c *Context, M, K, N int64, allowTranspose bool) TileShape {
	m, k, n := M, K, N
	for (m*k+k*n+m*n)*c.Precision > c.SpadSize/2 {
		if m >= k && m >= n {
			m = ceilDiv(m, 2)
		} else if k >= m && k >= n {
			k = ceilDiv(k, 2)
		} else {
			n = ceilDiv(n, 2)
		}
		if m <= 1 && k <= 1 && n <= 1 {
			break
		}
	}
	transpose := false
	if allowTranspose && K < M {
		// Favor reuse of the smaller operand by swapping which operand
		// drives the L1 block's row dimension (spec.md §4.6.1: "optionally
		// transpose (swap operands) for better reuse").
		transpose = true
	}
	return TileShape{
		M: m, K: k, N: n,
		OuterM: ceilDiv(M, m), OuterK: ceilDiv(K, k), OuterN: ceilDiv(N, n),
		Transpose: transpose,
	}
}

// MatMul lowers a (..., M, K) x (K, N) [+ bias (N,)] operation into tiles
// of GEMM/GEMM_PRELOAD instructions with MOVIN/MOVOUT movement, per
// spec.md §4.6.1.
type MatMul struct {
	Activation *Tensor
	Weight     *Tensor
	Bias       *Tensor // nil if no bias
	Output     *Tensor
	M, K, N    int64
}

// LowerToTiles implements spec.md §9's "single lower_to_tiles(inputs,
// config) -> TileList per variant" for MatMul.
func (op *MatMul) LowerToTiles(c *Context, operationID int, platform tile.Platform) []tile.TileHandle {
	shape := ChooseTileShape(c, op.M, op.K, op.N, true)
	var handles []tile.TileHandle

	for bOuter := int64(0); bOuter < 1; bOuter++ { // batch dim folded into M by caller
		for om := int64(0); om < shape.OuterM; om++ {
			for on := int64(0); on < shape.OuterN; on++ {
				if op.Bias != nil {
					handles = append(handles, op.emitBiasMovins(c, operationID, platform, om, on, shape)...)
				}
			}
			for ok := int64(0); ok < shape.OuterK; ok++ {
				for on := int64(0); on < shape.OuterN; on++ {
					t, h := c.NewTile(tile.OpMatMul, operationID, platform)
					op.emitInnerBlock(c, t, om, ok, on, shape)
					if len(t.Instructions) == 0 {
						t.Status = tile.Bar
					}
					handles = append(handles, h)
				}
			}
		}
	}
	return handles
}

func (op *MatMul) emitBiasMovins(c *Context, operationID int, platform tile.Platform, om, on int64, shape TileShape) []tile.TileHandle {
	t, h := c.NewTile(tile.OpMatMul, operationID, platform)
	nBase := on * shape.N
	for nn := int64(0); nn < shape.N; nn++ {
		addr := op.Bias.GetAddr(0, int(nBase+nn))
		if addr == tile.GARBAGE_ADDR {
			continue
		}
		t.Instructions = append(t.Instructions, tile.Instruction{
			Opcode: tile.MOVIN, DestAddr: addr, Size: int64(op.Bias.Precision), AccumSpadID: t.AccumSpadID,
		})
		t.RemainingAccumIO++
	}
	if len(t.Instructions) == 0 {
		t.Status = tile.Bar
	}
	return []tile.TileHandle{h}
}

// emitInnerBlock emits one (om, ok, on) L1 block's instructions: MOVIN
// activation (first n-step only), MOVIN weight (first m-step only),
// GEMM_PRELOAD on the block's first k-step else GEMM, and a MOVOUT on the
// final K iteration (spec.md §4.6.1).
func (op *MatMul) emitInnerBlock(c *Context, t *tile.Tile, om, ok, on int64, shape TileShape) {
	mBase, kBase, nBase := om*shape.M, ok*shape.K, on*shape.N

	for mm := int64(0); mm < shape.M; mm += c.CoreWidth {
		for kk := int64(0); kk < shape.K; kk += c.CoreWidth {
			for nn := int64(0); nn < shape.N; nn += c.CoreWidth {
				loopSize := c.CoreWidth

				if nn == 0 {
					addr := op.Activation.GetAddr(int(mBase+mm), int(kBase+kk))
					op.emitMovinIfLive(t, addr, loopSize*c.Precision)
				}
				if mm == 0 {
					addr := op.Weight.GetAddr(int(kBase+kk), int(nBase+nn))
					op.emitMovinIfLive(t, addr, loopSize*c.Precision)
				}

				destAddr := op.Output.GetAddr(int(mBase+mm), int(nBase+nn))
				opcode := tile.GEMM
				if kk == 0 {
					opcode = tile.GEMMPreload
				}
				in := tile.Instruction{
					Opcode: opcode, DestAddr: destAddr, Size: loopSize,
					TileM: mm, TileK: kk, TileN: nn, SpadID: t.SpadID, AccumSpadID: t.AccumSpadID,
				}
				t.Instructions = append(t.Instructions, in)
				t.RemainingComputes++
				if destAddr != tile.GARBAGE_ADDR {
					t.RemainingAccumIO++
				}

				if kBase+kk+loopSize >= op.K {
					op.emitMovoutIfLive(t, destAddr, loopSize*c.Precision)
				}
			}
		}
	}
}

func (op *MatMul) emitMovinIfLive(t *tile.Tile, addr uint64, size int64) {
	if addr == tile.GARBAGE_ADDR {
		return // spec.md §4.6.1: "garbage-address returns ... dropped silently"
	}
	t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.MOVIN, DestAddr: addr, Size: size, SpadID: t.SpadID})
	t.RemainingLoads++
}

func (op *MatMul) emitMovoutIfLive(t *tile.Tile, addr uint64, size int64) {
	if addr == tile.GARBAGE_ADDR {
		return
	}
	t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.MOVOUT, DestAddr: addr, Size: size, AccumSpadID: t.AccumSpadID})
}
