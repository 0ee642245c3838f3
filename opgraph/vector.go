package opgraph

import "github.com/neupims-sim/neupims-sim/tile"

// VectorOpKind selects which row-wise vector instruction a VectorOp
// lowers to (spec.md §4.6.2).
type VectorOpKind int

const (
	VecLayerNorm VectorOpKind = iota
	VecSoftmax
	VecAdd
	VecGelu
)

func (k VectorOpKind) opcode() tile.Opcode {
	switch k {
	case VecLayerNorm:
		return tile.LAYERNORM
	case VecSoftmax:
		return tile.SOFTMAX
	case VecAdd:
		return tile.ADD
	case VecGelu:
		return tile.GELU
	}
	return tile.DUMMY
}

func (k VectorOpKind) opType() tile.OpType {
	switch k {
	case VecLayerNorm:
		return tile.OpLayerNorm
	case VecSoftmax:
		return tile.OpSoftmax
	case VecAdd:
		return tile.OpAdd
	case VecGelu:
		return tile.OpGelu
	}
	return tile.OpAdd
}

// VectorOp lowers LayerNorm/Softmax/Add/Gelu: one row at a time along the
// last non-feature axis, with LayerNorm's gamma/beta pinned in scratchpad
// (spec.md §4.6.2).
type VectorOp struct {
	Kind VectorOpKind

	Input  *Tensor
	Second *Tensor // the other operand for Add, nil otherwise
	Gamma  *Tensor // LayerNorm only
	Beta   *Tensor // LayerNorm only
	Output *Tensor

	Rows, Cols int64
}

// LowerToTiles emits one tile per row: MOVIN activations (+gamma/beta on
// row 0 for LayerNorm) -> one vector instruction -> MOVOUT (spec.md
// §4.6.2).
func (op *VectorOp) LowerToTiles(c *Context, operationID int, platform tile.Platform) []tile.TileHandle {
	var handles []tile.TileHandle
	opcode := op.Kind.opcode()

	for r := int64(0); r < op.Rows; r++ {
		t, h := c.NewTile(op.Kind.opType(), operationID, platform)

		if op.Kind == VecLayerNorm && r == 0 {
			op.pinWeights(t)
		}

		inAddr := op.Input.GetAddr(int(r), 0)
		op.emitMovin(t, inAddr, op.Cols*sizeOf(op.Input))

		var srcs []uint64
		if inAddr != tile.GARBAGE_ADDR {
			srcs = append(srcs, inAddr)
		}
		if op.Kind == VecAdd && op.Second != nil {
			secondAddr := op.Second.GetAddr(int(r), 0)
			op.emitMovin(t, secondAddr, op.Cols*sizeOf(op.Second))
			if secondAddr != tile.GARBAGE_ADDR {
				srcs = append(srcs, secondAddr)
			}
		}

		destAddr := op.Output.GetAddr(int(r), 0)
		t.Instructions = append(t.Instructions, tile.Instruction{
			Opcode: opcode, DestAddr: destAddr, Size: op.Cols, SrcAddrs: srcs,
			SpadID: t.SpadID, AccumSpadID: t.AccumSpadID,
		})
		t.RemainingComputes++

		op.emitMovout(t, destAddr, op.Cols*sizeOf(op.Output))
		handles = append(handles, h)
	}
	return handles
}

// pinWeights loads LayerNorm's gamma/beta once (row 0 only, spec.md
// §4.6.2: "LayerNorm weights (gamma/beta) are pinned in scratchpad").
func (op *VectorOp) pinWeights(t *tile.Tile) {
	if op.Gamma != nil {
		if a := op.Gamma.GetAddr(0, 0); a != tile.GARBAGE_ADDR {
			t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.MOVIN, DestAddr: a, Size: op.Cols * sizeOf(op.Gamma), SpadID: t.SpadID})
			t.RemainingLoads++
		}
	}
	if op.Beta != nil {
		if a := op.Beta.GetAddr(0, 0); a != tile.GARBAGE_ADDR {
			t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.MOVIN, DestAddr: a, Size: op.Cols * sizeOf(op.Beta), SpadID: t.SpadID})
			t.RemainingLoads++
		}
	}
}

func (op *VectorOp) emitMovin(t *tile.Tile, addr uint64, size int64) {
	if addr == tile.GARBAGE_ADDR {
		return
	}
	t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.MOVIN, DestAddr: addr, Size: size, SpadID: t.SpadID})
	t.RemainingLoads++
}

func (op *VectorOp) emitMovout(t *tile.Tile, addr uint64, size int64) {
	if addr == tile.GARBAGE_ADDR {
		return
	}
	t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.MOVOUT, DestAddr: addr, Size: size, AccumSpadID: t.AccumSpadID})
	t.RemainingAccumIO++
}

func sizeOf(t *Tensor) int64 {
	if t == nil {
		return 0
	}
	switch t.Kind {
	case Dense2D:
		return int64(t.Precision)
	default:
		return int64(t.precisionBytes())
	}
}

// VectorLatency computes the vector unit's compute cycles for one row
// from (add_tree_iter, vec_op_iter) and the per-op latency constants
// config.HardwareConfig.VectorLatencies supplies (spec.md §4.6.2),
// parameterized as a plain function so core.VectorLatencyFn can close
// over a loaded config without opgraph depending on the config package.
func VectorLatency(perRow map[tile.Opcode]int64, addTreeIterBase int64) func(opcode tile.Opcode, size int64) int64 {
	return func(opcode tile.Opcode, size int64) int64 {
		base := perRow[opcode]
		iters := ceilDiv(size, addTreeIterBase)
		return base * iters
	}
}
