package opgraph

import (
	"github.com/neupims-sim/neupims-sim/addr"
	"github.com/neupims-sim/neupims-sim/tile"
)

// PIMMode selects the command sequence a PIM GEMV tile emits per
// head-chunk (spec.md §4.6.3): Newton issues PIM_COMP x comps_per_head
// plus a trailing PIM_READRES; NeuPIMS fuses the whole burst into one
// PIM_COMPS_READRES packet.
type PIMMode int

const (
	NewtonMode PIMMode = iota
	NeuPIMSFused
)

// PIMGEMVKind distinguishes the five tile.OpType variants spec.md §9
// names for PIM-side attention math: a plain GEMV, GEMV-plus-partial-sum-
// reduction (multi-chunk heads), GEMV-plus-softmax, and the NeuPIMS
// logit-softmax and attend variants. The kind only selects the tiles'
// OpType tag; LowerToTiles emits the same instructions for every kind.
type PIMGEMVKind int

const (
	KindPIMGEMV PIMGEMVKind = iota
	KindPIMGEMVAdd
	KindPIMGEMVSoftmax
	KindNeuPIMSLogitSoftmax
	KindNeuPIMSAttend
)

func (k PIMGEMVKind) opType() tile.OpType {
	switch k {
	case KindPIMGEMV:
		return tile.OpPIMGEMV
	case KindPIMGEMVAdd:
		return tile.OpPIMGEMVAdd
	case KindPIMGEMVSoftmax:
		return tile.OpPIMGEMVSoftmax
	case KindNeuPIMSLogitSoftmax:
		return tile.OpNeuPIMSLogitSoftmax
	case KindNeuPIMSAttend:
		return tile.OpNeuPIMSAttend
	}
	return tile.OpPIMGEMV
}

// PIMGEMVOp lowers one request's per-head-chunk PIM burst (spec.md
// §4.6.3): GWRITE (Q broadcast) -> PIM_HEADER (arms operand counts) ->
// COMP*n+READRES (Newton) or COMPS_READRES (NeuPIMS) -> gather partial
// sums (vector ADD across chunks if >1). No softmax is emitted here;
// SoftmaxOverReadres builds that step as a separate VectorOp.
type PIMGEMVOp struct {
	Kind PIMGEMVKind
	Mode PIMMode

	Mapping *addr.Mapping
	Channel int

	QueryRow     int // row = query_row for the GWRITE/PIM_HEADER chunk
	NumHeads     int
	CompsPerHead int

	PartialSums *Tensor // where per-chunk READRES partial sums land
	Output      *Tensor // final (possibly ADD-reduced) attention output
}

// LowerToTiles implements spec.md §4.6.3's per-request, per-head-chunk
// PIM burst plus, for more than one chunk, its vector-unit ADD reduction.
func (op *PIMGEMVOp) LowerToTiles(c *Context, operationID int, platform tile.Platform) []tile.TileHandle {
	var handles []tile.TileHandle
	numChunks := ceilDivInt(op.NumHeads, c.HeadsPerTile)

	var chunkResultAddrs []uint64
	for chunk := 0; chunk < numChunks; chunk++ {
		headsInTile := c.HeadsPerTile
		remaining := op.NumHeads - chunk*c.HeadsPerTile
		if remaining < headsInTile {
			headsInTile = remaining
		}
		t, h := c.NewTile(op.Kind.opType(), operationID, platform)
		t.StagePlatform = tile.PIM

		gwriteAddr := op.Mapping.MakeAddress(op.Channel, 0, 0, 0, op.QueryRow, 0)
		t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.PIMGwrite, DestAddr: gwriteAddr, SpadID: t.SpadID})
		t.RemainingLoads++

		numComps := op.CompsPerHead * headsInTile
		hdrAddr := op.Mapping.EncodePIMHeader(op.Channel, op.QueryRow, false, numComps, headsInTile)
		t.Instructions = append(t.Instructions, tile.Instruction{
			Opcode: tile.PIMHeaderOp, DestAddr: hdrAddr, NumComps: numComps, NumReadres: headsInTile,
		})

		var resultAddr uint64
		switch op.Mode {
		case NewtonMode:
			for i := 0; i < op.CompsPerHead*headsInTile; i++ {
				t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.PIMComp})
				t.RemainingComputes++
			}
			resultAddr = op.PartialSums.GetAddr(chunk, 0)
			t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.PIMReadres, DestAddr: resultAddr, SpadID: t.SpadID})
			t.RemainingLoads++
		case NeuPIMSFused:
			crAddr := op.Mapping.EncodeCompsReadres(op.Channel, op.QueryRow, numComps, chunk == numChunks-1)
			resultAddr = op.PartialSums.GetAddr(chunk, 0)
			t.Instructions = append(t.Instructions, tile.Instruction{
				Opcode: tile.PIMCompsReadres, DestAddr: crAddr, NumComps: numComps, IsLastComps: chunk == numChunks-1, SpadID: t.SpadID,
			})
			t.RemainingComputes++
			t.RemainingLoads++
		}
		if resultAddr != tile.GARBAGE_ADDR {
			chunkResultAddrs = append(chunkResultAddrs, resultAddr)
		}
		handles = append(handles, h)
	}

	if len(chunkResultAddrs) > 1 {
		handles = append(handles, op.emitReduction(c, operationID, platform, chunkResultAddrs)...)
	}
	return handles
}

// emitReduction implements spec.md §4.6.3: "if multiple chunks, emit
// vector ADD across partial sums then MOVOUT."
func (op *PIMGEMVOp) emitReduction(c *Context, operationID int, platform tile.Platform, addrs []uint64) []tile.TileHandle {
	t, h := c.NewTile(op.Kind.opType(), operationID, platform)
	acc := addrs[0]
	for _, a := range addrs[1:] {
		t.Instructions = append(t.Instructions, tile.Instruction{
			Opcode: tile.ADD, DestAddr: acc, SrcAddrs: []uint64{acc, a}, AccumSpadID: t.AccumSpadID,
		})
		t.RemainingComputes++
	}
	outAddr := op.Output.GetAddr(0, 0)
	if outAddr != tile.GARBAGE_ADDR {
		t.Instructions = append(t.Instructions, tile.Instruction{Opcode: tile.MOVOUT, DestAddr: outAddr, AccumSpadID: t.AccumSpadID})
		t.RemainingAccumIO++
	}
	return []tile.TileHandle{h}
}

// SoftmaxOverReadres lowers spec.md §4.6.3's tail: "Softmax runs on the
// vector unit over concatenated readres outputs." Reuses VectorOp since
// the math is identical to a standalone Softmax, just fed PIM-produced
// scratchpad data.
func SoftmaxOverReadres(input, output *Tensor, rows, cols int64) *VectorOp {
	return &VectorOp{Kind: VecSoftmax, Input: input, Output: output, Rows: rows, Cols: cols}
}
