// Package tile implements the Tile/Instruction lowering target of spec.md
// §3/§4.6-§4.8: SRAM-addressed micro-ops produced by the operation-to-tile
// compiler and consumed by the NPU core's load/store/execute pipelines.
package tile

// Opcode enumerates the micro-op kinds spec.md §3 groups into movement,
// systolic compute, vector compute, and PIM packets.
type Opcode int

const (
	MOVIN Opcode = iota
	MOVOUT
	GEMM
	GEMMPreload
	LAYERNORM
	SOFTMAX
	ADD
	GELU
	DUMMY
	PIMHeaderOp
	PIMGwrite
	PIMComp
	PIMReadres
	PIMCompsReadres
)

func (o Opcode) String() string {
	switch o {
	case MOVIN:
		return "MOVIN"
	case MOVOUT:
		return "MOVOUT"
	case GEMM:
		return "GEMM"
	case GEMMPreload:
		return "GEMM_PRELOAD"
	case LAYERNORM:
		return "LAYERNORM"
	case SOFTMAX:
		return "SOFTMAX"
	case ADD:
		return "ADD"
	case GELU:
		return "GELU"
	case DUMMY:
		return "DUMMY"
	case PIMHeaderOp:
		return "PIM_HEADER"
	case PIMGwrite:
		return "PIM_GWRITE"
	case PIMComp:
		return "PIM_COMP"
	case PIMReadres:
		return "PIM_READRES"
	case PIMCompsReadres:
		return "PIM_COMPS_READRES"
	default:
		return "UNKNOWN"
	}
}

// IsMovement reports whether the opcode is a scratchpad-memory movement
// (MOVIN/MOVOUT), as opposed to a compute opcode.
func (o Opcode) IsMovement() bool { return o == MOVIN || o == MOVOUT }

// IsSystolic reports whether the opcode drives the systolic array.
func (o Opcode) IsSystolic() bool { return o == GEMM || o == GEMMPreload }

// IsVector reports whether the opcode drives a vector pipeline.
func (o Opcode) IsVector() bool {
	switch o {
	case LAYERNORM, SOFTMAX, ADD, GELU, DUMMY:
		return true
	default:
		return false
	}
}

// IsPIM reports whether the opcode is a PIM packet.
func (o Opcode) IsPIM() bool {
	switch o {
	case PIMHeaderOp, PIMGwrite, PIMComp, PIMReadres, PIMCompsReadres:
		return true
	default:
		return false
	}
}

// GARBAGE_ADDR is the sentinel spec.md §4.7 defines for out-of-range
// tensor indexing: "callers must treat it as 'no memory access needed.'"
const GARBAGE_ADDR uint64 = ^uint64(0)

// TileHandle addresses a Tile by pool index + generation counter, breaking
// the tile<->instruction back-pointer cycle the original source expresses
// with raw pointers (spec.md §9's "cyclic references" design note).
type TileHandle struct {
	Index      int
	Generation uint32
}

// Instruction is one SRAM-addressed micro-op (spec.md §3).
type Instruction struct {
	Opcode    Opcode
	DestAddr  uint64
	Size      int64
	SrcAddrs  []uint64
	OperandID int

	ParentTile TileHandle

	SpadID      int
	AccumSpadID int

	TileM, TileK, TileN int64

	// PIM payload, meaningful only when Opcode.IsPIM().
	NumComps    int
	NumReadres  int
	IsLastComps bool
	ForGWrite   bool

	// FinishCycle is set by the core's compute pipeline once the
	// instruction is dispatched (spec.md §4.8); zero until then.
	FinishCycle int64
}

// touchesGarbage reports whether any address this instruction references
// is the GARBAGE_ADDR sentinel. Tile compilers drop such accesses rather
// than emitting them (spec.md §4.6.1's "tail-padding tolerance").
func (in *Instruction) touchesGarbage() bool {
	if in.DestAddr == GARBAGE_ADDR {
		return true
	}
	for _, a := range in.SrcAddrs {
		if a == GARBAGE_ADDR {
			return true
		}
	}
	return false
}
