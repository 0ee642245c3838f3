package opgraph

import (
	"github.com/neupims-sim/neupims-sim/addr"
	"github.com/neupims-sim/neupims-sim/alloc"
	"github.com/neupims-sim/neupims-sim/tile"
)

// TensorKind tags which physical layout a Tensor uses (spec.md §9:
// "Model as a tagged sum with dispatch on tag; do not use runtime
// inheritance hierarchies").
type TensorKind int

const (
	Dense2D TensorKind = iota
	KVBlockedNPU
	KVRowStripedPIM
)

// Tensor is the tagged-sum addressing contract of spec.md §4.7: every
// variant shares GetAddr/GetAllAddrs/AddToken, dispatched on Kind.
// Out-of-range indexing returns tile.GARBAGE_ADDR (spec.md §4.7's
// contract), which callers must drop rather than emit.
type Tensor struct {
	Kind TensorKind

	Produced bool // executability test input (spec.md §4.6: "all input
	// tensors must be marked produced")

	// --- Dense2D ---
	Base      uint64
	Rows      int
	Cols      int
	Precision int
	Mapping   *addr.Mapping
	SwitchCoCh bool

	// --- KVBlockedNPU ---
	NPUAlloc *alloc.NPUKVAllocator
	Blocks   []uint64 // block base addresses, one per 32-token block
	DK       int
	NumTokens int

	// --- KVRowStripedPIM ---
	RowPool      *alloc.PIMRowPool
	Channel      int
	IsKey        bool // key strides along banks; value strides along columns
	BankPerCh    int
	NumElePerRow int
	Rows_        []int // allocated row base indices
}

// NewDense2D creates a Weight/Activation tensor (spec.md §4.7).
func NewDense2D(base uint64, rows, cols, precision int, mapping *addr.Mapping, switchCoCh bool) *Tensor {
	return &Tensor{Kind: Dense2D, Base: base, Rows: rows, Cols: cols, Precision: precision, Mapping: mapping, SwitchCoCh: switchCoCh}
}

// NewKVBlockedNPU creates an empty NPU-layout KV tensor backed by a as
// 32-token-block allocator (spec.md §3/§4.7).
func NewKVBlockedNPU(a *alloc.NPUKVAllocator, dK int) *Tensor {
	return &Tensor{Kind: KVBlockedNPU, NPUAlloc: a, DK: dK}
}

// NewKVRowStripedPIM creates an empty PIM-layout KV tensor over a
// per-channel row pool (spec.md §3/§4.7).
func NewKVRowStripedPIM(pool *alloc.PIMRowPool, channel int, isKey bool, bankPerCh, numElePerRow int) *Tensor {
	return &Tensor{Kind: KVRowStripedPIM, RowPool: pool, Channel: channel, IsKey: isKey, BankPerCh: bankPerCh, NumElePerRow: numElePerRow}
}

// GetAddr returns the byte address of element (i, j), or GARBAGE_ADDR if
// out of range (spec.md §4.7).
func (t *Tensor) GetAddr(i, j int) uint64 {
	switch t.Kind {
	case Dense2D:
		return t.dense2DAddr(i, j)
	case KVBlockedNPU:
		return t.kvNPUAddr(i, j)
	case KVRowStripedPIM:
		return t.kvPIMAddr(i, j)
	}
	return tile.GARBAGE_ADDR
}

func (t *Tensor) dense2DAddr(i, j int) uint64 {
	if i < 0 || j < 0 || i >= t.Rows || j >= t.Cols {
		return tile.GARBAGE_ADDR
	}
	off := uint64(i*t.Cols+j) * uint64(t.Precision)
	a := t.Base + off
	if t.SwitchCoCh && t.Mapping != nil {
		return t.Mapping.SwitchCoCh(a)
	}
	return a
}

func (t *Tensor) kvNPUAddr(token, feature int) uint64 {
	if token < 0 || token >= t.NumTokens || feature < 0 || feature >= t.DK {
		return tile.GARBAGE_ADDR
	}
	blockIdx := token / alloc.NPUBlockSize
	if blockIdx >= len(t.Blocks) {
		return tile.GARBAGE_ADDR
	}
	within := token % alloc.NPUBlockSize
	off := uint64(within*t.DK+feature) * uint64(t.precisionBytes())
	return t.Blocks[blockIdx] + off
}

// precisionBytes returns the element size backing an NPU KV tensor; fixed
// by the allocator's block sizing, exposed here for address math.
func (t *Tensor) precisionBytes() int64 {
	if t.NPUAlloc == nil || t.DK == 0 {
		return 0
	}
	return int64(t.NPUAlloc.BlockSize()) / int64(alloc.NPUBlockSize*t.DK)
}

func (t *Tensor) kvPIMAddr(token, feature int) uint64 {
	if token < 0 || token >= t.NumTokens {
		return tile.GARBAGE_ADDR
	}
	if t.IsKey {
		// Key: one row spans bank_per_ch tokens; feature selects the bank.
		rowIdx := token / t.BankPerCh
		if rowIdx >= len(t.Rows_) || feature < 0 || feature >= t.BankPerCh {
			return tile.GARBAGE_ADDR
		}
		return t.RowPool.RowAddress(t.Rows_[rowIdx])
	}
	// Value: one row spans num_ele_per_row elements; feature selects the
	// column offset within the row (token selects the row).
	if token >= len(t.Rows_) || feature < 0 || feature >= t.NumElePerRow {
		return tile.GARBAGE_ADDR
	}
	return t.RowPool.RowAddress(t.Rows_[token]) + uint64(feature)
}

// GetAllAddrs returns every element address in row-major order, dropping
// nothing (callers filter GARBAGE_ADDR themselves per spec.md §4.7).
func (t *Tensor) GetAllAddrs() []uint64 {
	var out []uint64
	switch t.Kind {
	case Dense2D:
		for i := 0; i < t.Rows; i++ {
			for j := 0; j < t.Cols; j++ {
				out = append(out, t.GetAddr(i, j))
			}
		}
	case KVBlockedNPU:
		for tok := 0; tok < t.NumTokens; tok++ {
			for f := 0; f < t.DK; f++ {
				out = append(out, t.GetAddr(tok, f))
			}
		}
	case KVRowStripedPIM:
		width := t.NumElePerRow
		if t.IsKey {
			width = t.BankPerCh
		}
		for tok := 0; tok < t.NumTokens; tok++ {
			for f := 0; f < width; f++ {
				out = append(out, t.GetAddr(tok, f))
			}
		}
	}
	return out
}

// AddToken extends a KV tensor by one token position, allocating a new
// block (NPU layout, spec.md §4.7: "add_token appends a new block on
// overflow") or a new row (PIM layout) only when the current capacity is
// exhausted.
func (t *Tensor) AddToken() {
	t.NumTokens++
	switch t.Kind {
	case KVBlockedNPU:
		needed := ceilDivInt(t.NumTokens, alloc.NPUBlockSize)
		for len(t.Blocks) < needed {
			t.Blocks = append(t.Blocks, t.NPUAlloc.AllocBlock())
		}
	case KVRowStripedPIM:
		if t.IsKey {
			needed := ceilDivInt(t.NumTokens, t.BankPerCh)
			for len(t.Rows_) < needed {
				row, ok := t.RowPool.AllocRow()
				if !ok {
					t.NumTokens--
					return
				}
				t.Rows_ = append(t.Rows_, row)
			}
		} else {
			for len(t.Rows_) < t.NumTokens {
				row, ok := t.RowPool.AllocRow()
				if !ok {
					t.NumTokens--
					return
				}
				t.Rows_ = append(t.Rows_, row)
			}
		}
	}
}

func ceilDivInt(n, d int) int {
	if d <= 0 {
		return n
	}
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}
