package alloc

// NPUBlockSize is the fixed token granularity spec.md §3/§4.10 assigns to
// the NPU KV-cache layout: "32-token blocks of shape (32, d_k)".
const NPUBlockSize = 32

// NPUKVAllocator hands out fixed-size 32-token blocks round-robin across a
// flat HBM arena (spec.md §3: "allocated round-robin across an HBM
// arena"), recycling freed blocks via a free list.
type NPUKVAllocator struct {
	base      uint64
	blockSize uint64 // bytes per 32-token block = 32 * d_k * precision
	next      uint64
	free      []uint64
}

// NewNPUKVAllocator creates a block allocator starting at base (immediately
// past the activation arena's Limit()), sizing each block from the head
// dimension and element precision.
func NewNPUKVAllocator(base uint64, dK int, precision int) *NPUKVAllocator {
	return &NPUKVAllocator{base: base, next: base, blockSize: uint64(NPUBlockSize * dK * precision)}
}

// AllocBlock returns the base address of a fresh (or recycled) 32-token
// block (spec.md §4.7's "add_token appends a new block on overflow").
func (a *NPUKVAllocator) AllocBlock() uint64 {
	if n := len(a.free); n > 0 {
		addr := a.free[n-1]
		a.free = a.free[:n-1]
		return addr
	}
	addr := a.next
	a.next += a.blockSize
	return addr
}

// FreeBlock returns a block to the free list for reuse by a future request
// (e.g. when a completed request's KV cache is reclaimed).
func (a *NPUKVAllocator) FreeBlock(addr uint64) {
	a.free = append(a.free, addr)
}

// BlockSize reports the byte size of one 32-token block.
func (a *NPUKVAllocator) BlockSize() uint64 { return a.blockSize }

// PIMRowPool is the per-channel free-row allocator for the PIM KV layout
// (spec.md §3/§4.7): whole DRAM rows owned per channel, one pool per
// channel since PIM KV tensors never span channels.
type PIMRowPool struct {
	numRows  int
	free     []int // free row indices, LIFO
	rowBase  uint64
	rowBytes uint64
}

// NewPIMRowPool creates a free-row pool over numRows rows of rowBytes each,
// starting at rowBase (immediately past the activation arena's Limit()).
func NewPIMRowPool(rowBase uint64, numRows int, rowBytes uint64) *PIMRowPool {
	p := &PIMRowPool{numRows: numRows, rowBase: rowBase, rowBytes: rowBytes}
	p.free = make([]int, numRows)
	for i := range p.free {
		p.free[i] = numRows - 1 - i // pop lowest index first
	}
	return p
}

// AllocRow reserves a free row and returns its index, or ok=false if the
// channel's row pool is exhausted (a capacity misconfiguration: too many
// concurrent requests for dram_banks_per_ch / HBM_size).
func (p *PIMRowPool) AllocRow() (row int, ok bool) {
	if len(p.free) == 0 {
		return 0, false
	}
	n := len(p.free)
	row = p.free[n-1]
	p.free = p.free[:n-1]
	return row, true
}

// FreeRow returns row to the pool once a request completes and its KV rows
// are no longer needed.
func (p *PIMRowPool) FreeRow(row int) {
	p.free = append(p.free, row)
}

// RowAddress returns the byte base address of row (relative to the
// channel's own address space; channel selection happens via the field
// encoding in addr.Mapping, not here).
func (p *PIMRowPool) RowAddress(row int) uint64 {
	return p.rowBase + uint64(row)*p.rowBytes
}
