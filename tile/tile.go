package tile

// OpType is the operation-kind tag a Tile is descended from (spec.md
// §9: "Model operations as a sum type ... with a single lower_to_tiles
// ... per variant"). Tiles themselves stay a flat struct; OpType only
// labels provenance for stats/debugging.
type OpType int

const (
	OpMatMul OpType = iota
	OpLayerNorm
	OpSoftmax
	OpAdd
	OpGelu
	OpReshape
	OpSplit
	OpConcat
	OpSplitDecoding
	OpPIMGEMV
	OpPIMGEMVAdd
	OpPIMGEMVSoftmax
	OpNeuPIMSLogitSoftmax
	OpNeuPIMSAttend
	OpFusedMHA
)

func (o OpType) String() string {
	names := [...]string{
		"MatMul", "LayerNorm", "Softmax", "Add", "Gelu", "Reshape", "Split",
		"Concat", "SplitDecoding", "PIMGEMV", "PIMGEMVAdd", "PIMGEMVSoftmax",
		"NeuPIMSLogitSoftmax", "NeuPIMSAttend", "FusedMHA",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "Unknown"
}

// Status is a Tile's lifecycle stage (spec.md §3).
type Status int

const (
	Initialized Status = iota
	Running
	Finish
	Bar // barrier/skip tile: retires immediately (Reshape/Split/Concat, spec.md §4.6.4)
	Empty
)

// Platform is the resource a Tile is targeted at (spec.md §3/§4.5).
type Platform int

const (
	SA Platform = iota
	PIM
)

func (p Platform) String() string {
	if p == PIM {
		return "PIM"
	}
	return "SA"
}

// Stat aggregates per-tile accounting consumed by the TSV logs (spec.md
// §6).
type Stat struct {
	IssuedCycle   int64
	RetiredCycle  int64
	MemoryReads   int64
	MemoryWrites  int64
	ComputeCycles int64
}

// Tile is the unit the operation-to-tile compiler emits and the NPU core
// executes (spec.md §3/§4.6/§4.8).
type Tile struct {
	OpType      OpType
	OperationID int
	Status      Status

	Instructions []Instruction

	Accum       bool
	SpadID      int
	AccumSpadID int

	StagePlatform Platform

	RemainingLoads    int
	RemainingComputes int
	RemainingAccumIO  int

	Stat Stat

	handle TileHandle
}

// Handle returns this tile's pool handle (set by Pool.Alloc).
func (t *Tile) Handle() TileHandle { return t.handle }

// Retired reports spec.md §8's tile-retirement invariant:
// remaining_loads + remaining_computes + remaining_accum_io == 0.
func (t *Tile) Retired() bool {
	return t.RemainingLoads == 0 && t.RemainingComputes == 0 && t.RemainingAccumIO == 0
}

// Pool owns Tiles by handle (index + generation), breaking the
// tile<->instruction pointer cycle per spec.md §9's design note: a freed
// slot's generation is bumped so stale handles are detectable instead of
// dangling.
type Pool struct {
	slots       []*Tile
	generations []uint32
	free        []int
}

// NewPool creates an empty tile pool.
func NewPool() *Pool {
	return &Pool{}
}

// Alloc reserves a new Tile, returning its handle. The Tile is zero-valued
// except for Status (Initialized); callers fill in the rest.
func (p *Pool) Alloc() (*Tile, TileHandle) {
	var idx int
	if len(p.free) > 0 {
		idx = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
	} else {
		idx = len(p.slots)
		p.slots = append(p.slots, nil)
		p.generations = append(p.generations, 0)
	}
	h := TileHandle{Index: idx, Generation: p.generations[idx]}
	t := &Tile{Status: Initialized, handle: h}
	p.slots[idx] = t
	return t, h
}

// Get resolves a handle to its Tile, or nil if the handle is stale (the
// slot was freed and reused, or never allocated).
func (p *Pool) Get(h TileHandle) *Tile {
	if h.Index < 0 || h.Index >= len(p.slots) {
		return nil
	}
	if p.generations[h.Index] != h.Generation {
		return nil
	}
	return p.slots[h.Index]
}

// Free releases h's slot, bumping its generation so outstanding copies of
// h become stale.
func (p *Pool) Free(h TileHandle) {
	if p.Get(h) == nil {
		return
	}
	p.slots[h.Index] = nil
	p.generations[h.Index]++
	p.free = append(p.free, h.Index)
}
