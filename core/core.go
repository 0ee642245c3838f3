package core

import (
	"github.com/neupims-sim/neupims-sim/addr"
	"github.com/neupims-sim/neupims-sim/dram"
	"github.com/neupims-sim/neupims-sim/icnt"
	"github.com/neupims-sim/neupims-sim/tile"
)

// pendingAccess tracks an in-flight MOVIN/MOVOUT's outstanding
// per-chunk memory accesses so the core knows when to decrement the
// owning tile's RemainingLoads/RemainingAccumIO (spec.md §4.8 phase 3/4).
type pendingAccess struct {
	inst       *tile.Instruction
	tileHandle tile.TileHandle
	remaining  int
	isStore    bool
}

// Core is the NPU execution unit of spec.md §4.8: two double-buffered
// scratchpads, per-platform load/store/execute FIFOs, a systolic pipeline,
// and a vector-lane pool.
type Core struct {
	ID int

	ActSpad   *DoubleBuffer
	AccumSpad *DoubleBuffer

	Systolic *SystolicPipeline
	Vector   *VectorPool

	loadQ  map[tile.Platform][]*tile.Instruction
	storeQ map[tile.Platform][]*tile.Instruction
	execQ  map[tile.Platform][]*tile.Instruction

	Pool        *tile.Pool
	DRAMReqSize int64
	Mapping     *addr.Mapping
	Net         *icnt.Interconnect

	// outstanding addresses currently reserved/in flight, keyed by the
	// request's originating memory-access tag. ProcessResponses does not
	// consult it; it credits the tile through each response's Tx.Owner.
	outstanding map[uint64]*pendingAccess
}

// NewCore creates a Core wired to a shared tile pool, DRAM request
// chunking size, address mapping (for channel routing), and interconnect.
func NewCore(id int, coreHeight, coreWidth int64, vectorWidth int, vecLatency VectorLatencyFn, pool *tile.Pool, dramReqSize int64, mapping *addr.Mapping, net *icnt.Interconnect) *Core {
	return &Core{
		ID:          id,
		ActSpad:     NewDoubleBuffer(),
		AccumSpad:   NewDoubleBuffer(),
		Systolic:    NewSystolicPipeline(coreHeight, coreWidth),
		Vector:      NewVectorPool(vectorWidth, vecLatency),
		loadQ:       map[tile.Platform][]*tile.Instruction{},
		storeQ:      map[tile.Platform][]*tile.Instruction{},
		execQ:       map[tile.Platform][]*tile.Instruction{},
		Pool:        pool,
		DRAMReqSize: dramReqSize,
		Mapping:     mapping,
		Net:         net,
		outstanding: make(map[uint64]*pendingAccess),
	}
}

// CanIssue implements spec.md §9's double-buffering predicate: a new tile
// may issue into a scratchpad half iff the alternate half's prior
// occupant has no outstanding loads/computes, and — for the accumulator,
// when the tile is not itself an accumulation tile — no outstanding
// store I/O either.
func (c *Core) CanIssue(db *DoubleBuffer, requireStoreDrained bool) (half int, ok bool) {
	half, _ = db.Active()
	alt := 1 - half
	h, occupied := db.Occupant(alt)
	if !occupied {
		return half, true
	}
	t := c.Pool.Get(h)
	if t == nil {
		return half, true
	}
	if t.RemainingLoads != 0 || t.RemainingComputes != 0 {
		return half, false
	}
	if requireStoreDrained && t.RemainingAccumIO != 0 {
		return half, false
	}
	return half, true
}

// IssueTile assigns a tile its double-buffer IDs and distributes its
// instructions into the ld/st/ex FIFOs by opcode (spec.md §3's Tile
// lifecycle: "issued to a Core (assigns double-buffer IDs, distributes
// instructions into ld/st/ex queues)").
func (c *Core) IssueTile(t *tile.Tile, h tile.TileHandle) {
	actHalf, _ := c.ActSpad.Active()
	accHalf, _ := c.AccumSpad.Active()
	t.SpadID = actHalf
	t.AccumSpadID = accHalf
	c.ActSpad.SetOccupant(actHalf, h)
	c.AccumSpad.SetOccupant(accHalf, h)
	t.Status = tile.Running

	for i := range t.Instructions {
		in := &t.Instructions[i]
		in.ParentTile = h
		switch {
		case in.Opcode == tile.MOVIN:
			c.loadQ[t.StagePlatform] = append(c.loadQ[t.StagePlatform], in)
		case in.Opcode == tile.MOVOUT:
			c.storeQ[t.StagePlatform] = append(c.storeQ[t.StagePlatform], in)
		default:
			c.execQ[t.StagePlatform] = append(c.execQ[t.StagePlatform], in)
		}
	}
}

// Tick advances the core by one compute-clock cycle, running the five
// phases of spec.md §4.8 in order.
func (c *Core) Tick(now int64) {
	c.retireSystolic(now)
	c.retireVector(now)
	c.drainLoadQ(now)
	c.drainStoreQ(now)
	c.drainExecQ(now)
}

func (c *Core) spadFor(platform tile.Platform, accum bool) *DoubleBuffer {
	if accum {
		return c.AccumSpad
	}
	return c.ActSpad
}

// phase 1: retire compute pipeline heads whose finish_cycle <= now,
// filling accumulator SRAM and decrementing remaining_accum_io /
// remaining_computes.
func (c *Core) retireSystolic(now int64) {
	for _, in := range c.Systolic.RetireReady(now) {
		c.retireCompute(in)
	}
}

// phase 2: same rule for each vector-pipeline head.
func (c *Core) retireVector(now int64) {
	for _, in := range c.Vector.RetireReady(now) {
		c.retireCompute(in)
	}
}

func (c *Core) retireCompute(in *tile.Instruction) {
	t := c.Pool.Get(in.ParentTile)
	if t == nil {
		return
	}
	if t.RemainingComputes > 0 {
		t.RemainingComputes--
	}
	if in.DestAddr != tile.GARBAGE_ADDR {
		k := SRAMKey{BufferID: in.AccumSpadID, DestAddr: in.DestAddr}
		c.AccumSpad.Half(in.AccumSpadID).CountUp(k)
		if t.RemainingAccumIO > 0 {
			t.RemainingAccumIO--
		}
	}
}

// phase 3: drain the load FIFO, converting each MOVIN into
// ceil(size/dram_req_size) memory accesses, reserving SRAM, and pushing
// requests into the channel-indexed memory-request queue.
func (c *Core) drainLoadQ(now int64) {
	for platform, q := range c.loadQ {
		var kept []*tile.Instruction
		for _, in := range q {
			if in.DestAddr == tile.GARBAGE_ADDR {
				continue // tail-padding tolerance, spec.md §4.6.1
			}
			spad := c.spadFor(platform, in.AccumSpadID != 0 && false)
			numAccesses := numChunks(in.Size, c.DRAMReqSize)
			k := SRAMKey{BufferID: in.SpadID, DestAddr: in.DestAddr}
			spad.Half(in.SpadID).Reserve(k, in.Size, numAccesses, now)
			for i := 0; i < numAccesses; i++ {
				c.issueMemAccess(in, platform, dram.TxRead, now)
			}
		}
		c.loadQ[platform] = kept
	}
}

// phase 4: drain the store FIFO once MOVOUT's source SRAM line is valid,
// emitting write accesses.
func (c *Core) drainStoreQ(now int64) {
	for platform, q := range c.storeQ {
		var kept []*tile.Instruction
		for _, in := range q {
			if in.DestAddr == tile.GARBAGE_ADDR {
				continue
			}
			ready := true
			for _, src := range in.SrcAddrs {
				if src == tile.GARBAGE_ADDR {
					continue
				}
				k := SRAMKey{BufferID: in.AccumSpadID, DestAddr: src}
				if !c.AccumSpad.Half(in.AccumSpadID).Hit(k) {
					ready = false
					break
				}
			}
			if !ready {
				kept = append(kept, in)
				continue
			}
			numAccesses := numChunks(in.Size, c.DRAMReqSize)
			for i := 0; i < numAccesses; i++ {
				c.issueMemAccess(in, platform, dram.TxWrite, now)
			}
			t := c.Pool.Get(in.ParentTile)
			if t != nil && t.RemainingAccumIO > 0 {
				t.RemainingAccumIO--
			}
		}
		c.storeQ[platform] = kept
	}
}

// phase 5: drain the execute FIFO for instructions whose source SRAM
// lines are all valid, computing finish_cycle via the systolic or
// least-loaded vector pipeline.
func (c *Core) drainExecQ(now int64) {
	for platform, q := range c.execQ {
		var kept []*tile.Instruction
		for _, in := range q {
			ready := true
			for _, src := range in.SrcAddrs {
				if src == tile.GARBAGE_ADDR {
					continue
				}
				k := SRAMKey{BufferID: in.SpadID, DestAddr: src}
				if !c.ActSpad.Half(in.SpadID).Hit(k) {
					ready = false
					break
				}
			}
			if !ready {
				kept = append(kept, in)
				continue
			}
			switch {
			case in.Opcode.IsSystolic():
				c.Systolic.Dispatch(in, now)
			case in.Opcode.IsVector():
				c.Vector.Dispatch(in, now)
			default:
				// PIM packets are dispatched through the interconnect
				// directly; they have no on-core compute latency.
				in.FinishCycle = now
				c.retireCompute(in)
			}
			_ = platform
		}
		c.execQ[platform] = kept
	}
}

// issueMemAccess pushes one memory request for inst onto the interconnect
// (spec.md §4.9), routed to inst.DestAddr's channel.
func (c *Core) issueMemAccess(in *tile.Instruction, platform tile.Platform, reqType dram.TransactionType, now int64) {
	fields := c.Mapping.Decode(in.DestAddr)
	tx := &dram.Transaction{HexAddr: in.DestAddr, ReqType: reqType, AddedCycle: now, Owner: in, CoreID: c.ID}
	c.Net.Inject(c.ID, icnt.Request{CoreID: c.ID, Channel: fields.Channel, Platform: platform, Tx: tx, EnqueuedAt: now})
}

// ProcessResponses drains completed memory transactions for this core
// from the interconnect, counting up the matching SRAM entry and
// decrementing its owning tile's RemainingLoads.
func (c *Core) ProcessResponses() {
	for _, resp := range c.Net.DrainResponses(c.ID) {
		in, ok := resp.Tx.Owner.(*tile.Instruction)
		if !ok || in == nil {
			continue
		}
		t := c.Pool.Get(in.ParentTile)
		if t == nil {
			continue
		}
		switch resp.Tx.ReqType {
		case dram.TxRead:
			k := SRAMKey{BufferID: in.SpadID, DestAddr: in.DestAddr}
			c.ActSpad.Half(in.SpadID).CountUp(k)
			if t.RemainingLoads > 0 {
				t.RemainingLoads--
			}
		case dram.TxWrite:
			// write-ack: nothing further to fill, accounting already
			// happened when the store FIFO emitted the access.
		}
	}
}

func numChunks(size int64, chunk int64) int {
	if chunk <= 0 {
		return 1
	}
	n := size / chunk
	if size%chunk != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return int(n)
}
