package opgraph

import "github.com/neupims-sim/neupims-sim/tile"

// Lowerable is the single-method contract spec.md §9 asks every operation
// variant to share: "Model operations as a sum type ... with a single
// lower_to_tiles(inputs, config) -> TileList per variant."
type Lowerable interface {
	LowerToTiles(c *Context, operationID int, platform tile.Platform) []tile.TileHandle
}

// OpStat aggregates per-operation accounting for the TSV logs (spec.md
// §6: "OpName, StartCycle, EndCycle, ComputeCycles, MemoryReads/Writes,
// Bandwidths, NpuUtilization").
type OpStat struct {
	OpName        string
	StartCycle    int64
	EndCycle      int64
	ComputeCycles int64
	MemoryReads   int64
	MemoryWrites  int64
}

// Operation owns a Lowerable body plus the input/output tensors and tile
// queue spec.md §4.6 describes: "Each Operation owns: inputs (tensors),
// outputs (produced on get_outputs(inputs)), a tile queue, and aggregated
// stats."
type Operation struct {
	ID       int
	Name     string
	Platform tile.Platform
	Body     Lowerable

	Inputs  []*Tensor
	Outputs []*Tensor

	tileQueue []tile.TileHandle
	Stat      OpStat
}

// NewOperation allocates an operation id from the shared Context and
// returns an Operation wrapping body.
func NewOperation(c *Context, name string, platform tile.Platform, body Lowerable, inputs, outputs []*Tensor) *Operation {
	return &Operation{
		ID: c.NextOperationID(), Name: name, Platform: platform, Body: body,
		Inputs: inputs, Outputs: outputs, Stat: OpStat{OpName: name},
	}
}

// Executable implements spec.md §4.6's executability test: "all input
// tensors must be marked produced."
func (op *Operation) Executable() bool {
	for _, in := range op.Inputs {
		if in != nil && !in.Produced {
			return false
		}
	}
	return true
}

// Compile lowers the operation's body into tiles (appending to its tile
// queue) and marks every output tensor produced, per spec.md §4.6:
// "outputs (produced on get_outputs(inputs))."
func (op *Operation) Compile(c *Context) []tile.TileHandle {
	handles := op.Body.LowerToTiles(c, op.ID, op.Platform)
	op.tileQueue = append(op.tileQueue, handles...)
	for _, out := range op.Outputs {
		if out != nil {
			out.Produced = true
		}
	}
	return handles
}

// TileQueue returns the operation's materialized tiles, FIFO order.
func (op *Operation) TileQueue() []tile.TileHandle {
	return op.tileQueue
}

// PopTile removes and returns the queue's front tile handle.
func (op *Operation) PopTile() (tile.TileHandle, bool) {
	if len(op.tileQueue) == 0 {
		return tile.TileHandle{}, false
	}
	h := op.tileQueue[0]
	op.tileQueue = op.tileQueue[1:]
	return h, true
}

// PushFront puts h back at the head of the tile queue, for a caller that
// popped it but could not issue it this cycle (e.g. no free scratchpad
// half) and must retry it first next time.
func (op *Operation) PushFront(h tile.TileHandle) {
	op.tileQueue = append([]tile.TileHandle{h}, op.tileQueue...)
}

// RecordRetire folds one retired tile's stat into the operation's
// aggregate (spec.md §6 TSV columns).
func (op *Operation) RecordRetire(t *tile.Tile) {
	if op.Stat.StartCycle == 0 || t.Stat.IssuedCycle < op.Stat.StartCycle {
		op.Stat.StartCycle = t.Stat.IssuedCycle
	}
	if t.Stat.RetiredCycle > op.Stat.EndCycle {
		op.Stat.EndCycle = t.Stat.RetiredCycle
	}
	op.Stat.ComputeCycles += t.Stat.ComputeCycles
	op.Stat.MemoryReads += t.Stat.MemoryReads
	op.Stat.MemoryWrites += t.Stat.MemoryWrites
}
