// Package icnt implements the network-on-chip model of spec.md §4.9: a
// flattened core-to-channel node space with per-channel SA/PIM request
// queues and per-(core,channel) response out-buffers.
package icnt

import (
	"github.com/neupims-sim/neupims-sim/dram"
	"github.com/neupims-sim/neupims-sim/tile"
)

// Request is a memory access in flight from a core to a channel
// controller, tagged with the stage platform that produced it so it
// routes to the matching per-channel queue (spec.md §4.9).
type Request struct {
	CoreID    int
	Channel   int
	Platform  tile.Platform
	Tx        *dram.Transaction
	EnqueuedAt int64
}

// Response is a completed Transaction routed back to the core that issued
// it (spec.md §4.9: "delivered to out_buffer[core*channels + ch]").
type Response struct {
	CoreID  int
	Channel int
	Tx      *dram.Transaction
}

// Interconnect is the NoC model of spec.md §4.9: node count
// num_cores*dram_channels + dram_channels flattens core-to-channel pairs;
// in-buffers per source core, out-buffers per (core, channel), and two
// per-channel request queues (SA, PIM) that the channel controllers drain
// in arrival order. Tick moves requests into those queues core by core in
// index order; there is no round-robin arbitration across source cores.
type Interconnect struct {
	NumCores    int
	NumChannels int
	HopLatency  int64

	// inBuffer[core] holds requests a core has issued but not yet
	// injected into the network this tick (capacity-limited producer
	// stall point, spec.md §7 taxonomy 3: "interconnect full").
	inBuffer [][]Request
	inCap    int

	// reqQueueSA[ch] / reqQueuePIM[ch] are the per-channel request queues
	// spec.md §4.9 names (mem_req_q_SA, mem_req_q_PIM).
	reqQueueSA  [][]Request
	reqQueuePIM [][]Request

	// outBuffer[core*NumChannels+ch] holds responses ready for the core
	// to drain.
	outBuffer [][]Response

	rrCoreCursor []int // per-channel cursor over source cores; allocated but never read

	// Stats: per-channel request/response counts for the TSV I/O log
	// (spec.md §6).
	ReqCount  []int64
	RespCount []int64
}

// NewInterconnect creates an Interconnect sized for numCores cores and
// numChannels DRAM channels, with the given per-hop latency and per-source
// in-buffer capacity.
func NewInterconnect(numCores, numChannels int, hopLatency int64, inCap int) *Interconnect {
	ic := &Interconnect{
		NumCores:    numCores,
		NumChannels: numChannels,
		HopLatency:  hopLatency,
		inCap:       inCap,
	}
	ic.inBuffer = make([][]Request, numCores)
	ic.reqQueueSA = make([][]Request, numChannels)
	ic.reqQueuePIM = make([][]Request, numChannels)
	ic.outBuffer = make([][]Response, numCores*numChannels)
	ic.rrCoreCursor = make([]int, numChannels)
	ic.ReqCount = make([]int64, numChannels)
	ic.RespCount = make([]int64, numChannels)
	return ic
}

// Inject enqueues a request from coreID into its in-buffer, returning
// false if the buffer is at capacity (spec.md §7 taxonomy 3: "producer
// stalls").
func (ic *Interconnect) Inject(coreID int, req Request) bool {
	if ic.inCap > 0 && len(ic.inBuffer[coreID]) >= ic.inCap {
		return false
	}
	ic.inBuffer[coreID] = append(ic.inBuffer[coreID], req)
	return true
}

// Tick drains each core's in-buffer into the target channel's SA or PIM
// request queue (routed by req.Platform, spec.md §4.9), after the
// configured hop latency has elapsed since enqueue.
func (ic *Interconnect) Tick(clk int64) {
	for core := 0; core < ic.NumCores; core++ {
		buf := ic.inBuffer[core]
		kept := buf[:0]
		for _, req := range buf {
			if clk-req.EnqueuedAt < ic.HopLatency {
				kept = append(kept, req)
				continue
			}
			if req.Platform == tile.PIM {
				ic.reqQueuePIM[req.Channel] = append(ic.reqQueuePIM[req.Channel], req)
			} else {
				ic.reqQueueSA[req.Channel] = append(ic.reqQueueSA[req.Channel], req)
			}
			ic.ReqCount[req.Channel]++
		}
		ic.inBuffer[core] = kept
	}
}

// popFrom dequeues the front request of channel ch's queue in queues,
// FIFO regardless of source core. Callers poll the SA and PIM queues
// independently through PopSARequest and PopPIMRequest (spec.md §4.9).
func (ic *Interconnect) popFrom(queues [][]Request, ch int) (Request, bool) {
	q := queues[ch]
	if len(q) == 0 {
		return Request{}, false
	}
	req := q[0]
	queues[ch] = q[1:]
	return req, true
}

// PopSARequest dequeues the next SA-platform request destined for channel
// ch, FIFO within the channel's SA queue.
func (ic *Interconnect) PopSARequest(ch int) (Request, bool) {
	return ic.popFrom(ic.reqQueueSA, ch)
}

// PopPIMRequest dequeues the next PIM-platform request destined for
// channel ch.
func (ic *Interconnect) PopPIMRequest(ch int) (Request, bool) {
	return ic.popFrom(ic.reqQueuePIM, ch)
}

// DeliverResponse routes a completed Transaction back to the issuing
// core's out-buffer (spec.md §4.9).
func (ic *Interconnect) DeliverResponse(coreID, ch int, tx *dram.Transaction) {
	ic.outBuffer[coreID*ic.NumChannels+ch] = append(ic.outBuffer[coreID*ic.NumChannels+ch], Response{CoreID: coreID, Channel: ch, Tx: tx})
	ic.RespCount[ch]++
}

// DrainResponses returns and clears every response queued for coreID
// across all channels.
func (ic *Interconnect) DrainResponses(coreID int) []Response {
	var out []Response
	for ch := 0; ch < ic.NumChannels; ch++ {
		idx := coreID*ic.NumChannels + ch
		if len(ic.outBuffer[idx]) == 0 {
			continue
		}
		out = append(out, ic.outBuffer[idx]...)
		ic.outBuffer[idx] = nil
	}
	return out
}
