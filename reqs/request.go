// Package reqs models the per-request state spec.md §1/§3 tracks across a
// request's lifetime: arrival, the prefill/decode split, per-layer KV-cache
// tensors, and completion, grounded on the teacher's sim/request.go Request
// type and sim/cluster/workload.go arrival-stream client.
package reqs

import "github.com/neupims-sim/neupims-sim/opgraph"

// InferRequest is one inference request moving through the simulator
// (spec.md §1: "arrival_cycle, input_size, output_size" and §3's
// prefill/decode state machine).
type InferRequest struct {
	ID             int
	ArrivalCycle   int64
	CompletedCycle int64

	InputSize  int
	OutputSize int

	// IsInitiated marks the request has completed its prefill/initialization
	// phase and moved to steady-state decoding (spec.md §3).
	IsInitiated bool
	Generated   int

	Channel         int
	ChannelAssigned bool

	// KCache/VCache hold one KV tensor per transformer layer, indexed
	// [layer] (spec.md §4.7). Their Kind (KVBlockedNPU vs KVRowStripedPIM)
	// is fixed by the run's config.RunMode at request creation.
	KCache []*opgraph.Tensor
	VCache []*opgraph.Tensor
}

// Done reports spec.md §3's completion predicate: every requested output
// token has been generated.
func (r *InferRequest) Done() bool {
	return r.Generated >= r.OutputSize
}

// RetireToken advances decode progress by one generated token, marking
// completion at the cycle it reaches OutputSize (spec.md §4.5: "Completing
// Finish retires one generated token per request").
func (r *InferRequest) RetireToken(now int64) {
	r.Generated++
	if r.Done() {
		r.CompletedCycle = now
	}
}
