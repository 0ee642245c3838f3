package sched

import "github.com/sirupsen/logrus"

// ActiveRequest is the subset of reqs.InferRequest fields the scheduler
// needs to make partitioning/channel decisions, kept local to avoid a
// sched<->reqs import cycle (reqs.Client drives sched.Scheduler, not the
// reverse).
type ActiveRequest struct {
	ID             int
	Channel        int
	ChannelAssigned bool
	InputSize      int
	IsInitiated    bool
	EstimatedMHALatency float64
}

// Scheduler is the sub-batch-interleaving scheduler of spec.md §4.5: it
// assigns channels, estimates MHA latency, partitions the active set into
// two balanced sub-batches, and drives the six-stage loop.
type Scheduler struct {
	MaxBatchSize int
	NumChannels  int

	nextChannel int
	Stage       Stage

	B1, B2 []*ActiveRequest

	LayersPerToken int
	layersLeft     int

	// Baseline forces the "baseline_exp" ablation mode (spec.md memory.json
	// §6, SPEC_FULL.md §12.4): FormIteration skips the balanced two-way
	// split and runs every active request as a single FCFS batch (B1 holds
	// all of it, B2 stays empty). Pairing this with simcore routing MHA
	// through the SA GEMV lowering (rather than PIM) reproduces the
	// original's non-PIM ablation baseline.
	Baseline bool
}

// NewScheduler creates a Scheduler with the given per-iteration batch cap,
// channel count, and per-token transformer layer count (spec.md §4.5:
// "Layers > 1 cycle C<->D").
func NewScheduler(maxBatchSize, numChannels, layersPerToken int) *Scheduler {
	return &Scheduler{MaxBatchSize: maxBatchSize, NumChannels: numChannels, LayersPerToken: layersPerToken, Stage: StageA}
}

// AssignChannel round-robins an initialization-phase request across
// channels (spec.md §4.5: "assign each initialization-phase request a
// DRAM channel (round-robin)").
func (s *Scheduler) AssignChannel(req *ActiveRequest) {
	if req.ChannelAssigned {
		return
	}
	req.Channel = s.nextChannel
	req.ChannelAssigned = true
	s.nextChannel = (s.nextChannel + 1) % s.NumChannels
}

// FormIteration pairs up to MaxBatchSize active requests and partitions
// them into B1/B2 minimizing the MHA-latency imbalance (spec.md §4.5).
func (s *Scheduler) FormIteration(active []*ActiveRequest) {
	n := len(active)
	if n > s.MaxBatchSize {
		n = s.MaxBatchSize
	}
	batch := active[:n]
	for _, r := range batch {
		if !r.ChannelAssigned {
			s.AssignChannel(r)
		}
	}

	if s.Baseline {
		// baseline_exp ablation: no sub-batch split, every request rides
		// through the stage table as a single FCFS batch (spec.md
		// memory.json §6, SPEC_FULL.md §12.4).
		s.B1 = append(s.B1[:0], batch...)
		s.B2 = s.B2[:0]
		s.Stage = StageA
		s.layersLeft = s.LayersPerToken
		return
	}

	latencies := make([]float64, len(batch))
	for i, r := range batch {
		latencies[i] = r.EstimatedMHALatency
	}
	i1, i2 := PartitionSubBatches(latencies)

	s.B1 = s.B1[:0]
	s.B2 = s.B2[:0]
	for _, i := range i1 {
		s.B1 = append(s.B1, batch[i])
	}
	for _, i := range i2 {
		s.B2 = append(s.B2, batch[i])
	}

	if len(s.B1) == 0 && len(s.B2) != 0 {
		logrus.Warn("sched: FormIteration produced an empty B1; re-splitting single batch")
		mid := len(s.B2) / 2
		s.B1, s.B2 = append([]*ActiveRequest{}, s.B2[:mid]...), append([]*ActiveRequest{}, s.B2[mid:]...)
	}

	s.Stage = StageA
	s.layersLeft = s.LayersPerToken
}

// AdvanceStage moves to the next stage, decrementing the per-token layer
// counter once per completed C<->D lap (on leaving D) and returning the
// new stage, which is StageFinish once the iteration's stage loop is done
// (spec.md §4.5: "Completing Finish retires one generated token per
// request").
func (s *Scheduler) AdvanceStage() Stage {
	if s.Stage == StageD && s.layersLeft > 0 {
		s.layersLeft--
	}
	s.Stage = s.Stage.Next(s.layersLeft)
	return s.Stage
}

// CurrentBatch returns the sub-batch (1 or 2) named by batchNum.
func (s *Scheduler) CurrentBatch(batchNum int) []*ActiveRequest {
	if batchNum == 1 {
		return s.B1
	}
	return s.B2
}
