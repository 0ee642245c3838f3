package sched

import "testing"

func TestScheduler_AssignChannel_RoundRobins(t *testing.T) {
	// GIVEN a scheduler with 3 DRAM channels
	s := NewScheduler(8, 3, 1)
	reqs := []*ActiveRequest{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}

	// WHEN each unassigned request is assigned a channel
	for _, r := range reqs {
		s.AssignChannel(r)
	}

	// THEN channels wrap round-robin starting at 0
	want := []int{0, 1, 2, 0}
	for i, r := range reqs {
		if r.Channel != want[i] {
			t.Errorf("req %d: got channel %d, want %d", r.ID, r.Channel, want[i])
		}
		if !r.ChannelAssigned {
			t.Errorf("req %d: ChannelAssigned not set", r.ID)
		}
	}
}

func TestScheduler_AssignChannel_AlreadyAssigned_NoOp(t *testing.T) {
	// GIVEN a request that already has a channel (e.g. a PIM-resident
	// decode request pinned to its KV cache's channel)
	s := NewScheduler(8, 4, 1)
	r := &ActiveRequest{ID: 1, Channel: 3, ChannelAssigned: true}

	// WHEN AssignChannel is called again
	s.AssignChannel(r)

	// THEN its channel is left untouched and the round-robin cursor
	// does not advance
	if r.Channel != 3 {
		t.Errorf("got channel %d, want 3 (unchanged)", r.Channel)
	}
	if s.nextChannel != 0 {
		t.Errorf("nextChannel advanced to %d, want 0 (no-op)", s.nextChannel)
	}
}

func TestScheduler_FormIteration_CapsToMaxBatchSize(t *testing.T) {
	// GIVEN more active requests than MaxBatchSize
	s := NewScheduler(2, 2, 1)
	active := []*ActiveRequest{
		{ID: 1, EstimatedMHALatency: 1},
		{ID: 2, EstimatedMHALatency: 1},
		{ID: 3, EstimatedMHALatency: 1},
	}

	// WHEN FormIteration runs
	s.FormIteration(active)

	// THEN only MaxBatchSize requests are split across B1/B2
	if got := len(s.B1) + len(s.B2); got != 2 {
		t.Errorf("total batched: got %d, want 2", got)
	}
}

func TestScheduler_FormIteration_ResetsStageToA(t *testing.T) {
	// GIVEN a scheduler mid-way through a prior iteration's stage loop
	s := NewScheduler(4, 1, 2)
	s.Stage = StageE

	// WHEN a new iteration is formed
	s.FormIteration([]*ActiveRequest{{ID: 1, EstimatedMHALatency: 1}})

	// THEN the stage resets to A and the layer counter to LayersPerToken
	if s.Stage != StageA {
		t.Errorf("Stage: got %v, want %v", s.Stage, StageA)
	}
	if s.layersLeft != s.LayersPerToken {
		t.Errorf("layersLeft: got %d, want %d", s.layersLeft, s.LayersPerToken)
	}
}

func TestScheduler_AdvanceStage_CyclesCDOncePerLayer(t *testing.T) {
	// GIVEN a 3-layer model freshly formed into an iteration
	s := NewScheduler(4, 1, 3)
	s.FormIteration([]*ActiveRequest{{ID: 1, EstimatedMHALatency: 1}})

	// WHEN driving the stage loop from A to completion
	var visited []Stage
	for {
		visited = append(visited, s.Stage)
		if s.Stage == StageFinish {
			break
		}
		s.AdvanceStage()
	}

	// THEN the C<->D pair appears exactly once per layer (3 times each)
	// before falling through to E, F, Finish
	var countC, countD int
	for _, st := range visited {
		if st == StageC {
			countC++
		}
		if st == StageD {
			countD++
		}
	}
	if countC != 3 || countD != 3 {
		t.Errorf("C/D lap counts: got C=%d D=%d, want 3/3 (visited %v)", countC, countD, visited)
	}
}

func TestScheduler_FormIteration_BaselineSkipsSplit(t *testing.T) {
	// GIVEN a scheduler in baseline_exp ablation mode (SPEC_FULL.md §12.4)
	s := NewScheduler(4, 1, 1)
	s.Baseline = true
	active := []*ActiveRequest{
		{ID: 1, EstimatedMHALatency: 5},
		{ID: 2, EstimatedMHALatency: 1},
		{ID: 3, EstimatedMHALatency: 9},
	}

	// WHEN an iteration is formed
	s.FormIteration(active)

	// THEN every request lands in B1 as a single FCFS batch and B2 is empty
	if len(s.B2) != 0 {
		t.Errorf("B2: got %d requests, want 0 (baseline forces single batch)", len(s.B2))
	}
	if len(s.B1) != len(active) {
		t.Errorf("B1: got %d requests, want %d", len(s.B1), len(active))
	}
	for i, r := range s.B1 {
		if r.ID != active[i].ID {
			t.Errorf("B1[%d]: got ID %d, want %d (FCFS order preserved)", i, r.ID, active[i].ID)
		}
	}
}

func TestScheduler_CurrentBatch_ReturnsB1OrB2(t *testing.T) {
	// GIVEN a scheduler with populated sub-batches
	s := NewScheduler(4, 1, 1)
	s.B1 = []*ActiveRequest{{ID: 1}}
	s.B2 = []*ActiveRequest{{ID: 2}, {ID: 3}}

	// WHEN CurrentBatch is queried for 1 and 2
	// THEN it returns the matching slice
	if got := s.CurrentBatch(1); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("CurrentBatch(1): got %v, want [req 1]", got)
	}
	if got := s.CurrentBatch(2); len(got) != 2 {
		t.Errorf("CurrentBatch(2): got %v, want 2 requests", got)
	}
}
