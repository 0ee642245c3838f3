package reqs

import (
	"testing"

	"github.com/neupims-sim/neupims-sim/config"
)

func TestClient_Cycle_BeforeInterval_ReturnsNoArrival(t *testing.T) {
	// GIVEN a client with a 10-cycle arrival interval
	c := NewClient([]config.ClientRow{{InputLen: 128, Channel: 0}}, 10, 4)

	// WHEN the first row arrives at cycle 0
	req, ok := c.Cycle(0)
	if !ok || req == nil {
		t.Fatalf("Cycle(0): got (%v, %v), want a fresh arrival", req, ok)
	}

	// THEN a second call before the next interval elapses reports no arrival
	if _, ok := c.Cycle(5); ok {
		t.Error("Cycle(5): got an arrival, want none (interval not elapsed)")
	}
}

func TestClient_Cycle_AssignsSequentialIDsAndFields(t *testing.T) {
	// GIVEN a two-row dataset
	c := NewClient([]config.ClientRow{
		{InputLen: 100, Channel: 2},
		{InputLen: 200, Channel: 3},
	}, 1, 8)

	// WHEN both rows are cycled in at their due cycles
	req1, _ := c.Cycle(0)
	req2, _ := c.Cycle(1)

	// THEN each gets a distinct sequential ID and its row's fields
	if req1.ID == req2.ID {
		t.Errorf("expected distinct IDs, got %d and %d", req1.ID, req2.ID)
	}
	if req1.InputSize != 100 || req1.Channel != 2 || !req1.ChannelAssigned {
		t.Errorf("req1: got %+v, want InputSize=100 Channel=2 ChannelAssigned=true", req1)
	}
	if req2.InputSize != 200 || req2.Channel != 3 {
		t.Errorf("req2: got %+v, want InputSize=200 Channel=3", req2)
	}
	if req1.OutputSize != 8 || req2.OutputSize != 8 {
		t.Errorf("OutputSize: got %d/%d, want 8/8", req1.OutputSize, req2.OutputSize)
	}
}

func TestClient_Cycle_Exhausted_ReturnsNilFalse_NeverExits(t *testing.T) {
	// GIVEN a single-row dataset already consumed
	c := NewClient([]config.ClientRow{{InputLen: 1, Channel: 0}}, 1, 1)
	if _, ok := c.Cycle(0); !ok {
		t.Fatal("expected the one row to arrive")
	}

	// WHEN Cycle is called again after the dataset is exhausted
	req, ok := c.Cycle(100)

	// THEN it reports clean exhaustion rather than panicking or exiting
	if req != nil || ok {
		t.Errorf("Cycle after exhaustion: got (%v, %v), want (nil, false)", req, ok)
	}
	if !c.Exhausted() {
		t.Error("Exhausted(): got false, want true")
	}
	if rem := c.Remaining(); rem != 0 {
		t.Errorf("Remaining(): got %d, want 0", rem)
	}
}
