package reqs

import "testing"

func TestInferRequest_Done_BelowOutputSize_False(t *testing.T) {
	// GIVEN a request that has generated fewer tokens than requested
	r := &InferRequest{OutputSize: 5, Generated: 3}

	// WHEN Done is checked
	// THEN it reports not yet complete
	if r.Done() {
		t.Error("Done(): got true, want false")
	}
}

func TestInferRequest_RetireToken_ReachesOutputSize_SetsCompletedCycle(t *testing.T) {
	// GIVEN a request one token away from completion
	r := &InferRequest{OutputSize: 3, Generated: 2}

	// WHEN the final token retires at cycle 42
	r.RetireToken(42)

	// THEN it is marked done with CompletedCycle set to that cycle
	if !r.Done() {
		t.Fatal("Done(): got false, want true after final token")
	}
	if r.CompletedCycle != 42 {
		t.Errorf("CompletedCycle: got %d, want 42", r.CompletedCycle)
	}
}

func TestInferRequest_RetireToken_BeforeOutputSize_LeavesCompletedCycleZero(t *testing.T) {
	// GIVEN a request with several tokens still to generate
	r := &InferRequest{OutputSize: 5, Generated: 0}

	// WHEN one token retires
	r.RetireToken(10)

	// THEN it is not yet done and CompletedCycle stays unset
	if r.Done() {
		t.Error("Done(): got true, want false")
	}
	if r.CompletedCycle != 0 {
		t.Errorf("CompletedCycle: got %d, want 0", r.CompletedCycle)
	}
}
