package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionSubBatches_Empty_ReturnsNil(t *testing.T) {
	// GIVEN no requests
	// WHEN partitioning an empty latency set
	b1, b2 := PartitionSubBatches(nil)

	// THEN both sub-batches are empty
	require.Empty(t, b1)
	require.Empty(t, b2)
}

func TestPartitionSubBatches_Single_AllInB1(t *testing.T) {
	// GIVEN a single request
	// WHEN partitioning
	b1, b2 := PartitionSubBatches([]float64{5.0})

	// THEN it lands in B1 alone, B2 empty
	require.Equal(t, []int{0}, b1)
	require.Empty(t, b2)
}

func TestPartitionSubBatches_Balanced_MinimizesImbalance(t *testing.T) {
	// GIVEN four requests whose latencies split evenly into two pairs
	latencies := []float64{10, 10, 5, 5}

	// WHEN partitioned
	b1, b2 := PartitionSubBatches(latencies)

	// THEN every index is assigned to exactly one sub-batch and the two
	// sums are equal (the DP's optimal split for this symmetric input)
	seen := make(map[int]bool)
	var sum1, sum2 float64
	for _, i := range b1 {
		seen[i] = true
		sum1 += latencies[i]
	}
	for _, i := range b2 {
		require.False(t, seen[i], "index %d assigned to both sub-batches", i)
		seen[i] = true
		sum2 += latencies[i]
	}
	require.Len(t, seen, len(latencies))
	require.InDelta(t, sum1, sum2, 0.01)
}
