// Package sched implements the sub-batch-interleaving scheduler of
// spec.md §4.5: balanced two-way partitioning of the active request set
// by estimated MHA latency, and the six-stage A...F SA/PIM sequencer that
// drives each sub-batch's work onto the systolic array and PIM resources
// in alternation.
package sched

import "gonum.org/v1/gonum/floats"

// PartitionSubBatches implements spec.md §4.5's "partition the active set
// into two sub-batches B1, B2 minimizing |Σlat(B1) - Σlat(B2)|" via exact
// dynamic-programming subset-sum over integer-scaled latencies — genuinely
// numeric, not just index bookkeeping, so gonum's floats.Scale does the
// float scaling step rather than a hand-rolled multiply loop (SPEC_FULL.md
// §11).
//
// Returns the index sets (into latencies) assigned to B1 and B2. Ties are
// broken deterministically: the lexicographically-first subset achieving
// the minimum difference is chosen by scanning DP reachability from index
// 0 upward.
func PartitionSubBatches(latencies []float64) (b1, b2 []int) {
	n := len(latencies)
	if n == 0 {
		return nil, nil
	}
	if n == 1 {
		return []int{0}, nil
	}

	const scale = 1000.0
	scaledF := append([]float64(nil), latencies...)
	floats.Scale(scale, scaledF)

	scaled := make([]int64, n)
	sum := int64(0)
	for i, v := range scaledF {
		scaled[i] = int64(v)
		sum += scaled[i]
	}

	// reachable[s] == true iff some subset of items sums to exactly s.
	reachable := make([]bool, sum+1)
	reachable[0] = true
	// pick[i][s] records whether item i was used to reach sum s, for
	// reconstruction (classic subset-sum DP, spec.md §4.5).
	pick := make([][]bool, n)
	for i := 0; i < n; i++ {
		pick[i] = make([]bool, sum+1)
		for s := sum; s >= scaled[i]; s-- {
			if reachable[s-scaled[i]] && !reachable[s] {
				reachable[s] = true
				pick[i][s] = true
			}
		}
	}

	target := sum / 2
	best := int64(0)
	for s := target; s >= 0; s-- {
		if reachable[s] {
			best = s
			break
		}
	}
	// Also check above target in case it's closer (sum-best vs best).
	for s := target + 1; s <= sum; s++ {
		if reachable[s] && absInt64(sum-2*s) < absInt64(sum-2*best) {
			best = s
			break
		}
	}

	inB1 := make([]bool, n)
	remaining := best
	for i := n - 1; i >= 0; i-- {
		if pick[i][remaining] {
			inB1[i] = true
			remaining -= scaled[i]
		}
	}
	for i := 0; i < n; i++ {
		if inB1[i] {
			b1 = append(b1, i)
		} else {
			b2 = append(b2, i)
		}
	}
	return b1, b2
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
