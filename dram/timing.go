package dram

// Timing is the protocol-specific timing-table contract spec.md §1 treats
// as an external collaborator ("the embedded DRAM timing tables, consumed
// as opaque per-protocol constants"): values parsed from a DRAM-ini file
// (see config/dramini.go) and handed to the controller unchanged.
type Timing struct {
	TCK int64 // clock period, in simulator ticks

	TRCD int64 // ACTIVATE -> RD/WR
	TRP  int64 // PRECHARGE -> ACTIVATE
	TRAS int64 // ACTIVATE -> PRECHARGE
	TFAW int64 // four-activation window (same rank)

	TCCD_S int64 // column-to-column, same bankgroup
	TCCD_L int64 // column-to-column, different bankgroup
	TRRD_S int64 // RAS-to-RAS, same bankgroup
	TRRD_L int64 // RAS-to-RAS, different bankgroup

	TRTP int64 // read-to-precharge
	TWTP int64 // write-to-precharge (includes write recovery)
	TRTW int64 // read-to-write bus turnaround
	TWTR int64 // write-to-read bus turnaround

	TREFI int64 // refresh interval (per rank)
	TRFC  int64 // refresh cycle time

	// PIM-specific (spec.md §4.1/§4.2).
	TGACT         int64 // G_ACT -> COMP
	BurstCycle    int64 // one PIM burst transfer cycle
	GDDRACTWindow bool  // true => also enforce a 32-ACT window
}

// SlackCostTable parameterizes the PIM-slack cost model spec.md §9's Open
// Question asks be parameterized rather than hard-coded: the hand-rolled
// per-command latencies `CommandQueue.remain_slack_` charges against slack
// while opportunistically draining normal-bank traffic underneath a PIM
// burst (spec.md §4.4).
type SlackCostTable struct {
	PrechargeToActivate int64
	ActivateToWrite     int64
	ActivateToRead       int64
}

// DefaultSlackCostTable derives a SlackCostTable from a Timing table using
// the same quantities the table already carries, rather than introducing
// new unexplained constants.
func DefaultSlackCostTable(t Timing) SlackCostTable {
	return SlackCostTable{
		PrechargeToActivate: t.TRP,
		ActivateToWrite:     t.TRCD,
		ActivateToRead:      t.TRCD,
	}
}

// gwriteDelay is spec.md §4.2's "GWRITE blocks same-bankgroup banks for
// gwrite_delay = 32 × (tCCD_S + tCCD_L)".
func gwriteDelay(t Timing) int64 {
	return 32 * (t.TCCD_S + t.TCCD_L)
}

// pipelineFillReadresFloor is spec.md §4.2's "on the first COMP of a
// stream a pipeline-filling READRES floor of 6 × tCCD_S is inserted".
func pipelineFillReadresFloor(t Timing) int64 {
	return 6 * t.TCCD_S
}

// compsReadresDeadline is spec.md §4.2's "(num_comps+1) ×
// max(burst_cycle, tCCD_S) deadline against future COMPS_READRES and
// GWRITE".
func compsReadresDeadline(t Timing, numComps int) int64 {
	burst := t.BurstCycle
	if t.TCCD_S > burst {
		burst = t.TCCD_S
	}
	return int64(numComps+1) * burst
}
