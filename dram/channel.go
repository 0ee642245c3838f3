package dram

// ChannelState owns every bank in one DRAM channel plus the per-rank
// activation-window histories and pending-refresh bookkeeping spec.md §3
// assigns to it.
type ChannelState struct {
	Mode    BufferMode
	NumRanks, NumBankGroups, NumBanksPerGroup int

	banks [][][]*BankState // [rank][bankgroup][bank]

	// rankSref[r] is true while rank r's banks are all in self-refresh.
	rankSref []bool

	// actWindow[r] holds the ACTIVATE timestamps still inside the tFAW
	// (and, for GDDR, the 32-ACT) window for rank r, oldest first.
	actWindow   [][]int64
	act32Window [][]int64

	// pendingRefresh[r] counts REFRESH commands queued but not yet issued
	// for rank r (spec.md §4.3's refresh generator target).
	pendingRefresh []int

	// firstCompIssued[rank][bg][bank] tracks whether the pipeline-filling
	// READRES floor (spec.md §4.2) has already been applied to the
	// current COMP stream on that bank.
	firstCompIssued [][][]bool

	timing Timing

	// EnergyPJ accumulates per-command energy, keyed by CommandTag
	// (SPEC_FULL.md §12.1's supplemented energy-accumulation feature).
	EnergyPJ map[CommandTag]float64

	// stats counts issued commands by tag, used for the TSV logs
	// (spec.md §6).
	CommandCounts map[CommandTag]int64
}

// EnergyTable maps a CommandTag to its energy cost in picojoules. Supplied
// externally (derived from the same DRAM-ini file as Timing); zero-valued
// entries are simply not accumulated.
type EnergyTable map[CommandTag]float64

func NewChannelState(mode BufferMode, numRanks, numBankGroups, numBanksPerGroup int, timing Timing) *ChannelState {
	c := &ChannelState{
		Mode:             mode,
		NumRanks:         numRanks,
		NumBankGroups:    numBankGroups,
		NumBanksPerGroup: numBanksPerGroup,
		timing:           timing,
		rankSref:         make([]bool, numRanks),
		actWindow:        make([][]int64, numRanks),
		act32Window:      make([][]int64, numRanks),
		pendingRefresh:   make([]int, numRanks),
		EnergyPJ:         make(map[CommandTag]float64),
		CommandCounts:    make(map[CommandTag]int64),
	}
	c.banks = make([][][]*BankState, numRanks)
	c.firstCompIssued = make([][][]bool, numRanks)
	for r := 0; r < numRanks; r++ {
		c.banks[r] = make([][]*BankState, numBankGroups)
		c.firstCompIssued[r] = make([][]bool, numBankGroups)
		for bg := 0; bg < numBankGroups; bg++ {
			c.banks[r][bg] = make([]*BankState, numBanksPerGroup)
			c.firstCompIssued[r][bg] = make([]bool, numBanksPerGroup)
			for ba := 0; ba < numBanksPerGroup; ba++ {
				c.banks[r][bg][ba] = NewBankState(mode)
			}
		}
	}
	return c
}

// Bank returns the BankState for (rank, bankgroup, bank).
func (c *ChannelState) Bank(rank, bg, ba int) *BankState {
	return c.banks[rank][bg][ba]
}

// AccumulateEnergy adds one command's energy cost, keyed by tag, to the
// channel's running total (SPEC_FULL.md §12.1).
func (c *ChannelState) AccumulateEnergy(tag CommandTag, table EnergyTable) {
	if table == nil {
		return
	}
	c.EnergyPJ[tag] += table[tag]
}

// recordIssue bumps CommandCounts and applies the ACT-window/refresh/
// timing-propagation side effects of issuing cmd at clk. Call exactly
// once per physically-issued command (not for P_HEADER, which is a
// queue-level arm with no device-side effect).
func (c *ChannelState) recordIssue(cmd Command, clk int64) {
	c.CommandCounts[cmd.Tag]++
	rank := cmd.Fields.Rank

	switch cmd.Tag {
	case ACTIVATE:
		c.pushActWindow(rank, clk)
	case GACT:
		c.propagateGACT(cmd, clk)
	case COMP, COMPSReadres:
		c.propagateCOMPFamily(cmd, clk)
	case READRES:
		c.firstCompIssued[rank][cmd.Fields.BankGroup][cmd.Fields.Bank] = false
	case GWRITE:
		c.propagateGWRITE(cmd, clk)
	case REFRESH:
		if c.pendingRefresh[rank] > 0 {
			c.pendingRefresh[rank]--
		}
	}
}

// pushActWindow records a new ACTIVATE timestamp and evicts entries that
// have aged out of the tFAW (and 32-ACT, for GDDR) windows, then asserts
// the next ACTIVATE's floor on this rank from whichever window is tighter.
func (c *ChannelState) pushActWindow(rank int, clk int64) {
	w := append(c.actWindow[rank], clk)
	for len(w) > 0 && clk-w[0] >= c.timing.TFAW {
		w = w[1:]
	}
	c.actWindow[rank] = w
	if len(w) >= 4 {
		floor := w[0] + c.timing.TFAW
		c.forEachBankInRank(rank, func(b *BankState) { b.UpdateTiming(ACTIVATE, floor) })
	}

	if c.timing.GDDRACTWindow {
		w32 := append(c.act32Window[rank], clk)
		if len(w32) > 32 {
			w32 = w32[len(w32)-32:]
		}
		c.act32Window[rank] = w32
		if len(w32) >= 32 {
			floor := w32[0] + 32*c.timing.TFAW/4
			c.forEachBankInRank(rank, func(b *BankState) { b.UpdateTiming(ACTIVATE, floor) })
		}
	}
}

func (c *ChannelState) forEachBankInRank(rank int, f func(*BankState)) {
	for bg := 0; bg < c.NumBankGroups; bg++ {
		for ba := 0; ba < c.NumBanksPerGroup; ba++ {
			f(c.banks[rank][bg][ba])
		}
	}
}

func (c *ChannelState) forEachBankInBankgroup(rank, bg int, f func(*BankState)) {
	for ba := 0; ba < c.NumBanksPerGroup; ba++ {
		f(c.banks[rank][bg][ba])
	}
}

func (c *ChannelState) forEachBank(f func(rank, bg, ba int, b *BankState)) {
	for r := 0; r < c.NumRanks; r++ {
		for bg := 0; bg < c.NumBankGroups; bg++ {
			for ba := 0; ba < c.NumBanksPerGroup; ba++ {
				f(r, bg, ba, c.banks[r][bg][ba])
			}
		}
	}
}

// propagateGACT implements spec.md §4.2: "G_ACT propagates to
// same-bankgroup (all banks) and same-rank."
func (c *ChannelState) propagateGACT(cmd Command, clk int64) {
	floor := clk + c.timing.TGACT
	rank, bg := cmd.Fields.Rank, cmd.Fields.BankGroup
	c.forEachBankInBankgroup(rank, bg, func(b *BankState) {
		b.UpdateTiming(COMP, floor)
		b.UpdateTiming(COMPSReadres, floor)
	})
	c.forEachBankInRank(rank, func(b *BankState) {
		b.UpdateTiming(GACT, clk+c.timing.TRRD_L)
	})
}

// propagateCOMPFamily implements spec.md §4.2: "COMP propagates across the
// whole rank and also to other ranks; on the first COMP of a stream a
// pipeline-filling READRES floor of 6 × tCCD_S is inserted." and
// "COMPS_READRES propagates channel-wide and adds a (num_comps+1) ×
// max(burst_cycle, tCCD_S) deadline against future COMPS_READRES and
// GWRITE."
func (c *ChannelState) propagateCOMPFamily(cmd Command, clk int64) {
	rank, bg, ba := cmd.Fields.Rank, cmd.Fields.BankGroup, cmd.Fields.Bank
	bank := c.banks[rank][bg][ba]

	if cmd.Tag == COMP && !c.firstCompIssued[rank][bg][ba] {
		c.firstCompIssued[rank][bg][ba] = true
		bank.UpdateTiming(READRES, clk+pipelineFillReadresFloor(c.timing))
	}
	if cmd.Tag == READRES {
		c.firstCompIssued[rank][bg][ba] = false
	}

	// COMP propagates across the whole rank.
	floor := clk + c.timing.TCCD_S
	c.forEachBankInRank(rank, func(b *BankState) { b.UpdateTiming(COMP, floor) })
	// ... and to other ranks.
	for r := 0; r < c.NumRanks; r++ {
		if r == rank {
			continue
		}
		c.forEachBankInRank(r, func(b *BankState) { b.UpdateTiming(COMP, clk+c.timing.TRRD_L) })
	}

	if cmd.Tag == COMPSReadres {
		deadline := clk + compsReadresDeadline(c.timing, cmd.Payload.NumComps)
		c.forEachBank(func(_, _, _ int, b *BankState) {
			b.UpdateTiming(COMPSReadres, deadline)
			b.UpdateTiming(GWRITE, deadline)
		})
	}
}

// propagateGWRITE implements spec.md §4.2: "GWRITE blocks same-bankgroup
// banks for gwrite_delay = 32 × (tCCD_S + tCCD_L)."
func (c *ChannelState) propagateGWRITE(cmd Command, clk int64) {
	floor := clk + gwriteDelay(c.timing)
	rank, bg := cmd.Fields.Rank, cmd.Fields.BankGroup
	c.forEachBankInBankgroup(rank, bg, func(b *BankState) {
		b.UpdateTiming(GWRITE, floor)
		b.UpdateTiming(WRITE, floor)
	})
}

// ActivateLegal reports whether an ACTIVATE at clk on rank would violate
// the tFAW (or 32-ACT) window — spec.md §4.2's "An ACTIVATE is legal only
// if the head deadlines permit it." This is a read-only check; the actual
// floor is asserted by pushActWindow when the ACTIVATE is recorded.
func (c *ChannelState) ActivateLegal(rank int, clk int64) bool {
	w := c.actWindow[rank]
	if len(w) >= 4 && clk < w[0]+c.timing.TFAW {
		return false
	}
	if c.timing.GDDRACTWindow {
		w32 := c.act32Window[rank]
		if len(w32) >= 32 && clk < w32[0]+32*c.timing.TFAW/4 {
			return false
		}
	}
	return true
}

// EnqueueRefresh increments the pending-refresh count for rank (spec.md
// §4.3's refresh generator inserting per-rank REFRESH at tREFI cadence).
func (c *ChannelState) EnqueueRefresh(rank int) {
	c.pendingRefresh[rank]++
}

// PendingRefresh returns the number of REFRESH commands queued but not
// yet issued for rank.
func (c *ChannelState) PendingRefresh(rank int) int {
	return c.pendingRefresh[rank]
}
