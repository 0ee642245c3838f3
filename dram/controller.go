package dram

import (
	"github.com/sirupsen/logrus"

	"github.com/neupims-sim/neupims-sim/addr"
)

// Controller is the PIM-aware dual-stream command scheduler of spec.md
// §4.3/§4.4: it classifies incoming Transactions into the write buffer,
// read queue, or PIM queue, drains per-bank command FIFOs in priority
// order (finish-refresh → PIM queue → per-bank round robin, with optional
// dual-command issue and PIM-slack exploitation), and returns completed
// Transactions to the producer.
type Controller struct {
	Channel *ChannelState
	Queue   *CommandQueue
	Refresh *RefreshGenerator
	Mapping *addr.Mapping
	Timing  Timing
	Energy  EnergyTable

	DualCmdEnabled bool

	// writeBuffer is the coalescing write cache of spec.md §4.3: only one
	// pending write per address.
	writeBuffer map[uint64]*Transaction

	// pendingRead holds READ transactions waiting on their command to
	// retire, keyed by address (spec.md §7 taxonomy 2: a RD retiring with
	// no matching entry here is a fatal invariant violation).
	pendingRead map[uint64][]*Transaction

	// pendingPIM holds the original PIM transaction pointer per address
	// (spec.md §3's "pending_pim_q indexed by address").
	pendingPIM map[uint64]*Transaction

	// rwDependencyLock holds addresses with a WRITE scheduled behind a
	// still-queued READ (spec.md §4.3): the WRITE may not issue until
	// that READ does.
	rwDependencyLock map[uint64]bool

	// skipPIM is set while the controller is draining a refresh deadline
	// out from under an in-flight PIM burst (spec.md §4.4/§8 scenario 4).
	skipPIM bool

	responses []*Transaction
}

func NewController(ch *ChannelState, q *CommandQueue, refresh *RefreshGenerator, mapping *addr.Mapping, timing Timing, energy EnergyTable, dualCmd bool) *Controller {
	return &Controller{
		Channel:          ch,
		Queue:            q,
		Refresh:          refresh,
		Mapping:          mapping,
		Timing:           timing,
		Energy:           energy,
		DualCmdEnabled:   dualCmd,
		writeBuffer:      make(map[uint64]*Transaction),
		pendingRead:      make(map[uint64][]*Transaction),
		pendingPIM:       make(map[uint64]*Transaction),
		rwDependencyLock: make(map[uint64]bool),
	}
}

// AddTransaction classifies tx per spec.md §4.3 and enqueues it. It
// returns false if the controller has no room (a FIFO depth budget) —
// this is the resolution to spec.md §9's Open Question about response-
// queue reservation on refusal: reservation and pending-queue pushes only
// happen AFTER capacity is confirmed, so a refusal never leaks state.
func (c *Controller) AddTransaction(tx *Transaction, clk int64) bool {
	f := c.Mapping.Decode(tx.HexAddr)
	k := bankKey{Rank: f.Rank, BankGroup: f.BankGroup, Bank: f.Bank}

	if c.Queue.NumQueues > 0 && len(c.Queue.banks[k]) >= c.Queue.NumQueues && !tx.ReqType.IsPIM() {
		return false // producer stalls (spec.md §7 taxonomy 3)
	}

	switch tx.ReqType {
	case TxWrite:
		if _, outstanding := c.pendingRead[tx.HexAddr]; outstanding {
			c.rwDependencyLock[tx.HexAddr] = true
		}
		c.writeBuffer[tx.HexAddr] = tx
		// Synthetic immediate ack: the producer sees completion at clk+1
		// even though the physical write drains later (spec.md §4.3).
		ack := &Transaction{HexAddr: tx.HexAddr, ReqType: TxWrite, AddedCycle: tx.AddedCycle, CompleteCycle: clk + 1, Owner: tx.Owner}
		c.responses = append(c.responses, ack)
		c.Queue.EnqueueNormal(&Command{Tag: WRITE, Address: tx.HexAddr, Fields: f}, tx)
	case TxRead:
		if _, writing := c.writeBuffer[tx.HexAddr]; writing {
			ack := &Transaction{HexAddr: tx.HexAddr, ReqType: TxRead, AddedCycle: tx.AddedCycle, CompleteCycle: clk + 1, Owner: tx.Owner}
			c.responses = append(c.responses, ack)
			return true
		}
		c.pendingRead[tx.HexAddr] = append(c.pendingRead[tx.HexAddr], tx)
		c.Queue.EnqueueNormal(&Command{Tag: READ, Address: tx.HexAddr, Fields: f}, tx)
	case TxPHeader:
		hdr := c.Mapping.DecodePIMHeader(tx.HexAddr)
		c.pendingPIM[tx.HexAddr] = tx
		c.Queue.EnqueuePIM(&Command{Tag: PHeader, Address: tx.HexAddr, Fields: f,
			Payload: Payload{NumComps: hdr.NumComps, NumReadres: hdr.NumReadres, ForGWrite: hdr.ForGWrite}}, tx)
	case TxGWrite:
		c.pendingPIM[tx.HexAddr] = tx
		c.Queue.EnqueuePIM(&Command{Tag: GWRITE, Address: tx.HexAddr, Fields: f}, tx)
	case TxComp:
		c.pendingPIM[tx.HexAddr] = tx
		c.Queue.EnqueuePIM(&Command{Tag: COMP, Address: tx.HexAddr, Fields: f}, tx)
	case TxReadres:
		c.pendingPIM[tx.HexAddr] = tx
		c.Queue.EnqueuePIM(&Command{Tag: READRES, Address: tx.HexAddr, Fields: f}, tx)
	case TxCompsReadres:
		cr := c.Mapping.DecodeCompsReadres(tx.HexAddr)
		c.pendingPIM[tx.HexAddr] = tx
		c.Queue.EnqueuePIM(&Command{Tag: COMPSReadres, Address: tx.HexAddr, Fields: f, Payload: Payload{NumComps: cr.NumComps, IsLastComps: cr.IsLast}}, tx)
	case TxPWrite:
		c.pendingPIM[tx.HexAddr] = tx
		c.Queue.EnqueuePIM(&Command{Tag: PWRITE, Address: tx.HexAddr, Fields: f}, tx)
	}
	return true
}

// DrainResponses returns and clears the set of transactions that have
// completed since the last call.
func (c *Controller) DrainResponses() []*Transaction {
	out := c.responses
	c.responses = nil
	return out
}

func (c *Controller) bankAt(k bankKey) *BankState {
	return c.Channel.Bank(k.Rank, k.BankGroup, k.Bank)
}

// Tick advances the controller by one DRAM-clock cycle at time clk,
// issuing at most one command from the PIM queue and one from the normal
// per-bank round robin (plus a second normal command if dual-cmd is
// enabled and pairable), honoring refresh drains and PIM-slack
// exploitation (spec.md §4.4).
func (c *Controller) Tick(clk int64) error {
	c.Refresh.Tick(clk, c.Channel)
	c.serviceRefreshDrains(clk)

	issuedRW := false
	if !c.skipPIM {
		if done, err := c.tryIssuePIM(clk); err != nil {
			return err
		} else if done {
			// fallthrough: normal queue may still issue this cycle.
		}
	}
	c.updateSlack(clk)

	first, err := c.tryIssueNormal(clk)
	if err != nil {
		return err
	}
	issuedRW = first

	if c.DualCmdEnabled && issuedRW {
		// A second command may issue the same cycle only if it is not
		// itself RD/WR: spec.md §4.4's HBM dual-cmd rule pairs at most one
		// RD/WR command per cycle, the other slot must be a non-RD/WR
		// command (e.g. ACTIVATE/PRECHARGE). Peek before issuing so an RD/WR
		// candidate is left queued rather than issued alongside the first.
		if _, cmd2, _, ok := c.Queue.NextNormal(); ok && !cmd2.Tag.IsReadWrite() {
			if _, err := c.tryIssueNormal(clk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) tryIssuePIM(clk int64) (bool, error) {
	cmd, tx, ok := c.Queue.PeekPIM()
	if !ok {
		return false, nil
	}
	k := bankKey{Rank: cmd.Fields.Rank, BankGroup: cmd.Fields.BankGroup, Bank: cmd.Fields.Bank}
	bank := c.bankAt(k)

	ready, isTarget, err := bank.ReadyCommand(*cmd, clk)
	if err != nil {
		logrus.WithFields(logrus.Fields{"tag": cmd.Tag, "bank": k}).Fatal(err)
		return false, err
	}
	if ready == nil {
		return false, nil // not yet
	}
	if !isTarget {
		return c.issuePrereq(*ready, clk)
	}

	if cmd.Tag == PHeader {
		hdr := c.Mapping.DecodePIMHeader(cmd.Address)
		c.Queue.ReserveRowForPIM(k.Rank, k.BankGroup, k.Bank, hdr.Row)
		c.Queue.PopPIM()
		// P_HEADER never touches physical bank state or timing; it only
		// arms the reservation (spec.md §4.4).
		return true, nil
	}

	if err := bank.UpdateState(*cmd); err != nil {
		logrus.WithFields(logrus.Fields{"tag": cmd.Tag, "bank": k}).Fatal(err)
		return false, err
	}
	c.Channel.recordIssue(*cmd, clk)
	c.Channel.AccumulateEnergy(cmd.Tag, c.Energy)
	c.Queue.PopPIM()
	c.completeTransaction(cmd, tx, clk)

	if cmd.Tag == PIMPrecharge {
		c.Queue.ReserveRowForPIM(k.Rank, k.BankGroup, k.Bank, -1)
	}
	return true, nil
}

func (c *Controller) tryIssueNormal(clk int64) (bool, error) {
	k, cmd, tx, ok := c.Queue.NextNormal()
	if !ok {
		return false, nil
	}
	if cmd.Tag == WRITE && c.rwDependencyLock[cmd.Address] {
		return false, nil
	}
	bank := c.bankAt(k)
	ready, isTarget, err := bank.ReadyCommand(*cmd, clk)
	if err != nil {
		logrus.WithFields(logrus.Fields{"tag": cmd.Tag, "bank": k}).Fatal(err)
		return false, err
	}
	if ready == nil {
		return false, nil
	}
	if !isTarget {
		// A prerequisite (ACTIVATE, PRECHARGE, ...) is never RD/WR.
		_, err := c.issuePrereq(*ready, clk)
		return false, err
	}
	if cmd.Tag == ACTIVATE && !c.Channel.ActivateLegal(k.Rank, clk) {
		return false, nil
	}

	if err := bank.UpdateState(*cmd); err != nil {
		logrus.WithFields(logrus.Fields{"tag": cmd.Tag, "bank": k}).Fatal(err)
		return false, err
	}
	c.Channel.recordIssue(*cmd, clk)
	c.Channel.AccumulateEnergy(cmd.Tag, c.Energy)
	c.Queue.PopNormal(k)

	if cmd.Tag == READ {
		delete(c.rwDependencyLock, cmd.Address)
	}
	c.completeTransaction(cmd, tx, clk)
	return cmd.Tag.IsReadWrite(), nil
}

// issuePrereq issues a bank-state prerequisite command (ACTIVATE,
// PRECHARGE, PIM_PRECHARGE, G_ACT, ...) that was synthesized by
// BankState.ReadyCommand rather than dequeued from a FIFO.
func (c *Controller) issuePrereq(cmd Command, clk int64) (bool, error) {
	k := bankKey{Rank: cmd.Fields.Rank, BankGroup: cmd.Fields.BankGroup, Bank: cmd.Fields.Bank}
	bank := c.bankAt(k)
	if clk < bank.TimingFloor(cmd.Tag) {
		return false, nil
	}
	if cmd.Tag == ACTIVATE && !c.Channel.ActivateLegal(k.Rank, clk) {
		return false, nil
	}
	if err := bank.UpdateState(cmd); err != nil {
		logrus.WithFields(logrus.Fields{"tag": cmd.Tag, "bank": k}).Fatal(err)
		return false, err
	}
	c.Channel.recordIssue(cmd, clk)
	c.Channel.AccumulateEnergy(cmd.Tag, c.Energy)
	return true, nil
}

// completeTransaction schedules tx's completion after cmd's fixed
// command-to-data latency and files it for delivery. READ completes after
// tRTP, WRITE after tWTP; every other command uses the burst cycle.
func (c *Controller) completeTransaction(cmd *Command, tx *Transaction, clk int64) {
	if tx == nil {
		return
	}
	var latency int64
	switch cmd.Tag {
	case READ:
		latency = c.Timing.TRTP
	case WRITE:
		latency = c.Timing.TWTP
	default:
		latency = c.Timing.BurstCycle
	}
	tx.CompleteCycle = clk + latency
	c.responses = append(c.responses, tx)

	switch cmd.Tag {
	case READ:
		list := c.pendingRead[cmd.Address]
		if len(list) == 0 {
			logrus.WithField("addr", cmd.Address).Fatal("READ retired with no matching pending_rd_q entry")
			return
		}
		c.pendingRead[cmd.Address] = list[1:]
		if len(c.pendingRead[cmd.Address]) == 0 {
			delete(c.pendingRead, cmd.Address)
		}
	case WRITE:
		delete(c.writeBuffer, cmd.Address)
	case READRES, COMPSReadres:
		delete(c.pendingPIM, cmd.Address)
	}
}

// serviceRefreshDrains marks banks whose rank has a pending refresh as
// refresh-blocked so NextNormal skips them while they drain to CLOSED, and
// sets skipPIM while doing so (spec.md §4.3/§8 scenario 4).
func (c *Controller) serviceRefreshDrains(clk int64) {
	anyDraining := false
	for r := 0; r < c.Channel.NumRanks; r++ {
		if c.Channel.PendingRefresh(r) == 0 {
			continue
		}
		anyDraining = true
		for bg := 0; bg < c.Channel.NumBankGroups; bg++ {
			for ba := 0; ba < c.Channel.NumBanksPerGroup; ba++ {
				c.Queue.SetRefreshBlocked(r, bg, ba, true)
				bank := c.Channel.Bank(r, bg, ba)
				cmd := Command{Tag: REFRESH, Fields: addr.Fields{Rank: r, BankGroup: bg, Bank: ba}}
				ready, isTarget, err := bank.ReadyCommand(cmd, clk)
				if err != nil {
					logrus.WithField("rank", r).Fatal(err)
					continue
				}
				if ready == nil {
					continue
				}
				if !isTarget {
					c.issuePrereq(*ready, clk)
					continue
				}
				if err := bank.UpdateState(cmd); err != nil {
					logrus.WithField("rank", r).Fatal(err)
					continue
				}
			}
		}
		// Once every bank in the rank is CLOSED, fire the REFRESH proper.
		allClosed := true
		for bg := 0; bg < c.Channel.NumBankGroups && allClosed; bg++ {
			for ba := 0; ba < c.Channel.NumBanksPerGroup; ba++ {
				b := c.Channel.Bank(r, bg, ba)
				if b.Normal != Closed || (b.Mode == DualBuffer && b.PIM != Closed) {
					allClosed = false
					break
				}
			}
		}
		if allClosed {
			cmd := Command{Tag: REFRESH, Fields: addr.Fields{Rank: r}}
			c.Channel.recordIssue(cmd, clk)
			c.Channel.AccumulateEnergy(REFRESH, c.Energy)
			for bg := 0; bg < c.Channel.NumBankGroups; bg++ {
				for ba := 0; ba < c.Channel.NumBanksPerGroup; ba++ {
					c.Queue.SetRefreshBlocked(r, bg, ba, false)
				}
			}
		}
	}
	c.skipPIM = anyDraining
}

// updateSlack implements spec.md §4.4/§9's PIM-slack exploitation: when
// the PIM queue's front is a P_HEADER or GWRITE whose estimated latency
// is less than the refresh slack on its rank, it stores the remaining
// budget in Queue.RemainSlack (otherwise 0). No issue path reads or
// deducts from RemainSlack, so it does not gate normal-bank commands.
func (c *Controller) updateSlack(clk int64) {
	cmd, _, ok := c.Queue.PeekPIM()
	if !ok || (cmd.Tag != PHeader && cmd.Tag != GWRITE) {
		c.Queue.RemainSlack = 0
		return
	}
	rank := cmd.Fields.Rank
	slack := c.Refresh.RemainToRefresh(rank, clk)
	estimated := c.estimatePIMLatency(cmd)
	if estimated >= slack {
		c.Queue.RemainSlack = 0
		return
	}
	c.Queue.RemainSlack = slack - estimated
}

func (c *Controller) estimatePIMLatency(cmd *Command) int64 {
	switch cmd.Tag {
	case PHeader:
		return c.Queue.SlackCosts.ActivateToRead + c.Timing.BurstCycle
	case GWRITE:
		return gwriteDelay(c.Timing)
	default:
		return 0
	}
}
