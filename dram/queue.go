package dram

// bankKey identifies one bank's normal-command FIFO.
type bankKey struct {
	Rank, BankGroup, Bank int
}

// queuedCmd pairs a Command with the Transaction that produced it, so the
// controller can complete the transaction once the command retires.
type queuedCmd struct {
	cmd *Command
	tx  *Transaction
}

// CommandQueue is the PIM-aware command queue variant of spec.md §3/§4.3:
// one FIFO per bank for normal DDR commands, one dedicated FIFO for PIM
// commands, refresh-blocking, and the reserved-row-for-PIM / slack
// bookkeeping spec.md §4.4 describes.
type CommandQueue struct {
	NumQueues int // per-bank FIFO depth budget (modeling knob, spec.md §3)

	bankOrder []bankKey
	banks     map[bankKey][]queuedCmd
	pim       []queuedCmd

	refreshBlocked map[bankKey]bool

	// Gwriting is the GWRITE-in-flight flag (spec.md §3). No code in this
	// package sets or reads it; PIM ops are not held back on its account.
	Gwriting bool

	// reservedRowForPIM[bankKey] is the row normal-command queues must
	// skip so they don't race an in-flight PIM op on that bank (spec.md
	// §4.4's P_HEADER-armed reservation). -1 means no reservation.
	reservedRowForPIM map[bankKey]int

	// RemainSlack is the PIM-slack budget spec.md §4.4/§9 describes, as
	// computed by Controller.updateSlack. It is stored only: NextNormal and
	// the controller's issue paths neither read nor deduct from it.
	RemainSlack int64
	SlackCosts  SlackCostTable

	rrCursor int
}

func NewCommandQueue(numQueues int, slack SlackCostTable) *CommandQueue {
	return &CommandQueue{
		NumQueues:         numQueues,
		banks:             make(map[bankKey][]queuedCmd),
		refreshBlocked:    make(map[bankKey]bool),
		reservedRowForPIM: make(map[bankKey]int),
		SlackCosts:        slack,
	}
}

func (q *CommandQueue) keyFor(cmd *Command) bankKey {
	return bankKey{Rank: cmd.Fields.Rank, BankGroup: cmd.Fields.BankGroup, Bank: cmd.Fields.Bank}
}

// EnqueueNormal appends a normal DDR command (+originating transaction, if
// any) to its bank's FIFO, registering the bank in round-robin order the
// first time it's seen.
func (q *CommandQueue) EnqueueNormal(cmd *Command, tx *Transaction) {
	k := q.keyFor(cmd)
	if _, ok := q.banks[k]; !ok {
		q.bankOrder = append(q.bankOrder, k)
		q.reservedRowForPIM[k] = -1
	}
	q.banks[k] = append(q.banks[k], queuedCmd{cmd: cmd, tx: tx})
}

// EnqueuePIM appends to the dedicated PIM FIFO.
func (q *CommandQueue) EnqueuePIM(cmd *Command, tx *Transaction) {
	q.pim = append(q.pim, queuedCmd{cmd: cmd, tx: tx})
}

// PeekPIM returns the PIM queue's front entry without removing it.
func (q *CommandQueue) PeekPIM() (*Command, *Transaction, bool) {
	if len(q.pim) == 0 {
		return nil, nil, false
	}
	return q.pim[0].cmd, q.pim[0].tx, true
}

// PopPIM removes and returns the PIM queue's front entry.
func (q *CommandQueue) PopPIM() (*Command, *Transaction, bool) {
	c, t, ok := q.PeekPIM()
	if ok {
		q.pim = q.pim[1:]
	}
	return c, t, ok
}

// SetRefreshBlocked marks (or clears) a bank's normal queue as blocked for
// an in-flight refresh drain (spec.md §4.3/§4.4).
func (q *CommandQueue) SetRefreshBlocked(rank, bg, ba int, blocked bool) {
	q.refreshBlocked[bankKey{rank, bg, ba}] = blocked
}

// ReserveRowForPIM arms a row reservation (set when a P_HEADER is
// dequeued, spec.md §4.4) or clears it (row == -1).
func (q *CommandQueue) ReserveRowForPIM(rank, bg, ba, row int) {
	q.reservedRowForPIM[bankKey{rank, bg, ba}] = row
}

// NextNormal scans bank FIFOs in round-robin order starting after the
// last bank served, skipping refresh-blocked banks and any whose front
// command's row matches that bank's PIM reservation, and returns the
// first eligible front entry plus its bank key.
func (q *CommandQueue) NextNormal() (bankKey, *Command, *Transaction, bool) {
	n := len(q.bankOrder)
	for i := 0; i < n; i++ {
		idx := (q.rrCursor + i) % n
		k := q.bankOrder[idx]
		fifo := q.banks[k]
		if len(fifo) == 0 {
			continue
		}
		if q.refreshBlocked[k] {
			continue
		}
		front := fifo[0]
		if reserved, ok := q.reservedRowForPIM[k]; ok && reserved >= 0 && reserved == front.cmd.Fields.Row {
			continue
		}
		return k, front.cmd, front.tx, true
	}
	return bankKey{}, nil, nil, false
}

// PopNormal removes the front entry of bank k's FIFO and advances the
// round-robin cursor past it.
func (q *CommandQueue) PopNormal(k bankKey) (*Command, *Transaction, bool) {
	fifo := q.banks[k]
	if len(fifo) == 0 {
		return nil, nil, false
	}
	entry := fifo[0]
	q.banks[k] = fifo[1:]
	for i, bk := range q.bankOrder {
		if bk == k {
			q.rrCursor = (i + 1) % len(q.bankOrder)
			break
		}
	}
	return entry.cmd, entry.tx, true
}

// Empty reports whether every FIFO (normal and PIM) is drained.
func (q *CommandQueue) Empty() bool {
	if len(q.pim) != 0 {
		return false
	}
	for _, fifo := range q.banks {
		if len(fifo) != 0 {
			return false
		}
	}
	return true
}
