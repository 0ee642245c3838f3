package dram

import "fmt"

// BufferState is the open/closed/self-refresh state of one row buffer.
type BufferState int

const (
	Closed BufferState = iota
	Open
	Sref
)

func (s BufferState) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case Sref:
		return "SREF"
	default:
		return "UNKNOWN"
	}
}

// BufferMode selects which bank-state policy spec.md §4.1 applies.
type BufferMode int

const (
	// DualBuffer is NeuPIMS mode: independent normal and PIM row buffers.
	DualBuffer BufferMode = iota
	// SingleBuffer is Newton mode: one shared buffer plus a pim_lock.
	SingleBuffer
)

// FatalError marks an invariant violation (spec.md §7 taxonomy 2): a bug
// in the upstream scheduler, never recoverable. Callers must log the
// offending state and abort rather than attempt to continue.
type FatalError struct {
	msg string
}

func (e *FatalError) Error() string { return e.msg }

func fatalf(format string, args ...interface{}) error {
	return &FatalError{msg: fmt.Sprintf(format, args...)}
}

// BankState is the per-bank finite-state machine described in spec.md §3.
// It holds the open-row bookkeeping for the normal buffer and (in dual
// mode) the independent PIM buffer, plus the per-command earliest-issue-
// cycle floor vector used by ready-command timing checks.
type BankState struct {
	Mode BufferMode

	Normal       BufferState
	NormalOpenRow int

	// PIM sub-state. Meaningful only when Mode == DualBuffer; in
	// SingleBuffer mode the PIM commands consult Normal directly.
	PIM       BufferState
	PIMOpenRow int

	// PIMLock forbids RD/WR in SingleBuffer mode while a PIM op sequence
	// (G_ACT..READRES) is in flight. Released on READRES.
	PIMLock bool

	// timing[tag] is the earliest cycle at which `tag` may next be issued
	// on this bank (spec.md §4.2's "cmd_timing_[T] = max(cmd_timing_[T],
	// floor)" propagation target).
	timing [numCommandTags]int64
}

// NewBankState creates a BankState with both buffers closed.
func NewBankState(mode BufferMode) *BankState {
	return &BankState{Mode: mode, Normal: Closed, PIM: Closed}
}

// UpdateTiming raises the earliest-issue floor for tag to at least floor.
// Never lowers it (spec.md §4.2).
func (b *BankState) UpdateTiming(tag CommandTag, floor int64) {
	if floor > b.timing[tag] {
		b.timing[tag] = floor
	}
}

// TimingFloor returns the current earliest-issue cycle for tag.
func (b *BankState) TimingFloor(tag CommandTag) int64 {
	return b.timing[tag]
}

// ReadyCommand implements spec.md §4.1's ready_command(cmd, clk) -> Command
// contract. It returns:
//   - (cmd, true, nil) if cmd is issuable now (state permits it AND
//     clk >= cmd_timing_[cmd.Tag]);
//   - (prereq, false, nil) if a different command must be issued first to
//     bring the bank into a state where cmd is legal (e.g. an ACTIVATE
//     before a READ on a CLOSED bank);
//   - (nil, false, nil) if the state already permits cmd but its timing
//     floor has not elapsed yet, or if cmd is a RD/WR on a single-buffer
//     bank whose pim_lock is held ("not yet" — spec.md §7 taxonomy 3,
//     recoverable by waiting);
//   - (nil, false, err) for a state/command combination that should never
//     occur (spec.md §7 taxonomy 2, fatal).
func (b *BankState) ReadyCommand(cmd Command, clk int64) (*Command, bool, error) {
	if b.Mode == SingleBuffer && b.PIMLock && cmd.Tag.IsReadWrite() {
		return nil, false, nil
	}
	prereq, err := b.prerequisite(cmd)
	if err != nil {
		return nil, false, err
	}
	if prereq != nil {
		return prereq, false, nil
	}
	if clk < b.timing[cmd.Tag] {
		return nil, false, nil
	}
	return &cmd, true, nil
}

// prerequisite returns a command that must be issued before cmd given the
// current bank state, or nil if cmd's state preconditions are already
// satisfied. Only state is checked here; timing is checked by the caller.
func (b *BankState) prerequisite(cmd Command) (*Command, error) {
	switch cmd.Tag {
	case READ, READPrecharge, WRITE, WRITEPrecharge, GWRITE, PWRITE:
		return b.normalRWPrereq(cmd)
	case ACTIVATE:
		if b.Normal == Open {
			return nil, fatalf("ACTIVATE issued while normal buffer already OPEN (row %d)", b.NormalOpenRow)
		}
		if b.Mode == DualBuffer && b.PIM == Open && b.PIMOpenRow == cmd.Fields.Row {
			return &Command{Tag: PIMPrecharge, Address: cmd.Address, Fields: cmd.Fields}, nil
		}
		return nil, nil
	case PRECHARGE:
		if b.Normal == Closed {
			return nil, fatalf("PRECHARGE issued while normal buffer already CLOSED")
		}
		return nil, nil
	case REFRESH, REFRESHBank:
		if b.Normal != Closed {
			return &Command{Tag: PRECHARGE, Address: cmd.Address, Fields: cmd.Fields}, nil
		}
		if b.Mode == DualBuffer && b.PIM != Closed {
			return &Command{Tag: PIMPrecharge, Address: cmd.Address, Fields: cmd.Fields}, nil
		}
		return nil, nil
	case SREFEnter:
		if b.Normal != Closed {
			return nil, fatalf("SREF_ENTER issued while normal buffer not CLOSED")
		}
		return nil, nil
	case SREFExit:
		if b.Normal != Sref {
			return nil, fatalf("SREF_EXIT issued while normal buffer not in SREF")
		}
		return nil, nil
	case GACT, COMP, READRES, COMPSReadres:
		return b.pimPrereq(cmd)
	case PIMPrecharge:
		state := b.pimBufferState()
		if state == Closed {
			return nil, fatalf("PIM_PRECHARGE issued while PIM buffer already CLOSED")
		}
		return nil, nil
	case PHeader:
		// Pure queue-level arming command; never touches bank state.
		return nil, nil
	default:
		return nil, fatalf("unhandled command tag %v in BankState.prerequisite", cmd.Tag)
	}
}

func (b *BankState) normalRWPrereq(cmd Command) (*Command, error) {
	switch b.Normal {
	case Closed:
		if b.Mode == DualBuffer && b.PIM == Open && b.PIMOpenRow == cmd.Fields.Row {
			return &Command{Tag: PIMPrecharge, Address: cmd.Address, Fields: cmd.Fields}, nil
		}
		return &Command{Tag: ACTIVATE, Address: cmd.Address, Fields: cmd.Fields}, nil
	case Open:
		if b.NormalOpenRow != cmd.Fields.Row {
			return &Command{Tag: PRECHARGE, Address: cmd.Address, Fields: cmd.Fields}, nil
		}
		if b.Mode == SingleBuffer && b.PIMLock {
			// ReadyCommand answers a locked READ/WRITE with "not yet"
			// before reaching here, so only GWRITE/PWRITE arrive at this
			// branch while PIMLock is set.
			return nil, fatalf("RD/WR attempted on bank while pim_lock held (single-buffer mode); upstream scheduler must hold RD/WR out of the queue while locked")
		}
		return nil, nil
	case Sref:
		return &Command{Tag: SREFExit, Address: cmd.Address, Fields: cmd.Fields}, nil
	}
	return nil, fatalf("unreachable normal buffer state %v", b.Normal)
}

func (b *BankState) pimBufferState() BufferState {
	if b.Mode == SingleBuffer {
		return b.Normal
	}
	return b.PIM
}

func (b *BankState) pimOpenRow() int {
	if b.Mode == SingleBuffer {
		return b.NormalOpenRow
	}
	return b.PIMOpenRow
}

func (b *BankState) pimPrereq(cmd Command) (*Command, error) {
	state := b.pimBufferState()
	switch state {
	case Closed:
		return &Command{Tag: GACT, Address: cmd.Address, Fields: cmd.Fields}, nil
	case Open:
		if b.pimOpenRow() != cmd.Fields.Row {
			return &Command{Tag: PIMPrecharge, Address: cmd.Address, Fields: cmd.Fields}, nil
		}
		return nil, nil
	case Sref:
		return nil, fatalf("PIM command issued while buffer in SREF")
	}
	return nil, fatalf("unreachable PIM buffer state %v", state)
}

// UpdateState applies cmd's effect on the bank's row-buffer/lock state.
// Call only after ReadyCommand has confirmed cmd is the one actually
// issued this cycle.
func (b *BankState) UpdateState(cmd Command) error {
	switch cmd.Tag {
	case ACTIVATE:
		if b.Normal != Closed {
			return fatalf("ACTIVATE update_state with normal buffer not CLOSED")
		}
		b.Normal = Open
		b.NormalOpenRow = cmd.Fields.Row
	case PRECHARGE:
		b.Normal = Closed
	case READPrecharge, WRITEPrecharge:
		b.Normal = Closed
	case READ, WRITE, GWRITE, PWRITE:
		// row stays open
	case REFRESH, REFRESHBank:
		// normal buffer already CLOSED per prerequisite; stays CLOSED
	case SREFEnter:
		b.Normal = Sref
	case SREFExit:
		b.Normal = Closed
	case GACT:
		if b.Mode == SingleBuffer {
			if b.Normal != Closed {
				return fatalf("G_ACT update_state with shared buffer not CLOSED (single-buffer mode)")
			}
			b.Normal = Open
			b.NormalOpenRow = cmd.Fields.Row
			b.PIMLock = true
		} else {
			if b.PIM != Closed {
				return fatalf("G_ACT update_state with PIM buffer not CLOSED")
			}
			b.PIM = Open
			b.PIMOpenRow = cmd.Fields.Row
		}
	case COMP, COMPSReadres:
		// row stays open; single-buffer pim_lock remains held
	case READRES:
		if b.Mode == SingleBuffer {
			b.PIMLock = false
		}
	case PIMPrecharge:
		if b.Mode == SingleBuffer {
			b.Normal = Closed
			b.PIMLock = false
		} else {
			b.PIM = Closed
		}
	case PHeader:
		// no state change
	default:
		return fatalf("unhandled command tag %v in BankState.UpdateState", cmd.Tag)
	}
	return nil
}
