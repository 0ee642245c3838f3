// Package dram implements the PIM-aware DRAM controller and command
// scheduler (spec.md §4.1-§4.4): a dual-buffer bank state machine that
// interleaves normal DDR commands with PIM commands subject to per-bank,
// per-bankgroup, per-rank, and per-channel timing constraints and refresh
// deadlines.
package dram

import "github.com/neupims-sim/neupims-sim/addr"

// CommandTag enumerates every command the controller can issue to a DRAM
// device, normal DDR plus the PIM extensions (spec.md §3).
type CommandTag int

const (
	READ CommandTag = iota
	READPrecharge
	WRITE
	WRITEPrecharge
	ACTIVATE
	PRECHARGE
	REFRESH
	REFRESHBank
	SREFEnter
	SREFExit
	GWRITE
	GACT
	COMP
	READRES
	PIMPrecharge
	PWRITE
	PHeader
	COMPSReadres
)

func (t CommandTag) String() string {
	switch t {
	case READ:
		return "READ"
	case READPrecharge:
		return "READ_PRECHARGE"
	case WRITE:
		return "WRITE"
	case WRITEPrecharge:
		return "WRITE_PRECHARGE"
	case ACTIVATE:
		return "ACTIVATE"
	case PRECHARGE:
		return "PRECHARGE"
	case REFRESH:
		return "REFRESH"
	case REFRESHBank:
		return "REFRESH_BANK"
	case SREFEnter:
		return "SREF_ENTER"
	case SREFExit:
		return "SREF_EXIT"
	case GWRITE:
		return "GWRITE"
	case GACT:
		return "G_ACT"
	case COMP:
		return "COMP"
	case READRES:
		return "READRES"
	case PIMPrecharge:
		return "PIM_PRECHARGE"
	case PWRITE:
		return "PWRITE"
	case PHeader:
		return "P_HEADER"
	case COMPSReadres:
		return "COMPS_READRES"
	default:
		return "UNKNOWN"
	}
}

// IsPIM reports whether the command belongs to the PIM buffer/lock state
// machine rather than the normal DDR one (spec.md §4.1).
func (t CommandTag) IsPIM() bool {
	switch t {
	case GWRITE, GACT, COMP, READRES, PIMPrecharge, PWRITE, PHeader, COMPSReadres:
		return true
	default:
		return false
	}
}

// IsReadWrite reports whether the command is a data-bearing RD/WR transfer
// (including its auto-precharge variants). spec.md §4.4's HBM dual-cmd rule
// pairs at most one of these per cycle.
func (t CommandTag) IsReadWrite() bool {
	switch t {
	case READ, READPrecharge, WRITE, WRITEPrecharge:
		return true
	default:
		return false
	}
}

// numCommandTags bounds the per-bank timing-floor vector's size.
const numCommandTags = int(COMPSReadres) + 1

// Payload carries the PIM batch-size metadata spec.md §3 attaches to a
// Command: (num_comps, num_readres, is_last_comps, for_gwrite).
type Payload struct {
	NumComps    int
	NumReadres  int
	IsLastComps bool
	ForGWrite   bool
}

// Command is issued by the controller to a DRAM device.
type Command struct {
	Tag     CommandTag
	Address uint64
	Fields  addr.Fields
	Payload Payload
}
