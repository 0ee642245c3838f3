package dram

// TransactionType enumerates the request kinds a core (through the
// interconnect) issues to a channel controller (spec.md §3).
type TransactionType int

const (
	TxRead TransactionType = iota
	TxWrite
	TxGWrite
	TxComp
	TxReadres
	TxPHeader
	TxCompsReadres
	TxPWrite
)

func (t TransactionType) String() string {
	switch t {
	case TxRead:
		return "READ"
	case TxWrite:
		return "WRITE"
	case TxGWrite:
		return "GWRITE"
	case TxComp:
		return "COMP"
	case TxReadres:
		return "READRES"
	case TxPHeader:
		return "P_HEADER"
	case TxCompsReadres:
		return "COMPS_READRES"
	case TxPWrite:
		return "PWRITE"
	default:
		return "UNKNOWN"
	}
}

// IsPIM reports whether this transaction routes to the PIM queue rather
// than the read/write queues (spec.md §4.3).
func (t TransactionType) IsPIM() bool {
	switch t {
	case TxGWrite, TxComp, TxReadres, TxPHeader, TxCompsReadres, TxPWrite:
		return true
	default:
		return false
	}
}

// Transaction is issued by a core to a channel controller.
type Transaction struct {
	HexAddr      uint64
	ReqType      TransactionType
	AddedCycle   int64
	CompleteCycle int64

	// Owner correlates the transaction back to the producing SRAM reserve
	// so the controller can fill the response in place; opaque to dram.
	Owner interface{}

	// CoreID identifies the issuing core so the interconnect can route the
	// completed response back without a side-table (spec.md §4.9).
	CoreID int
}
