// Package core implements the NPU core of spec.md §4.8: double-buffered
// scratchpads, systolic and vector compute pipelines, and the five-phase
// per-tick execution loop that drains load/store/execute instruction
// FIFOs into memory accesses and compute dispatches.
package core

import "github.com/neupims-sim/neupims-sim/tile"

// SRAMKey identifies one scratchpad line (spec.md §3: "keyed by
// (buffer_id, dest_addr)").
type SRAMKey struct {
	BufferID int
	DestAddr uint64
}

// SRAMEntry is one scratchpad line's bookkeeping (spec.md §3).
type SRAMEntry struct {
	Size          int64
	RemainReqCount int
	Valid         bool
	Timestamp     int64
}

// Scratchpad is one half of a double-buffered SRAM region (activation or
// accumulator). Each physical scratchpad owns two Scratchpad halves; the
// active half toggles per spec.md §4.8's double-buffering rule.
type Scratchpad struct {
	entries map[SRAMKey]*SRAMEntry
}

func newScratchpad() *Scratchpad {
	return &Scratchpad{entries: make(map[SRAMKey]*SRAMEntry)}
}

// Reserve creates (or resets) a line for an upcoming fill, marking it
// invalid with remain_req_count loads outstanding (spec.md §4.8 phase 3:
// "reserve SRAM").
func (s *Scratchpad) Reserve(k SRAMKey, size int64, remainReq int, now int64) {
	s.entries[k] = &SRAMEntry{Size: size, RemainReqCount: remainReq, Valid: remainReq == 0, Timestamp: now}
}

// CountUp decrements a reserved line's outstanding request count, marking
// it valid once it reaches zero (spec.md §8: "once remain_req_count(E) ==
// 0, valid(E) == true until the next count_up or flush").
func (s *Scratchpad) CountUp(k SRAMKey) {
	e, ok := s.entries[k]
	if !ok {
		return
	}
	if e.RemainReqCount > 0 {
		e.RemainReqCount--
	}
	if e.RemainReqCount == 0 {
		e.Valid = true
	}
}

// Get returns the entry at k, or nil if no line is reserved there.
func (s *Scratchpad) Get(k SRAMKey) *SRAMEntry {
	return s.entries[k]
}

// Hit reports whether k is reserved and valid (all its loads landed).
func (s *Scratchpad) Hit(k SRAMKey) bool {
	e := s.entries[k]
	return e != nil && e.Valid
}

// Flush clears every line in this half, releasing its entries without
// leaking: a subsequent Reserve into the same key starts fresh (spec.md
// §8's "double-buffer flush followed by a re-reserve into the same key
// succeeds without leaking entries").
func (s *Scratchpad) Flush() {
	s.entries = make(map[SRAMKey]*SRAMEntry)
}

// DoubleBuffer owns the two halves of one scratchpad (activation or
// accumulator) plus which half is currently active (spec.md §3: "Double-
// buffered: each scratchpad has two halves, flushed when the active ID
// toggles").
type DoubleBuffer struct {
	halves [2]*Scratchpad
	active int
	// occupant[i] is the tile handle currently issued into half i. Used
	// by CanIssue to check the double-buffering precondition (spec.md
	// §4.8/§9); occupied[i] is false when the half is free.
	occupant [2]tile.TileHandle
	occupied [2]bool
}

// NewDoubleBuffer creates a fresh double-buffered scratchpad with both
// halves empty and unoccupied.
func NewDoubleBuffer() *DoubleBuffer {
	db := &DoubleBuffer{}
	db.halves[0] = newScratchpad()
	db.halves[1] = newScratchpad()
	return db
}

// Active returns the currently active half's index and Scratchpad.
func (db *DoubleBuffer) Active() (int, *Scratchpad) {
	return db.active, db.halves[db.active]
}

// Half returns scratchpad half i (0 or 1).
func (db *DoubleBuffer) Half(i int) *Scratchpad {
	return db.halves[i]
}

// Toggle flushes the alternate half and switches to it, becoming the new
// active half for the next tile (spec.md §3).
func (db *DoubleBuffer) Toggle() int {
	next := 1 - db.active
	db.halves[next].Flush()
	db.occupied[next] = false
	db.active = next
	return next
}

// SetOccupant records which tile currently owns half i.
func (db *DoubleBuffer) SetOccupant(i int, h tile.TileHandle) {
	db.occupant[i] = h
	db.occupied[i] = true
}

// Occupant returns the tile handle occupying half i and whether the half
// is currently occupied.
func (db *DoubleBuffer) Occupant(i int) (tile.TileHandle, bool) {
	return db.occupant[i], db.occupied[i]
}

// ClearOccupant marks half i as free.
func (db *DoubleBuffer) ClearOccupant(i int) {
	db.occupied[i] = false
}
