package dram

import (
	"testing"

	"github.com/neupims-sim/neupims-sim/addr"
)

func cmdAt(rank, bg, bank, row int, tag CommandTag) *Command {
	return &Command{Tag: tag, Fields: addr.Fields{Rank: rank, BankGroup: bg, Bank: bank, Row: row}}
}

func TestCommandQueue_EnqueueNormal_NextNormal_PopNormal_FIFOPerBank(t *testing.T) {
	// GIVEN a queue with two commands enqueued to the same bank
	q := NewCommandQueue(8, SlackCostTable{})
	c1 := cmdAt(0, 0, 0, 1, ACTIVATE)
	c2 := cmdAt(0, 0, 0, 2, ACTIVATE)
	q.EnqueueNormal(c1, nil)
	q.EnqueueNormal(c2, nil)

	// WHEN NextNormal is peeked then popped
	_, front, _, ok := q.NextNormal()
	if !ok || front != c1 {
		t.Fatalf("NextNormal: got (%v, %v), want c1", front, ok)
	}
	k := bankKey{Rank: 0, BankGroup: 0, Bank: 0}
	popped, _, _ := q.PopNormal(k)
	if popped != c1 {
		t.Errorf("PopNormal: got %v, want c1", popped)
	}

	// THEN the second command is now front
	_, front2, _, _ := q.NextNormal()
	if front2 != c2 {
		t.Errorf("NextNormal after pop: got %v, want c2", front2)
	}
}

func TestCommandQueue_NextNormal_SkipsRefreshBlockedBank(t *testing.T) {
	// GIVEN two banks, each with one queued command, and the first blocked
	// for refresh
	q := NewCommandQueue(8, SlackCostTable{})
	c1 := cmdAt(0, 0, 0, 1, ACTIVATE)
	c2 := cmdAt(0, 0, 1, 1, ACTIVATE)
	q.EnqueueNormal(c1, nil)
	q.EnqueueNormal(c2, nil)
	q.SetRefreshBlocked(0, 0, 0, true)

	// WHEN NextNormal scans
	_, front, _, ok := q.NextNormal()

	// THEN it skips the blocked bank and returns the other bank's command
	if !ok || front != c2 {
		t.Errorf("NextNormal: got (%v, %v), want c2 (bank 0 blocked)", front, ok)
	}
}

func TestCommandQueue_NextNormal_SkipsRowReservedForPIM(t *testing.T) {
	// GIVEN a bank whose front command's row matches an armed PIM reservation
	q := NewCommandQueue(8, SlackCostTable{})
	c1 := cmdAt(0, 0, 0, 5, ACTIVATE)
	q.EnqueueNormal(c1, nil)
	q.ReserveRowForPIM(0, 0, 0, 5)

	// WHEN NextNormal scans
	_, _, _, ok := q.NextNormal()

	// THEN no eligible command is found (the only bank's row is reserved)
	if ok {
		t.Error("NextNormal: got ok=true, want false (row reserved for PIM)")
	}
}

func TestCommandQueue_PIMQueue_PeekThenPop(t *testing.T) {
	// GIVEN a PIM command enqueued
	q := NewCommandQueue(8, SlackCostTable{})
	c := cmdAt(0, 0, 0, 1, PHeader)
	q.EnqueuePIM(c, nil)

	// WHEN Peek is called
	peeked, _, ok := q.PeekPIM()
	if !ok || peeked != c {
		t.Fatalf("PeekPIM: got (%v, %v), want c", peeked, ok)
	}

	// THEN a subsequent Pop removes it, and the queue is now empty
	popped, _, ok := q.PopPIM()
	if !ok || popped != c {
		t.Errorf("PopPIM: got (%v, %v), want c", popped, ok)
	}
	if !q.Empty() {
		t.Error("Empty(): got false, want true after draining the only entry")
	}
}

func TestCommandQueue_Empty_FalseWithOutstandingNormalCommand(t *testing.T) {
	// GIVEN a queue with one normal command still pending
	q := NewCommandQueue(8, SlackCostTable{})
	q.EnqueueNormal(cmdAt(0, 0, 0, 1, ACTIVATE), nil)

	// WHEN Empty is checked
	// THEN it reports false
	if q.Empty() {
		t.Error("Empty(): got true, want false")
	}
}
