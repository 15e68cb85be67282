package queue

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestQueue(t *testing.T) (*Queue, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	return New(clk), clk
}

func TestAddPairsClosestWithinRange(t *testing.T) {
	q, _ := newTestQueue(t)

	if p := q.Add("a", 1000); p != nil {
		t.Fatalf("first add should queue, got pair %+v", p)
	}
	if p := q.Add("b", 1200); p != nil {
		t.Fatalf("b is 200 away from a freshly queued a (±100), got pair %+v", p)
	}
	// c at 1050 is within ±100 of a and within ±200 of nobody needed
	p := q.Add("c", 1050)
	if p == nil {
		t.Fatalf("expected immediate match for c")
	}
	ids := []string{p.Players[0].ID, p.Players[1].ID}
	if !(ids[0] == "a" && ids[1] == "c") {
		t.Fatalf("expected pair (a,c), got %v", ids)
	}
	if p.RoomID == "" {
		t.Fatalf("expected fresh room id")
	}
	if q.Len() != 1 {
		t.Fatalf("queue should still hold b, len=%d", q.Len())
	}
}

func TestAddPicksSmallestDiffCandidate(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Add("far", 1090)
	q.Add("near", 1010)
	p := q.Add("x", 1000)
	if p == nil {
		t.Fatalf("expected match")
	}
	if p.Players[0].ID != "near" {
		t.Fatalf("expected closest candidate near, got %s", p.Players[0].ID)
	}
}

func TestGapMustFitBothRanges(t *testing.T) {
	q, clk := newTestQueue(t)
	q.Add("old", 1000)
	// old has waited 35s: accepts ±500. A newcomer at 1300 accepts only ±100.
	clk.Advance(35 * time.Second)
	if p := q.Add("new", 1300); p != nil {
		t.Fatalf("gap 300 exceeds newcomer's ±100; got pair %+v", p)
	}
	if q.Len() != 2 {
		t.Fatalf("both should be waiting, len=%d", q.Len())
	}
}

func TestDuplicateEnqueueNoOp(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Add("a", 1000)
	if p := q.Add("a", 1000); p != nil {
		t.Fatalf("duplicate enqueue must be a no-op, got %+v", p)
	}
	if q.Len() != 1 {
		t.Fatalf("len=%d, want 1", q.Len())
	}
}

func TestRemoveCancelsWaiting(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Add("a", 1000)
	if !q.Remove("a") {
		t.Fatalf("expected Remove to succeed")
	}
	if q.Remove("a") {
		t.Fatalf("second Remove should report missing")
	}
	// a can re-enqueue after cancel
	if p := q.Add("a", 1000); p != nil {
		t.Fatalf("re-enqueue should queue, got %+v", p)
	}
}

func TestSweepPairsAfterRangesWiden(t *testing.T) {
	q, clk := newTestQueue(t)
	q.Add("a", 1000)
	q.Add("b", 1150) // 150 apart: no match at ±100

	if pairs := q.Sweep(); pairs != nil {
		t.Fatalf("no pair expected before ranges widen, got %v", pairs)
	}

	clk.Advance(11 * time.Second) // both now accept ±200
	pairs := q.Sweep()
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be drained, len=%d", q.Len())
	}
}

func TestSweepGreedyQueueOrder(t *testing.T) {
	q, clk := newTestQueue(t)
	q.Add("a", 1000)
	q.Add("b", 1140)
	q.Add("c", 1160)
	q.Add("d", 1320)
	clk.Advance(31 * time.Second) // everyone ±500

	pairs := q.Sweep()
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d: %v", len(pairs), pairs)
	}
	// a pairs with its closest (b); remaining c pairs with d
	if pairs[0].Players[0].ID != "a" || pairs[0].Players[1].ID != "b" {
		t.Fatalf("first pair = %v, want (a,b)", pairs[0].Players)
	}
	if pairs[1].Players[0].ID != "c" || pairs[1].Players[1].ID != "d" {
		t.Fatalf("second pair = %v, want (c,d)", pairs[1].Players)
	}
}
