package timer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock, chan Event) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	events := make(chan Event, 64)
	reg := NewRegistry(clk, func(ev Event) { events <- ev })
	return reg, clk, events
}

func recvEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for timer event")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, ch chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected timer event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReadyFiresOnce(t *testing.T) {
	reg, clk, events := newTestRegistry(t)
	reg.StartReady("room1", 5*time.Second)

	clk.Advance(4 * time.Second)
	expectNoEvent(t, events)

	clk.Advance(time.Second)
	ev := recvEvent(t, events)
	if ev.RoomID != "room1" || ev.Kind != KindReady {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if got := reg.Pending("room1"); got != 0 {
		t.Fatalf("pending after fire = %d, want 0", got)
	}
	clk.Advance(time.Minute)
	expectNoEvent(t, events)
}

func TestStartReplacesSameKind(t *testing.T) {
	reg, clk, events := newTestRegistry(t)
	reg.StartQuestion("room1", 30*time.Second)
	reg.StartQuestion("room1", time.Second)

	clk.Advance(time.Second)
	ev := recvEvent(t, events)
	if ev.Kind != KindQuestion {
		t.Fatalf("unexpected event: %+v", ev)
	}
	// the replaced 30s timer must never fire
	clk.Advance(time.Minute)
	expectNoEvent(t, events)
}

func TestTickCountsDownAndSelfCancels(t *testing.T) {
	reg, clk, events := newTestRegistry(t)
	reg.StartTick("room1", 3)
	clk.BlockUntil(1)

	for want := 2; want >= 0; want-- {
		clk.Advance(time.Second)
		ev := recvEvent(t, events)
		if ev.Kind != KindTick || ev.Remaining != want {
			t.Fatalf("tick event = %+v, want remaining %d", ev, want)
		}
	}
	clk.Advance(10 * time.Second)
	expectNoEvent(t, events)
}

func TestClearAllIdempotent(t *testing.T) {
	reg, clk, events := newTestRegistry(t)
	reg.StartReady("room1", time.Second)
	reg.StartQuestion("room1", time.Second)
	reg.StartReview("room1", time.Second)
	reg.StartTick("room1", 10)
	clk.BlockUntil(1)

	reg.ClearAll("room1")
	reg.ClearAll("room1")
	reg.ClearAll("never-existed")

	if got := reg.Pending("room1"); got != 0 {
		t.Fatalf("pending after clear = %d, want 0", got)
	}
	clk.Advance(time.Minute)
	expectNoEvent(t, events)
}

func TestClearSingleKind(t *testing.T) {
	reg, clk, events := newTestRegistry(t)
	reg.StartReady("room1", time.Second)
	reg.StartReview("room1", 2*time.Second)
	reg.Clear("room1", KindReady)

	clk.Advance(2 * time.Second)
	ev := recvEvent(t, events)
	if ev.Kind != KindReview {
		t.Fatalf("expected review fire, got %+v", ev)
	}
	expectNoEvent(t, events)
}
