package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Kind identifies one of the four per-room timers.
type Kind string

const (
	KindReady    Kind = "ready"
	KindQuestion Kind = "question"
	KindTick     Kind = "tick"
	KindReview   Kind = "review"
)

// Event is a timer fire. Timers never mutate shared state themselves;
// fires are delivered as typed events into the room's sequential
// processing path, same as transport events.
type Event struct {
	RoomID    string
	Kind      Kind
	Remaining int // seconds left; tick events only
}

// Sink receives timer events. It must not block for long: one-shot fires
// run on the clock's callback goroutine.
type Sink func(Event)

// Registry owns up to four independent cancelable timers per room: a
// one-shot ready countdown, a one-shot question hard timeout, a
// repeating 1s tick and a one-shot review timer. Starting a timer
// replaces any prior timer of the same kind for that room.
type Registry struct {
	clock clockwork.Clock
	sink  Sink

	mu    sync.Mutex
	gen   uint64
	rooms map[string]*roomTimers
}

type roomTimers struct {
	oneShots map[Kind]*oneShot
	tickGen  uint64
	tickStop chan struct{}
}

type oneShot struct {
	gen   uint64
	timer clockwork.Timer
}

func NewRegistry(clock clockwork.Clock, sink Sink) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock: clock,
		sink:  sink,
		rooms: make(map[string]*roomTimers),
	}
}

// StartReady arms the one-shot ready countdown for the room.
func (r *Registry) StartReady(roomID string, d time.Duration) {
	r.startOneShot(roomID, KindReady, d)
}

// StartQuestion arms the one-shot hard timeout for the question phase.
func (r *Registry) StartQuestion(roomID string, d time.Duration) {
	r.startOneShot(roomID, KindQuestion, d)
}

// StartReview arms the one-shot review timer.
func (r *Registry) StartReview(roomID string, d time.Duration) {
	r.startOneShot(roomID, KindReview, d)
}

func (r *Registry) startOneShot(roomID string, kind Kind, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := r.roomLocked(roomID)
	if prev, ok := rt.oneShots[kind]; ok {
		prev.timer.Stop()
	}
	r.gen++
	gen := r.gen
	os := &oneShot{gen: gen}
	os.timer = r.clock.AfterFunc(d, func() {
		r.reapOneShot(roomID, kind, gen)
		r.sink(Event{RoomID: roomID, Kind: kind})
	})
	rt.oneShots[kind] = os
}

// StartTick arms the repeating 1-second tick, counting down from
// seconds. It emits the remaining seconds after each tick and
// self-cancels when the count reaches zero.
func (r *Registry) StartTick(roomID string, seconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := r.roomLocked(roomID)
	if rt.tickStop != nil {
		close(rt.tickStop)
	}
	r.gen++
	gen := r.gen
	stop := make(chan struct{})
	rt.tickGen = gen
	rt.tickStop = stop

	go func() {
		ticker := r.clock.NewTicker(time.Second)
		defer ticker.Stop()
		remaining := seconds
		for remaining > 0 {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				remaining--
				r.sink(Event{RoomID: roomID, Kind: KindTick, Remaining: remaining})
			}
		}
		r.reapTick(roomID, gen)
	}()
}

// Clear cancels one timer kind for the room. Unknown rooms and unarmed
// kinds are no-ops.
func (r *Registry) Clear(roomID string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if kind == KindTick {
		if rt.tickStop != nil {
			close(rt.tickStop)
			rt.tickStop = nil
		}
		return
	}
	if os, ok := rt.oneShots[kind]; ok {
		os.timer.Stop()
		delete(rt.oneShots, kind)
	}
}

// ClearAll cancels every timer for the room. Mandatory on disconnect,
// error and finish; idempotent on a room with no timers.
func (r *Registry) ClearAll(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, os := range rt.oneShots {
		os.timer.Stop()
	}
	if rt.tickStop != nil {
		close(rt.tickStop)
	}
	delete(r.rooms, roomID)
}

// Pending reports how many timers are currently armed for the room.
func (r *Registry) Pending(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	n := len(rt.oneShots)
	if rt.tickStop != nil {
		n++
	}
	return n
}

func (r *Registry) roomLocked(roomID string) *roomTimers {
	rt, ok := r.rooms[roomID]
	if !ok {
		rt = &roomTimers{oneShots: make(map[Kind]*oneShot, 3)}
		r.rooms[roomID] = rt
	}
	return rt
}

// reapOneShot drops the bookkeeping entry for a fired timer, unless it
// was already replaced by a newer start of the same kind.
func (r *Registry) reapOneShot(roomID string, kind Kind, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if os, ok := rt.oneShots[kind]; ok && os.gen == gen {
		delete(rt.oneShots, kind)
	}
}

func (r *Registry) reapTick(roomID string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if rt.tickGen == gen && rt.tickStop != nil {
		close(rt.tickStop)
		rt.tickStop = nil
	}
}
