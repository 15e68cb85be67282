package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// QueuedPlayer is a player waiting to be matched. It lives only inside
// the queue and is removed on match or cancel.
type QueuedPlayer struct {
	ID         string
	Rating     int
	EnqueuedAt time.Time
}

// Pair describes a freshly matched pair of players and the room id the
// match should be created under.
type Pair struct {
	RoomID  string
	Players [2]QueuedPlayer
}

// Queue pairs waiting players by rating proximity. The acceptable rating
// gap widens the longer a player waits:
//
//	0–10s  ±100
//	10–30s ±200
//	30s+   ±500
//
// Two players pair only when the gap fits BOTH players' current ranges.
// "No match yet" is the steady state, not an error. The queue is pure
// in-memory state; an external loop drives Sweep periodically.
type Queue struct {
	clock clockwork.Clock

	mu      sync.Mutex
	waiting []QueuedPlayer
	queued  map[string]struct{}
}

func New(clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{clock: clock, queued: make(map[string]struct{})}
}

// Add enqueues a player, or pairs them immediately when a compatible
// candidate is already waiting. The candidate with the smallest rating
// difference wins. Duplicate enqueue is a no-op. Returns nil when the
// player was queued without a match.
func (q *Queue) Add(playerID string, rating int) *Pair {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.queued[playerID]; dup {
		return nil
	}
	now := q.clock.Now()
	newcomer := QueuedPlayer{ID: playerID, Rating: rating, EnqueuedAt: now}

	best := -1
	bestDiff := 0
	for i, w := range q.waiting {
		diff := absDiff(rating, w.Rating)
		if !compatible(newcomer, w, now) {
			continue
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best == -1 {
		q.waiting = append(q.waiting, newcomer)
		q.queued[playerID] = struct{}{}
		return nil
	}

	opponent := q.waiting[best]
	q.removeAtLocked(best)
	return &Pair{RoomID: uuid.NewString(), Players: [2]QueuedPlayer{opponent, newcomer}}
}

// Remove cancels a waiting player. Returns false if they were not queued.
func (q *Queue) Remove(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[playerID]; !ok {
		return false
	}
	for i, w := range q.waiting {
		if w.ID == playerID {
			q.removeAtLocked(i)
			return true
		}
	}
	return false
}

// Len reports how many players are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Sweep re-scans all waiters pairwise and greedily pairs each
// unprocessed waiter with its closest unprocessed compatible candidate
// in queue order. This catches pairs whose allowed ranges only grew wide
// enough while both sat in the queue, with no new enqueue event to
// trigger the match.
func (q *Queue) Sweep() []Pair {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()

	var pairs []Pair
	used := make(map[int]bool, len(q.waiting))
	for i := 0; i < len(q.waiting); i++ {
		if used[i] {
			continue
		}
		best := -1
		bestDiff := 0
		for j := i + 1; j < len(q.waiting); j++ {
			if used[j] {
				continue
			}
			if !compatible(q.waiting[i], q.waiting[j], now) {
				continue
			}
			diff := absDiff(q.waiting[i].Rating, q.waiting[j].Rating)
			if best == -1 || diff < bestDiff {
				best, bestDiff = j, diff
			}
		}
		if best == -1 {
			continue
		}
		used[i], used[best] = true, true
		pairs = append(pairs, Pair{
			RoomID:  uuid.NewString(),
			Players: [2]QueuedPlayer{q.waiting[i], q.waiting[best]},
		})
	}
	if len(pairs) == 0 {
		return nil
	}

	remaining := q.waiting[:0]
	for i, w := range q.waiting {
		if used[i] {
			delete(q.queued, w.ID)
			continue
		}
		remaining = append(remaining, w)
	}
	q.waiting = remaining
	return pairs
}

// allowedGap is the rating distance a player currently accepts, given
// how long they have been waiting.
func allowedGap(waited time.Duration) int {
	switch {
	case waited < 10*time.Second:
		return 100
	case waited < 30*time.Second:
		return 200
	default:
		return 500
	}
}

func compatible(a, b QueuedPlayer, now time.Time) bool {
	diff := absDiff(a.Rating, b.Rating)
	return diff <= allowedGap(now.Sub(a.EnqueuedAt)) && diff <= allowedGap(now.Sub(b.EnqueuedAt))
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func (q *Queue) removeAtLocked(i int) {
	delete(q.queued, q.waiting[i].ID)
	q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
}
