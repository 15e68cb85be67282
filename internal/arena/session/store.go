package session

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/hojin-dev/quiz-arena/internal/arena/question"
)

// Store is the authoritative in-memory registry of active matches, keyed
// by room id. It performs no I/O; all methods are O(1) or O(players)
// except RoomByPlayer, which is a deliberate linear scan over live rooms.
//
// The store is passed explicitly to every consumer. It guards its map
// with a mutex because gateway lookups and room runners touch it from
// different goroutines; phase rules, not locking, keep round semantics
// consistent (submissions are accepted only in the question phase).
type Store struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	rooms map[string]*Match
}

func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock, rooms: make(map[string]*Match)}
}

// Create registers a new match. Fails if the room id is already live.
func (s *Store) Create(roomID string, p1, p2 Player, totalRounds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return ErrRoomExists
	}
	now := s.clock.Now()
	s.rooms[roomID] = &Match{
		RoomID:         roomID,
		Players:        [2]Player{p1, p2},
		Scores:         map[string]int{p1.ID: 0, p2.ID: 0},
		TotalRounds:    totalRounds,
		Phase:          PhaseReady,
		PhaseStartedAt: now,
		CreatedAt:      now,
	}
	return nil
}

// Delete drops the match. Deleting an unknown room is a no-op.
func (s *Store) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Count reports the number of live rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// RoomByPlayer resolves the room a player is currently in. Linear scan
// over live rooms; fine at small scale.
func (s *Store) RoomByPlayer(playerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, m := range s.rooms {
		if m.Players[0].ID == playerID || m.Players[1].ID == playerID {
			return id, true
		}
	}
	return "", false
}

// Players returns both players of the match.
func (s *Store) Players(roomID string) ([2]Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return [2]Player{}, ErrRoomNotFound
	}
	return m.Players, nil
}

// SetPhase moves the match to a new phase and stamps PhaseStartedAt.
func (s *Store) SetPhase(roomID string, p Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	m.Phase = p
	m.PhaseStartedAt = s.clock.Now()
	return nil
}

// Phase reports the match's current phase.
func (s *Store) Phase(roomID string) (Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}
	return m.Phase, nil
}

// StartNextRound allocates round N+1 and returns its number. Rounds are
// strictly increasing; fails once all rounds are played.
func (s *Store) StartNextRound(roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return 0, ErrRoomNotFound
	}
	if len(m.Rounds) >= m.TotalRounds {
		return 0, ErrAllRoundsPlayed
	}
	r := &Round{
		Number:      len(m.Rounds) + 1,
		Phase:       RoundInProgress,
		Submissions: make(map[string]Submission, 2),
	}
	m.Rounds = append(m.Rounds, r)
	return r.Number, nil
}

// CurrentRound reports the number of the round currently in progress.
func (s *Store) CurrentRound(roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return 0, ErrRoomNotFound
	}
	r := currentRound(m)
	if r == nil {
		return 0, ErrNoCurrentRound
	}
	return r.Number, nil
}

// SetQuestion attaches the question to the current round, once.
func (s *Store) SetQuestion(roomID string, q question.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r := currentRound(m)
	if r == nil {
		return ErrNoCurrentRound
	}
	if r.Question != nil {
		return ErrQuestionSet
	}
	qq := q
	r.Question = &qq
	return nil
}

// Question returns the current round's question.
func (s *Store) Question(roomID string) (question.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return question.Question{}, ErrRoomNotFound
	}
	r := currentRound(m)
	if r == nil {
		return question.Question{}, ErrNoCurrentRound
	}
	if r.Question == nil {
		return question.Question{}, ErrQuestionMissing
	}
	return *r.Question, nil
}

// SubmitAnswer records a player's answer for the current round. It fails
// on unknown player, wrong phase, or a second submission; a rejected
// submit leaves the stored cell untouched. Returns whether both players
// have now submitted.
func (s *Store) SubmitAnswer(roomID, playerID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if m.Players[0].ID != playerID && m.Players[1].ID != playerID {
		return false, ErrUnknownPlayer
	}
	if m.Phase != PhaseQuestion {
		return false, ErrWrongPhase
	}
	r := currentRound(m)
	if r == nil {
		return false, ErrNoCurrentRound
	}
	if _, dup := r.Submissions[playerID]; dup {
		return false, ErrDuplicateSubmit
	}
	r.Submissions[playerID] = Submission{
		PlayerID:    playerID,
		Answer:      text,
		SubmittedAt: s.clock.Now(),
	}
	return len(r.Submissions) == 2, nil
}

// AllSubmitted reports whether both players answered the current round.
func (s *Store) AllSubmitted(roomID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	r := currentRound(m)
	if r == nil {
		return false, ErrNoCurrentRound
	}
	return len(r.Submissions) == 2, nil
}

// GradingInput is the read-only view handed to the grading oracle.
type GradingInput struct {
	RoundNumber int
	Question    question.Question
	Submissions []Submission
}

// GradingInput returns the question plus both submissions, in player
// order. Fails unless the question is set and both players submitted.
func (s *Store) GradingInput(roomID string) (GradingInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return GradingInput{}, ErrRoomNotFound
	}
	r := currentRound(m)
	if r == nil {
		return GradingInput{}, ErrNoCurrentRound
	}
	if r.Question == nil {
		return GradingInput{}, ErrQuestionMissing
	}
	if len(r.Submissions) != 2 {
		return GradingInput{}, ErrNotAllSubmitted
	}
	in := GradingInput{RoundNumber: r.Number, Question: *r.Question}
	for _, p := range m.Players {
		in.Submissions = append(in.Submissions, r.Submissions[p.ID])
	}
	return in, nil
}

// SetRoundResult stores the grading outcome and completes the round.
func (s *Store) SetRoundResult(roomID string, res RoundResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r := currentRound(m)
	if r == nil {
		return ErrNoCurrentRound
	}
	rr := res
	r.Result = &rr
	r.Phase = RoundCompleted
	return nil
}

// AddScore adds points to a player's running total. Scores only ever
// increase; negative increments are rejected.
func (s *Store) AddScore(roomID, playerID string, pts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if pts < 0 {
		return ErrNegativeScore
	}
	if _, ok := m.Scores[playerID]; !ok {
		return ErrUnknownPlayer
	}
	m.Scores[playerID] += pts
	return nil
}

// Scores returns a copy of the running totals.
func (s *Store) Scores(roomID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	out := make(map[string]int, len(m.Scores))
	for k, v := range m.Scores {
		out[k] = v
	}
	return out, nil
}

// Snapshot returns a deep copy of the match for result persistence and
// broadcasting. Mutating the copy does not affect the live match.
func (s *Store) Snapshot(roomID string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *m
	cp.Scores = make(map[string]int, len(m.Scores))
	for k, v := range m.Scores {
		cp.Scores[k] = v
	}
	cp.Rounds = make([]*Round, 0, len(m.Rounds))
	for _, r := range m.Rounds {
		rc := *r
		rc.Submissions = make(map[string]Submission, len(r.Submissions))
		for k, v := range r.Submissions {
			rc.Submissions[k] = v
		}
		if r.Question != nil {
			q := *r.Question
			rc.Question = &q
		}
		if r.Result != nil {
			res := RoundResult{Results: append([]PlayerResult(nil), r.Result.Results...)}
			rc.Result = &res
		}
		cp.Rounds = append(cp.Rounds, &rc)
	}
	return &cp, nil
}

func currentRound(m *Match) *Round {
	if len(m.Rounds) == 0 {
		return nil
	}
	return m.Rounds[len(m.Rounds)-1]
}
