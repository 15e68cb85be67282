package persist

import (
	"context"
	"errors"
)

// AnswerStatus is the correctness classification stored per answer row.
type AnswerStatus string

const (
	StatusCorrect AnswerStatus = "correct"
	StatusWrong   AnswerStatus = "wrong"
	StatusTimeout AnswerStatus = "timeout"
)

// AnswerRecord is one player's graded answer for one round.
type AnswerRecord struct {
	PlayerID string
	Answer   string
	Score    int
	Correct  bool
	Feedback string
}

// RoundRecord is one played round of a finished match.
type RoundRecord struct {
	Number     int
	QuestionID string
	Answers    []AnswerRecord
}

// MatchRecord is everything the writer persists for a finished or
// forfeited match. It is built from the session snapshot after the
// session has already been torn down, so it carries no live state.
type MatchRecord struct {
	RoomID    string
	MatchType string // "ranked" or "forfeit"
	Player1   string
	Player2   string
	WinnerID  string // empty on draw
	IsDraw    bool
	Totals    map[string]int
	Rounds    []RoundRecord
}

// RatingChange carries the computed deltas and resulting ratings back to
// the engine for immediate client notification. A zero-valued change
// (empty maps) means "no rating change".
type RatingChange struct {
	Deltas     map[string]int
	NewRatings map[string]int
}

// NoChange is returned when persistence was skipped or exhausted its
// retries: the match outcome was already delivered, ratings simply
// stay put.
func NoChange(rec *MatchRecord) RatingChange {
	ch := RatingChange{Deltas: map[string]int{}, NewRatings: map[string]int{}}
	if rec != nil {
		ch.Deltas[rec.Player1] = 0
		ch.Deltas[rec.Player2] = 0
	}
	return ch
}

var (
	ErrNoGeneratedID = errors.New("insert returned no generated id")
	ErrInvalidRecord = errors.New("match record is malformed")
	errNonRetryable  = errors.New("non-retryable persistence failure")
)

// markNonRetryable tags an error so the retry loop aborts immediately.
func markNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return errNonRetryable.Error() + ": " + e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }
func (e *nonRetryableError) Is(target error) bool {
	return target == errNonRetryable
}

// IsRetryable reports whether a persistence failure is worth another
// attempt. Structural failures (missing generated keys, malformed
// records, canceled contexts) are not; everything else is assumed
// transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errNonRetryable) {
		return false
	}
	if errors.Is(err, ErrNoGeneratedID) || errors.Is(err, ErrInvalidRecord) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
