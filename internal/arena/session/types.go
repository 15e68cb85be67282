package session

import (
	"errors"
	"time"

	"github.com/hojin-dev/quiz-arena/internal/arena/question"
)

// Phase is the stage the match's current round is in.
type Phase string

const (
	PhaseReady    Phase = "ready"
	PhaseQuestion Phase = "question"
	PhaseGrading  Phase = "grading"
	PhaseReview   Phase = "review"
	PhaseFinished Phase = "finished"
	PhaseErrored  Phase = "errored"
)

// RoundPhase is the lifecycle of a single round inside a match.
type RoundPhase string

const (
	RoundWaiting    RoundPhase = "waiting"
	RoundInProgress RoundPhase = "in_progress"
	RoundCompleted  RoundPhase = "completed"
)

// Player is one side of a match as known at creation time.
type Player struct {
	ID     string
	Rating int
}

// Submission is a player's answer for one round. A cell is written at
// most once and never corrected afterwards.
type Submission struct {
	PlayerID    string
	Answer      string
	SubmittedAt time.Time
}

// PlayerResult is one player's graded outcome for a round.
type PlayerResult struct {
	PlayerID   string
	Answer     string
	Correct    bool
	Score      int
	SpeedBonus int
	Feedback   string
}

// RoundResult is the grading outcome of one round, for both players.
type RoundResult struct {
	Results []PlayerResult
}

// Round accumulates inside a match and is destroyed with it.
type Round struct {
	Number      int
	Phase       RoundPhase
	Question    *question.Question
	Submissions map[string]Submission
	Result      *RoundResult
}

// Match is the authoritative in-memory state of one active game.
type Match struct {
	RoomID         string
	Players        [2]Player
	Scores         map[string]int
	Rounds         []*Round
	TotalRounds    int
	Phase          Phase
	PhaseStartedAt time.Time
	CreatedAt      time.Time
}

// FinalResult is computed exactly once, at the last round's grading
// boundary (or at forfeit).
type FinalResult struct {
	WinnerID string
	IsDraw   bool
	Totals   map[string]int
}

var (
	ErrRoomExists      = errors.New("room already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUnknownPlayer   = errors.New("player not in this room")
	ErrWrongPhase      = errors.New("operation not allowed in current phase")
	ErrDuplicateSubmit = errors.New("player already submitted this round")
	ErrNoCurrentRound  = errors.New("no round in progress")
	ErrQuestionSet     = errors.New("question already set for this round")
	ErrQuestionMissing = errors.New("question not set for this round")
	ErrNotAllSubmitted = errors.New("both submissions required")
	ErrAllRoundsPlayed = errors.New("all rounds already played")
	ErrNegativeScore   = errors.New("score increments must be non-negative")
)
