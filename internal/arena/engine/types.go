package engine

import (
	"context"
	"time"

	"github.com/hojin-dev/quiz-arena/internal/arena/persist"
	"github.com/hojin-dev/quiz-arena/internal/arena/timer"
)

// Outbound event names pushed to clients through the Broadcaster.
const (
	EventRoundReady           = "round:ready"
	EventRoundTick            = "round:tick"
	EventRoundStart           = "round:start"
	EventOpponentSubmitted    = "opponent:submitted"
	EventRoundEnd             = "round:end"
	EventMatchEnd             = "match:end"
	EventOpponentDisconnected = "opponent:disconnected"
)

// Broadcaster pushes an event to one player. Implementations must not
// block the caller on a slow client; dropping to a dead connection is
// fine, match progression never depends on delivery.
type Broadcaster interface {
	ToPlayer(playerID, event string, payload any)
}

// ResultWriter durably records a finished match. persist.Writer is the
// production implementation.
type ResultWriter interface {
	Record(ctx context.Context, rec *persist.MatchRecord) (persist.RatingChange, error)
}

// RatingUpdater refreshes the rating lookup used at enqueue time.
// Optional; a nil updater is skipped.
type RatingUpdater interface {
	SetAll(ctx context.Context, ratings map[string]int)
}

// ReadyPayload announces the countdown before a round starts.
type ReadyPayload struct {
	DurationSec int `json:"durationSec"`
	RoundIndex  int `json:"roundIndex"`
	TotalRounds int `json:"totalRounds"`
}

// TickPayload is the 1-second countdown broadcast.
type TickPayload struct {
	RemainedSec int `json:"remainedSec"`
}

// QuestionView is the question as shown to players: no canonical answer.
type QuestionView struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Difficulty string `json:"difficulty"`
	Prompt     string `json:"prompt"`
}

// StartPayload opens the answer window.
type StartPayload struct {
	DurationSec int          `json:"durationSec"`
	Question    QuestionView `json:"question"`
}

// AnswerView is one player's graded answer as shown during review.
type AnswerView struct {
	PlayerID   string `json:"playerId"`
	Answer     string `json:"answer"`
	Correct    bool   `json:"correct"`
	Score      int    `json:"score"`
	SpeedBonus int    `json:"speedBonus"`
	Feedback   string `json:"feedback"`
}

// RoundEndPayload is personalised per player: their own answer first.
type RoundEndPayload struct {
	RoundIndex  int            `json:"roundIndex"`
	Yours       AnswerView     `json:"yours"`
	Opponent    AnswerView     `json:"opponent"`
	Totals      map[string]int `json:"totals"`
	Solution    string         `json:"solution"`
	Explanation string         `json:"explanation,omitempty"`
}

// MatchEndPayload closes the match for one player. TierPointChange is
// zero when rating persistence failed; the outcome itself is definitive
// either way.
type MatchEndPayload struct {
	IsWin           bool           `json:"isWin"`
	IsDraw          bool           `json:"isDraw"`
	FinalScores     map[string]int `json:"finalScores"`
	TierPointChange int            `json:"tierPointChange"`
}

// DisconnectedPayload tells the remaining player they won by forfeit.
type DisconnectedPayload struct {
	WinnerID string `json:"winnerId"`
	Reason   string `json:"reason"`
}

// SubmitAck is the synchronous reply to a submission.
type SubmitAck struct {
	OpponentAlreadySubmitted bool `json:"opponentAlreadySubmitted"`
}

// Config carries the tunable match parameters.
type Config struct {
	TotalRounds    int
	ReadyDuration  time.Duration
	ReviewDuration time.Duration
	SpeedBonus     int
}

type eventKind int

const (
	evTimer eventKind = iota
	evBothSubmitted
	evDisconnect
)

// roomEvent is the typed unit fed into a room's sequential processing
// path; timer fires and transport events share the same mailbox so a
// room never has two writers racing.
type roomEvent struct {
	kind     eventKind
	timer    timer.Event
	leaverID string
}
