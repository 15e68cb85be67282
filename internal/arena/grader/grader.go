package grader

import (
	"context"

	"github.com/hojin-dev/quiz-arena/internal/arena/question"
)

// Submission is one player's answer as handed to the oracle.
type Submission struct {
	PlayerID string `json:"playerId"`
	Answer   string `json:"answer"`
}

// Grade is the oracle's verdict on one submission. Score is on a fixed
// 0–10 scale regardless of question difficulty; difficulty scaling
// happens in the engine.
type Grade struct {
	PlayerID  string `json:"playerId"`
	Answer    string `json:"answer"`
	IsCorrect bool   `json:"isCorrect"`
	Score     int    `json:"score"`
	Feedback  string `json:"feedback"`
}

// Grader is the external AI grading oracle. Its own timeout bounds the
// grading phase; the engine does not add one of its own.
type Grader interface {
	Grade(ctx context.Context, q question.Question, subs []Submission) ([]Grade, error)
}
