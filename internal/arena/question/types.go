package question

import "context"

// Type classifies how a question is answered; it drives how much time a
// round allows for typing the answer.
type Type string

const (
	TypeChoice Type = "choice"
	TypeShort  Type = "short"
	TypeEssay  Type = "essay"
)

// Difficulty scales both the answer window and the attainable score.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is one quiz prompt served to a match round.
type Question struct {
	ID          string     `json:"id" yaml:"id"`
	Type        Type       `json:"type" yaml:"type"`
	Difficulty  Difficulty `json:"difficulty" yaml:"difficulty"`
	Prompt      string     `json:"prompt" yaml:"prompt"`
	Answer      string     `json:"answer" yaml:"answer"`
	Explanation string     `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Source hands out the question for a given round number (1-based).
type Source interface {
	Next(ctx context.Context, roundNumber int) (Question, error)
}

// MaxScore is the attainable round score for a difficulty tier.
func MaxScore(d Difficulty) int {
	switch d {
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	default:
		return 10
	}
}
