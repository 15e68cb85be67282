package question

import (
	"context"
	"database/sql"
	"fmt"
)

// PGSource draws questions from the question table. It shares the
// process-wide *sql.DB with the persistence writer.
type PGSource struct {
	db *sql.DB
}

func NewPGSource(db *sql.DB) *PGSource {
	return &PGSource{db: db}
}

// Next picks a random question at the round's difficulty tier.
func (s *PGSource) Next(ctx context.Context, roundNumber int) (Question, error) {
	d := DifficultyForRound(roundNumber)
	const q = `SELECT id, type, difficulty, prompt, answer, COALESCE(explanation, '')
	             FROM question
	            WHERE difficulty = $1
	            ORDER BY random()
	            LIMIT 1`
	var out Question
	err := s.db.QueryRowContext(ctx, q, string(d)).Scan(
		&out.ID, &out.Type, &out.Difficulty, &out.Prompt, &out.Answer, &out.Explanation,
	)
	if err == sql.ErrNoRows {
		return Question{}, fmt.Errorf("no %s questions available", d)
	}
	if err != nil {
		return Question{}, fmt.Errorf("fetch question: %w", err)
	}
	return out, nil
}
