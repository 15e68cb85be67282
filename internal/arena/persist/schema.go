package persist

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS match (
		id          BIGSERIAL PRIMARY KEY,
		room_id     TEXT NOT NULL,
		player1_id  TEXT NOT NULL,
		player2_id  TEXT NOT NULL,
		winner_id   TEXT,
		type        TEXT NOT NULL DEFAULT 'ranked',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS round (
		id           BIGSERIAL PRIMARY KEY,
		match_id     BIGINT NOT NULL REFERENCES match(id) ON DELETE CASCADE,
		question_id  TEXT NOT NULL,
		round_number INT NOT NULL,
		UNIQUE (match_id, round_number)
	)`,
	`CREATE TABLE IF NOT EXISTS round_answer (
		id          BIGSERIAL PRIMARY KEY,
		round_id    BIGINT NOT NULL REFERENCES round(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL,
		answer_text TEXT NOT NULL DEFAULT '',
		score       INT NOT NULL DEFAULT 0,
		status      TEXT NOT NULL,
		feedback    TEXT NOT NULL DEFAULT '',
		UNIQUE (round_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_statistics (
		user_id       TEXT PRIMARY KEY,
		rating        INT NOT NULL,
		total_matches INT NOT NULL DEFAULT 0,
		wins          INT NOT NULL DEFAULT 0,
		losses        INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS user_tier_history (
		id             BIGSERIAL PRIMARY KEY,
		user_id        TEXT NOT NULL,
		match_id       BIGINT NOT NULL REFERENCES match(id) ON DELETE CASCADE,
		rating_at_time INT NOT NULL,
		rating_delta   INT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_player1 ON match(player1_id)`,
	`CREATE INDEX IF NOT EXISTS idx_match_player2 ON match(player2_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tier_history_user ON user_tier_history(user_id)`,
}

// EnsureSchema creates the result tables when they do not exist yet.
// Statements are idempotent, so running it on every boot is safe.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
