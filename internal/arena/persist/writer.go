package persist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/hojin-dev/quiz-arena/internal/arena/elo"
	"github.com/hojin-dev/quiz-arena/internal/obslog"
)

// Writer records finished matches durably and applies the rating update,
// with bounded exponential-backoff retries. Backoff sleeps run on the
// caller's goroutine; each finished room has its own runner, so one
// match's backoff never starves another room.
type Writer struct {
	db    *sql.DB
	clock clockwork.Clock

	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration
	defaultRating int
}

// Config tunes the retry policy.
type Config struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	DefaultRating int
}

func NewWriter(db *sql.DB, clock clockwork.Clock, cfg Config) *Writer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.DefaultRating <= 0 {
		cfg.DefaultRating = 1000
	}
	return &Writer{
		db:            db,
		clock:         clock,
		maxAttempts:   cfg.MaxAttempts,
		backoffBase:   cfg.BackoffBase,
		backoffMax:    cfg.BackoffMax,
		defaultRating: cfg.DefaultRating,
	}
}

// OpenDB opens the Postgres pool in the shape the writer expects.
func OpenDB(databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Record persists the match with retries. It always returns a usable
// RatingChange: on a non-retryable failure or retry exhaustion it logs
// the full match context and returns NoChange, because match completion
// must never block on persistence trouble. The error accompanies the
// zero change for observability only.
func (w *Writer) Record(ctx context.Context, rec *MatchRecord) (RatingChange, error) {
	if err := validate(rec); err != nil {
		obslog.L().Error("persist_invalid_record", zap.String("room_id", roomOf(rec)), zap.Error(err))
		return NoChange(rec), err
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		change, err := w.writeOnce(ctx, rec)
		if err == nil {
			obslog.L().Info("persist_match",
				zap.String("room_id", rec.RoomID),
				zap.String("winner_id", rec.WinnerID),
				zap.Bool("is_draw", rec.IsDraw),
				zap.Int("rounds", len(rec.Rounds)),
				zap.Int("attempt", attempt),
			)
			return change, nil
		}
		if !IsRetryable(err) {
			w.logExhausted(rec, err, attempt)
			return NoChange(rec), err
		}
		lastErr = err
		obslog.L().Warn("persist_retry",
			zap.String("room_id", rec.RoomID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == w.maxAttempts {
			break
		}
		select {
		case <-w.clock.After(w.backoffDelay(attempt)):
		case <-ctx.Done():
			w.logExhausted(rec, ctx.Err(), attempt)
			return NoChange(rec), ctx.Err()
		}
	}
	w.logExhausted(rec, lastErr, w.maxAttempts)
	return NoChange(rec), lastErr
}

// backoffDelay grows base × 2^(attempt-1) up to the configured ceiling.
func (w *Writer) backoffDelay(attempt int) time.Duration {
	d := w.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.backoffMax {
			return w.backoffMax
		}
	}
	if d > w.backoffMax {
		return w.backoffMax
	}
	return d
}

func (w *Writer) writeOnce(ctx context.Context, rec *MatchRecord) (RatingChange, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return RatingChange{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var matchID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO match (room_id, player1_id, player2_id, winner_id, type)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 RETURNING id`,
		rec.RoomID, rec.Player1, rec.Player2, rec.WinnerID, rec.MatchType,
	).Scan(&matchID)
	if err == sql.ErrNoRows {
		return RatingChange{}, markNonRetryable(ErrNoGeneratedID)
	}
	if err != nil {
		return RatingChange{}, fmt.Errorf("insert match: %w", err)
	}
	if matchID <= 0 {
		return RatingChange{}, markNonRetryable(ErrNoGeneratedID)
	}

	for _, round := range rec.Rounds {
		var roundID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO round (match_id, question_id, round_number)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			matchID, round.QuestionID, round.Number,
		).Scan(&roundID)
		if err == sql.ErrNoRows {
			return RatingChange{}, markNonRetryable(ErrNoGeneratedID)
		}
		if err != nil {
			return RatingChange{}, fmt.Errorf("insert round %d: %w", round.Number, err)
		}
		for _, ans := range round.Answers {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO round_answer (round_id, user_id, answer_text, score, status, feedback)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				roundID, ans.PlayerID, ans.Answer, ans.Score, string(ClassifyAnswer(ans)), ans.Feedback,
			)
			if err != nil {
				return RatingChange{}, fmt.Errorf("insert answer round=%d player=%s: %w", round.Number, ans.PlayerID, err)
			}
		}
	}

	change := NoChange(rec)
	if !rec.IsDraw {
		change, err = w.applyRatings(ctx, tx, matchID, rec)
		if err != nil {
			return RatingChange{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return RatingChange{}, fmt.Errorf("commit: %w", err)
	}
	return change, nil
}

type playerStats struct {
	rating     int
	totalGames int
	wins       int
	losses     int
}

// applyRatings locks both user_statistics rows, computes each side's
// delta from its own pre-match rating and game count, updates the rows
// and appends one tier-history entry per player. Rows are locked in a
// fixed order (by user id) so concurrent match completions sharing a
// player cannot deadlock.
func (w *Writer) applyRatings(ctx context.Context, tx *sql.Tx, matchID int64, rec *MatchRecord) (RatingChange, error) {
	winnerID := rec.WinnerID
	loserID := rec.Player1
	if loserID == winnerID {
		loserID = rec.Player2
	}

	first, second := winnerID, loserID
	if second < first {
		first, second = second, first
	}
	stats := make(map[string]playerStats, 2)
	for _, id := range []string{first, second} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_statistics (user_id, rating, total_matches, wins, losses)
			 VALUES ($1, $2, 0, 0, 0)
			 ON CONFLICT (user_id) DO NOTHING`,
			id, w.defaultRating,
		); err != nil {
			return RatingChange{}, fmt.Errorf("ensure stats row %s: %w", id, err)
		}
		var st playerStats
		err := tx.QueryRowContext(ctx,
			`SELECT rating, total_matches, wins, losses
			   FROM user_statistics
			  WHERE user_id = $1
			  FOR UPDATE`,
			id,
		).Scan(&st.rating, &st.totalGames, &st.wins, &st.losses)
		if err != nil {
			return RatingChange{}, fmt.Errorf("lock stats row %s: %w", id, err)
		}
		stats[id] = st
	}

	winner, loser := stats[winnerID], stats[loserID]
	winDelta, loseDelta := elo.MatchUpdate(winner.rating, loser.rating, winner.totalGames, loser.totalGames)
	newWinner := elo.Apply(winner.rating, winDelta)
	newLoser := elo.Apply(loser.rating, loseDelta)

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_statistics
		    SET rating = $2, total_matches = total_matches + 1, wins = wins + 1
		  WHERE user_id = $1`,
		winnerID, newWinner,
	); err != nil {
		return RatingChange{}, fmt.Errorf("update winner stats: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_statistics
		    SET rating = $2, total_matches = total_matches + 1, losses = losses + 1
		  WHERE user_id = $1`,
		loserID, newLoser,
	); err != nil {
		return RatingChange{}, fmt.Errorf("update loser stats: %w", err)
	}

	for _, h := range []struct {
		id     string
		rating int
		delta  int
	}{
		{winnerID, newWinner, winDelta},
		{loserID, newLoser, loseDelta},
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_tier_history (user_id, match_id, rating_at_time, rating_delta)
			 VALUES ($1, $2, $3, $4)`,
			h.id, matchID, h.rating, h.delta,
		); err != nil {
			return RatingChange{}, fmt.Errorf("insert tier history %s: %w", h.id, err)
		}
	}

	return RatingChange{
		Deltas:     map[string]int{winnerID: winDelta, loserID: loseDelta},
		NewRatings: map[string]int{winnerID: newWinner, loserID: newLoser},
	}, nil
}

// ClassifyAnswer maps a graded answer to its stored correctness status.
// An empty answer is a timeout auto-submission, never just "wrong".
func ClassifyAnswer(ans AnswerRecord) AnswerStatus {
	if strings.TrimSpace(ans.Answer) == "" {
		return StatusTimeout
	}
	if ans.Correct {
		return StatusCorrect
	}
	return StatusWrong
}

func validate(rec *MatchRecord) error {
	if rec == nil {
		return markNonRetryable(fmt.Errorf("%w: nil record", ErrInvalidRecord))
	}
	if strings.TrimSpace(rec.RoomID) == "" ||
		strings.TrimSpace(rec.Player1) == "" ||
		strings.TrimSpace(rec.Player2) == "" {
		return markNonRetryable(fmt.Errorf("%w: missing ids", ErrInvalidRecord))
	}
	if !rec.IsDraw && rec.WinnerID != rec.Player1 && rec.WinnerID != rec.Player2 {
		return markNonRetryable(fmt.Errorf("%w: winner %q is not a participant", ErrInvalidRecord, rec.WinnerID))
	}
	return nil
}

func (w *Writer) logExhausted(rec *MatchRecord, err error, attempts int) {
	obslog.L().Error("persist_exhausted",
		zap.String("room_id", roomOf(rec)),
		zap.String("player1", rec.Player1),
		zap.String("player2", rec.Player2),
		zap.String("winner_id", rec.WinnerID),
		zap.Bool("is_draw", rec.IsDraw),
		zap.Any("totals", rec.Totals),
		zap.Int("rounds", len(rec.Rounds)),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
}

func roomOf(rec *MatchRecord) string {
	if rec == nil {
		return ""
	}
	return rec.RoomID
}
