package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig carries all runtime settings for the arena server.
// Values come from the environment; Load applies defaults and validates
// the handful of settings that have no sensible fallback.
type AppConfig struct {
	ListenAddr string

	DatabaseURL string
	RedisURL    string

	GraderBaseURL string
	GraderTimeout time.Duration

	TotalRounds    int
	ReadyDuration  time.Duration
	ReviewDuration time.Duration
	SpeedBonus     int

	DefaultRating  int
	RatingCacheTTL time.Duration

	QuestionCatalogDir string

	PersistMaxAttempts int
	PersistBackoffBase time.Duration
	PersistBackoffMax  time.Duration

	MatchSweepInterval time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		GraderTimeout:      15 * time.Second,
		TotalRounds:        5,
		ReadyDuration:      5 * time.Second,
		ReviewDuration:     10 * time.Second,
		SpeedBonus:         5,
		DefaultRating:      1000,
		RatingCacheTTL:     6 * time.Hour,
		PersistMaxAttempts: 5,
		PersistBackoffBase: 200 * time.Millisecond,
		PersistBackoffMax:  5 * time.Second,
		MatchSweepInterval: time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.GraderBaseURL = strings.TrimSpace(os.Getenv("GRADER_BASE_URL"))
	cfg.QuestionCatalogDir = strings.TrimSpace(os.Getenv("QUESTION_CATALOG_DIR"))

	if d, ok := envDuration("GRADER_TIMEOUT"); ok {
		cfg.GraderTimeout = d
	}
	if n, ok := envInt("TOTAL_ROUNDS"); ok && n > 0 {
		cfg.TotalRounds = n
	}
	if d, ok := envDuration("READY_DURATION"); ok {
		cfg.ReadyDuration = d
	}
	if d, ok := envDuration("REVIEW_DURATION"); ok {
		cfg.ReviewDuration = d
	}
	if n, ok := envInt("SPEED_BONUS"); ok && n >= 0 {
		cfg.SpeedBonus = n
	}
	if n, ok := envInt("DEFAULT_RATING"); ok && n > 0 {
		cfg.DefaultRating = n
	}
	if d, ok := envDuration("RATING_CACHE_TTL"); ok {
		cfg.RatingCacheTTL = d
	}
	if n, ok := envInt("PERSIST_MAX_ATTEMPTS"); ok && n > 0 {
		cfg.PersistMaxAttempts = n
	}
	if d, ok := envDuration("PERSIST_BACKOFF_BASE"); ok {
		cfg.PersistBackoffBase = d
	}
	if d, ok := envDuration("PERSIST_BACKOFF_MAX"); ok {
		cfg.PersistBackoffMax = d
	}
	if d, ok := envDuration("MATCH_SWEEP_INTERVAL"); ok {
		cfg.MatchSweepInterval = d
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.GraderBaseURL == "" {
		return nil, errors.New("GRADER_BASE_URL is required")
	}

	return cfg, nil
}

// envDuration accepts either a Go duration string ("10s") or a bare
// number of seconds for ergonomics in container env files.
func envDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
