package ratingcache

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hojin-dev/quiz-arena/internal/obslog"
)

// Cache keeps players' current ratings in Redis so the gateway can
// enqueue with a fresh rating without a database round trip. The
// persistence writer is the source of truth; the cache is refreshed
// after every rating update and falls back to a default on miss.
type Cache struct {
	rdb           *redis.Client
	ttl           time.Duration
	defaultRating int
}

func New(redisURL string, ttl time.Duration, defaultRating int) (*Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required for rating cache")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb, ttl: ttl, defaultRating: defaultRating}, nil
}

// NewWithClient wires an existing client; used by tests with miniredis.
func NewWithClient(rdb *redis.Client, ttl time.Duration, defaultRating int) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, defaultRating: defaultRating}
}

func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Rating returns the cached rating, or the default on miss/error. A
// stale-or-default rating only affects match fairness, never scoring, so
// errors degrade rather than fail.
func (c *Cache) Rating(ctx context.Context, playerID string) int {
	raw, err := c.rdb.Get(ctx, key(playerID)).Result()
	if err == redis.Nil {
		return c.defaultRating
	}
	if err != nil {
		obslog.L().Warn("rating_cache_read_error", zap.String("player_id", playerID), zap.Error(err))
		return c.defaultRating
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return c.defaultRating
	}
	return n
}

// Set stores one player's rating.
func (c *Cache) Set(ctx context.Context, playerID string, rating int) error {
	return c.rdb.Set(ctx, key(playerID), strconv.Itoa(rating), c.ttl).Err()
}

// SetAll refreshes several players after a match result was persisted.
// Failures are logged, not propagated: the database already holds the
// authoritative value.
func (c *Cache) SetAll(ctx context.Context, ratings map[string]int) {
	if c == nil {
		return
	}
	for id, r := range ratings {
		if err := c.Set(ctx, id, r); err != nil {
			obslog.L().Warn("rating_cache_write_error", zap.String("player_id", id), zap.Error(err))
		}
	}
}

func key(playerID string) string { return "rating:" + strings.TrimSpace(playerID) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
