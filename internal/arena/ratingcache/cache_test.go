package ratingcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(rdb, time.Hour, 1000), mr
}

func TestRatingDefaultsOnMiss(t *testing.T) {
	c, _ := newTestCache(t)
	if got := c.Rating(context.Background(), "nobody"); got != 1000 {
		t.Fatalf("Rating(miss) = %d, want default 1000", got)
	}
}

func TestSetThenRating(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "p1", 1234); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := c.Rating(ctx, "p1"); got != 1234 {
		t.Fatalf("Rating = %d, want 1234", got)
	}
}

func TestSetAllRefreshesBothPlayers(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.SetAll(ctx, map[string]int{"p1": 1016, "p2": 984})
	if got := c.Rating(ctx, "p1"); got != 1016 {
		t.Fatalf("p1 rating = %d, want 1016", got)
	}
	if got := c.Rating(ctx, "p2"); got != 984 {
		t.Fatalf("p2 rating = %d, want 984", got)
	}
}

func TestRatingDefaultsOnGarbageValue(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Set("rating:p1", "not-a-number")
	if got := c.Rating(context.Background(), "p1"); got != 1000 {
		t.Fatalf("Rating(garbage) = %d, want default", got)
	}
}

func TestNewParsesRedisURL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c, err := New(fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Set(context.Background(), "p1", 1500); err != nil {
		t.Fatalf("Set: %v", err)
	}
}
