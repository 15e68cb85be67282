package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hojin-dev/quiz-arena/internal/arena/engine"
	"github.com/hojin-dev/quiz-arena/internal/arena/gateway"
	"github.com/hojin-dev/quiz-arena/internal/arena/grader"
	"github.com/hojin-dev/quiz-arena/internal/arena/persist"
	"github.com/hojin-dev/quiz-arena/internal/arena/question"
	"github.com/hojin-dev/quiz-arena/internal/arena/queue"
	"github.com/hojin-dev/quiz-arena/internal/arena/ratingcache"
	"github.com/hojin-dev/quiz-arena/internal/arena/session"
	"github.com/hojin-dev/quiz-arena/internal/config"
	"github.com/hojin-dev/quiz-arena/internal/obslog"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}

	db, err := persist.OpenDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	if err := persist.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("schema error: %v", err)
	}
	writer := persist.NewWriter(db, nil, persist.Config{
		MaxAttempts:   cfg.PersistMaxAttempts,
		BackoffBase:   cfg.PersistBackoffBase,
		BackoffMax:    cfg.PersistBackoffMax,
		DefaultRating: cfg.DefaultRating,
	})

	var cache *ratingcache.Cache
	var ratings gateway.Ratings = staticRatings{rating: cfg.DefaultRating}
	if cfg.RedisURL != "" {
		cache, err = ratingcache.New(cfg.RedisURL, cfg.RatingCacheTTL, cfg.DefaultRating)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		ratings = cache
	}

	questions, err := questionSource(cfg, db)
	if err != nil {
		log.Fatalf("question source error: %v", err)
	}

	sessions := session.NewStore(nil)
	matchQueue := queue.New(nil)
	oracle := grader.NewHTTPClient(cfg.GraderBaseURL, grader.WithTimeout(cfg.GraderTimeout))

	// gateway and engine reference each other; the proxy breaks the cycle
	proxy := &broadcastProxy{}
	deps := engine.Deps{
		Sessions:  sessions,
		Grader:    oracle,
		Questions: questions,
		Writer:    writer,
		Broadcast: proxy,
	}
	if cache != nil {
		deps.Ratings = cache
	}
	eng := engine.New(engine.Config{
		TotalRounds:    cfg.TotalRounds,
		ReadyDuration:  cfg.ReadyDuration,
		ReviewDuration: cfg.ReviewDuration,
		SpeedBonus:     cfg.SpeedBonus,
	}, deps)

	gw := gateway.NewServer(gateway.Config{}, ratings, matchQueue, eng, sessions)
	proxy.server.Store(gw)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		obslog.L().Info("server_listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_failed", zap.Error(err))
		}
	}()

	stop := make(chan struct{})
	go sweepLoop(matchQueue, gw, cfg.MatchSweepInterval, stop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("shutting_down")

	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if cache != nil {
		_ = cache.Close()
	}
	_ = db.Close()
}

// sweepLoop re-examines waiting players so that rating ranges widened by
// wait time get a chance to pair.
func sweepLoop(q *queue.Queue, gw *gateway.Server, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, pair := range q.Sweep() {
				gw.StartPair(pair)
			}
		}
	}
}

// questionSource picks the question backend: the database when asked
// for, otherwise the embedded yaml catalog (optionally extended from
// QUESTION_CATALOG_DIR).
func questionSource(cfg *config.AppConfig, db *sql.DB) (question.Source, error) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("QUESTION_SOURCE")), "db") {
		return question.NewPGSource(db), nil
	}
	return question.NewCatalog(cfg.QuestionCatalogDir, time.Now().UnixNano())
}

// broadcastProxy forwards engine pushes to the gateway once it exists.
type broadcastProxy struct {
	server atomic.Pointer[gateway.Server]
}

func (p *broadcastProxy) ToPlayer(playerID, event string, payload any) {
	if s := p.server.Load(); s != nil {
		s.ToPlayer(playerID, event, payload)
	}
}

type staticRatings struct{ rating int }

func (s staticRatings) Rating(context.Context, string) int { return s.rating }
