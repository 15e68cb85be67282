package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hojin-dev/quiz-arena/internal/arena/engine"
	"github.com/hojin-dev/quiz-arena/internal/arena/queue"
	"github.com/hojin-dev/quiz-arena/internal/arena/session"
	"github.com/hojin-dev/quiz-arena/internal/obslog"
)

// Inbound actions accepted on the socket.
const (
	ActionEnqueue = "enqueue"
	ActionDequeue = "dequeue"
	ActionSubmit  = "submit"
)

// Gateway-level events, on top of the engine's match events.
const (
	EventQueueJoined    = "queue:joined"
	EventQueueLeft      = "queue:left"
	EventSubmitAck      = "submit:ack"
	EventSubmitRejected = "submit:rejected"
	EventError          = "error"
)

// Ratings resolves a player's current rating at enqueue time.
type Ratings interface {
	Rating(ctx context.Context, playerID string) int
}

// Matchmaker is the rating-gap queue.
type Matchmaker interface {
	Add(playerID string, rating int) *queue.Pair
	Remove(playerID string) bool
}

// MatchEngine is the slice of the engine the gateway drives.
type MatchEngine interface {
	StartMatch(roomID string, p1, p2 session.Player) error
	SubmitAnswer(roomID, playerID, text string) (engine.SubmitAck, error)
	Disconnect(playerID string)
}

// RoomResolver maps a connected player to their live room.
type RoomResolver interface {
	RoomByPlayer(playerID string) (string, bool)
}

type inboundFrame struct {
	Action string `json:"action"`
	Answer string `json:"answer,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Config struct {
	WriteTimeout time.Duration
	SendBuffer   int
}

// Server owns the websocket connections and routes frames between
// clients and the match core. It is the engine's Broadcaster: pushes to
// a player go through a per-connection buffered channel and a single
// writer goroutine, so a slow client drops frames instead of stalling a
// match.
type Server struct {
	cfg     Config
	ratings Ratings
	queue   Matchmaker
	engine  MatchEngine
	rooms   RoomResolver

	mu    sync.Mutex
	conns map[string]*client
}

type client struct {
	playerID string
	ws       *websocket.Conn
	send     chan outFrame
	done     chan struct{}
	once     sync.Once
}

func NewServer(cfg Config, ratings Ratings, mm Matchmaker, eng MatchEngine, rooms RoomResolver) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Server{
		cfg:     cfg,
		ratings: ratings,
		queue:   mm,
		engine:  eng,
		rooms:   rooms,
		conns:   make(map[string]*client),
	}
}

// ServeHTTP upgrades GET /ws?playerId=... and runs the connection until
// the client leaves. Identity comes from the query string; the engine is
// deployed behind an authenticating proxy.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID := strings.TrimSpace(r.URL.Query().Get("playerId"))
	if playerID == "" {
		http.Error(w, "playerId is required", http.StatusBadRequest)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("player_id", playerID), zap.Error(err))
		return
	}

	c := &client{
		playerID: playerID,
		ws:       ws,
		send:     make(chan outFrame, s.cfg.SendBuffer),
		done:     make(chan struct{}),
	}
	s.register(c)
	obslog.L().Info("ws_connected", zap.String("player_id", playerID))

	go s.writeLoop(c)
	s.readLoop(r.Context(), c)

	s.unregister(c)
	s.queue.Remove(playerID)
	s.engine.Disconnect(playerID)
	obslog.L().Info("ws_disconnected", zap.String("player_id", playerID))
}

// ToPlayer implements engine.Broadcaster. Frames to players with no live
// connection, or with a full send buffer, are dropped.
func (s *Server) ToPlayer(playerID, event string, payload any) {
	s.mu.Lock()
	c, ok := s.conns[playerID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case c.send <- outFrame{Event: event, Data: payload}:
	default:
		obslog.L().Warn("ws_send_dropped",
			zap.String("player_id", playerID),
			zap.String("event", event),
		)
	}
}

// StartPair spins up the match for a freshly matched pair. Shared by the
// enqueue path and the periodic queue sweep.
func (s *Server) StartPair(p queue.Pair) {
	p1 := session.Player{ID: p.Players[0].ID, Rating: p.Players[0].Rating}
	p2 := session.Player{ID: p.Players[1].ID, Rating: p.Players[1].Rating}
	if err := s.engine.StartMatch(p.RoomID, p1, p2); err != nil {
		obslog.L().Error("match_start_failed",
			zap.String("room_id", p.RoomID),
			zap.String("player1", p1.ID),
			zap.String("player2", p2.ID),
			zap.Error(err),
		)
		s.ToPlayer(p1.ID, EventError, map[string]string{"message": "failed to start match"})
		s.ToPlayer(p2.ID, EventError, map[string]string{"message": "failed to start match"})
	}
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			c.close(websocket.StatusNormalClosure, "bye")
			return
		}
		s.dispatch(ctx, c, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, frame inboundFrame) {
	switch frame.Action {
	case ActionEnqueue:
		rating := s.ratings.Rating(ctx, c.playerID)
		pair := s.queue.Add(c.playerID, rating)
		s.ToPlayer(c.playerID, EventQueueJoined, map[string]int{"rating": rating})
		if pair != nil {
			s.StartPair(*pair)
		}
	case ActionDequeue:
		s.queue.Remove(c.playerID)
		s.ToPlayer(c.playerID, EventQueueLeft, struct{}{})
	case ActionSubmit:
		roomID, ok := s.rooms.RoomByPlayer(c.playerID)
		if !ok {
			s.ToPlayer(c.playerID, EventSubmitRejected, map[string]string{"reason": "not in a match"})
			return
		}
		ack, err := s.engine.SubmitAnswer(roomID, c.playerID, frame.Answer)
		if err != nil {
			s.ToPlayer(c.playerID, EventSubmitRejected, map[string]string{"reason": err.Error()})
			return
		}
		s.ToPlayer(c.playerID, EventSubmitAck, ack)
	default:
		s.ToPlayer(c.playerID, EventError, map[string]string{"message": "unknown action: " + frame.Action})
	}
}

func (s *Server) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
			err := wsjson.Write(ctx, c.ws, frame)
			cancel()
			if err != nil {
				c.close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

// register installs the connection, displacing any previous connection
// of the same player.
func (s *Server) register(c *client) {
	s.mu.Lock()
	prev := s.conns[c.playerID]
	s.conns[c.playerID] = c
	s.mu.Unlock()
	if prev != nil {
		prev.close(websocket.StatusPolicyViolation, "superseded by new connection")
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if s.conns[c.playerID] == c {
		delete(s.conns, c.playerID)
	}
	s.mu.Unlock()
	c.close(websocket.StatusNormalClosure, "bye")
}

// Connected reports how many players currently hold a live socket.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close(code, reason)
	})
}
