package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hojin-dev/quiz-arena/internal/arena/grader"
	"github.com/hojin-dev/quiz-arena/internal/arena/persist"
	"github.com/hojin-dev/quiz-arena/internal/arena/question"
	"github.com/hojin-dev/quiz-arena/internal/arena/session"
	"github.com/hojin-dev/quiz-arena/internal/arena/timer"
	"github.com/hojin-dev/quiz-arena/internal/obslog"
)

// Deps wires the engine's collaborators. Everything is injected; the
// engine owns only the per-room runners and the timer registry.
type Deps struct {
	Clock     clockwork.Clock
	Sessions  *session.Store
	Grader    grader.Grader
	Questions question.Source
	Writer    ResultWriter
	Broadcast Broadcaster
	Ratings   RatingUpdater // optional
}

// Engine drives every active match through its round progression:
//
//	ready → question → grading → review → {ready(next) | finished}
//
// Each room gets one runner goroutine and a typed event mailbox; timer
// fires and transport notifications enter through the same mailbox, so
// events are processed strictly sequentially per room. Only the oracle
// call and the persistence transaction suspend a runner, and the match
// sits in the grading phase for that whole window, letting phase gating
// (not locks) reject late submissions.
type Engine struct {
	cfg  Config
	deps Deps

	timers *timer.Registry

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id      string
	players [2]session.Player
	events  chan roomEvent

	// runner-local state, touched only by the runner goroutine
	roundNum int
	final    *session.FinalResult
}

var ErrMatchExists = errors.New("player already in an active match")

func New(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if cfg.TotalRounds <= 0 {
		cfg.TotalRounds = 5
	}
	e := &Engine{
		cfg:   cfg,
		deps:  deps,
		rooms: make(map[string]*room),
	}
	e.timers = timer.NewRegistry(deps.Clock, e.onTimer)
	return e
}

// StartMatch creates the session for a freshly paired room and launches
// its runner. The room id comes from the matchmaking queue.
func (e *Engine) StartMatch(roomID string, p1, p2 session.Player) error {
	if _, busy := e.deps.Sessions.RoomByPlayer(p1.ID); busy {
		return ErrMatchExists
	}
	if _, busy := e.deps.Sessions.RoomByPlayer(p2.ID); busy {
		return ErrMatchExists
	}
	if err := e.deps.Sessions.Create(roomID, p1, p2, e.cfg.TotalRounds); err != nil {
		return err
	}
	r := &room{
		id:      roomID,
		players: [2]session.Player{p1, p2},
		events:  make(chan roomEvent, 32),
	}
	e.mu.Lock()
	e.rooms[roomID] = r
	e.mu.Unlock()

	obslog.L().Info("match_start",
		zap.String("room_id", roomID),
		zap.String("player1", p1.ID),
		zap.String("player2", p2.ID),
		zap.Int("rating1", p1.Rating),
		zap.Int("rating2", p2.Rating),
	)
	go e.run(r)
	return nil
}

// SubmitAnswer records a player's answer. State errors (wrong phase,
// duplicate, unknown player) reject synchronously with no side effects.
// When both answers are in, the runner is nudged to grade immediately
// instead of waiting out the question timer.
func (e *Engine) SubmitAnswer(roomID, playerID, text string) (SubmitAck, error) {
	both, err := e.deps.Sessions.SubmitAnswer(roomID, playerID, text)
	if err != nil {
		return SubmitAck{}, err
	}
	if opp, ok := e.opponentOf(roomID, playerID); ok {
		e.deps.Broadcast.ToPlayer(opp, EventOpponentSubmitted, struct{}{})
	}
	if both {
		e.deliver(roomID, roomEvent{kind: evBothSubmitted})
	}
	return SubmitAck{OpponentAlreadySubmitted: both}, nil
}

// Disconnect handles a player dropping mid-match: the remaining player
// wins by forfeit. Disconnects outside a match are ignored.
func (e *Engine) Disconnect(playerID string) {
	roomID, ok := e.deps.Sessions.RoomByPlayer(playerID)
	if !ok {
		return
	}
	e.deliver(roomID, roomEvent{kind: evDisconnect, leaverID: playerID})
}

// ActiveRooms reports how many matches are currently running.
func (e *Engine) ActiveRooms() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms)
}

// onTimer routes a timer fire into the room's mailbox. Fires for rooms
// that finished in the meantime are dropped.
func (e *Engine) onTimer(ev timer.Event) {
	e.deliver(ev.RoomID, roomEvent{kind: evTimer, timer: ev})
}

func (e *Engine) deliver(roomID string, ev roomEvent) {
	e.mu.Lock()
	r, ok := e.rooms[roomID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case r.events <- ev:
	default:
		obslog.L().Warn("room_mailbox_full", zap.String("room_id", roomID), zap.Int("kind", int(ev.kind)))
	}
}

func (e *Engine) unregister(roomID string) {
	e.mu.Lock()
	delete(e.rooms, roomID)
	e.mu.Unlock()
}

// run is the per-room runner. It returns when the match reaches a
// terminal state; the mailbox is then unreachable (the room is
// unregistered) and gets collected with the room.
func (e *Engine) run(r *room) {
	if e.enterReady(r) {
		return
	}
	for ev := range r.events {
		if e.handle(r, ev) {
			return
		}
	}
}

// handle processes one event; true means the match reached a terminal
// state and the runner should exit.
func (e *Engine) handle(r *room, ev roomEvent) bool {
	switch ev.kind {
	case evDisconnect:
		return e.forfeit(r, ev.leaverID)
	case evBothSubmitted:
		if !e.inPhase(r, session.PhaseQuestion) {
			return false
		}
		return e.enterGrading(r)
	case evTimer:
		return e.handleTimer(r, ev.timer)
	}
	return false
}

func (e *Engine) handleTimer(r *room, ev timer.Event) bool {
	switch ev.Kind {
	case timer.KindTick:
		e.toBoth(r, EventRoundTick, TickPayload{RemainedSec: ev.Remaining})
		return false
	case timer.KindReady:
		if !e.inPhase(r, session.PhaseReady) {
			return false
		}
		return e.enterQuestion(r)
	case timer.KindQuestion:
		if !e.inPhase(r, session.PhaseQuestion) {
			return false
		}
		// hard timeout: auto-submit an empty answer for every
		// non-submitter, then force grading
		for _, p := range r.players {
			if _, err := e.deps.Sessions.SubmitAnswer(r.id, p.ID, ""); err != nil &&
				!errors.Is(err, session.ErrDuplicateSubmit) {
				return e.failRoom(r, fmt.Errorf("auto-submit for %s: %w", p.ID, err))
			}
		}
		return e.enterGrading(r)
	case timer.KindReview:
		if !e.inPhase(r, session.PhaseReview) {
			return false
		}
		if r.final != nil {
			return e.finishMatch(r, *r.final, "ranked")
		}
		return e.enterReady(r)
	}
	return false
}

func (e *Engine) enterReady(r *room) bool {
	if err := e.deps.Sessions.SetPhase(r.id, session.PhaseReady); err != nil {
		return e.failRoom(r, err)
	}
	e.toBoth(r, EventRoundReady, ReadyPayload{
		DurationSec: int(e.cfg.ReadyDuration.Seconds()),
		RoundIndex:  r.roundNum + 1,
		TotalRounds: e.cfg.TotalRounds,
	})
	e.timers.StartReady(r.id, e.cfg.ReadyDuration)
	e.timers.StartTick(r.id, int(e.cfg.ReadyDuration.Seconds()))
	return false
}

func (e *Engine) enterQuestion(r *room) bool {
	n, err := e.deps.Sessions.StartNextRound(r.id)
	if err != nil {
		return e.failRoom(r, err)
	}
	r.roundNum = n

	q, err := e.deps.Questions.Next(context.Background(), n)
	if err != nil {
		return e.failRoom(r, fmt.Errorf("fetch question for round %d: %w", n, err))
	}
	if err := e.deps.Sessions.SetQuestion(r.id, q); err != nil {
		return e.failRoom(r, err)
	}
	if err := e.deps.Sessions.SetPhase(r.id, session.PhaseQuestion); err != nil {
		return e.failRoom(r, err)
	}

	d := answerDuration(q)
	e.toBoth(r, EventRoundStart, StartPayload{
		DurationSec: int(d.Seconds()),
		Question: QuestionView{
			ID:         q.ID,
			Type:       string(q.Type),
			Difficulty: string(q.Difficulty),
			Prompt:     q.Prompt,
		},
	})
	e.timers.StartQuestion(r.id, d)
	e.timers.StartTick(r.id, int(d.Seconds()))
	return false
}

// enterGrading suspends the runner on the oracle call. The match stays
// in the grading phase for the whole await, so submissions arriving in
// that window are rejected by phase gating.
func (e *Engine) enterGrading(r *room) bool {
	e.timers.Clear(r.id, timer.KindQuestion)
	e.timers.Clear(r.id, timer.KindTick)
	if err := e.deps.Sessions.SetPhase(r.id, session.PhaseGrading); err != nil {
		return e.failRoom(r, err)
	}
	in, err := e.deps.Sessions.GradingInput(r.id)
	if err != nil {
		return e.failRoom(r, err)
	}

	subs := make([]grader.Submission, 0, len(in.Submissions))
	for _, s := range in.Submissions {
		subs = append(subs, grader.Submission{PlayerID: s.PlayerID, Answer: s.Answer})
	}
	grades, err := e.deps.Grader.Grade(context.Background(), in.Question, subs)
	if err != nil {
		return e.failRoom(r, fmt.Errorf("grade round %d: %w", in.RoundNumber, err))
	}

	bonusTo := speedBonusWinner(grades, in.Submissions)
	result := session.RoundResult{}
	for _, g := range grades {
		pr := session.PlayerResult{
			PlayerID: g.PlayerID,
			Answer:   g.Answer,
			Correct:  g.IsCorrect,
			Score:    scaledScore(g.Score, in.Question.Difficulty),
			Feedback: g.Feedback,
		}
		if g.PlayerID == bonusTo {
			pr.SpeedBonus = e.cfg.SpeedBonus
		}
		result.Results = append(result.Results, pr)
		if err := e.deps.Sessions.AddScore(r.id, g.PlayerID, pr.Score+pr.SpeedBonus); err != nil {
			return e.failRoom(r, err)
		}
	}
	if err := e.deps.Sessions.SetRoundResult(r.id, result); err != nil {
		return e.failRoom(r, err)
	}

	if in.RoundNumber == e.cfg.TotalRounds {
		totals, err := e.deps.Sessions.Scores(r.id)
		if err != nil {
			return e.failRoom(r, err)
		}
		final := computeFinal(r.players, totals)
		r.final = &final
	}
	return e.enterReview(r, result, in.Question)
}

func (e *Engine) enterReview(r *room, result session.RoundResult, q question.Question) bool {
	if err := e.deps.Sessions.SetPhase(r.id, session.PhaseReview); err != nil {
		return e.failRoom(r, err)
	}
	totals, err := e.deps.Sessions.Scores(r.id)
	if err != nil {
		return e.failRoom(r, err)
	}
	views := make(map[string]AnswerView, len(result.Results))
	for _, pr := range result.Results {
		views[pr.PlayerID] = AnswerView{
			PlayerID:   pr.PlayerID,
			Answer:     pr.Answer,
			Correct:    pr.Correct,
			Score:      pr.Score,
			SpeedBonus: pr.SpeedBonus,
			Feedback:   pr.Feedback,
		}
	}
	for i, p := range r.players {
		opp := r.players[1-i]
		e.deps.Broadcast.ToPlayer(p.ID, EventRoundEnd, RoundEndPayload{
			RoundIndex:  r.roundNum,
			Yours:       views[p.ID],
			Opponent:    views[opp.ID],
			Totals:      totals,
			Solution:    q.Answer,
			Explanation: q.Explanation,
		})
	}
	e.timers.StartReview(r.id, e.cfg.ReviewDuration)
	return false
}

// finishMatch runs the one persistence attempt sequence for the match,
// then delivers the definitive match:end. Persistence trouble degrades
// to zero rating deltas; it never withholds the outcome.
func (e *Engine) finishMatch(r *room, final session.FinalResult, matchType string) bool {
	e.timers.ClearAll(r.id)
	_ = e.deps.Sessions.SetPhase(r.id, session.PhaseFinished)
	snap, err := e.deps.Sessions.Snapshot(r.id)
	if err != nil {
		return e.failRoom(r, err)
	}
	e.deps.Sessions.Delete(r.id)
	e.unregister(r.id)

	rec := buildRecord(snap, final, matchType)
	change, err := e.deps.Writer.Record(context.Background(), rec)
	if err != nil {
		obslog.L().Warn("match_persist_degraded",
			zap.String("room_id", r.id),
			zap.String("match_type", matchType),
			zap.Error(err),
		)
	}
	if e.deps.Ratings != nil && len(change.NewRatings) > 0 {
		e.deps.Ratings.SetAll(context.Background(), change.NewRatings)
	}

	for _, p := range r.players {
		e.deps.Broadcast.ToPlayer(p.ID, EventMatchEnd, MatchEndPayload{
			IsWin:           !final.IsDraw && p.ID == final.WinnerID,
			IsDraw:          final.IsDraw,
			FinalScores:     final.Totals,
			TierPointChange: change.Deltas[p.ID],
		})
	}
	obslog.L().Info("match_end",
		zap.String("room_id", r.id),
		zap.String("match_type", matchType),
		zap.String("winner_id", final.WinnerID),
		zap.Bool("is_draw", final.IsDraw),
		zap.Any("totals", final.Totals),
	)
	return true
}

// forfeit settles the match for the remaining player after a mid-match
// disconnect. Not an error path: one persistence attempt follows.
func (e *Engine) forfeit(r *room, leaverID string) bool {
	e.timers.ClearAll(r.id)
	winner := r.players[0].ID
	if winner == leaverID {
		winner = r.players[1].ID
	}
	totals, err := e.deps.Sessions.Scores(r.id)
	if err != nil {
		return e.failRoom(r, err)
	}
	e.deps.Broadcast.ToPlayer(winner, EventOpponentDisconnected, DisconnectedPayload{
		WinnerID: winner,
		Reason:   "opponent_disconnected",
	})
	obslog.L().Info("match_forfeit",
		zap.String("room_id", r.id),
		zap.String("leaver_id", leaverID),
		zap.String("winner_id", winner),
	)
	return e.finishMatch(r, session.FinalResult{WinnerID: winner, Totals: totals}, "forfeit")
}

// failRoom is the errored terminal state: guaranteed timer teardown and
// a halt to progression. The session is left resident for inspection;
// recovery is intentionally not attempted.
func (e *Engine) failRoom(r *room, err error) bool {
	e.timers.ClearAll(r.id)
	_ = e.deps.Sessions.SetPhase(r.id, session.PhaseErrored)
	e.unregister(r.id)
	obslog.L().Error("room_errored",
		zap.String("room_id", r.id),
		zap.Int("round", r.roundNum),
		zap.Error(err),
	)
	return true
}

func (e *Engine) inPhase(r *room, want session.Phase) bool {
	got, err := e.deps.Sessions.Phase(r.id)
	return err == nil && got == want
}

func (e *Engine) toBoth(r *room, event string, payload any) {
	for _, p := range r.players {
		e.deps.Broadcast.ToPlayer(p.ID, event, payload)
	}
}

func (e *Engine) opponentOf(roomID, playerID string) (string, bool) {
	players, err := e.deps.Sessions.Players(roomID)
	if err != nil {
		return "", false
	}
	if players[0].ID == playerID {
		return players[1].ID, true
	}
	if players[1].ID == playerID {
		return players[0].ID, true
	}
	return "", false
}

// buildRecord flattens the session snapshot into the writer's shape.
// Rounds without a grading result (a forfeit mid-question) are not
// persisted; partial submissions carry no graded scores.
func buildRecord(snap *session.Match, final session.FinalResult, matchType string) *persist.MatchRecord {
	rec := &persist.MatchRecord{
		RoomID:    snap.RoomID,
		MatchType: matchType,
		Player1:   snap.Players[0].ID,
		Player2:   snap.Players[1].ID,
		WinnerID:  final.WinnerID,
		IsDraw:    final.IsDraw,
		Totals:    final.Totals,
	}
	for _, round := range snap.Rounds {
		if round.Result == nil || round.Question == nil {
			continue
		}
		rr := persist.RoundRecord{Number: round.Number, QuestionID: round.Question.ID}
		for _, pr := range round.Result.Results {
			rr.Answers = append(rr.Answers, persist.AnswerRecord{
				PlayerID: pr.PlayerID,
				Answer:   pr.Answer,
				Score:    pr.Score + pr.SpeedBonus,
				Correct:  pr.Correct,
				Feedback: pr.Feedback,
			})
		}
		rec.Rounds = append(rec.Rounds, rr)
	}
	return rec
}
