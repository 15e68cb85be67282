package session

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hojin-dev/quiz-arena/internal/arena/question"
)

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	return NewStore(clk), clk
}

func mustCreate(t *testing.T, s *Store, roomID string) {
	t.Helper()
	if err := s.Create(roomID, Player{ID: "p1", Rating: 1000}, Player{ID: "p2", Rating: 1050}, 5); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestCreateDuplicateRoomRejected(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreate(t, s, "room1")
	err := s.Create("room1", Player{ID: "x"}, Player{ID: "y"}, 5)
	if !errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
}

func TestStartNextRoundExhausts(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreate(t, s, "room1")
	for i := 1; i <= 5; i++ {
		n, err := s.StartNextRound("room1")
		if err != nil {
			t.Fatalf("StartNextRound #%d: %v", i, err)
		}
		if n != i {
			t.Fatalf("round number = %d, want %d", n, i)
		}
	}
	if _, err := s.StartNextRound("room1"); !errors.Is(err, ErrAllRoundsPlayed) {
		t.Fatalf("expected ErrAllRoundsPlayed, got %v", err)
	}
}

func TestQuestionSetOnce(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreate(t, s, "room1")
	if _, err := s.StartNextRound("room1"); err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}
	q := question.Question{ID: "q1", Difficulty: question.DifficultyEasy, Prompt: "2+2?", Answer: "4"}
	if err := s.SetQuestion("room1", q); err != nil {
		t.Fatalf("SetQuestion: %v", err)
	}
	if err := s.SetQuestion("room1", q); !errors.Is(err, ErrQuestionSet) {
		t.Fatalf("expected ErrQuestionSet, got %v", err)
	}
	got, err := s.Question("room1")
	if err != nil || got.ID != "q1" {
		t.Fatalf("Question: %v %+v", err, got)
	}
}

func TestSubmitAnswerPhaseAndDuplicateGating(t *testing.T) {
	s, clk := newTestStore(t)
	mustCreate(t, s, "room1")
	if _, err := s.StartNextRound("room1"); err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}

	// ready phase: submissions rejected
	if _, err := s.SubmitAnswer("room1", "p1", "a"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase in ready, got %v", err)
	}
	if err := s.SetPhase("room1", PhaseQuestion); err != nil {
		t.Fatalf("SetPhase: %v", err)
	}

	if _, err := s.SubmitAnswer("room1", "ghost", "a"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}

	both, err := s.SubmitAnswer("room1", "p1", "first")
	if err != nil {
		t.Fatalf("SubmitAnswer p1: %v", err)
	}
	if both {
		t.Fatalf("both submitted after one answer")
	}

	// second submit for a filled cell is rejected and leaves it unchanged
	clk.Advance(time.Second)
	if _, err := s.SubmitAnswer("room1", "p1", "overwrite"); !errors.Is(err, ErrDuplicateSubmit) {
		t.Fatalf("expected ErrDuplicateSubmit, got %v", err)
	}

	both, err = s.SubmitAnswer("room1", "p2", "second")
	if err != nil {
		t.Fatalf("SubmitAnswer p2: %v", err)
	}
	if !both {
		t.Fatalf("expected both submitted")
	}

	in, err := s.GradingInput("room1")
	if err == nil {
		t.Fatalf("GradingInput should fail without a question")
	}
	if err := s.SetQuestion("room1", question.Question{ID: "q1"}); err != nil {
		t.Fatalf("SetQuestion: %v", err)
	}
	in, err = s.GradingInput("room1")
	if err != nil {
		t.Fatalf("GradingInput: %v", err)
	}
	if len(in.Submissions) != 2 || in.Submissions[0].Answer != "first" || in.Submissions[1].Answer != "second" {
		t.Fatalf("unexpected grading input: %+v", in)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreate(t, s, "room1")
	if err := s.AddScore("room1", "p1", 10); err != nil {
		t.Fatalf("AddScore: %v", err)
	}
	if err := s.AddScore("room1", "p1", -3); !errors.Is(err, ErrNegativeScore) {
		t.Fatalf("expected ErrNegativeScore, got %v", err)
	}
	if err := s.AddScore("room1", "p1", 0); err != nil {
		t.Fatalf("AddScore zero: %v", err)
	}
	sc, err := s.Scores("room1")
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if sc["p1"] != 10 || sc["p2"] != 0 {
		t.Fatalf("unexpected scores: %v", sc)
	}
}

func TestRoomByPlayer(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreate(t, s, "room1")
	if room, ok := s.RoomByPlayer("p2"); !ok || room != "room1" {
		t.Fatalf("RoomByPlayer(p2) = %q, %v", room, ok)
	}
	if _, ok := s.RoomByPlayer("stranger"); ok {
		t.Fatalf("expected miss for unknown player")
	}
	s.Delete("room1")
	if _, ok := s.RoomByPlayer("p2"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreate(t, s, "room1")
	if _, err := s.StartNextRound("room1"); err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}
	if err := s.SetPhase("room1", PhaseQuestion); err != nil {
		t.Fatalf("SetPhase: %v", err)
	}
	if _, err := s.SubmitAnswer("room1", "p1", "a"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	snap, err := s.Snapshot("room1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap.Scores["p1"] = 999
	snap.Rounds[0].Submissions["p1"] = Submission{PlayerID: "p1", Answer: "tampered"}

	sc, _ := s.Scores("room1")
	if sc["p1"] != 0 {
		t.Fatalf("snapshot mutation leaked into store scores: %v", sc)
	}
	fresh, _ := s.Snapshot("room1")
	if fresh.Rounds[0].Submissions["p1"].Answer != "a" {
		t.Fatalf("snapshot mutation leaked into store submissions")
	}
}
