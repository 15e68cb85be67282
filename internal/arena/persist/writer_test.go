package persist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func testWriter() *Writer {
	return NewWriter(nil, clockwork.NewFakeClock(), Config{
		MaxAttempts: 5,
		BackoffBase: 200 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	})
}

func TestBackoffDelaySchedule(t *testing.T) {
	w := testWriter()
	wants := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second, // capped
		5 * time.Second,
	}
	for i, want := range wants {
		if got := w.backoffDelay(i + 1); got != want {
			t.Fatalf("backoffDelay(%d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(markNonRetryable(errors.New("boom"))) {
		t.Fatalf("marked error should not be retryable")
	}
	if IsRetryable(fmt.Errorf("insert match: %w", ErrNoGeneratedID)) {
		t.Fatalf("missing generated id should not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Fatalf("canceled context should not be retryable")
	}
	if !IsRetryable(errors.New("connection refused")) {
		t.Fatalf("transient errors should be retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil error is not retryable")
	}
}

func TestClassifyAnswer(t *testing.T) {
	if got := ClassifyAnswer(AnswerRecord{Answer: "4", Correct: true}); got != StatusCorrect {
		t.Fatalf("correct answer classified as %s", got)
	}
	if got := ClassifyAnswer(AnswerRecord{Answer: "5", Correct: false}); got != StatusWrong {
		t.Fatalf("wrong answer classified as %s", got)
	}
	// empty answer is a timeout auto-submission even if the oracle
	// somehow marked it correct
	if got := ClassifyAnswer(AnswerRecord{Answer: "  ", Correct: true}); got != StatusTimeout {
		t.Fatalf("empty answer classified as %s", got)
	}
}

func TestValidateRejectsMalformedRecords(t *testing.T) {
	cases := []*MatchRecord{
		nil,
		{RoomID: "", Player1: "a", Player2: "b", IsDraw: true},
		{RoomID: "r", Player1: "", Player2: "b", IsDraw: true},
		{RoomID: "r", Player1: "a", Player2: "b", WinnerID: "stranger"},
	}
	for i, rec := range cases {
		err := validate(rec)
		if err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
		if IsRetryable(err) {
			t.Fatalf("case %d: validation failures must be non-retryable", i)
		}
	}
	ok := &MatchRecord{RoomID: "r", Player1: "a", Player2: "b", WinnerID: "a"}
	if err := validate(ok); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	draw := &MatchRecord{RoomID: "r", Player1: "a", Player2: "b", IsDraw: true}
	if err := validate(draw); err != nil {
		t.Fatalf("draw record rejected: %v", err)
	}
}

func TestRecordReturnsNoChangeOnInvalidRecord(t *testing.T) {
	w := testWriter()
	change, err := w.Record(context.Background(), &MatchRecord{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(change.NewRatings) != 0 {
		t.Fatalf("expected no rating change, got %+v", change)
	}
}

func TestNoChangeCarriesZeroDeltas(t *testing.T) {
	rec := &MatchRecord{RoomID: "r", Player1: "a", Player2: "b", WinnerID: "a"}
	ch := NoChange(rec)
	if ch.Deltas["a"] != 0 || ch.Deltas["b"] != 0 {
		t.Fatalf("unexpected deltas: %+v", ch.Deltas)
	}
}
