package grader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hojin-dev/quiz-arena/internal/arena/question"
)

func TestHTTPClientGrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/grade" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req gradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Question.ID != "q1" || len(req.Submissions) != 2 {
			t.Errorf("unexpected payload: %+v", req)
		}
		grades := []Grade{
			{PlayerID: req.Submissions[0].PlayerID, Answer: req.Submissions[0].Answer, IsCorrect: true, Score: 12, Feedback: "good"},
			{PlayerID: req.Submissions[1].PlayerID, Answer: req.Submissions[1].Answer, IsCorrect: false, Score: -1, Feedback: "off"},
		}
		_ = json.NewEncoder(w).Encode(gradeResponse{Grades: grades})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	grades, err := c.Grade(context.Background(), question.Question{ID: "q1", Answer: "4"}, []Submission{
		{PlayerID: "p1", Answer: "4"},
		{PlayerID: "p2", Answer: "5"},
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if len(grades) != 2 {
		t.Fatalf("got %d grades", len(grades))
	}
	// scores clamp to the 0–10 oracle scale
	if grades[0].Score != 10 || grades[1].Score != 0 {
		t.Fatalf("clamped scores = %d,%d, want 10,0", grades[0].Score, grades[1].Score)
	}
	if !grades[0].IsCorrect || grades[1].IsCorrect {
		t.Fatalf("unexpected correctness: %+v", grades)
	}
}

func TestHTTPClientGradeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oracle overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	if _, err := c.Grade(context.Background(), question.Question{ID: "q1"}, []Submission{{PlayerID: "p1"}}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestHTTPClientGradeCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(gradeResponse{Grades: []Grade{{PlayerID: "p1", Score: 5}}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.Grade(context.Background(), question.Question{ID: "q1"}, []Submission{
		{PlayerID: "p1"}, {PlayerID: "p2"},
	})
	if err == nil {
		t.Fatalf("expected error on grade count mismatch")
	}
}
