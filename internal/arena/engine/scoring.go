package engine

import (
	"math"
	"time"

	"github.com/hojin-dev/quiz-arena/internal/arena/grader"
	"github.com/hojin-dev/quiz-arena/internal/arena/question"
	"github.com/hojin-dev/quiz-arena/internal/arena/session"
)

// answerDuration computes the answer window from question type and
// difficulty. Longer-form answers get a bigger base; harder questions
// stretch it further.
func answerDuration(q question.Question) time.Duration {
	var base time.Duration
	switch q.Type {
	case question.TypeEssay:
		base = 60 * time.Second
	case question.TypeShort:
		base = 30 * time.Second
	default:
		base = 15 * time.Second
	}
	switch q.Difficulty {
	case question.DifficultyMedium:
		return base + base/4
	case question.DifficultyHard:
		return base + base/2
	default:
		return base
	}
}

// scaledScore maps the oracle's 0–10 score onto the difficulty's
// attainable maximum: round(oracleScore/10 × difficultyMax).
func scaledScore(oracleScore int, d question.Difficulty) int {
	return int(math.Round(float64(oracleScore) / 10.0 * float64(question.MaxScore(d))))
}

// speedBonusWinner picks the single fastest correct submitter, or ""
// when nobody answered correctly. Ties break on submission time, then
// on player id, never on iteration order.
func speedBonusWinner(grades []grader.Grade, subs []session.Submission) string {
	at := make(map[string]time.Time, len(subs))
	for _, s := range subs {
		at[s.PlayerID] = s.SubmittedAt
	}
	winner := ""
	var winnerAt time.Time
	for _, g := range grades {
		if !g.IsCorrect {
			continue
		}
		t, ok := at[g.PlayerID]
		if !ok {
			continue
		}
		switch {
		case winner == "":
			winner, winnerAt = g.PlayerID, t
		case t.Before(winnerAt):
			winner, winnerAt = g.PlayerID, t
		case t.Equal(winnerAt) && g.PlayerID < winner:
			winner, winnerAt = g.PlayerID, t
		}
	}
	return winner
}

// computeFinal settles the match from the cumulative totals: the strict
// higher scorer wins, equal totals draw.
func computeFinal(players [2]session.Player, totals map[string]int) session.FinalResult {
	a, b := players[0].ID, players[1].ID
	final := session.FinalResult{Totals: totals}
	switch {
	case totals[a] > totals[b]:
		final.WinnerID = a
	case totals[b] > totals[a]:
		final.WinnerID = b
	default:
		final.IsDraw = true
	}
	return final
}
