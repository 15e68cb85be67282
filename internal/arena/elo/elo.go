package elo

import "math"

// Expected is the classical ELO win expectancy for a player against an
// opponent: 1 / (1 + 10^((opp-self)/400)).
func Expected(rating, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rating)/400.0))
}

// KFactor shrinks the per-match swing as a player gains experience or
// reaches a high rating: 40 under 30 games, 16 at 2400+, otherwise 32.
func KFactor(rating, totalGames int) int {
	switch {
	case totalGames < 30:
		return 40
	case rating >= 2400:
		return 16
	default:
		return 32
	}
}

// Delta is the signed rating change for one side, computed from its own
// pre-match rating and game count. won maps to actual ∈ {0, 1}.
func Delta(rating, opponent, totalGames int, won bool) int {
	actual := 0.0
	if won {
		actual = 1.0
	}
	k := float64(KFactor(rating, totalGames))
	return int(math.Round(k * (actual - Expected(rating, opponent))))
}

// Apply clamps the post-match rating at zero.
func Apply(rating, delta int) int {
	if r := rating + delta; r > 0 {
		return r
	}
	return 0
}

// MatchUpdate computes both sides' deltas independently from their own
// pre-match ratings and game counts.
func MatchUpdate(winnerRating, loserRating, winnerGames, loserGames int) (winnerDelta, loserDelta int) {
	winnerDelta = Delta(winnerRating, loserRating, winnerGames, true)
	loserDelta = Delta(loserRating, winnerRating, loserGames, false)
	return winnerDelta, loserDelta
}
