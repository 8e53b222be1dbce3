package queue

import "time"

// HonestYesBoost is the fixed fairness bonus granted to a user who voted
// yes while their partner voted pass. Applied once per such outcome.
const HonestYesBoost = 10

// waitBands maps elapsed wait time to the wait component of the fairness
// score. Bands are cumulative-free: the score IS the band value, so
// recomputing it at any time is idempotent.
var waitBands = []struct {
	after time.Duration
	score int
}{
	{300 * time.Second, 20},
	{120 * time.Second, 15},
	{60 * time.Second, 10},
	{20 * time.Second, 5},
}

// WaitScore returns the wait-time component of the fairness score.
func WaitScore(wait time.Duration) int {
	for _, band := range waitBands {
		if wait >= band.after {
			return band.score
		}
	}
	return 0
}

// Score derives the full fairness score from elapsed wait time and the
// number of honest-yes boosts the user has accrued. Derivation from
// history, never increment, keeps redundant recomputation harmless.
func Score(wait time.Duration, boosts int) int {
	return WaitScore(wait) + HonestYesBoost*boosts
}
