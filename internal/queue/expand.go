package queue

import "time"

// MaxExpansionLevel is the highest preference-expansion level.
const MaxExpansionLevel = 3

// expansionCheckpoints are the total-wait thresholds at which a queue
// entry's criteria widen to the corresponding level (index+1).
var expansionCheckpoints = []time.Duration{
	10 * time.Second, // level 1
	15 * time.Second, // level 2
	20 * time.Second, // level 3
}

// Per-level widening applied to the ORIGINAL criteria, so levels are
// absolute rather than compounding.
var (
	ageWidenByLevel  = []int{0, 2, 5, 10}
	distAddByLevel   = []float64{0, 10, 25, 50}
	genderAnyAtLevel = 3
)

// ExpansionLevelFor returns the expansion level a total wait duration has
// earned: the number of checkpoints crossed, capped at MaxExpansionLevel.
func ExpansionLevelFor(wait time.Duration) int {
	level := 0
	for _, cp := range expansionCheckpoints {
		if wait >= cp {
			level++
		}
	}
	return level
}

// ExpandCriteria returns the effective criteria for the given level,
// derived from the original (unexpanded) criteria. Level 0 returns the
// original unchanged; the original is never mutated, so a user who leaves
// and rejoins starts over from it.
func ExpandCriteria(orig Criteria, level int) Criteria {
	if level <= 0 {
		return orig
	}
	if level > MaxExpansionLevel {
		level = MaxExpansionLevel
	}

	eff := orig
	eff.AgeMin = orig.AgeMin - ageWidenByLevel[level]
	if eff.AgeMin < 18 {
		eff.AgeMin = 18
	}
	eff.AgeMax = orig.AgeMax + ageWidenByLevel[level]
	if orig.MaxDistanceKm > 0 {
		eff.MaxDistanceKm = orig.MaxDistanceKm + distAddByLevel[level]
	}
	if level >= genderAnyAtLevel {
		eff.GenderPref = GenderAny
	}
	return eff
}
