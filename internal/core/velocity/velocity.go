// Package velocity scores events by how strongly they signal momentum.
// The scorer is a pure function; the aggregator decides which size it feeds in
package velocity

import (
	"math"

	"gitpulse/internal/core/event"
)

// Scale stretches scores into a readable display range, nothing more
const Scale = 10.0

// weights rank event kinds; stars carry the most signal, comments the least
var weights = map[event.Type]float64{
	event.TypeStar:         1.0,
	event.TypeFork:         0.8,
	event.TypePullRequest:  0.6,
	event.TypeRelease:      0.5,
	event.TypeIssues:       0.4,
	event.TypePush:         0.3,
	event.TypeCreate:       0.2,
	event.TypeIssueComment: 0.1,
	event.TypeUnknown:      0.0,
}

// Weight returns the base weight for t; anything outside the enum weighs zero
func Weight(t event.Type) float64 {
	return weights[t]
}

// Score computes the velocity of a single event given the entity's current
// size. Smaller entities score higher for the same activity:
//
//	score = weight(t) * 1/ln(max(size,1)+1) * Scale
//
// The floor at 1 keeps size 0 defined (and exactly equal to size 1, the
// maximum boost for brand-new entities); for size >= 1 the score is strictly
// decreasing. Results are rounded to 4 decimals, the stored precision
func Score(t event.Type, size int64) float64 {
	w := Weight(t)
	if w == 0 {
		return 0
	}
	factor := 1.0 / math.Log(float64(max(size, 1))+1)
	return round4(w * factor * Scale)
}

// Delta is the event's signed effect on the entity's size metric.
// Only stars move it; everything else observes without changing scale
func Delta(t event.Type) int64 {
	if t == event.TypeStar {
		return 1
	}
	return 0
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
