// Package compare derives the signed delta between two scored runs under
// one shared policy. It holds no state and recomputes on every call.
package compare

import (
	"fmt"

	"github.com/halcyon-robotics/runscope/api/run"
	"github.com/halcyon-robotics/runscope/internal/engine/score"
)

// Delta is the run-to-run difference report. Every delta is other minus
// primary, so a positive distance delta means the compared run traveled
// further. DistanceDeltaM is nil when either run lacks a distance stat;
// a fabricated zero would read as "no difference".
type Delta struct {
	ScoreDelta     float64        `json:"score_delta"`
	CountDeltas    map[string]int `json:"count_deltas"`
	DurationDeltaS float64        `json:"duration_delta_s"`
	DistanceDeltaM *float64       `json:"distance_delta_m"`
	Better         bool           `json:"better"`
	Equal          bool           `json:"equal"`
	PolicyKey      string         `json:"policy_key"`
}

// Compare reports other minus primary for score, counts, duration, and
// distance. Both results must have been produced under the same policy
// key and variant; anything else is a caller error.
func Compare(primary, other score.Result, primaryRun, otherRun run.Run) (Delta, error) {
	if primary.PolicyKey != other.PolicyKey || primary.PolicyVariant != other.PolicyVariant {
		return Delta{}, fmt.Errorf(
			"compared results use different policies: %s/%s vs %s/%s",
			primary.PolicyKey, primary.PolicyVariant, other.PolicyKey, other.PolicyVariant,
		)
	}

	countDeltas := make(map[string]int)
	for eventType, count := range primary.Counts {
		countDeltas[eventType] = -count
	}
	for eventType, count := range other.Counts {
		countDeltas[eventType] += count
	}

	delta := Delta{
		ScoreDelta:     other.Score - primary.Score,
		CountDeltas:    countDeltas,
		DurationDeltaS: otherRun.DurationS() - primaryRun.DurationS(),
		Better:         other.Score < primary.Score,
		Equal:          other.Score == primary.Score,
		PolicyKey:      primary.PolicyKey,
	}

	if primaryDistance, okPrimary := primaryRun.DistanceM(); okPrimary {
		if otherDistance, okOther := otherRun.DistanceM(); okOther {
			distanceDelta := otherDistance - primaryDistance
			delta.DistanceDeltaM = &distanceDelta
		}
	}
	return delta, nil
}
