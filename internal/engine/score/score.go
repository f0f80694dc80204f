// Package score computes the weighted incident score and verdict for one
// run under one scenario policy. Scoring is pure and total: it cannot fail,
// and an empty run scores zero.
package score

import (
	"github.com/halcyon-robotics/runscope/api/run"
	"github.com/halcyon-robotics/runscope/internal/engine/policy"
)

// Result is the derived evaluation of one run under one policy. It is
// recomputed on demand and never persisted.
type Result struct {
	Score         float64            `json:"score"`
	Verdict       run.Verdict        `json:"verdict"`
	Counts        map[string]int     `json:"counts"`
	PolicyKey     string             `json:"policy_key"`
	PolicyVariant policy.Variant     `json:"policy_variant"`
	PolicyTitle   string             `json:"policy_title"`
	PolicyText    string             `json:"policy_text"`
	Weights       map[string]float64 `json:"weights"`
}

// Score evaluates a run under the canonical variant of the named policy.
// Unknown keys resolve to the default policy.
func Score(record run.Run, policyKey string) Result {
	return ScoreWithPolicy(record, policy.Lookup(policyKey))
}

// ScoreWithPolicy evaluates a run under an explicit policy. Counts come
// from producer stats when present, otherwise from an event scan; only
// policy-known event types contribute to the score, though unknown types
// still appear in the counts for evidence purposes.
func ScoreWithPolicy(record run.Run, scenarioPolicy policy.ScenarioPolicy) Result {
	return FromCounts(record.CountsByType(), scenarioPolicy)
}

// FromCounts evaluates already-derived per-type counts under a policy.
// Summaries carry counts without the backing run, so diagnosis scores
// through this path.
func FromCounts(counts map[string]int, scenarioPolicy policy.ScenarioPolicy) Result {
	total := 0.0
	for eventType, weight := range scenarioPolicy.Weights {
		total += float64(counts[eventType]) * weight
	}

	return Result{
		Score:         total,
		Verdict:       classify(total, counts, scenarioPolicy),
		Counts:        counts,
		PolicyKey:     scenarioPolicy.Key,
		PolicyVariant: scenarioPolicy.Variant,
		PolicyTitle:   scenarioPolicy.Title,
		PolicyText:    scenarioPolicy.Description,
		Weights:       scenarioPolicy.Weights,
	}
}

func classify(total float64, counts map[string]int, scenarioPolicy policy.ScenarioPolicy) run.Verdict {
	switch scenarioPolicy.Variant {
	case policy.VariantLimits:
		verdict := run.VerdictPass
		for eventType, limit := range scenarioPolicy.Limits {
			count := counts[eventType]
			if count > limit {
				return run.VerdictFail
			}
			// Hitting a limit exactly is inclusive WARN, not PASS.
			// Zero-count/zero-limit equality stays PASS so a clean run
			// never warns.
			if count == limit && count > 0 {
				verdict = run.VerdictWarn
			}
		}
		return verdict
	default:
		thresholds := scenarioPolicy.Thresholds
		if thresholds == nil {
			return run.VerdictPass
		}
		switch {
		case total <= thresholds.Pass:
			return run.VerdictPass
		case total <= thresholds.Warn:
			return run.VerdictWarn
		default:
			return run.VerdictFail
		}
	}
}
