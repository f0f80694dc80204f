package diagnose

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/api/run"
	"github.com/halcyon-robotics/runscope/internal/engine/policy"
	"github.com/halcyon-robotics/runscope/internal/engine/score"
)

// RuleBased is the deterministic local strategy. It never fails, needs no
// network, and is the required fallback for the model-backed path.
type RuleBased struct{}

// causeRule maps an observed count pattern to a root cause.
type causeRule struct {
	matches func(counts map[string]int) bool
	cause   string
}

var causeRules = []causeRule{
	{
		matches: func(c map[string]int) bool { return c[run.EventCollision] > 0 },
		cause:   "Physical contact occurred; clearance margins or speed limits are too permissive for this course.",
	},
	{
		matches: func(c map[string]int) bool { return c[run.EventStuck] > 0 },
		cause:   "Deadlock or missing recovery behavior: the robot stopped making progress and nothing unstuck it.",
	},
	{
		matches: func(c map[string]int) bool { return c[run.EventNearCollision] > 0 },
		cause:   "Late obstacle avoidance: proximity margins collapsed into near-collision incidents before evasion engaged.",
	},
	{
		matches: func(c map[string]int) bool { return c[run.EventReplan] > 3 },
		cause:   "Plan instability: the planner repeatedly discarded its own path instead of committing to one.",
	},
}

var whyByEventType = map[string]string{
	run.EventNearCollision: "Proximity margin collapsed; avoidance triggered late.",
	run.EventCollision:     "Contact event; a hard safety violation under every policy.",
	run.EventStuck:         "Progress stalled; the recovery behavior did not engage.",
	run.EventReplan:        "Planner discarded its path; frequent replans signal instability.",
}

var recommendationsByScenario = map[string][]string{
	"warehouse": {
		"Widen the reserved clearance envelope around pick lanes before the next fleet rollout.",
		"Lower the approach speed cap in shared aisles where near-collisions clustered.",
		"Enable the stall-recovery behavior tree so stuck states self-resolve within one cycle.",
	},
	"delivery": {
		"Raise the pedestrian proximity buffer; sidewalk near-misses dominate the penalty here.",
		"Add a yield-and-wait behavior at crossings instead of threading through foot traffic.",
		"Review curb-cut approach headings where the robot stalled or replanned repeatedly.",
	},
	"sar": {
		"Tune the traversability classifier; stuck events in rubble are the mission-ending failure mode.",
		"Allow more aggressive contact tolerance with soft debris to keep coverage rate up.",
		"Pre-plan fallback corridors so replanning converges instead of oscillating.",
	},
}

var nextTestsByScenario = map[string][]string{
	"warehouse": {
		"Repeat the run with doubled forklift traffic density to stress the same aisles.",
		"Re-run with the stall-recovery behavior enabled and compare stuck counts.",
	},
	"delivery": {
		"Replay the route at peak pedestrian hours to confirm proximity margins hold.",
		"Run the identical route in the opposite direction to isolate heading-dependent misses.",
	},
	"sar": {
		"Re-run the search pattern on the degraded-terrain map variant.",
		"Repeat with a shorter replan horizon and compare time-to-coverage.",
	},
}

// Diagnose assembles a deterministic diagnosis from the policy verdict,
// the per-type counts, and the scenario decision table. The output honors
// the same contract bounds the model-backed path is validated against.
func (RuleBased) Diagnose(_ context.Context, request diagnosis.Request) (diagnosis.Result, error) {
	scenarioPolicy := policy.Lookup(request.ScenarioKey)
	scored := score.FromCounts(request.RunSummary.Counts, scenarioPolicy)

	result := diagnosis.Result{
		Verdict:         scored.Verdict,
		Confidence:      ruleConfidence(scored.Verdict),
		OperatorSummary: operatorSummary(scenarioPolicy, scored, request.RunSummary),
		RootCauses:      rootCauses(request.RunSummary.Counts),
		Evidence:        evidenceItems(request.RunSummary),
		Recommendations: scenarioText(recommendationsByScenario, scenarioPolicy.Key),
		NextTests:       scenarioText(nextTestsByScenario, scenarioPolicy.Key),
		CompareInsights: compareInsights(scenarioPolicy, scored, request.CompareSummary),
	}
	return result, nil
}

func ruleConfidence(verdict run.Verdict) float64 {
	// Deterministic by construction: clean runs are easy calls, failures
	// leave more room for causes the rule table cannot see.
	switch verdict {
	case run.VerdictPass:
		return 0.85
	case run.VerdictWarn:
		return 0.7
	default:
		return 0.6
	}
}

func rootCauses(counts map[string]int) []string {
	causes := make([]string, 0, diagnosis.MaxRootCauses)
	for _, rule := range causeRules {
		if rule.matches(counts) {
			causes = append(causes, rule.cause)
		}
		if len(causes) == diagnosis.MaxRootCauses {
			break
		}
	}
	if len(causes) == 0 {
		causes = append(causes, "No obvious incidents; the outcome tracks the policy thresholds directly.")
	}
	return causes
}

func evidenceItems(summary run.Summary) []diagnosis.Evidence {
	items := make([]diagnosis.Evidence, 0, diagnosis.MaxEvidence)
	for _, event := range summary.Evidence {
		why, known := whyByEventType[event.Type]
		if !known {
			why = "Unrecognized incident type; excluded from scoring but kept for operator review."
		}
		items = append(items, diagnosis.Evidence{T: event.T, Type: event.Type, WhyItMatters: why})
		if len(items) == diagnosis.MaxEvidence {
			break
		}
	}
	// Short runs still have to satisfy the evidence floor, so boundary
	// markers stand in for missing incidents.
	if len(items) < diagnosis.MinEvidence {
		items = append([]diagnosis.Evidence{{
			T:            0,
			Type:         "run_start",
			WhyItMatters: "Run onset marker; no qualifying incidents were recorded before it.",
		}}, items...)
		items = append(items, diagnosis.Evidence{
			T:            summary.DurationS,
			Type:         "run_end",
			WhyItMatters: "Run completion marker; the episode ended without further incidents.",
		})
	}
	return items
}

func scenarioText(table map[string][]string, key string) []string {
	if text, ok := table[key]; ok {
		return append([]string(nil), text...)
	}
	return append([]string(nil), table[policy.DefaultKey]...)
}

func operatorSummary(scenarioPolicy policy.ScenarioPolicy, scored score.Result, summary run.Summary) string {
	var b strings.Builder
	label := summary.Label
	if label == "" {
		label = "run"
	}
	fmt.Fprintf(&b, "%s scored %.1f under the %s policy: %s.", label, scored.Score, scenarioPolicy.Title, scored.Verdict)
	fmt.Fprintf(&b, " Incidents over %.1fs: near_collision=%d collision=%d stuck=%d replan=%d.",
		summary.DurationS,
		summary.Counts[run.EventNearCollision],
		summary.Counts[run.EventCollision],
		summary.Counts[run.EventStuck],
		summary.Counts[run.EventReplan],
	)
	if summary.DistanceM != nil {
		fmt.Fprintf(&b, " Distance traveled: %.1fm.", *summary.DistanceM)
	}
	return b.String()
}

func compareInsights(scenarioPolicy policy.ScenarioPolicy, primary score.Result, compareSummary *run.Summary) string {
	if compareSummary == nil {
		return ""
	}
	other := score.FromCounts(compareSummary.Counts, scenarioPolicy)
	direction := "scores equal with"
	switch {
	case other.Score < primary.Score:
		direction = "improves on"
	case other.Score > primary.Score:
		direction = "regresses from"
	}
	return fmt.Sprintf("Comparison run %s the primary: %.1f vs %.1f (%s vs %s) under %s.",
		direction, other.Score, primary.Score, other.Verdict, primary.Verdict, scenarioPolicy.Title)
}
