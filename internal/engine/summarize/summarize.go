// Package summarize reduces a run's event stream to the bounded,
// time-ordered evidence set fed into diagnosis. The reduction is
// deterministic and order-preserving; it never deduplicates.
package summarize

import (
	"sort"

	"github.com/halcyon-robotics/runscope/api/run"
)

// Head+tail sampling bounds. Long runs keep their onset and resolution
// behavior while the payload stays small enough for a human or a model.
const (
	MaxEvidence = 24
	headKeep    = 12
	tailKeep    = 12
)

// Summarize builds the diagnosis input view of one run: duration, distance
// when the producer supplied it, per-type counts, meta-counts, and the
// bounded evidence list.
func Summarize(record run.Run) run.Summary {
	summary := run.Summary{
		Label:      record.Label,
		DurationS:  record.DurationS(),
		Counts:     record.CountsByType(),
		Evidence:   boundedEvidence(record.Events),
		FrameCount: len(record.Frames),
		EventCount: len(record.Events),
	}
	if distance, ok := record.DistanceM(); ok {
		summary.DistanceM = &distance
	}
	return summary
}

func boundedEvidence(events []run.Event) []run.Event {
	ordered := make([]run.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].T < ordered[j].T })

	if len(ordered) <= MaxEvidence {
		return ordered
	}
	sampled := make([]run.Event, 0, headKeep+tailKeep)
	sampled = append(sampled, ordered[:headKeep]...)
	sampled = append(sampled, ordered[len(ordered)-tailKeep:]...)
	return sampled
}
