package run

import (
	"fmt"
	"math"
)

// Verdict is the normalized run-evaluation outcome taxonomy.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictWarn Verdict = "WARN"
	VerdictFail Verdict = "FAIL"
)

// Validate enforces supported verdict values.
func (v Verdict) Validate() error {
	switch v {
	case VerdictPass, VerdictWarn, VerdictFail:
		return nil
	default:
		return fmt.Errorf("unsupported verdict: %q", v)
	}
}

// Event types the engine recognizes. The type field is an open string;
// unrecognized types still flow through summaries as evidence.
const (
	EventNearCollision = "near_collision"
	EventCollision     = "collision"
	EventStuck         = "stuck"
	EventReplan        = "replan"
)

// KnownEventTypes returns the recognized event vocabulary in stable order.
func KnownEventTypes() []string {
	return []string{EventNearCollision, EventCollision, EventStuck, EventReplan}
}

// Frame is one timestamped pose sample.
type Frame struct {
	T float64 `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is a discrete timestamped incident within a run.
type Event struct {
	T      float64 `json:"t"`
	Type   string  `json:"type"`
	Detail string  `json:"detail"`
}

// Validate enforces the minimal event contract: finite time, non-empty type.
func (e Event) Validate() error {
	if math.IsNaN(e.T) || math.IsInf(e.T, 0) {
		return fmt.Errorf("event t must be finite")
	}
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	return nil
}

// Stats carries optional producer-supplied aggregates. When present, the
// values are authoritative and take precedence over event-scan derivation.
type Stats struct {
	DurationS *float64       `json:"duration_s,omitempty"`
	DistanceM *float64       `json:"distance_m,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
}

// Run is one recorded simulation episode. Frames are time-ascending as
// supplied by the producer; events are sorted by time during normalization.
// A Run is never mutated after load.
type Run struct {
	Label  string  `json:"label"`
	Frames []Frame `json:"frames"`
	Events []Event `json:"events"`
	Stats  *Stats  `json:"stats,omitempty"`
}

// DurationS returns the authoritative run duration: the stats value when
// supplied, otherwise the last frame's timestamp, otherwise zero.
func (r Run) DurationS() float64 {
	if r.Stats != nil && r.Stats.DurationS != nil {
		return *r.Stats.DurationS
	}
	if len(r.Frames) == 0 {
		return 0
	}
	return r.Frames[len(r.Frames)-1].T
}

// DistanceM returns the traveled distance stat and whether it is present.
// Distance is never derived here; absence stays observable so comparisons
// do not fabricate a zero difference.
func (r Run) DistanceM() (float64, bool) {
	if r.Stats == nil || r.Stats.DistanceM == nil {
		return 0, false
	}
	return *r.Stats.DistanceM, true
}

// CountsByType returns per-type event counts, preferring producer stats
// over an event scan. The returned map is owned by the caller.
func (r Run) CountsByType() map[string]int {
	counts := make(map[string]int)
	if r.Stats != nil && r.Stats.Counts != nil {
		for eventType, count := range r.Stats.Counts {
			counts[eventType] = count
		}
		return counts
	}
	for _, event := range r.Events {
		counts[event.Type]++
	}
	return counts
}

// Summary is the bounded reduction of a run used as diagnosis input.
type Summary struct {
	Label      string         `json:"label"`
	DurationS  float64        `json:"duration_s"`
	DistanceM  *float64       `json:"distance_m"`
	Counts     map[string]int `json:"counts"`
	Evidence   []Event        `json:"evidence"`
	FrameCount int            `json:"frame_count"`
	EventCount int            `json:"event_count"`
}

// Validate enforces summary internal consistency.
func (s Summary) Validate() error {
	if s.FrameCount < 0 || s.EventCount < 0 {
		return fmt.Errorf("summary meta-counts must be >=0")
	}
	if len(s.Evidence) > s.EventCount {
		return fmt.Errorf("summary evidence (%d) exceeds event count (%d)", len(s.Evidence), s.EventCount)
	}
	for i, event := range s.Evidence {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("summary evidence[%d]: %w", i, err)
		}
	}
	return nil
}
