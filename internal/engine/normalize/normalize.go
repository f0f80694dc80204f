// Package normalize turns heterogeneous recorded-run documents into
// canonical runs. Normalization never fails the caller: malformed frames
// and events are dropped entry-by-entry and the worst outcome is the
// empty run.
package normalize

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/halcyon-robotics/runscope/api/run"
)

// FromJSON decodes a raw run document and normalizes it. Undecodable
// documents degrade to the empty run.
func FromJSON(raw []byte) run.Run {
	var record any
	if err := json.Unmarshal(raw, &record); err != nil {
		return run.Run{}
	}
	return Normalize(record)
}

// Normalize extracts a canonical run from an arbitrary decoded record.
// Frames keep producer order; events are sorted by time before any
// downstream processing.
func Normalize(record any) run.Run {
	fields, ok := record.(map[string]any)
	if !ok {
		return run.Run{}
	}

	normalized := run.Run{
		Label:  stringField(fields, "label"),
		Frames: extractFrames(fields["frames"]),
		Events: extractEvents(fields["events"]),
		Stats:  extractStats(fields["stats"]),
	}
	sort.SliceStable(normalized.Events, func(i, j int) bool {
		return normalized.Events[i].T < normalized.Events[j].T
	})
	return normalized
}

// extractFrames accepts the three observed frame shapes: direct {x,y},
// nested {pos:{x,y}}, and ordered pair {p:[x,y,...]}. A frame matching
// none of them is dropped.
func extractFrames(value any) []run.Frame {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	frames := make([]run.Frame, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		x, y, extracted := extractPosition(fields)
		if !extracted {
			continue
		}
		t, ok := finiteNumber(fields["t"])
		if !ok {
			t = 0
		}
		frames = append(frames, run.Frame{T: t, X: x, Y: y})
	}
	return frames
}

func extractPosition(fields map[string]any) (float64, float64, bool) {
	if x, okX := finiteNumber(fields["x"]); okX {
		if y, okY := finiteNumber(fields["y"]); okY {
			return x, y, true
		}
	}
	if pos, ok := fields["pos"].(map[string]any); ok {
		if x, okX := finiteNumber(pos["x"]); okX {
			if y, okY := finiteNumber(pos["y"]); okY {
				return x, y, true
			}
		}
	}
	if pair, ok := fields["p"].([]any); ok && len(pair) >= 2 {
		if x, okX := finiteNumber(pair[0]); okX {
			if y, okY := finiteNumber(pair[1]); okY {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

// extractEvents keeps any entry with a finite time and non-empty type;
// detail defaults to the empty string.
func extractEvents(value any) []run.Event {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	events := make([]run.Event, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t, ok := finiteNumber(fields["t"])
		if !ok {
			continue
		}
		eventType := stringField(fields, "type")
		if eventType == "" {
			continue
		}
		events = append(events, run.Event{
			T:      t,
			Type:   eventType,
			Detail: stringField(fields, "detail"),
		})
	}
	return events
}

func extractStats(value any) *run.Stats {
	fields, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	stats := &run.Stats{}
	populated := false
	if duration, ok := finiteNumber(fields["duration_s"]); ok {
		stats.DurationS = &duration
		populated = true
	}
	if distance, ok := finiteNumber(fields["distance_m"]); ok {
		stats.DistanceM = &distance
		populated = true
	}
	if counts, ok := fields["counts"].(map[string]any); ok {
		extracted := make(map[string]int, len(counts))
		for eventType, rawCount := range counts {
			count, ok := finiteNumber(rawCount)
			if !ok || eventType == "" {
				continue
			}
			// Counts are non-negative integers; negative or fractional
			// values are malformed and dropped like any other bad entry.
			if count < 0 || count != math.Trunc(count) {
				continue
			}
			extracted[eventType] = int(count)
		}
		if len(extracted) > 0 {
			stats.Counts = extracted
			populated = true
		}
	}
	if !populated {
		return nil
	}
	return stats
}

// finiteNumber coerces the JSON scalar encodings of a number. Non-finite
// values are rejected, matching the event validity contract.
func finiteNumber(value any) (float64, bool) {
	var number float64
	switch typed := value.(type) {
	case float64:
		number = typed
	case int:
		number = float64(typed)
	case int64:
		number = float64(typed)
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		number = parsed
	case string:
		parsed, err := strconv.ParseFloat(typed, 64)
		if err != nil {
			return 0, false
		}
		number = parsed
	default:
		return 0, false
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}

func stringField(fields map[string]any, key string) string {
	text, _ := fields[key].(string)
	return text
}
