package replay

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/halcyon-robotics/runscope/api/run"
)

// PathStats are the loader-derived trajectory aggregates. The engine never
// derives distance itself; this is the producer side of that bargain.
type PathStats struct {
	DistanceM  float64
	MeanSpeed  float64
	MaxSpeed   float64
	FrameCount int
}

// DerivePathStats computes path length and segment-speed aggregates from
// the frame sequence. Segments with non-positive time steps contribute
// distance but no speed sample.
func DerivePathStats(frames []run.Frame) PathStats {
	stats := PathStats{FrameCount: len(frames)}
	if len(frames) < 2 {
		return stats
	}

	speeds := make([]float64, 0, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		segment := math.Hypot(frames[i].X-frames[i-1].X, frames[i].Y-frames[i-1].Y)
		stats.DistanceM += segment
		if dt := frames[i].T - frames[i-1].T; dt > 0 {
			speeds = append(speeds, segment/dt)
		}
	}
	if len(speeds) > 0 {
		stats.MeanSpeed = stat.Mean(speeds, nil)
		stats.MaxSpeed = floats.Max(speeds)
	}
	return stats
}

// FillStats returns the run's stats with loader-derived values filled in
// where the producer supplied none. Producer values stay authoritative.
func FillStats(record run.Run) *run.Stats {
	stats := run.Stats{}
	if record.Stats != nil {
		stats = *record.Stats
	}
	if stats.DistanceM == nil && len(record.Frames) >= 2 {
		distance := DerivePathStats(record.Frames).DistanceM
		stats.DistanceM = &distance
	}
	if stats.DurationS == nil && len(record.Frames) > 0 {
		duration := record.Frames[len(record.Frames)-1].T
		stats.DurationS = &duration
	}
	if stats.DurationS == nil && stats.DistanceM == nil && stats.Counts == nil {
		return record.Stats
	}
	return &stats
}
