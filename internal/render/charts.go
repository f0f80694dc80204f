// Package render produces the self-contained HTML charts the operator UI
// embeds: trajectory plots and per-type score breakdowns. Rendering is
// presentation plumbing; it never influences scoring.
package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/halcyon-robotics/runscope/api/run"
	"github.com/halcyon-robotics/runscope/internal/engine/score"
)

// Trajectory renders the XY paths of one or more runs as a scatter chart,
// one series per run.
func Trajectory(w io.Writer, records ...run.Run) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Run Trajectories", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Run Trajectories"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)"}),
	)

	for _, record := range records {
		data := make([]opts.ScatterData, 0, len(record.Frames))
		for _, frame := range record.Frames {
			data = append(data, opts.ScatterData{Value: []interface{}{frame.X, frame.Y}})
		}
		label := record.Label
		if label == "" {
			label = "run"
		}
		scatter.AddSeries(label, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render trajectory chart: %w", err)
	}
	return nil
}

// ScoreBreakdown renders the weighted per-type score contributions for one
// or two scored runs as grouped bars.
func ScoreBreakdown(w io.Writer, results ...score.Result) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Score Breakdown", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Weighted Score Contributions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "weighted penalty"}),
	)

	eventTypes := run.KnownEventTypes()
	bar.SetXAxis(eventTypes)
	for i, result := range results {
		data := make([]opts.BarData, 0, len(eventTypes))
		for _, eventType := range eventTypes {
			contribution := float64(result.Counts[eventType]) * result.Weights[eventType]
			data = append(data, opts.BarData{Value: contribution})
		}
		name := fmt.Sprintf("%s #%d (%.1f %s)", result.PolicyKey, i+1, result.Score, result.Verdict)
		bar.AddSeries(name, data)
	}
	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render score chart: %w", err)
	}
	return nil
}
