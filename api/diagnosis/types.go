package diagnosis

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/halcyon-robotics/runscope/api/run"
)

// Field bounds mirrored by DiagnosisResult.schema.json.
const (
	MinRootCauses      = 1
	MaxRootCauses      = 6
	MinEvidence        = 2
	MaxEvidence        = 10
	MinRecommendations = 3
	MaxRecommendations = 10
	MinNextTests       = 2
	MaxNextTests       = 8

	// MaxRawExcerpt bounds the raw-reply excerpt attached to
	// bad_model_json conditions.
	MaxRawExcerpt = 2000
)

// Request is the logical shape sent to a model-backed diagnosis provider.
type Request struct {
	ScenarioKey    string       `json:"scenario_key"`
	RunSummary     run.Summary  `json:"run_summary"`
	CompareSummary *run.Summary `json:"compare_summary"`
}

// Validate enforces required request fields.
func (r Request) Validate() error {
	if r.ScenarioKey == "" {
		return fmt.Errorf("scenario_key is required")
	}
	if err := r.RunSummary.Validate(); err != nil {
		return fmt.Errorf("run_summary: %w", err)
	}
	if r.CompareSummary != nil {
		if err := r.CompareSummary.Validate(); err != nil {
			return fmt.Errorf("compare_summary: %w", err)
		}
	}
	return nil
}

// Evidence is one diagnosis evidence entry: a timestamped incident plus the
// reason it matters for the verdict.
type Evidence struct {
	T            float64 `json:"t"`
	Type         string  `json:"type"`
	WhyItMatters string  `json:"why_it_matters"`
}

// Result mirrors DiagnosisResult.schema.json. CompareInsights is always
// present; it is the empty string when no comparison run was supplied.
type Result struct {
	Verdict         run.Verdict `json:"verdict"`
	Confidence      float64     `json:"confidence"`
	OperatorSummary string      `json:"operator_summary"`
	RootCauses      []string    `json:"root_causes"`
	Evidence        []Evidence  `json:"evidence"`
	Recommendations []string    `json:"recommendations"`
	NextTests       []string    `json:"next_tests"`
	CompareInsights string      `json:"compare_insights"`
}

// Validate enforces the diagnosis output contract bounds.
func (r Result) Validate() error {
	if err := r.Verdict.Validate(); err != nil {
		return err
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	if r.OperatorSummary == "" {
		return fmt.Errorf("operator_summary is required")
	}
	if len(r.RootCauses) < MinRootCauses || len(r.RootCauses) > MaxRootCauses {
		return fmt.Errorf("root_causes length %d outside [%d,%d]", len(r.RootCauses), MinRootCauses, MaxRootCauses)
	}
	if len(r.Evidence) < MinEvidence || len(r.Evidence) > MaxEvidence {
		return fmt.Errorf("evidence length %d outside [%d,%d]", len(r.Evidence), MinEvidence, MaxEvidence)
	}
	if len(r.Recommendations) < MinRecommendations || len(r.Recommendations) > MaxRecommendations {
		return fmt.Errorf("recommendations length %d outside [%d,%d]", len(r.Recommendations), MinRecommendations, MaxRecommendations)
	}
	if len(r.NextTests) < MinNextTests || len(r.NextTests) > MaxNextTests {
		return fmt.Errorf("next_tests length %d outside [%d,%d]", len(r.NextTests), MinNextTests, MaxNextTests)
	}
	for i, cause := range r.RootCauses {
		if cause == "" {
			return fmt.Errorf("root_causes[%d] is empty", i)
		}
	}
	for i, item := range r.Evidence {
		if item.Type == "" || item.WhyItMatters == "" {
			return fmt.Errorf("evidence[%d] requires type and why_it_matters", i)
		}
	}
	for i, recommendation := range r.Recommendations {
		if recommendation == "" {
			return fmt.Errorf("recommendations[%d] is empty", i)
		}
	}
	for i, test := range r.NextTests {
		if test == "" {
			return fmt.Errorf("next_tests[%d] is empty", i)
		}
	}
	return nil
}

// Caller-visible error conditions. Input tolerance and unknown-scenario
// defaulting are invisible by design; only these two surface.
const (
	ConditionBadModelJSON   = "bad_model_json"
	ConditionDiagnoseFailed = "diagnose_failed"
)

// Error is the transport-boundary error shape for the diagnosis path.
type Error struct {
	Condition string `json:"error"`
	Details   string `json:"details"`
	Raw       string `json:"raw,omitempty"`
	Status    int    `json:"status,omitempty"`
}

// Error renders the condition and details for log and wire use.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status=%d): %s", e.Condition, e.Status, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Condition, e.Details)
}

// NewBadModelJSON reports an unparseable model reply, carrying a truncated
// raw-text excerpt for diagnostics. It must never be downgraded to a
// best-guess result.
func NewBadModelJSON(details string, raw string) *Error {
	return &Error{
		Condition: ConditionBadModelJSON,
		Details:   details,
		Raw:       TruncateRaw(raw),
	}
}

// NewDiagnoseFailed reports a transport or service failure with the
// upstream status code, defaulting to 500 when none is known.
func NewDiagnoseFailed(status int, details string) *Error {
	if status == 0 {
		status = 500
	}
	return &Error{
		Condition: ConditionDiagnoseFailed,
		Details:   strings.TrimSpace(details),
		Status:    status,
	}
}

// TruncateRaw bounds raw model text to the excerpt limit, cutting back to
// a rune boundary so the excerpt stays valid UTF-8.
func TruncateRaw(raw string) string {
	if len(raw) <= MaxRawExcerpt {
		return raw
	}
	cut := MaxRawExcerpt
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut]
}
