// Package server is the read-side HTTP surface the operator UI consumes:
// run listings, scores, deltas, diagnoses, and rendered charts. The engine
// stays transport-free; everything here is plumbing over it.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/api/run"
	"github.com/halcyon-robotics/runscope/internal/audit"
	"github.com/halcyon-robotics/runscope/internal/engine/compare"
	"github.com/halcyon-robotics/runscope/internal/engine/diagnose"
	"github.com/halcyon-robotics/runscope/internal/engine/policy"
	"github.com/halcyon-robotics/runscope/internal/engine/score"
	"github.com/halcyon-robotics/runscope/internal/engine/summarize"
	"github.com/halcyon-robotics/runscope/internal/render"
	"github.com/halcyon-robotics/runscope/internal/replay"
)

// Server wires the loaded run library and diagnosis strategies behind
// JSON endpoints. Model is optional; Rules is always available and is the
// fallback when the model path reports a condition.
type Server struct {
	Library *replay.Library
	Rules   diagnose.Generator
	Model   diagnose.Generator
	Audit   *audit.Store
	Logger  *log.Logger
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/scenarios", s.handleScenarios)
	mux.HandleFunc("GET /api/score", s.handleScore)
	mux.HandleFunc("GET /api/compare", s.handleCompare)
	mux.HandleFunc("POST /api/diagnose", s.handleDiagnose)
	mux.HandleFunc("GET /api/audit", s.handleAudit)
	mux.HandleFunc("GET /charts/trajectory", s.handleTrajectoryChart)
	mux.HandleFunc("GET /charts/score", s.handleScoreChart)
	return mux
}

type runListing struct {
	Label      string `json:"label"`
	FrameCount int    `json:"frame_count"`
	EventCount int    `json:"event_count"`
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	listings := make([]runListing, 0)
	for _, record := range s.Library.Runs() {
		listings = append(listings, runListing{
			Label:      record.Label,
			FrameCount: len(record.Frames),
			EventCount: len(record.Events),
		})
	}
	s.writeJSON(w, http.StatusOK, listings)
}

type scenarioListing struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleScenarios(w http.ResponseWriter, _ *http.Request) {
	listings := make([]scenarioListing, 0)
	for _, key := range policy.Keys() {
		scenarioPolicy := policy.Lookup(key)
		listings = append(listings, scenarioListing{
			Key:         scenarioPolicy.Key,
			Title:       scenarioPolicy.Title,
			Description: scenarioPolicy.Description,
		})
	}
	s.writeJSON(w, http.StatusOK, listings)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupRun(w, r.URL.Query().Get("run"))
	if !ok {
		return
	}
	scenarioPolicy := policy.LookupVariant(
		r.URL.Query().Get("scenario"),
		policy.Variant(r.URL.Query().Get("variant")),
	)
	s.writeJSON(w, http.StatusOK, score.ScoreWithPolicy(record, scenarioPolicy))
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	primary, ok := s.lookupRun(w, r.URL.Query().Get("run"))
	if !ok {
		return
	}
	other, ok := s.lookupRun(w, r.URL.Query().Get("other"))
	if !ok {
		return
	}
	scenarioKey := r.URL.Query().Get("scenario")
	delta, err := compare.Compare(
		score.Score(primary, scenarioKey),
		score.Score(other, scenarioKey),
		primary, other,
	)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, delta)
}

type diagnoseRequest struct {
	Run      string `json:"run"`
	Compare  string `json:"compare,omitempty"`
	Scenario string `json:"scenario"`
	Strategy string `json:"strategy,omitempty"`
}

type diagnoseResponse struct {
	Result diagnosis.Result `json:"result"`
	// StrategyUsed reports which strategy actually produced the result;
	// FallbackCondition carries the model-path condition when the server
	// fell back to rules.
	StrategyUsed      string `json:"strategy_used"`
	FallbackCondition string `json:"fallback_condition,omitempty"`
	FallbackDetails   string `json:"fallback_details,omitempty"`
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var body diagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid diagnose request body")
		return
	}

	record, ok := s.lookupRun(w, body.Run)
	if !ok {
		return
	}
	request := diagnosis.Request{
		ScenarioKey: body.Scenario,
		RunSummary:  summarize.Summarize(record),
	}
	if body.Compare != "" {
		compareRecord, ok := s.lookupRun(w, body.Compare)
		if !ok {
			return
		}
		compareSummary := summarize.Summarize(compareRecord)
		request.CompareSummary = &compareSummary
	}
	if request.ScenarioKey == "" {
		request.ScenarioKey = policy.DefaultKey
	}

	response := diagnoseResponse{StrategyUsed: audit.StrategyRules}
	if body.Strategy == audit.StrategyModel && s.Model != nil {
		result, err := s.Model.Diagnose(r.Context(), request)
		if err == nil {
			response.Result = result
			response.StrategyUsed = audit.StrategyModel
			s.appendAudit(request, body, audit.StrategyModel, string(result.Verdict), nil)
			s.writeJSON(w, http.StatusOK, response)
			return
		}
		// Model-path failure is reported once and the server falls back
		// to rules, surfacing the condition rather than hiding it.
		var typed *diagnosis.Error
		if errors.As(err, &typed) {
			response.FallbackCondition = typed.Condition
			response.FallbackDetails = typed.Details
		} else {
			response.FallbackCondition = diagnosis.ConditionDiagnoseFailed
			response.FallbackDetails = err.Error()
		}
		s.appendAudit(request, body, audit.StrategyModel, "", err)
	}

	result, err := s.Rules.Diagnose(r.Context(), request)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.Result = result
	s.appendAudit(request, body, audit.StrategyRules, string(result.Verdict), nil)
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		s.writeError(w, http.StatusNotFound, "audit log is not enabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.Audit.Recent(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupRun(w, r.URL.Query().Get("run"))
	if !ok {
		return
	}
	records := []run.Run{record}
	if other := r.URL.Query().Get("other"); other != "" {
		otherRecord, ok := s.lookupRun(w, other)
		if !ok {
			return
		}
		records = append(records, otherRecord)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.Trajectory(w, records...); err != nil {
		s.logf("trajectory chart: %v", err)
	}
}

func (s *Server) handleScoreChart(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupRun(w, r.URL.Query().Get("run"))
	if !ok {
		return
	}
	scenarioKey := r.URL.Query().Get("scenario")
	results := []score.Result{score.Score(record, scenarioKey)}
	if other := r.URL.Query().Get("other"); other != "" {
		otherRecord, ok := s.lookupRun(w, other)
		if !ok {
			return
		}
		results = append(results, score.Score(otherRecord, scenarioKey))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.ScoreBreakdown(w, results...); err != nil {
		s.logf("score chart: %v", err)
	}
}

func (s *Server) lookupRun(w http.ResponseWriter, label string) (run.Run, bool) {
	if label == "" {
		s.writeError(w, http.StatusBadRequest, "run label is required")
		return run.Run{}, false
	}
	record, ok := s.Library.Get(label)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown run: "+label)
		return run.Run{}, false
	}
	return record, true
}

func (s *Server) appendAudit(request diagnosis.Request, body diagnoseRequest, strategy string, verdict string, cause error) {
	if s.Audit == nil {
		return
	}
	record := audit.Record{
		ScenarioKey:  request.ScenarioKey,
		RunLabel:     body.Run,
		CompareLabel: body.Compare,
		Strategy:     strategy,
		Verdict:      verdict,
	}
	if cause != nil {
		var typed *diagnosis.Error
		if errors.As(cause, &typed) {
			record.Condition = typed.Condition
			record.Details = typed.Details
		} else {
			record.Condition = diagnosis.ConditionDiagnoseFailed
			record.Details = cause.Error()
		}
	}
	if _, err := s.Audit.Append(record); err != nil {
		s.logf("append audit record: %v", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
