package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/internal/audit"
	"github.com/halcyon-robotics/runscope/internal/engine/compare"
	"github.com/halcyon-robotics/runscope/internal/engine/diagnose"
	"github.com/halcyon-robotics/runscope/internal/engine/score"
	"github.com/halcyon-robotics/runscope/internal/replay"
)

type failingModel struct{ err error }

func (f failingModel) Diagnose(context.Context, diagnosis.Request) (diagnosis.Result, error) {
	return diagnosis.Result{}, f.err
}

func testLibrary(t *testing.T) *replay.Library {
	t.Helper()
	dir := t.TempDir()
	documents := map[string]string{
		"baseline.json": `{
			"frames": [{"t":0,"x":0,"y":0},{"t":30,"x":10,"y":0}],
			"events": [
				{"t":4,"type":"near_collision"},
				{"t":9,"type":"near_collision"},
				{"t":20,"type":"stuck"}
			]
		}`,
		"fix.json": `{
			"frames": [{"t":0,"x":0,"y":0},{"t":28,"x":10,"y":0}],
			"events": [{"t":3,"type":"replan"}]
		}`,
	}
	for name, document := range documents {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(document), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	library, err := replay.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return library
}

func testServer(t *testing.T) *Server {
	t.Helper()
	store, err := audit.Open(":memory:")
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &Server{
		Library: testLibrary(t),
		Rules:   diagnose.RuleBased{},
		Audit:   store,
	}
}

func getJSON(t *testing.T, handler http.Handler, path string, into any) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	if into != nil && recorder.Code == http.StatusOK {
		if err := json.Unmarshal(recorder.Body.Bytes(), into); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return recorder
}

func TestRunsEndpoint(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	var listings []struct {
		Label      string `json:"label"`
		FrameCount int    `json:"frame_count"`
		EventCount int    `json:"event_count"`
	}
	recorder := getJSON(t, handler, "/api/runs", &listings)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	if len(listings) != 2 || listings[0].Label != "baseline" || listings[0].EventCount != 3 {
		t.Fatalf("listings: %+v", listings)
	}
}

func TestScenariosEndpoint(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	var listings []struct {
		Key   string `json:"key"`
		Title string `json:"title"`
	}
	recorder := getJSON(t, handler, "/api/scenarios", &listings)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	keys := make([]string, 0, len(listings))
	for _, listing := range listings {
		if listing.Title == "" {
			t.Fatalf("scenario %q missing title", listing.Key)
		}
		keys = append(keys, listing.Key)
	}
	if strings.Join(keys, ",") != "delivery,sar,warehouse" {
		t.Fatalf("scenario keys: %v", keys)
	}
}

func TestScoreEndpoint(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	var result score.Result
	recorder := getJSON(t, handler, "/api/score?run=baseline&scenario=warehouse", &result)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	// near=2 stuck=1 under warehouse weights.
	if result.Score != 12 || result.Verdict != "WARN" {
		t.Fatalf("score: %+v", result)
	}

	if recorder := getJSON(t, handler, "/api/score?run=absent", nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown run status: %d", recorder.Code)
	}
	if recorder := getJSON(t, handler, "/api/score", nil); recorder.Code != http.StatusBadRequest {
		t.Fatalf("missing run status: %d", recorder.Code)
	}
}

func TestCompareEndpoint(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	var delta compare.Delta
	recorder := getJSON(t, handler, "/api/compare?run=baseline&other=fix&scenario=warehouse", &delta)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	// 12 vs 1 under warehouse weights.
	if delta.ScoreDelta != -11 || !delta.Better {
		t.Fatalf("delta: %+v", delta)
	}
	if delta.DistanceDeltaM == nil {
		t.Fatal("both runs carry derived distance, delta must be present")
	}
}

func TestDiagnoseEndpointRulesPath(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	body := `{"run":"baseline","scenario":"warehouse"}`
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/diagnose", strings.NewReader(body)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", recorder.Code, recorder.Body)
	}

	var response diagnoseResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.StrategyUsed != audit.StrategyRules {
		t.Fatalf("strategy used: %q", response.StrategyUsed)
	}
	if err := response.Result.Validate(); err != nil {
		t.Fatalf("diagnosis result violates contract: %v", err)
	}
}

func TestDiagnoseEndpointModelFallbackSurfacesCondition(t *testing.T) {
	t.Parallel()

	server := testServer(t)
	server.Model = failingModel{err: diagnosis.NewDiagnoseFailed(503, "upstream overloaded")}
	handler := server.Handler()

	body := `{"run":"baseline","compare":"fix","scenario":"warehouse","strategy":"model"}`
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/diagnose", strings.NewReader(body)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", recorder.Code, recorder.Body)
	}

	var response diagnoseResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.StrategyUsed != audit.StrategyRules {
		t.Fatalf("fallback must use rules, got %q", response.StrategyUsed)
	}
	if response.FallbackCondition != diagnosis.ConditionDiagnoseFailed {
		t.Fatalf("fallback condition: %q", response.FallbackCondition)
	}
	if response.Result.CompareInsights == "" {
		t.Fatal("comparison run supplied, insights must be populated")
	}

	// Both the failed model attempt and the rules fallback are audited.
	records, err := server.Audit.Recent(10)
	if err != nil {
		t.Fatalf("audit.Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("audit records: want 2 got %d", len(records))
	}
	conditions := map[string]bool{}
	for _, record := range records {
		conditions[record.Condition] = true
	}
	if !conditions[diagnosis.ConditionDiagnoseFailed] || !conditions[""] {
		t.Fatalf("audit conditions: %+v", records)
	}
}

func TestDiagnoseEndpointRejectsBadBody(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/diagnose", strings.NewReader("{broken")))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", recorder.Code)
	}
}

func TestAuditEndpoint(t *testing.T) {
	t.Parallel()

	server := testServer(t)
	if _, err := server.Audit.Append(audit.Record{
		ScenarioKey: "warehouse", RunLabel: "baseline", Strategy: audit.StrategyRules,
	}); err != nil {
		t.Fatalf("seed audit: %v", err)
	}
	handler := server.Handler()

	var records []audit.Record
	recorder := getJSON(t, handler, "/api/audit?limit=5", &records)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	if len(records) != 1 || records[0].RunLabel != "baseline" {
		t.Fatalf("records: %+v", records)
	}

	if recorder := getJSON(t, handler, "/api/audit?limit=nope", nil); recorder.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status: %d", recorder.Code)
	}

	server.Audit = nil
	if recorder := getJSON(t, server.Handler(), "/api/audit", nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("disabled audit status: %d", recorder.Code)
	}
}

func TestChartEndpoints(t *testing.T) {
	t.Parallel()

	handler := testServer(t).Handler()

	recorder := getJSON(t, handler, "/charts/trajectory?run=baseline&other=fix", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("trajectory status: %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("trajectory content type: %q", ct)
	}

	recorder = getJSON(t, handler, "/charts/score?run=baseline&scenario=warehouse", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("score chart status: %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "Weighted Score Contributions") {
		t.Fatal("score chart body missing title")
	}
}
