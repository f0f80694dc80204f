package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/api/run"
)

func passthroughBody(request diagnosis.Request, instructions string) (any, error) {
	return map[string]any{"instructions": instructions, "request": request}, nil
}

func testRequest() diagnosis.Request {
	return diagnosis.Request{
		ScenarioKey: "warehouse",
		RunSummary:  run.Summary{Label: "r1", DurationS: 12},
	}
}

func TestRoundTripSendsEnvelopeAndHeaders(t *testing.T) {
	t.Parallel()

	var got struct {
		apiKey      string
		static      string
		contentType string
		body        map[string]any
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.apiKey = r.Header.Get("x-api-key")
		got.static = r.Header.Get("x-run-env")
		got.contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got.body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	adapter, err := New(Config{
		ProviderID:    "diagnosis-test",
		Endpoint:      server.URL,
		APIKey:        "secret",
		APIKeyHeader:  "x-api-key",
		StaticHeaders: map[string]string{"x-run-env": "sim"},
		BuildBody:     passthroughBody,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := adapter.RoundTrip(context.Background(), testRequest(), "be terse")
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("reply: got %q", raw)
	}
	if got.apiKey != "secret" || got.static != "sim" || got.contentType != "application/json" {
		t.Fatalf("headers not set: %+v", got)
	}
	if got.body["instructions"] != "be terse" {
		t.Fatalf("instructions missing from envelope: %v", got.body)
	}
}

func TestRoundTripQueryAPIKey(t *testing.T) {
	t.Parallel()

	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	adapter, err := New(Config{
		ProviderID:       "diagnosis-test",
		Endpoint:         server.URL,
		APIKey:           "qk",
		QueryAPIKeyParam: "key",
		BuildBody:        passthroughBody,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := adapter.RoundTrip(context.Background(), testRequest(), ""); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if gotKey != "qk" {
		t.Fatalf("query api key: want qk got %q", gotKey)
	}
}

func TestRoundTripNon2xxIsStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter, err := New(Config{ProviderID: "diagnosis-test", Endpoint: server.URL, BuildBody: passthroughBody})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = adapter.RoundTrip(context.Background(), testRequest(), "")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("want *StatusError, got %T: %v", err, err)
	}
	if statusErr.UpstreamStatus() != http.StatusTooManyRequests {
		t.Fatalf("status: want 429 got %d", statusErr.UpstreamStatus())
	}
	if !strings.Contains(statusErr.Body, "rate limited") {
		t.Fatalf("status error body: %q", statusErr.Body)
	}
}

func TestRoundTripExtractTextFallsBackToRawBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected":"shape"}`)
	}))
	defer server.Close()

	adapter, err := New(Config{
		ProviderID: "diagnosis-test",
		Endpoint:   server.URL,
		BuildBody:  passthroughBody,
		ExtractText: func(body []byte) ([]byte, error) {
			return nil, errors.New("no text field")
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := adapter.RoundTrip(context.Background(), testRequest(), "")
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	// The contract layer turns the raw body into bad_model_json with real
	// content; the transport must not swallow it.
	if string(raw) != `{"unexpected":"shape"}` {
		t.Fatalf("raw fallback: got %q", raw)
	}
}

func TestRoundTripEnforcesRequestCap(t *testing.T) {
	t.Parallel()

	adapter, err := New(Config{
		ProviderID:      "diagnosis-test",
		Endpoint:        "http://localhost:0",
		MaxRequestBytes: 64,
		BuildBody: func(diagnosis.Request, string) (any, error) {
			return map[string]string{"pad": strings.Repeat("x", 200)}, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := adapter.RoundTrip(context.Background(), testRequest(), ""); err == nil {
		t.Fatal("oversized request body must be rejected before sending")
	}
}

func TestRoundTripBoundsResponseRead(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("y", 512))
	}))
	defer server.Close()

	adapter, err := New(Config{
		ProviderID:       "diagnosis-test",
		Endpoint:         server.URL,
		MaxResponseBytes: 100,
		BuildBody:        passthroughBody,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := adapter.RoundTrip(context.Background(), testRequest(), "")
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if len(raw) != 100 {
		t.Fatalf("response read bound: want 100 bytes got %d", len(raw))
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{Endpoint: "http://x", BuildBody: passthroughBody},
		{ProviderID: "p", BuildBody: passthroughBody},
		{ProviderID: "p", Endpoint: "http://x"},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected config validation error", i)
		}
	}
}
