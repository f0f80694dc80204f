// Package httpadapter is the shared JSON-over-HTTP transport for
// model-backed diagnosis providers. It owns the boundary concerns the
// engine deliberately does not: timeouts, API-key injection, request and
// response size caps, and upstream-status normalization.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
)

const (
	// DefaultMaxRequestBytes caps outbound request bodies at 2 MB.
	DefaultMaxRequestBytes = 2 << 20
	// DefaultMaxResponseBytes bounds how much of a reply is read.
	DefaultMaxResponseBytes = 1 << 20

	defaultTimeout = 30 * time.Second
)

// Config configures a vendor-agnostic diagnosis transport.
type Config struct {
	ProviderID       string
	Endpoint         string
	Method           string
	APIKey           string
	APIKeyHeader     string
	APIKeyPrefix     string
	QueryAPIKeyParam string
	StaticHeaders    map[string]string
	Timeout          time.Duration
	MaxRequestBytes  int
	MaxResponseBytes int
	Client           *http.Client

	// BuildBody wraps the diagnosis request and system instructions in
	// the vendor envelope.
	BuildBody func(request diagnosis.Request, instructions string) (any, error)
	// ExtractText unwraps the model's reply text from the vendor
	// envelope. On extraction failure the raw body flows through so the
	// schema contract reports it as bad_model_json with real content.
	ExtractText func(body []byte) ([]byte, error)
}

// Adapter implements the diagnose.Transport contract over HTTP.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// StatusError reports a non-2xx upstream reply.
type StatusError struct {
	ProviderID string
	Status     int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s replied with status %d: %s", e.ProviderID, e.Status, e.Body)
}

// UpstreamStatus satisfies the engine's status-carrier contract.
func (e *StatusError) UpstreamStatus() int {
	return e.Status
}

// New constructs a diagnosis HTTP transport.
func New(cfg Config) (*Adapter, error) {
	if cfg.ProviderID == "" {
		return nil, fmt.Errorf("provider_id is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.BuildBody == nil {
		return nil, fmt.Errorf("build body hook is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

// ProviderID returns the transport identity.
func (a *Adapter) ProviderID() string {
	return a.cfg.ProviderID
}

// RoundTrip performs one request/response exchange and returns the raw
// model reply text. Cancellation is honored through the caller's context.
func (a *Adapter) RoundTrip(ctx context.Context, request diagnosis.Request, instructions string) ([]byte, error) {
	envelope, err := a.cfg.BuildBody(request, instructions)
	if err != nil {
		return nil, fmt.Errorf("build %s request body: %w", a.cfg.ProviderID, err)
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode %s request body: %w", a.cfg.ProviderID, err)
	}
	if len(body) > a.cfg.MaxRequestBytes {
		return nil, fmt.Errorf("%s request body is %d bytes, cap is %d", a.cfg.ProviderID, len(body), a.cfg.MaxRequestBytes)
	}

	endpoint := a.cfg.Endpoint
	if a.cfg.QueryAPIKeyParam != "" && a.cfg.APIKey != "" {
		endpoint, err = withQuery(endpoint, a.cfg.QueryAPIKeyParam, a.cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("resolve %s endpoint: %w", a.cfg.ProviderID, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, a.cfg.Method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", a.cfg.ProviderID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKeyHeader != "" && a.cfg.APIKey != "" {
		httpReq.Header.Set(a.cfg.APIKeyHeader, a.cfg.APIKeyPrefix+a.cfg.APIKey)
	}
	for key, value := range a.cfg.StaticHeaders {
		httpReq.Header.Set(key, value)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s transport: %w", a.cfg.ProviderID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(a.cfg.MaxResponseBytes)))
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", a.cfg.ProviderID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			ProviderID: a.cfg.ProviderID,
			Status:     resp.StatusCode,
			Body:       diagnosis.TruncateRaw(string(raw)),
		}
	}

	if a.cfg.ExtractText == nil {
		return raw, nil
	}
	text, err := a.cfg.ExtractText(raw)
	if err != nil {
		return raw, nil
	}
	return text, nil
}

func withQuery(rawEndpoint string, key string, value string) (string, error) {
	u, err := url.Parse(rawEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
