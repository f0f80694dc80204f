// Package diagnose produces structured run diagnoses. Two interchangeable
// strategies sit behind one contract: a deterministic rule-based generator
// that never fails and never touches the network, and a model-backed
// generator that delegates to an external structured-output service under
// a strict schema with explicit failure conditions.
package diagnose

import (
	"context"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
)

// Generator is the single diagnosis contract both strategies implement.
// The rule-based strategy ignores the context; the model-backed strategy
// performs one request/response round trip and honors cancellation.
type Generator interface {
	Diagnose(ctx context.Context, request diagnosis.Request) (diagnosis.Result, error)
}

// Transport sends one diagnosis request plus system instructions to an
// external structured-output service and returns the raw reply text.
// Implementations live under providers/diagnosis.
type Transport interface {
	RoundTrip(ctx context.Context, request diagnosis.Request, instructions string) ([]byte, error)
}

// StatusCarrier is implemented by transport errors that know the upstream
// HTTP status code.
type StatusCarrier interface {
	error
	UpstreamStatus() int
}
