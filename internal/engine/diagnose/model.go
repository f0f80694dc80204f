package diagnose

import (
	"context"
	"errors"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
)

// ModelBacked delegates diagnosis to an external structured-output service
// through a Transport. One round trip per call, no internal retry: a
// transport or parse failure is reported once and falling back to the
// rule-based strategy is the caller's decision.
type ModelBacked struct {
	transport Transport
	contract  *Contract
}

// NewModelBacked builds the model-backed strategy over a transport.
func NewModelBacked(transport Transport) (*ModelBacked, error) {
	if transport == nil {
		return nil, errors.New("diagnosis transport is required")
	}
	contract, err := NewContract()
	if err != nil {
		return nil, err
	}
	return &ModelBacked{transport: transport, contract: contract}, nil
}

// Diagnose sends the request with system instructions and decodes the
// reply under the strict contract. Transport failures surface as
// diagnose_failed with the upstream status; unparseable replies surface
// as bad_model_json with a bounded raw excerpt.
func (g *ModelBacked) Diagnose(ctx context.Context, request diagnosis.Request) (diagnosis.Result, error) {
	if err := request.Validate(); err != nil {
		return diagnosis.Result{}, diagnosis.NewDiagnoseFailed(0, err.Error())
	}

	raw, err := g.transport.RoundTrip(ctx, request, SystemInstructions(request))
	if err != nil {
		var typed *diagnosis.Error
		if errors.As(err, &typed) {
			return diagnosis.Result{}, typed
		}
		status := 0
		var carrier StatusCarrier
		if errors.As(err, &carrier) {
			status = carrier.UpstreamStatus()
		}
		return diagnosis.Result{}, diagnosis.NewDiagnoseFailed(status, err.Error())
	}

	return g.contract.Decode(raw)
}
