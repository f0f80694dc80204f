package diagnose

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
)

// Contract decodes raw model replies under the strict diagnosis schema.
// Parse or validation failure is a hard bad_model_json condition; it is
// never downgraded to a guessed result.
type Contract struct {
	schema *jsonschema.Schema
}

// NewContract compiles the embedded diagnosis result schema.
func NewContract() (*Contract, error) {
	schema, err := diagnosis.CompileSchema()
	if err != nil {
		return nil, err
	}
	return &Contract{schema: schema}, nil
}

// Decode parses one raw reply into a validated diagnosis result.
//
// compare_insights is coerced to "" when missing or non-string before
// schema validation. The schema already requires the field for external
// producers; the coercion is a defensive normalization, not a substitute
// for validation.
func (c *Contract) Decode(raw []byte) (diagnosis.Result, error) {
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return diagnosis.Result{}, diagnosis.NewBadModelJSON(
			fmt.Sprintf("model reply is not valid JSON: %v", err), string(raw))
	}

	if fields, ok := document.(map[string]any); ok {
		if _, isString := fields["compare_insights"].(string); !isString {
			fields["compare_insights"] = ""
		}
	}

	if err := c.schema.Validate(document); err != nil {
		return diagnosis.Result{}, diagnosis.NewBadModelJSON(
			fmt.Sprintf("model reply violates diagnosis schema: %v", err), string(raw))
	}

	normalized, err := json.Marshal(document)
	if err != nil {
		return diagnosis.Result{}, diagnosis.NewBadModelJSON(
			fmt.Sprintf("re-encode validated reply: %v", err), string(raw))
	}

	var result diagnosis.Result
	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&result); err != nil {
		return diagnosis.Result{}, diagnosis.NewBadModelJSON(
			fmt.Sprintf("decode validated reply: %v", err), string(raw))
	}
	if err := result.Validate(); err != nil {
		return diagnosis.Result{}, diagnosis.NewBadModelJSON(
			fmt.Sprintf("validated reply failed result contract: %v", err), string(raw))
	}
	return result, nil
}
