// Package validation checks the diagnosis contract fixtures with both the
// typed decoder and the JSON schema, so the two can never drift apart
// silently.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
)

// ContractValidationSummary reports fixture validation totals.
type ContractValidationSummary struct {
	Total    int
	Failed   int
	Failures []string
}

// ValidateDiagnosisFixtures validates the valid/invalid fixture sets under
// root (root/diagnosis_result/{valid,invalid}/*.json). Valid fixtures must
// pass both validators; invalid fixtures must fail both.
func ValidateDiagnosisFixtures(root string) (ContractValidationSummary, error) {
	summary := ContractValidationSummary{}
	schema, err := diagnosis.CompileSchema()
	if err != nil {
		return summary, err
	}

	for _, validity := range []struct {
		dir        string
		shouldPass bool
	}{
		{dir: "valid", shouldPass: true},
		{dir: "invalid", shouldPass: false},
	} {
		dir := filepath.Join(root, "diagnosis_result", validity.dir)
		items, err := os.ReadDir(dir)
		if err != nil {
			return summary, fmt.Errorf("read fixtures %s: %w", dir, err)
		}
		names := make([]string, 0, len(items))
		for _, item := range items {
			if !item.IsDir() {
				names = append(names, item.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			summary.Total++
			filePath := filepath.Join(dir, name)
			raw, readErr := os.ReadFile(filePath)
			if readErr != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, fmt.Sprintf("%s: read error: %v", filePath, readErr))
				continue
			}

			typedErr := validateTyped(raw)
			schemaErr := validateAgainstSchema(schema, raw)

			if validity.shouldPass {
				if typedErr != nil || schemaErr != nil {
					summary.Failed++
					summary.Failures = append(summary.Failures,
						fmt.Sprintf("%s: expected valid, typed_err=%v schema_err=%v", filePath, typedErr, schemaErr))
				}
				continue
			}
			if typedErr == nil || schemaErr == nil {
				summary.Failed++
				summary.Failures = append(summary.Failures,
					fmt.Sprintf("%s: expected invalid by both validators, typed_err=%v schema_err=%v", filePath, typedErr, schemaErr))
			}
		}
	}
	return summary, nil
}

// RenderSummary formats a human-readable validation report.
func RenderSummary(summary ContractValidationSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "diagnosis contract fixtures: total=%d failed=%d\n", summary.Total, summary.Failed)
	for _, failure := range summary.Failures {
		fmt.Fprintf(&b, "  - %s\n", failure)
	}
	return b.String()
}

func validateTyped(raw []byte) error {
	var result diagnosis.Result
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&result); err != nil {
		return err
	}
	return result.Validate()
}

func validateAgainstSchema(schema *jsonschema.Schema, raw []byte) error {
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return err
	}
	return schema.Validate(document)
}
