package diagnose

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
)

func validReplyDocument() map[string]any {
	return map[string]any{
		"verdict":          "WARN",
		"confidence":       0.72,
		"operator_summary": "Two near-collisions in the same aisle; clearance margins are too tight.",
		"root_causes": []any{
			"Late obstacle avoidance around the pick-lane corner.",
		},
		"evidence": []any{
			map[string]any{"t": 4.2, "type": "near_collision", "why_it_matters": "Proximity margin collapsed."},
			map[string]any{"t": 18.9, "type": "near_collision", "why_it_matters": "Same corner, same approach heading."},
		},
		"recommendations": []any{
			"Widen the clearance envelope at the corner.",
			"Cap the approach speed in that aisle.",
			"Re-tune the avoidance trigger distance.",
		},
		"next_tests": []any{
			"Repeat the run at doubled traffic density.",
			"Replay the corner approach from the opposite direction.",
		},
		"compare_insights": "",
	}
}

func mustContract(t *testing.T) *Contract {
	t.Helper()
	contract, err := NewContract()
	if err != nil {
		t.Fatalf("NewContract: %v", err)
	}
	return contract
}

func asBadModelJSON(t *testing.T, err error) *diagnosis.Error {
	t.Helper()
	var typed *diagnosis.Error
	if !errors.As(err, &typed) {
		t.Fatalf("want *diagnosis.Error, got %T: %v", err, err)
	}
	if typed.Condition != diagnosis.ConditionBadModelJSON {
		t.Fatalf("want %s, got %s", diagnosis.ConditionBadModelJSON, typed.Condition)
	}
	return typed
}

func TestContractDecodesValidReply(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(validReplyDocument())
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	result, err := mustContract(t).Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.Verdict != "WARN" || result.Confidence != 0.72 {
		t.Fatalf("decoded result mismatch: %+v", result)
	}
	if len(result.Evidence) != 2 {
		t.Fatalf("evidence: want 2 got %d", len(result.Evidence))
	}
}

func TestContractCoercesMissingCompareInsights(t *testing.T) {
	t.Parallel()

	document := validReplyDocument()
	delete(document, "compare_insights")
	raw, err := json.Marshal(document)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	result, err := mustContract(t).Decode(raw)
	if err != nil {
		t.Fatalf("Decode after coercion: %v", err)
	}
	if result.CompareInsights != "" {
		t.Fatalf("missing compare_insights must decode to empty, got %q", result.CompareInsights)
	}
}

func TestContractCoercesNonStringCompareInsights(t *testing.T) {
	t.Parallel()

	document := validReplyDocument()
	document["compare_insights"] = 42
	raw, err := json.Marshal(document)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	result, err := mustContract(t).Decode(raw)
	if err != nil {
		t.Fatalf("Decode after coercion: %v", err)
	}
	if result.CompareInsights != "" {
		t.Fatalf("non-string compare_insights must coerce to empty, got %q", result.CompareInsights)
	}
}

func TestContractRejectsNonJSON(t *testing.T) {
	t.Parallel()

	raw := "Sure! Here is the diagnosis you asked for:\n\n{\"verdict\": \"PA"
	_, err := mustContract(t).Decode([]byte(raw))
	typed := asBadModelJSON(t, err)
	if typed.Raw != raw {
		t.Fatalf("raw excerpt must carry the reply text, got %q", typed.Raw)
	}
}

func TestContractTruncatesLongRawExcerpt(t *testing.T) {
	t.Parallel()

	raw := strings.Repeat("x", diagnosis.MaxRawExcerpt+500)
	_, err := mustContract(t).Decode([]byte(raw))
	typed := asBadModelJSON(t, err)
	if len(typed.Raw) != diagnosis.MaxRawExcerpt {
		t.Fatalf("raw excerpt length: want %d got %d", diagnosis.MaxRawExcerpt, len(typed.Raw))
	}
}

func TestContractRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	mutations := map[string]func(map[string]any){
		"bad verdict":         func(d map[string]any) { d["verdict"] = "MAYBE" },
		"confidence above 1":  func(d map[string]any) { d["confidence"] = 1.5 },
		"missing summary":     func(d map[string]any) { delete(d, "operator_summary") },
		"empty root causes":   func(d map[string]any) { d["root_causes"] = []any{} },
		"single evidence":     func(d map[string]any) { d["evidence"] = d["evidence"].([]any)[:1] },
		"two recommendations": func(d map[string]any) { d["recommendations"] = d["recommendations"].([]any)[:2] },
		"extra property":      func(d map[string]any) { d["mood"] = "optimistic" },
	}

	contract := mustContract(t)
	for name, mutate := range mutations {
		document := validReplyDocument()
		mutate(document)
		raw, err := json.Marshal(document)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		if _, err := contract.Decode(raw); err == nil {
			t.Fatalf("%s: expected bad_model_json, got nil error", name)
		} else {
			asBadModelJSON(t, err)
		}
	}
}
