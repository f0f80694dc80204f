package diagnose

import (
	"fmt"
	"strings"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/internal/engine/policy"
)

// SystemInstructions builds the persona and output-discipline preamble for
// the model-backed strategy. The reply contract itself is carried by the
// JSON schema; the instructions establish grounding and tone.
func SystemInstructions(request diagnosis.Request) string {
	scenarioPolicy := policy.Lookup(request.ScenarioKey)

	var b strings.Builder
	b.WriteString("You are a robot-fleet test diagnostician reviewing one recorded simulation run")
	if request.CompareSummary != nil {
		b.WriteString(" against a comparison run")
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "Scenario: %s (%s). %s\n\n", scenarioPolicy.Title, scenarioPolicy.Key, scenarioPolicy.Description)

	b.WriteString("Requirements:\n")
	b.WriteString("- Be specific and actionable; name the incident types and times you are reasoning from.\n")
	b.WriteString("- Ground every root cause and recommendation in the supplied evidence list and per-type counts. Do not invent incidents.\n")
	b.WriteString("- Reply with a single JSON object matching the provided schema exactly; no prose outside the JSON.\n")
	if request.CompareSummary == nil {
		b.WriteString("- No comparison run was supplied: compare_insights must be the empty string.\n")
	} else {
		b.WriteString("- Use compare_insights to explain the most decisive difference between the two runs.\n")
	}
	return b.String()
}
