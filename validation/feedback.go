package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/defcheck/aggregation"
	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/rules"
)

// FormatFeedback renders a result as feedback for a regeneration attempt,
// naming why policy rejected it. Acceptable results produce no feedback.
func FormatFeedback(r *contract.Result, policy aggregation.Policy) string {
	if r == nil || r.IsAcceptable {
		return ""
	}

	var sb strings.Builder
	if r.Degraded() {
		sb.WriteString("## Validation Unavailable\n\n")
		sb.WriteString(fmt.Sprintf("The definition could not be scored (%s). Retry later.\n", r.System.Error.Code))
		return sb.String()
	}

	sb.WriteString("## Validation Failed\n\n")
	if r.OverallScore < policy.Threshold {
		sb.WriteString(fmt.Sprintf("Overall score %.2f is below the threshold %.2f.\n", r.OverallScore, policy.Threshold))
	}
	if gated := gatedCodes(r.Violations, policy); len(gated) > 0 {
		sb.WriteString(fmt.Sprintf("Rejected by gated violations: %s.\n", strings.Join(gated, ", ")))
	}
	sb.WriteString("\n")

	if len(r.Violations) > 0 {
		sb.WriteString("### Violations\n\n")
		for _, v := range r.Violations {
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", v.Severity, v.Code, v.Message))
		}
		sb.WriteString("\n")
	}

	if len(r.ImprovementSuggestions) > 0 {
		sb.WriteString("### Suggestions\n\n")
		for _, s := range r.ImprovementSuggestions {
			sb.WriteString(fmt.Sprintf("- %s\n", s))
		}
		sb.WriteString("\n")
	}

	if len(r.DetailedScores) > 0 {
		cats := make([]string, 0, len(r.DetailedScores))
		for c := range r.DetailedScores {
			cats = append(cats, c)
		}
		sort.Strings(cats)

		sb.WriteString("### Scores\n\n")
		for _, c := range cats {
			sb.WriteString(fmt.Sprintf("- %s: %.2f\n", c, r.DetailedScores[c]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Please revise the definition addressing these issues.\n")
	return sb.String()
}

func gatedCodes(violations []contract.Violation, policy aggregation.Policy) []string {
	var out []string
	for _, v := range violations {
		if policy.Gates(rules.Severity(v.Severity)) {
			out = append(out, fmt.Sprintf("%s (%s)", v.Code, v.Severity))
		}
	}
	return out
}
