package contract

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var errorCodeRe = regexp.MustCompile(`^(TMO|UPS|INT)-[0-9]{3}$|^SYS-ERR-[0-9]{3}$`)

// legacyResult is the pre-1.0 result shape that carried engine data in a
// "metadata" object instead of "system".
type legacyResult struct {
	Version                string             `json:"version"`
	OverallScore           float64            `json:"overall_score"`
	IsAcceptable           bool               `json:"is_acceptable"`
	Violations             []Violation        `json:"violations"`
	PassedRules            []string           `json:"passed_rules"`
	DetailedScores         map[string]float64 `json:"detailed_scores"`
	ImprovementSuggestions []string           `json:"improvement_suggestions"`
	System                 *System            `json:"system"`
	Metadata               map[string]any     `json:"metadata"`
}

// UpgradeLegacy decodes a result that may use the legacy "metadata"
// envelope and returns it in the current contract shape.
func UpgradeLegacy(data []byte) (*Result, error) {
	var in legacyResult
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode legacy result: %w", err)
	}

	out := &Result{
		Version:                CurrentVersion,
		OverallScore:           in.OverallScore,
		IsAcceptable:           in.IsAcceptable,
		Violations:             in.Violations,
		PassedRules:            in.PassedRules,
		DetailedScores:         in.DetailedScores,
		ImprovementSuggestions: in.ImprovementSuggestions,
	}
	if out.Violations == nil {
		out.Violations = []Violation{}
	}
	for i := range out.Violations {
		if out.Violations[i].RuleID == "" {
			out.Violations[i].RuleID = out.Violations[i].Code
		}
	}
	if out.PassedRules == nil {
		out.PassedRules = []string{}
	}
	if out.DetailedScores == nil {
		out.DetailedScores = map[string]float64{}
	}

	switch {
	case in.System != nil:
		out.System = *in.System
	case in.Metadata != nil:
		out.System = systemFromMetadata(in.Metadata)
	}
	return out, nil
}

func systemFromMetadata(md map[string]any) System {
	var sys System
	if id, ok := md["correlation_id"].(string); ok {
		sys.CorrelationID = id
	}

	switch e := md["error"].(type) {
	case string:
		if e == "" {
			break
		}
		info := ErrorInfo{Code: CodeInternal, Kind: KindOrchestration, Message: e}
		if errorCodeRe.MatchString(e) {
			info.Code = e
		}
		sys.Error = &info
	case map[string]any:
		info := ErrorInfo{Code: CodeInternal, Kind: KindOrchestration}
		if code, ok := e["code"].(string); ok && errorCodeRe.MatchString(code) {
			info.Code = code
		}
		if kind, ok := e["kind"].(string); ok && kind != "" {
			info.Kind = kind
		}
		if msg, ok := e["message"].(string); ok {
			info.Message = msg
		}
		sys.Error = &info
	}
	return sys
}
