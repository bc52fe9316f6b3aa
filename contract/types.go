// Package contract defines the data contract of the definition validation
// engine: requests, the per-call validation context, and the versioned
// ValidationResult returned to every consumer.
package contract

import (
	"strings"
)

// OntologicalCategory classifies what kind of thing a begrip denotes.
type OntologicalCategory string

// Supported ontological categories.
const (
	CategoryType      OntologicalCategory = "type"
	CategoryProces    OntologicalCategory = "proces"
	CategoryResultaat OntologicalCategory = "resultaat"
	CategoryExemplaar OntologicalCategory = "exemplaar"
)

// Valid reports whether c is empty or one of the known categories.
func (c OntologicalCategory) Valid() bool {
	switch c {
	case "", CategoryType, CategoryProces, CategoryResultaat, CategoryExemplaar:
		return true
	default:
		return false
	}
}

// Context carries per-call metadata. It is a value object: callers create
// one per call and the engine never mutates it.
type Context struct {
	CorrelationID string          `json:"correlation_id,omitempty"`
	Profile       string          `json:"profile,omitempty"`
	Locale        string          `json:"locale,omitempty"`
	TraceParent   string          `json:"trace_parent,omitempty"`
	FeatureFlags  map[string]bool `json:"feature_flags,omitempty"`
}

// WithCorrelationID returns a copy of c carrying id.
func (c Context) WithCorrelationID(id string) Context {
	out := c
	out.CorrelationID = id
	if c.FeatureFlags != nil {
		out.FeatureFlags = make(map[string]bool, len(c.FeatureFlags))
		for k, v := range c.FeatureFlags {
			out.FeatureFlags[k] = v
		}
	}
	return out
}

// Flag reports whether the named feature flag is set.
func (c Context) Flag(name string) bool {
	return c.FeatureFlags[name]
}

// Request is a single validation request.
type Request struct {
	Begrip              string              `json:"begrip"`
	Text                string              `json:"text"`
	OntologicalCategory OntologicalCategory `json:"ontological_category,omitempty"`
	Context             *Context            `json:"context,omitempty"`
}

// Validate checks the caller-side contract of the request.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Begrip) == "" {
		return NewContractViolation("begrip", "must be a non-empty string")
	}
	if strings.TrimSpace(r.Text) == "" {
		return NewContractViolation("text", "must be a non-empty string")
	}
	if !r.OntologicalCategory.Valid() {
		return NewContractViolation("ontological_category", "unknown category "+string(r.OntologicalCategory))
	}
	return nil
}

// Definition is the definition object produced by the generation side.
type Definition struct {
	Begrip              string              `json:"begrip"`
	Definitie           string              `json:"definitie"`
	OntologicalCategory OntologicalCategory `json:"ontologische_categorie,omitempty"`
}

// Request converts the definition into a validation request.
func (d Definition) Request(ctx *Context) Request {
	return Request{
		Begrip:              d.Begrip,
		Text:                d.Definitie,
		OntologicalCategory: d.OntologicalCategory,
		Context:             ctx,
	}
}

// Violation is one failed rule as reported to consumers.
type Violation struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	RuleID   string `json:"rule_id"`
	Category string `json:"category"`
}

// ErrorInfo summarises an internal fault. Full detail goes to the
// observability sink only.
type ErrorInfo struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// System is the engine envelope attached to every result.
type System struct {
	CorrelationID string     `json:"correlation_id"`
	Error         *ErrorInfo `json:"error,omitempty"`
}

// Result is the ValidationResult contract.
type Result struct {
	Version                string             `json:"version"`
	OverallScore           float64            `json:"overall_score"`
	IsAcceptable           bool               `json:"is_acceptable"`
	Violations             []Violation        `json:"violations"`
	PassedRules            []string           `json:"passed_rules"`
	DetailedScores         map[string]float64 `json:"detailed_scores"`
	ImprovementSuggestions []string           `json:"improvement_suggestions,omitempty"`
	System                 System             `json:"system"`
}

// Degraded reports whether the result was produced after an internal fault.
func (r *Result) Degraded() bool {
	return r != nil && r.System.Error != nil
}

// HasViolation reports whether the result contains a violation for code.
func (r *Result) HasViolation(code string) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}
