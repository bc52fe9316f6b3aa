// Package rules defines rule definitions, rule results, the Rule interface
// implemented by every quality check, and the explicit registry that maps
// rule codes to their implementations.
package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/defcheck/contract"
)

// Category groups related rules. Category scores are computed per category.
type Category string

// Rule categories.
const (
	CategoryLanguage   Category = "language"
	CategoryLegal      Category = "legal"
	CategoryStructure  Category = "structure"
	CategoryCoherence  Category = "coherence"
	CategoryEssence    Category = "essence"
	CategoryContext    Category = "context"
	CategoryIntegrity  Category = "integrity"
	CategoryAISpecific Category = "ai-specific"
	CategoryForbidden  Category = "forbidden"

	// CategorySystem is assigned to results of rules that faulted.
	CategorySystem Category = contract.SystemCategory
)

// Categories lists the catalog categories in lexical order.
var Categories = []Category{
	CategoryAISpecific,
	CategoryCoherence,
	CategoryContext,
	CategoryEssence,
	CategoryForbidden,
	CategoryIntegrity,
	CategoryLanguage,
	CategoryLegal,
	CategoryStructure,
}

// Valid reports whether c is a catalog category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity indicates how much a failed rule matters.
type Severity string

// Severities.
const (
	SeverityMandatory Severity = "mandatory"
	SeverityHigh      Severity = "high"
	SeverityMedium    Severity = "medium"
	SeverityLow       Severity = "low"
)

// ParseSeverity converts s into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityMandatory, SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Rank orders severities, higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityMandatory:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Definition is a catalog entry describing one rule.
type Definition struct {
	Code        string   `json:"code" yaml:"code"`
	Category    Category `json:"category" yaml:"category"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Weight      float64  `json:"weight" yaml:"weight"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// Validate checks the definition for catalog errors.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if !d.Category.Valid() {
		return fmt.Errorf("rule %s: unknown category %q", d.Code, d.Category)
	}
	if _, err := ParseSeverity(string(d.Severity)); err != nil {
		return fmt.Errorf("rule %s: %w", d.Code, err)
	}
	if !(d.Weight > 0) {
		return fmt.Errorf("rule %s: weight must be > 0, got %v", d.Code, d.Weight)
	}
	return nil
}

// Input is what a rule evaluates.
type Input struct {
	Begrip              string
	Text                string
	OntologicalCategory contract.OntologicalCategory
	Context             contract.Context
}

// Result is the outcome of one rule for one input.
type Result struct {
	RuleCode string         `json:"rule_code"`
	Passed   bool           `json:"passed"`
	Score    float64        `json:"score"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Category Category       `json:"category"`
	Details  map[string]any `json:"details,omitempty"`
	// Graded marks Score as a grade. Ungraded results score 1 when Passed
	// and 0 otherwise.
	Graded bool `json:"-"`
}

// Pass returns a passing result with score 1.
func Pass(message string) Result {
	return Result{Passed: true, Score: 1, Message: message}
}

// Fail returns a failing result with score 0.
func Fail(message string) Result {
	return Result{Passed: false, Score: 0, Message: message}
}

// Graded returns a result with a score in [0,1]. The result passes when
// score reaches passAt.
func Graded(score, passAt float64, message string) Result {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Result{Passed: score >= passAt, Score: score, Message: message, Graded: true}
}

// Rule is a single quality check.
type Rule interface {
	Code() string
	Evaluate(ctx context.Context, in Input) (Result, error)
}

// Func adapts a function into a Rule.
type Func struct {
	RuleCode string
	Fn       func(ctx context.Context, in Input) (Result, error)
}

// Code implements Rule.
func (f Func) Code() string { return f.RuleCode }

// Evaluate implements Rule.
func (f Func) Evaluate(ctx context.Context, in Input) (Result, error) {
	return f.Fn(ctx, in)
}
