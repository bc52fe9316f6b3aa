// Package aggregation combines rule results into category scores, an
// overall score and an acceptability verdict. Arithmetic is done in decimal
// so rounding at two places is exact.
package aggregation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/c360studio/defcheck/rules"
)

// DefaultThreshold is the minimum overall score for an acceptable definition.
const DefaultThreshold = 0.75

// Policy is the immutable acceptability policy.
type Policy struct {
	// Threshold is the minimum overall score, in [0,1].
	Threshold float64

	// GateSeverities lists severities whose failure forces a rejection
	// regardless of score.
	GateSeverities []rules.Severity
}

// DefaultPolicy returns the default policy: threshold 0.75, gated on
// mandatory rules only.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:      DefaultThreshold,
		GateSeverities: []rules.Severity{rules.SeverityMandatory},
	}
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", p.Threshold)
	}
	for _, s := range p.GateSeverities {
		if _, err := rules.ParseSeverity(string(s)); err != nil {
			return fmt.Errorf("gate: %w", err)
		}
	}
	return nil
}

// Gates reports whether a failure of severity s forces a rejection.
func (p Policy) Gates(s rules.Severity) bool {
	for _, g := range p.GateSeverities {
		if g == s {
			return true
		}
	}
	return false
}

// Weighted pairs a rule result with its catalog weight.
type Weighted struct {
	Result rules.Result
	Weight float64
}

// Outcome is the aggregated verdict.
type Outcome struct {
	OverallScore   float64
	IsAcceptable   bool
	CategoryScores map[rules.Category]float64

	// GatedFailures lists codes of failed rules whose severity is gated.
	GatedFailures []string
}

// Aggregator applies a Policy. It holds no per-call state.
type Aggregator struct {
	policy Policy
}

// New creates an Aggregator.
func New(policy Policy) *Aggregator {
	gates := make([]rules.Severity, len(policy.GateSeverities))
	copy(gates, policy.GateSeverities)
	policy.GateSeverities = gates
	return &Aggregator{policy: policy}
}

// Policy returns the aggregator's policy.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Aggregate computes the outcome for results. Zero results or zero total
// weight yield a 0.0 score that is not acceptable.
func (a *Aggregator) Aggregate(results []Weighted) Outcome {
	out := Outcome{CategoryScores: make(map[rules.Category]float64)}

	type acc struct {
		sum    decimal.Decimal
		weight decimal.Decimal
	}
	cats := make(map[rules.Category]*acc)
	var order []rules.Category

	for _, w := range results {
		if !(w.Weight > 0) {
			continue
		}
		c, ok := cats[w.Result.Category]
		if !ok {
			c = &acc{}
			cats[w.Result.Category] = c
			order = append(order, w.Result.Category)
		}
		weight := decimal.NewFromFloat(w.Weight)
		c.sum = c.sum.Add(weight.Mul(decimal.NewFromFloat(w.Result.Score)))
		c.weight = c.weight.Add(weight)

		if !w.Result.Passed && a.policy.Gates(w.Result.Severity) {
			out.GatedFailures = append(out.GatedFailures, w.Result.RuleCode)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var total, totalWeight decimal.Decimal
	for _, cat := range order {
		c := cats[cat]
		score := Round2(c.sum.Div(c.weight))
		out.CategoryScores[cat] = score.InexactFloat64()
		total = total.Add(score.Mul(c.weight))
		totalWeight = totalWeight.Add(c.weight)
	}

	if totalWeight.IsZero() {
		return out
	}

	overall := Round2(total.Div(totalWeight)).InexactFloat64()
	out.OverallScore = clamp01(overall)
	out.IsAcceptable = out.OverallScore >= a.policy.Threshold && len(out.GatedFailures) == 0
	return out
}

// Round2 rounds d to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundScore rounds a float score to two places, half away from zero, using
// its shortest decimal representation.
func RoundScore(f float64) float64 {
	return Round2(decimal.NewFromFloat(f)).InexactFloat64()
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Suggestion is an improvement hint tied to the rule that produced it.
type Suggestion struct {
	RuleCode string
	Severity rules.Severity
	Text     string
}

// RankSuggestions orders suggestions by severity, most severe first, then
// by rule code, and drops duplicate texts.
func RankSuggestions(in []Suggestion) []string {
	sorted := make([]Suggestion, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Severity.Rank(), sorted[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return sorted[i].RuleCode < sorted[j].RuleCode
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]string, 0, len(sorted))
	for _, s := range sorted {
		if s.Text == "" || seen[s.Text] {
			continue
		}
		seen[s.Text] = true
		out = append(out, s.Text)
	}
	return out
}
