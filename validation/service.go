// Package validation runs the rule set for one request and assembles the
// contract result. The service holds no per-request state and can be shared
// across concurrent callers.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/defcheck/aggregation"
	"github.com/c360studio/defcheck/catalog"
	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/evaluator"
	"github.com/c360studio/defcheck/rules"
)

// Options configures a Service.
type Options struct {
	// DefaultProfile is used when the request context names no profile.
	DefaultProfile string

	// Concurrency bounds parallel rule evaluation within one request.
	// Values of 1 or less evaluate rules sequentially.
	Concurrency int
}

// SnapshotSource returns the current catalog snapshot. *catalog.Store
// implements it.
type SnapshotSource interface {
	Snapshot() (*catalog.Snapshot, error)
}

// Evaluated is one rule result with the definition it ran under.
type Evaluated struct {
	Definition rules.Definition
	Result     rules.Result
}

// Evaluation is the raw outcome of running a rule set, in catalog order.
type Evaluation struct {
	CatalogVersion string
	Profile        string
	Results        []Evaluated
}

// Service validates requests against the current catalog.
type Service struct {
	catalog    SnapshotSource
	registry   *rules.Registry
	adapter    *evaluator.Adapter
	aggregator *aggregation.Aggregator
	opts       Options
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(
	cat SnapshotSource,
	registry *rules.Registry,
	adapter *evaluator.Adapter,
	aggregator *aggregation.Aggregator,
	opts Options,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if adapter == nil {
		adapter = evaluator.NewAdapter(0, nil, logger)
	}
	if aggregator == nil {
		aggregator = aggregation.New(aggregation.DefaultPolicy())
	}
	return &Service{
		catalog:    cat,
		registry:   registry,
		adapter:    adapter,
		aggregator: aggregator,
		opts:       opts,
		logger:     logger,
	}
}

type job struct {
	def  rules.Definition
	rule rules.Rule
}

// Evaluate runs every enabled rule selected by the request profile. Rules
// without a registered implementation are skipped. The only errors are
// contract violations, a missing catalog and cancellation of ctx.
func (s *Service) Evaluate(ctx context.Context, in rules.Input) (*Evaluation, error) {
	snap, err := s.catalog.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("catalog snapshot: %w", err)
	}

	profile := in.Context.Profile
	if profile == "" {
		profile = s.opts.DefaultProfile
	}
	defs, err := snap.RulesFor(profile)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownProfile) {
			return nil, contract.WrapContractViolation("context.profile", err)
		}
		return nil, err
	}

	jobs := make([]job, 0, len(defs))
	for _, def := range defs {
		rule, ok := s.registry.Get(def.Code)
		if !ok {
			s.logger.Warn("No implementation registered for rule", "rule", def.Code)
			continue
		}
		jobs = append(jobs, job{def: def, rule: rule})
	}

	results, err := s.run(ctx, jobs, in)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		CatalogVersion: snap.Version(),
		Profile:        profile,
		Results:        make([]Evaluated, len(jobs)),
	}
	for i, j := range jobs {
		ev.Results[i] = Evaluated{Definition: j.def, Result: results[i]}
	}
	return ev, nil
}

// run evaluates jobs and returns results aligned with jobs.
func (s *Service) run(ctx context.Context, jobs []job, in rules.Input) ([]rules.Result, error) {
	results := make([]rules.Result, len(jobs))

	if s.opts.Concurrency <= 1 {
		for i, j := range jobs {
			res, err := s.adapter.Evaluate(ctx, j.def, j.rule, in)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	sem := make(chan struct{}, s.opts.Concurrency)
	errs := make([]error, len(jobs))
	var wg sync.WaitGroup

	for i, j := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = s.adapter.Evaluate(ctx, j.def, j.rule, in)
		}(i, j)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Assemble aggregates an evaluation into the contract result. Violations
// and passed rules follow catalog order, (category, code) of the catalog
// definition. A faulted rule is reported with category system but still
// scores under its catalog category.
func (s *Service) Assemble(ev *Evaluation, correlationID string) *contract.Result {
	weighted := make([]aggregation.Weighted, len(ev.Results))
	for i, e := range ev.Results {
		r := e.Result
		r.Category = e.Definition.Category
		weighted[i] = aggregation.Weighted{Result: r, Weight: e.Definition.Weight}
	}
	outcome := s.aggregator.Aggregate(weighted)

	res := &contract.Result{
		Version:        contract.CurrentVersion,
		OverallScore:   outcome.OverallScore,
		IsAcceptable:   outcome.IsAcceptable,
		Violations:     []contract.Violation{},
		PassedRules:    []string{},
		DetailedScores: make(map[string]float64, len(outcome.CategoryScores)),
		System:         contract.System{CorrelationID: correlationID},
	}
	for cat, score := range outcome.CategoryScores {
		res.DetailedScores[string(cat)] = score
	}

	var suggestions []aggregation.Suggestion
	for _, e := range ev.Results {
		r := e.Result
		if r.Passed {
			res.PassedRules = append(res.PassedRules, r.RuleCode)
			continue
		}
		res.Violations = append(res.Violations, contract.Violation{
			Code:     r.RuleCode,
			Severity: string(r.Severity),
			Message:  r.Message,
			RuleID:   r.RuleCode,
			Category: string(r.Category),
		})
		if e.Definition.Suggestion != "" {
			suggestions = append(suggestions, aggregation.Suggestion{
				RuleCode: r.RuleCode,
				Severity: r.Severity,
				Text:     e.Definition.Suggestion,
			})
		}
	}
	if len(suggestions) > 0 {
		res.ImprovementSuggestions = aggregation.RankSuggestions(suggestions)
	}
	return res
}

// Feedback renders r under the service's acceptability policy.
func (s *Service) Feedback(r *contract.Result) string {
	return FormatFeedback(r, s.aggregator.Policy())
}

// Validate evaluates in and assembles the result.
func (s *Service) Validate(ctx context.Context, in rules.Input, correlationID string) (*contract.Result, error) {
	ev, err := s.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.Assemble(ev, correlationID), nil
}
