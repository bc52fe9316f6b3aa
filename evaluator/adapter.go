// Package evaluator wraps every rule invocation in one fault-isolation
// boundary. A rule that panics, returns an error or overruns its timeout
// yields a degraded result; the run continues.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"github.com/c360studio/defcheck/rules"
	"github.com/c360studio/defcheck/telemetry"
)

// Adapter runs rules with fault isolation.
type Adapter struct {
	timeout time.Duration
	sink    telemetry.Sink
	logger  *slog.Logger
}

// NewAdapter creates an Adapter. A zero timeout disables the per-rule
// deadline. A nil sink discards fault events.
func NewAdapter(timeout time.Duration, sink telemetry.Sink, logger *slog.Logger) *Adapter {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{timeout: timeout, sink: sink, logger: logger}
}

// panicError carries a recovered panic value.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// Evaluate runs rule against in under def. The returned error is non-nil
// only when ctx itself was cancelled; every rule failure is folded into the
// result.
func (a *Adapter) Evaluate(ctx context.Context, def rules.Definition, rule rules.Rule, in rules.Input) (rules.Result, error) {
	if err := ctx.Err(); err != nil {
		return rules.Result{}, err
	}

	res, err := a.run(ctx, rule, in)
	if err != nil {
		// Parent cancellation aborts the run; it is not a rule fault.
		if ctx.Err() != nil {
			return rules.Result{}, ctx.Err()
		}
		return a.degrade(ctx, def, err), nil
	}

	res.RuleCode = def.Code
	res.Category = def.Category
	res.Severity = def.Severity
	res.Score = normalize(res)
	return res, nil
}

type outcome struct {
	res rules.Result
	err error
}

// run invokes the rule, bounded by the adapter timeout when one is set. A
// rule that ignores its context is abandoned at the deadline.
func (a *Adapter) run(ctx context.Context, rule rules.Rule, in rules.Input) (rules.Result, error) {
	if a.timeout <= 0 {
		return a.invoke(ctx, rule, in)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := a.invoke(runCtx, rule, in)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-runCtx.Done():
		return rules.Result{}, runCtx.Err()
	}
}

func (a *Adapter) invoke(ctx context.Context, rule rules.Rule, in rules.Input) (res rules.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return rule.Evaluate(ctx, in)
}

// degrade builds the failed result for a faulting rule and reports the full
// detail to the sink.
func (a *Adapter) degrade(ctx context.Context, def rules.Definition, err error) rules.Result {
	errType := typeName(err)
	fault := telemetry.RuleFault{
		CorrelationID: telemetry.CorrelationID(ctx),
		RuleCode:      def.Code,
		ErrorType:     errType,
		Err:           err,
		TimedOut:      errors.Is(err, context.DeadlineExceeded),
	}
	var pe *panicError
	if errors.As(err, &pe) {
		fault.Err = nil
		fault.Panic = pe.value
		fault.Stack = pe.stack
	}
	a.sink.RuleFault(ctx, fault)
	a.logger.Debug("Rule degraded", "rule", def.Code, "error_type", errType)

	return rules.Result{
		RuleCode: def.Code,
		Passed:   false,
		Score:    0,
		Message:  fmt.Sprintf("rule %s failed: %s", def.Code, errType),
		Severity: def.Severity,
		Category: rules.CategorySystem,
		Details: map[string]any{
			"fault":         true,
			"error_type":    errType,
			"rule_category": string(def.Category),
		},
	}
}

// typeName names the dynamic type of err, or of the panic value for a
// recovered panic.
func typeName(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("panic(%T)", pe.value)
	}
	return fmt.Sprintf("%T", err)
}

// normalize derives a binary score from Passed and clamps graded scores.
func normalize(res rules.Result) float64 {
	if !res.Graded {
		if res.Passed {
			return 1
		}
		return 0
	}
	return clamp(res.Score)
}

func clamp(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
