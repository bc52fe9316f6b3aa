// Package orchestrator is the entry point of the validation engine. It
// assigns correlation IDs, runs the optional cleaning collaborator, drives
// the validation service through a fixed state machine and converts faults
// into degraded results. Single and batch entry points share one pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/defcheck/cleaning"
	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/rules"
	"github.com/c360studio/defcheck/telemetry"
	"github.com/c360studio/defcheck/validation"
)

// Defaults applied by New when Options leave them zero.
const (
	DefaultCleaningTimeout     = 5 * time.Second
	DefaultMaxBatchConcurrency = 8
)

// Engine evaluates and assembles results. *validation.Service implements it.
type Engine interface {
	Evaluate(ctx context.Context, in rules.Input) (*validation.Evaluation, error)
	Assemble(ev *validation.Evaluation, correlationID string) *contract.Result
}

// Options configures an Orchestrator.
type Options struct {
	// CleaningTimeout bounds each cleaner call.
	CleaningTimeout time.Duration

	// MaxBatchConcurrency caps the concurrency a batch caller may request.
	MaxBatchConcurrency int
}

// Orchestrator coordinates validation requests. It holds no per-request
// state and is safe for concurrent use.
type Orchestrator struct {
	engine  Engine
	cleaner cleaning.Cleaner
	opts    Options
	sink    telemetry.Sink
	logger  *slog.Logger
	newID   func() string
}

// New creates an Orchestrator. A nil cleaner passes text through unchanged.
func New(engine Engine, cleaner cleaning.Cleaner, opts Options, sink telemetry.Sink, logger *slog.Logger) *Orchestrator {
	if opts.CleaningTimeout <= 0 {
		opts.CleaningTimeout = DefaultCleaningTimeout
	}
	if opts.MaxBatchConcurrency <= 0 {
		opts.MaxBatchConcurrency = DefaultMaxBatchConcurrency
	}
	if sink == nil {
		sink = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		engine:  engine,
		cleaner: cleaner,
		opts:    opts,
		sink:    sink,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// ValidateText validates a definition text for begrip.
func (o *Orchestrator) ValidateText(ctx context.Context, begrip, text string, category contract.OntologicalCategory, vctx *contract.Context) (*contract.Result, error) {
	return o.Validate(ctx, contract.Request{
		Begrip:              begrip,
		Text:                text,
		OntologicalCategory: category,
		Context:             vctx,
	})
}

// ValidateDefinition validates a definition object from the generation side.
func (o *Orchestrator) ValidateDefinition(ctx context.Context, def contract.Definition, vctx *contract.Context) (*contract.Result, error) {
	return o.Validate(ctx, def.Request(vctx))
}

// Validate runs one request. Contract violations and cancellation are
// returned as errors; every other failure yields a degraded result.
func (o *Orchestrator) Validate(ctx context.Context, req contract.Request) (*contract.Result, error) {
	start := time.Now()
	id, res, err := o.process(ctx, req)
	if err == nil {
		o.completed(ctx, id, req, res, start)
		return res, nil
	}

	fault, ok := AsFault(err)
	if !ok {
		return nil, err
	}
	o.sink.RequestFault(ctx, telemetry.RequestFault{
		CorrelationID: id,
		Code:          fault.Code,
		Stage:         string(fault.Stage),
		Err:           fault.Err,
		Stack:         fault.Stack,
		BatchIndex:    -1,
	})
	res = contract.NewDegradedResult(id, contract.ErrorInfo{
		Code:    fault.Code,
		Kind:    contract.KindOrchestration,
		Stage:   string(fault.Stage),
		Message: summary(fault.Code),
	})
	o.completed(ctx, id, req, res, start)
	return res, nil
}

// process runs the state machine. It returns the correlation ID it used,
// even on error.
func (o *Orchestrator) process(ctx context.Context, req contract.Request) (id string, res *contract.Result, err error) {
	stage := StageReceived
	if verr := req.Validate(); verr != nil {
		return "", nil, verr
	}

	var vctx contract.Context
	if req.Context != nil {
		vctx = *req.Context
	}
	id = vctx.CorrelationID
	if id == "" {
		id = o.newID()
	}
	vctx = vctx.WithCorrelationID(id)
	ctx = telemetry.WithCorrelationID(ctx, id)

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &Fault{
				Code:  contract.CodeInternal,
				Stage: stage,
				Err:   fmt.Errorf("panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	advance := func(next Stage) {
		o.logger.Debug("Validation stage", "correlation_id", id, "from", stage, "to", next)
		stage = next
	}

	text := req.Text
	if o.cleaner != nil {
		advance(StageCleaning)
		text, err = o.clean(ctx, req.Text, req.Begrip)
		if err != nil {
			if ctx.Err() != nil {
				return id, nil, ctx.Err()
			}
			return id, nil, o.cleaningFault(err)
		}
	}

	advance(StageEvaluating)
	ev, err := o.engine.Evaluate(ctx, rules.Input{
		Begrip:              req.Begrip,
		Text:                text,
		OntologicalCategory: req.OntologicalCategory,
		Context:             vctx,
	})
	if err != nil {
		switch {
		case contract.IsContractViolation(err):
			return id, nil, err
		case ctx.Err() != nil:
			return id, nil, ctx.Err()
		default:
			return id, nil, &Fault{Code: contract.CodeInternal, Stage: stage, Err: err}
		}
	}

	advance(StageAggregating)
	res = o.engine.Assemble(ev, id)

	advance(StageReturned)
	return id, res, nil
}

type cleanOutcome struct {
	text     string
	err      error
	panicked any
}

// clean calls the cleaner under the cleaning timeout. A cleaner that ignores
// its context is abandoned at the deadline. A cleaner panic is re-raised on
// the calling goroutine.
func (o *Orchestrator) clean(ctx context.Context, text, begrip string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CleaningTimeout)
	defer cancel()

	done := make(chan cleanOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- cleanOutcome{panicked: r}
			}
		}()
		out, err := o.cleaner.Clean(cctx, text, begrip)
		done <- cleanOutcome{text: out, err: err}
	}()

	select {
	case r := <-done:
		if r.panicked != nil {
			panic(r.panicked)
		}
		return r.text, r.err
	case <-cctx.Done():
		return "", cctx.Err()
	}
}

func (o *Orchestrator) cleaningFault(err error) *Fault {
	code := contract.CodeUpstream
	if errors.Is(err, context.DeadlineExceeded) {
		code = contract.CodeTimeout
	}
	return &Fault{Code: code, Stage: StageCleaning, Err: err}
}

func (o *Orchestrator) completed(ctx context.Context, id string, req contract.Request, res *contract.Result, start time.Time) {
	profile := ""
	if req.Context != nil {
		profile = req.Context.Profile
	}
	o.sink.Completed(ctx, telemetry.Completion{
		CorrelationID: id,
		Profile:       profile,
		Score:         res.OverallScore,
		Acceptable:    res.IsAcceptable,
		Degraded:      res.Degraded(),
		Rules:         len(res.PassedRules) + len(res.Violations),
		Duration:      time.Since(start),
	})
}
