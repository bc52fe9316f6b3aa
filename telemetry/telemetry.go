// Package telemetry carries correlation IDs through contexts and defines the
// observability sink that receives full fault detail. Results returned to
// callers only ever carry a summary.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

type correlationKey struct{}

// WithCorrelationID returns a context carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// RuleFault describes a rule that panicked, returned an error or timed out.
type RuleFault struct {
	CorrelationID string
	RuleCode      string
	ErrorType     string
	Err           error
	Panic         any
	Stack         []byte
	TimedOut      bool
}

// RequestFault describes a failure outside rule evaluation.
type RequestFault struct {
	CorrelationID string
	Code          string
	Stage         string
	Err           error
	Stack         []byte

	// BatchIndex is the item position within a batch, or -1.
	BatchIndex int
}

// Completion summarises a finished validation.
type Completion struct {
	CorrelationID string
	Profile       string
	Score         float64
	Acceptable    bool
	Degraded      bool
	Rules         int
	Duration      time.Duration
}

// Sink receives observability events. Implementations must be safe for
// concurrent use.
type Sink interface {
	RuleFault(ctx context.Context, f RuleFault)
	RequestFault(ctx context.Context, f RequestFault)
	Completed(ctx context.Context, c Completion)
}

// Nop discards every event.
type Nop struct{}

func (Nop) RuleFault(context.Context, RuleFault)       {}
func (Nop) RequestFault(context.Context, RequestFault) {}
func (Nop) Completed(context.Context, Completion)      {}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

func (m MultiSink) RuleFault(ctx context.Context, f RuleFault) {
	for _, s := range m {
		s.RuleFault(ctx, f)
	}
}

func (m MultiSink) RequestFault(ctx context.Context, f RequestFault) {
	for _, s := range m {
		s.RequestFault(ctx, f)
	}
}

func (m MultiSink) Completed(ctx context.Context, c Completion) {
	for _, s := range m {
		s.Completed(ctx, c)
	}
}

// LogSink writes events to a slog logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) RuleFault(ctx context.Context, f RuleFault) {
	attrs := []any{
		"correlation_id", f.CorrelationID,
		"rule", f.RuleCode,
		"error_type", f.ErrorType,
		"timed_out", f.TimedOut,
	}
	if f.Err != nil {
		attrs = append(attrs, "error", f.Err)
	}
	if f.Panic != nil {
		attrs = append(attrs, "panic", f.Panic, "stack", string(f.Stack))
	}
	s.logger.ErrorContext(ctx, "Rule fault", attrs...)
}

func (s *LogSink) RequestFault(ctx context.Context, f RequestFault) {
	attrs := []any{
		"correlation_id", f.CorrelationID,
		"code", f.Code,
		"stage", f.Stage,
		"error", f.Err,
	}
	if f.BatchIndex >= 0 {
		attrs = append(attrs, "batch_index", f.BatchIndex)
	}
	if len(f.Stack) > 0 {
		attrs = append(attrs, "stack", string(f.Stack))
	}
	s.logger.ErrorContext(ctx, "Validation degraded", attrs...)
}

func (s *LogSink) Completed(ctx context.Context, c Completion) {
	s.logger.DebugContext(ctx, "Validation completed",
		"correlation_id", c.CorrelationID,
		"profile", c.Profile,
		"score", c.Score,
		"acceptable", c.Acceptable,
		"degraded", c.Degraded,
		"rules", c.Rules,
		"duration", c.Duration)
}
