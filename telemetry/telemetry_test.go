package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", CorrelationID(ctx))

	ctx = WithCorrelationID(ctx, "abc-123")
	assert.Equal(t, "abc-123", CorrelationID(ctx))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	sink.RuleFault(ctx, RuleFault{CorrelationID: "c1", RuleCode: "STR-01", ErrorType: "panic(string)", Panic: "boom", Stack: []byte("goroutine 1")})
	sink.RequestFault(ctx, RequestFault{CorrelationID: "c1", Code: "UPS-001", Stage: "CLEANING", Err: errors.New("down"), BatchIndex: 3})
	sink.Completed(ctx, Completion{CorrelationID: "c1", Score: 0.9, Acceptable: true})

	out := buf.String()
	assert.Contains(t, out, "rule=STR-01")
	assert.Contains(t, out, "panic=boom")
	assert.Contains(t, out, "code=UPS-001")
	assert.Contains(t, out, "batch_index=3")
	assert.Contains(t, out, "Validation completed")
}

type recordingSink struct {
	ruleFaults, requestFaults, completions int
}

func (r *recordingSink) RuleFault(context.Context, RuleFault)       { r.ruleFaults++ }
func (r *recordingSink) RequestFault(context.Context, RequestFault) { r.requestFaults++ }
func (r *recordingSink) Completed(context.Context, Completion)      { r.completions++ }

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, b, Nop{}}
	ctx := context.Background()

	m.RuleFault(ctx, RuleFault{})
	m.RequestFault(ctx, RequestFault{BatchIndex: -1})
	m.Completed(ctx, Completion{})

	for _, s := range []*recordingSink{a, b} {
		assert.Equal(t, 1, s.ruleFaults)
		assert.Equal(t, 1, s.requestFaults)
		assert.Equal(t, 1, s.completions)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	ctx := context.Background()

	m.Completed(ctx, Completion{Acceptable: true, Duration: time.Millisecond})
	m.Completed(ctx, Completion{Acceptable: false})
	m.Completed(ctx, Completion{Degraded: true})
	m.RuleFault(ctx, RuleFault{RuleCode: "ESS-01"})
	m.RequestFault(ctx, RequestFault{Code: "TMO-001"})
	m.CatalogReloaded(nil)
	m.CatalogReloaded(errors.New("bad"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("acceptable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleFaults.WithLabelValues("ESS-01")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestFaults.WithLabelValues("TMO-001")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloads.WithLabelValues("failure")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}
