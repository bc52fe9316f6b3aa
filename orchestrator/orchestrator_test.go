package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/defcheck/catalog"
	"github.com/c360studio/defcheck/cleaning"
	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/rules"
	"github.com/c360studio/defcheck/rules/builtin"
	"github.com/c360studio/defcheck/telemetry"
	"github.com/c360studio/defcheck/validation"
)

const verificatieText = "Proces waarbij identiteitsgegevens systematisch worden gecontroleerd tegen authentieke bronregistraties"

func newService(t *testing.T) *validation.Service {
	t.Helper()
	snap, err := catalog.Default()
	require.NoError(t, err)
	reg := rules.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	return validation.NewService(catalog.NewStaticStore(snap), reg, nil, nil, validation.Options{}, nil)
}

// faultyEngine panics for the listed begrips and counts concurrent calls.
type faultyEngine struct {
	*validation.Service
	panicFor map[string]bool
	errFor   map[string]error
	delay    time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (e *faultyEngine) Evaluate(ctx context.Context, in rules.Input) (*validation.Evaluation, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.panicFor[in.Begrip] {
		panic("engine exploded for " + in.Begrip)
	}
	if err := e.errFor[in.Begrip]; err != nil {
		return nil, err
	}
	return e.Service.Evaluate(ctx, in)
}

type sinkRecorder struct {
	telemetry.Nop
	mu            sync.Mutex
	requestFaults []telemetry.RequestFault
	completions   []telemetry.Completion
}

func (s *sinkRecorder) RequestFault(_ context.Context, f telemetry.RequestFault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestFaults = append(s.requestFaults, f)
}

func (s *sinkRecorder) Completed(_ context.Context, c telemetry.Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, c)
}

func TestValidateText_Verificatie(t *testing.T) {
	sink := &sinkRecorder{}
	o := New(newService(t), nil, Options{}, sink, nil)

	res, err := o.ValidateText(context.Background(), "verificatie", verificatieText, contract.CategoryProces, nil)
	require.NoError(t, err)

	assert.True(t, res.IsAcceptable)
	assert.GreaterOrEqual(t, res.OverallScore, 0.90)
	for _, v := range res.Violations {
		assert.NotEqual(t, "mandatory", v.Severity)
	}
	assert.NotEmpty(t, res.System.CorrelationID)
	assert.Nil(t, res.System.Error)
	assert.NoError(t, contract.ValidateResult(res))

	require.Len(t, sink.completions, 1)
	assert.Equal(t, res.System.CorrelationID, sink.completions[0].CorrelationID)
}

func TestValidate_CorrelationID(t *testing.T) {
	o := New(newService(t), nil, Options{}, nil, nil)

	t.Run("kept when supplied", func(t *testing.T) {
		res, err := o.ValidateText(context.Background(), "verificatie", verificatieText, "", &contract.Context{CorrelationID: "given-id"})
		require.NoError(t, err)
		assert.Equal(t, "given-id", res.System.CorrelationID)
	})

	t.Run("generated and unique", func(t *testing.T) {
		a, err := o.ValidateText(context.Background(), "verificatie", verificatieText, "", nil)
		require.NoError(t, err)
		b, err := o.ValidateText(context.Background(), "verificatie", verificatieText, "", nil)
		require.NoError(t, err)
		assert.Len(t, a.System.CorrelationID, 36)
		assert.NotEqual(t, a.System.CorrelationID, b.System.CorrelationID)
	})

	t.Run("propagated to cleaner", func(t *testing.T) {
		var seen string
		cl := cleaning.Func(func(ctx context.Context, text, _ string) (string, error) {
			seen = telemetry.CorrelationID(ctx)
			return text, nil
		})
		oc := New(newService(t), cl, Options{}, nil, nil)
		res, err := oc.ValidateText(context.Background(), "verificatie", verificatieText, "", nil)
		require.NoError(t, err)
		assert.Equal(t, res.System.CorrelationID, seen)
	})
}

func TestValidate_ContractViolations(t *testing.T) {
	o := New(newService(t), nil, Options{}, nil, nil)

	tests := []struct {
		name  string
		req   contract.Request
		field string
	}{
		{"empty begrip", contract.Request{Begrip: "", Text: verificatieText}, "begrip"},
		{"blank text", contract.Request{Begrip: "verificatie", Text: "   "}, "text"},
		{"bad category", contract.Request{Begrip: "verificatie", Text: verificatieText, OntologicalCategory: "ding"}, "ontological_category"},
		{"unknown profile", contract.Request{Begrip: "verificatie", Text: verificatieText, Context: &contract.Context{Profile: "onbekend"}}, "context.profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Validate(context.Background(), tt.req)
			assert.Nil(t, res)
			var cv *contract.ContractViolation
			require.ErrorAs(t, err, &cv)
			assert.Equal(t, tt.field, cv.Field)
		})
	}
}

func TestValidateDefinition(t *testing.T) {
	o := New(newService(t), nil, Options{}, nil, nil)
	res, err := o.ValidateDefinition(context.Background(), contract.Definition{
		Begrip:              "verificatie",
		Definitie:           verificatieText,
		OntologicalCategory: contract.CategoryProces,
	}, &contract.Context{Profile: "basis"})
	require.NoError(t, err)
	assert.True(t, res.IsAcceptable)
	assert.Len(t, res.PassedRules, 6)
}

func TestValidate_CleaningFaults(t *testing.T) {
	tests := []struct {
		name     string
		cleaner  cleaning.Cleaner
		wantCode string
	}{
		{
			name: "timeout",
			cleaner: cleaning.Func(func(ctx context.Context, _, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}),
			wantCode: contract.CodeTimeout,
		},
		{
			name: "cleaner ignores deadline",
			cleaner: cleaning.Func(func(context.Context, string, string) (string, error) {
				time.Sleep(200 * time.Millisecond)
				return "te laat", nil
			}),
			wantCode: contract.CodeTimeout,
		},
		{
			name: "upstream error",
			cleaner: cleaning.Func(func(context.Context, string, string) (string, error) {
				return "", errors.New("connection refused")
			}),
			wantCode: contract.CodeUpstream,
		},
		{
			name: "cleaner panic",
			cleaner: cleaning.Func(func(context.Context, string, string) (string, error) {
				panic("cleaner bug")
			}),
			wantCode: contract.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &sinkRecorder{}
			o := New(newService(t), tt.cleaner, Options{CleaningTimeout: 20 * time.Millisecond}, sink, nil)

			res, err := o.ValidateText(context.Background(), "verificatie", verificatieText, "", nil)
			require.NoError(t, err)

			assert.True(t, res.Degraded())
			assert.False(t, res.IsAcceptable)
			assert.Equal(t, 0.0, res.OverallScore)
			require.Len(t, res.Violations, 1)
			assert.Equal(t, contract.SystemViolationCode, res.Violations[0].Code)
			assert.Equal(t, "system", res.Violations[0].Category)
			assert.Equal(t, tt.wantCode, res.System.Error.Code)
			assert.Equal(t, string(StageCleaning), res.System.Error.Stage)
			assert.NotContains(t, res.System.Error.Message, "connection refused")
			assert.NoError(t, contract.ValidateResult(res))

			require.Len(t, sink.requestFaults, 1)
			assert.Equal(t, tt.wantCode, sink.requestFaults[0].Code)
			assert.Equal(t, -1, sink.requestFaults[0].BatchIndex)
		})
	}
}

func TestValidate_CleanerOutputIsScored(t *testing.T) {
	o := New(newService(t), cleaning.NewHTMLCleaner(), Options{}, nil, nil)
	res, err := o.ValidateText(context.Background(), "verificatie", "<p><b>Proces</b> waarbij identiteitsgegevens systematisch worden gecontroleerd tegen authentieke bronregistraties</p>", contract.CategoryProces, nil)
	require.NoError(t, err)
	assert.True(t, res.IsAcceptable)
	assert.False(t, res.HasViolation("ARAI-01"))
}

func TestValidate_EnginePanicIsInternalFault(t *testing.T) {
	eng := &faultyEngine{Service: newService(t), panicFor: map[string]bool{"verificatie": true}}
	o := New(eng, nil, Options{}, nil, nil)

	res, err := o.ValidateText(context.Background(), "verificatie", verificatieText, "", nil)
	require.NoError(t, err)
	assert.Equal(t, contract.CodeInternal, res.System.Error.Code)
	assert.Equal(t, string(StageEvaluating), res.System.Error.Stage)
	assert.Equal(t, contract.KindOrchestration, res.System.Error.Kind)
}

func TestValidate_EngineErrorIsInternalFault(t *testing.T) {
	eng := &faultyEngine{Service: newService(t), errFor: map[string]error{"verificatie": catalog.ErrNoSnapshot}}
	o := New(eng, nil, Options{}, nil, nil)

	res, err := o.ValidateText(context.Background(), "verificatie", verificatieText, "", nil)
	require.NoError(t, err)
	assert.Equal(t, contract.CodeInternal, res.System.Error.Code)
}

func TestValidate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(newService(t), nil, Options{}, nil, nil)
	res, err := o.ValidateText(ctx, "verificatie", verificatieText, "", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidate_CancelledDuringCleaning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cleaning.Func(func(cctx context.Context, _, _ string) (string, error) {
		cancel()
		<-cctx.Done()
		return "", cctx.Err()
	})

	o := New(newService(t), cl, Options{CleaningTimeout: time.Second}, nil, nil)
	res, err := o.ValidateText(ctx, "verificatie", verificatieText, "", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func batchItems(n int) []contract.Request {
	items := make([]contract.Request, n)
	for i := range items {
		items[i] = contract.Request{
			Begrip:              fmt.Sprintf("item-%d", i),
			Text:                verificatieText,
			OntologicalCategory: contract.CategoryProces,
			Context:             &contract.Context{CorrelationID: fmt.Sprintf("corr-%d", i)},
		}
	}
	return items
}

func TestBatchValidate_FaultIsolation(t *testing.T) {
	sink := &sinkRecorder{}
	eng := &faultyEngine{
		Service:  newService(t),
		panicFor: map[string]bool{"item-3": true, "item-7": true},
		delay:    5 * time.Millisecond,
	}
	o := New(eng, nil, Options{}, sink, nil)

	results, err := o.BatchValidate(context.Background(), batchItems(10), 4)
	require.NoError(t, err)
	require.Len(t, results, 10)

	for i, res := range results {
		require.NotNil(t, res, "slot %d", i)
		assert.Equal(t, fmt.Sprintf("corr-%d", i), res.System.CorrelationID)
		assert.NoError(t, contract.ValidateResult(res))

		if i == 3 || i == 7 {
			assert.True(t, res.Degraded(), "slot %d", i)
			assert.False(t, res.IsAcceptable)
			assert.Equal(t, contract.CodeBatchItem, res.System.Error.Code)
			assert.Equal(t, contract.KindBatchItem, res.System.Error.Kind)
			continue
		}
		assert.False(t, res.Degraded(), "slot %d", i)
		assert.True(t, res.IsAcceptable, "slot %d", i)
	}

	assert.LessOrEqual(t, eng.peak.Load(), int32(4))

	indexes := map[int]bool{}
	for _, f := range sink.requestFaults {
		indexes[f.BatchIndex] = true
	}
	assert.Equal(t, map[int]bool{3: true, 7: true}, indexes)
}

func TestBatchValidate_ThreeItems(t *testing.T) {
	eng := &faultyEngine{Service: newService(t), panicFor: map[string]bool{"item-1": true}}
	o := New(eng, nil, Options{}, nil, nil)

	for _, conc := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", conc), func(t *testing.T) {
			results, err := o.BatchValidate(context.Background(), batchItems(3), conc)
			require.NoError(t, err)
			require.Len(t, results, 3)
			assert.False(t, results[0].Degraded())
			assert.True(t, results[1].Degraded())
			assert.False(t, results[2].Degraded())
		})
	}
}

func TestBatchValidate_ContractViolationIsItemFault(t *testing.T) {
	o := New(newService(t), nil, Options{}, nil, nil)
	items := batchItems(3)
	items[1].Begrip = ""

	results, err := o.BatchValidate(context.Background(), items, 2)
	require.NoError(t, err)
	require.True(t, results[1].Degraded())
	assert.Equal(t, contract.CodeBatchItem, results[1].System.Error.Code)
	assert.Contains(t, results[1].System.Error.Message, "begrip")
	assert.Equal(t, "corr-1", results[1].System.CorrelationID)
	assert.False(t, results[0].Degraded())
}

func TestBatchValidate_SequentialRespectsCap(t *testing.T) {
	eng := &faultyEngine{Service: newService(t), delay: 2 * time.Millisecond}
	o := New(eng, nil, Options{MaxBatchConcurrency: 2}, nil, nil)

	_, err := o.BatchValidate(context.Background(), batchItems(6), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), eng.peak.Load())

	_, err = o.BatchValidate(context.Background(), batchItems(8), 50)
	require.NoError(t, err)
	assert.LessOrEqual(t, eng.peak.Load(), int32(2))
}

func TestBatchValidate_Cancellation(t *testing.T) {
	for _, conc := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", conc), func(t *testing.T) {
			eng := &faultyEngine{Service: newService(t), delay: 20 * time.Millisecond}
			o := New(eng, nil, Options{}, nil, nil)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			results, err := o.BatchValidate(ctx, batchItems(20), conc)
			assert.Nil(t, results)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestBatchValidate_Empty(t *testing.T) {
	o := New(newService(t), nil, Options{}, nil, nil)
	results, err := o.BatchValidate(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBatchValidate_EmptyCancelled(t *testing.T) {
	o := New(newService(t), nil, Options{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := o.BatchValidate(ctx, []contract.Request{}, 4)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}
