package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/telemetry"
)

// BatchValidate validates items and returns one result per item in input
// order. A failing item yields a degraded result in its slot; the rest of
// the batch is unaffected. Cancellation of ctx aborts the whole batch and
// returns ctx.Err() with no results.
//
// maxConcurrency of 1 or less runs items sequentially. Larger values are
// capped by Options.MaxBatchConcurrency.
func (o *Orchestrator) BatchValidate(ctx context.Context, items []contract.Request, maxConcurrency int) ([]*contract.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]*contract.Result, len(items))
	if len(items) == 0 {
		return results, nil
	}

	workers := maxConcurrency
	if workers > o.opts.MaxBatchConcurrency {
		workers = o.opts.MaxBatchConcurrency
	}
	if workers < 1 {
		workers = 1
	}

	o.logger.Debug("Batch started", "items", len(items), "concurrency", workers)

	if workers == 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = o.batchItem(ctx, i, item)
		}
	} else {
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup

	dispatch:
		for i, item := range items {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break dispatch
			}

			wg.Add(1)
			go func(i int, item contract.Request) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = o.batchItem(ctx, i, item)
			}(i, item)
		}
		wg.Wait()
	}

	// Partial progress is discarded on cancellation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// batchItem runs one item. It never panics and returns nil only when ctx
// was cancelled.
func (o *Orchestrator) batchItem(ctx context.Context, index int, item contract.Request) (res *contract.Result) {
	id := ""
	if item.Context != nil {
		id = item.Context.CorrelationID
	}

	start := time.Now()
	defer func() {
		if res != nil {
			o.completed(ctx, res.System.CorrelationID, item, res, start)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			res = o.degradedItem(ctx, index, id, StageReceived, fmt.Errorf("panic: %v", r), debug.Stack(), "")
		}
	}()

	pid, out, err := o.process(ctx, item)
	if pid != "" {
		id = pid
	}
	if err == nil {
		return out
	}
	if ctx.Err() != nil {
		return nil
	}

	stage := StageReceived
	var stack []byte
	message := summary(contract.CodeBatchItem)
	if f, ok := AsFault(err); ok {
		stage, stack = f.Stage, f.Stack
	} else if contract.IsContractViolation(err) {
		message = err.Error()
	}
	return o.degradedItem(ctx, index, id, stage, err, stack, message)
}

func (o *Orchestrator) degradedItem(ctx context.Context, index int, id string, stage Stage, err error, stack []byte, message string) *contract.Result {
	if id == "" {
		id = o.newID()
	}
	if message == "" {
		message = summary(contract.CodeBatchItem)
	}
	o.sink.RequestFault(ctx, telemetry.RequestFault{
		CorrelationID: id,
		Code:          contract.CodeBatchItem,
		Stage:         string(stage),
		Err:           err,
		Stack:         stack,
		BatchIndex:    index,
	})
	return contract.NewDegradedResult(id, contract.ErrorInfo{
		Code:    contract.CodeBatchItem,
		Kind:    contract.KindBatchItem,
		Stage:   string(stage),
		Message: message,
	})
}
