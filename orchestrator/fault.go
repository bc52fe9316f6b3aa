package orchestrator

import (
	"errors"
	"fmt"

	"github.com/c360studio/defcheck/contract"
)

// Stage is a step of the per-request state machine.
type Stage string

// Stages in execution order. Cleaning is skipped when no cleaner is set.
const (
	StageReceived    Stage = "RECEIVED"
	StageCleaning    Stage = "CLEANING"
	StageEvaluating  Stage = "EVALUATING"
	StageAggregating Stage = "AGGREGATING"
	StageReturned    Stage = "RETURNED"
)

// Fault is a failure outside rule evaluation. It is turned into a degraded
// result rather than returned to the caller.
type Fault struct {
	Code  string
	Stage Stage
	Err   error
	Stack []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at %s: %v", f.Code, f.Stage, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// AsFault extracts a Fault from err.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// summaries are the caller-facing messages per error code. Error detail
// goes to the sink only.
var summaries = map[string]string{
	contract.CodeTimeout:   "cleaning service timed out",
	contract.CodeUpstream:  "cleaning service failed",
	contract.CodeInternal:  "unexpected internal error",
	contract.CodeBatchItem: "batch item could not be validated",
}

func summary(code string) string {
	if s, ok := summaries[code]; ok {
		return s
	}
	return "validation failed"
}
