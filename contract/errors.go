package contract

import (
	"errors"
	"fmt"
)

// Error catalog codes carried in System.Error.Code.
const (
	// CodeTimeout is a collaborator call that exceeded its deadline.
	CodeTimeout = "TMO-001"
	// CodeUpstream is a collaborator call that failed.
	CodeUpstream = "UPS-001"
	// CodeInternal is an unexpected orchestration fault.
	CodeInternal = "INT-001"
	// CodeBatchItem is a generic per-item failure inside a batch.
	CodeBatchItem = "SYS-ERR-001"
)

// Fault kinds carried in System.Error.Kind.
const (
	KindOrchestration = "orchestration_fault"
	KindBatchItem     = "batch_item_fault"
)

// SystemViolationCode is the code of the synthetic violation added to
// degraded results.
const SystemViolationCode = "SYS-00"

// SystemCategory is the category used for engine faults.
const SystemCategory = "system"

// ContractViolation is returned when a caller supplies a malformed request.
// It is never converted into a degraded result outside of batch calls.
type ContractViolation struct {
	Field  string
	Reason string
	err    error
}

// NewContractViolation creates a contract violation for field.
func NewContractViolation(field, reason string) *ContractViolation {
	return &ContractViolation{Field: field, Reason: reason}
}

// WrapContractViolation marks err as a contract violation on field.
func WrapContractViolation(field string, err error) *ContractViolation {
	return &ContractViolation{Field: field, Reason: err.Error(), err: err}
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation: %s %s", e.Field, e.Reason)
}

func (e *ContractViolation) Unwrap() error {
	return e.err
}

// IsContractViolation returns true if err is or wraps a ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}

// NewDegradedResult builds a validly shaped result for an internal fault.
// The result is never acceptable and carries one synthetic system violation
// so consumers can tell it apart from a low-quality verdict.
func NewDegradedResult(correlationID string, info ErrorInfo) *Result {
	return &Result{
		Version:      CurrentVersion,
		OverallScore: 0.0,
		IsAcceptable: false,
		Violations: []Violation{{
			Code:     SystemViolationCode,
			Severity: "mandatory",
			Message:  fmt.Sprintf("validation system error (%s): %s", info.Code, info.Message),
			RuleID:   SystemViolationCode,
			Category: SystemCategory,
		}},
		PassedRules:    []string{},
		DetailedScores: map[string]float64{},
		System: System{
			CorrelationID: correlationID,
			Error:         &info,
		},
	}
}
