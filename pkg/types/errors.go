package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the orchestration core.
type ErrorKind string

const (
	// KindContractViolation means the planner answered outside the TASK/FINISH grammar.
	KindContractViolation ErrorKind = "contract_violation"
	// KindStepBudgetExhausted means a loop hit its step limit without a terminal answer.
	KindStepBudgetExhausted ErrorKind = "step_budget_exhausted"
	// KindToolExecutionFailure means a tool call failed.
	KindToolExecutionFailure ErrorKind = "tool_execution_failure"
	// KindPersistenceFailure means the conversation store could not read or write.
	KindPersistenceFailure ErrorKind = "persistence_failure"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrContractViolation    = &Error{Kind: KindContractViolation}
	ErrStepBudgetExhausted  = &Error{Kind: KindStepBudgetExhausted}
	ErrToolExecutionFailure = &Error{Kind: KindToolExecutionFailure}
	ErrPersistenceFailure   = &Error{Kind: KindPersistenceFailure}
)

// Error is a classified core error. Detail holds diagnostic payload such as
// the offending planner output.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewContractViolation reports planner output that matches neither branch.
func NewContractViolation(output string) *Error {
	return &Error{
		Kind:    KindContractViolation,
		Message: "Thinker violated contract (TASK | FINISH)",
		Detail:  output,
	}
}

// NewStepBudgetExhausted reports a loop that ran out of steps.
func NewStepBudgetExhausted(loop string, maxSteps int) *Error {
	return &Error{
		Kind:    KindStepBudgetExhausted,
		Message: fmt.Sprintf("%s did not complete task in %d steps", loop, maxSteps),
	}
}

// NewToolExecutionFailure wraps a failed tool call.
func NewToolExecutionFailure(tool string, err error) *Error {
	return &Error{
		Kind:    KindToolExecutionFailure,
		Message: fmt.Sprintf("tool %q failed", tool),
		Err:     err,
	}
}

// NewPersistenceFailure wraps a store error for the given operation and key.
func NewPersistenceFailure(op, key string, err error) *Error {
	return &Error{
		Kind:    KindPersistenceFailure,
		Message: fmt.Sprintf("%s %q", op, key),
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
