package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers of the processor
var (
	// ErrCapability indicates a completion, schema or executor call failed.
	ErrCapability = errors.New("capability failure")

	// ErrExecution indicates a validated query failed at execution time.
	ErrExecution = errors.New("query execution failed")

	// ErrUnroutable indicates the guardrail produced neither routing token.
	ErrUnroutable = errors.New("unrecognized routing decision")

	// ErrInvariant indicates the pipeline reached a state it must never reach.
	ErrInvariant = errors.New("pipeline invariant violated")

	// ErrEmptyQuestion indicates an invocation without a question.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// StepError wraps a fatal failure of a single node
type StepError struct {
	Node NodeType
	Kind error
	Err  error
}

// NewStepError builds a StepError for the given node and kind
func NewStepError(node NodeType, kind, err error) *StepError {
	return &StepError{Node: node, Kind: kind, Err: err}
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Node, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Node, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
