package core

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is reported when a run or a suspended call is cancelled.
	ErrCancelled = errors.New("cancelled")
	// ErrInterventionTimeout is reported when an intervention wait times out.
	ErrInterventionTimeout = errors.New("intervention timed out")
)

// ErrorKind classifies a run failure.
type ErrorKind string

const (
	KindPlanGeneration ErrorKind = "plan_generation"
	KindCancelled      ErrorKind = "cancelled"
	KindMaxIterations  ErrorKind = "max_iterations"
	KindInvalidInput   ErrorKind = "invalid_input"
	KindInternal       ErrorKind = "internal"
)

// RunError is the structured failure report of a run.
type RunError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewRunError builds a RunError. The message defaults to err's text.
func NewRunError(kind ErrorKind, err error, msg string) *RunError {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &RunError{Kind: kind, Message: msg, Err: err}
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed (%s): %s", e.Kind, e.Message)
}

func (e *RunError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCancelled) hold for cancelled runs.
func (e *RunError) Is(target error) bool {
	return target == ErrCancelled && e.Kind == KindCancelled
}
