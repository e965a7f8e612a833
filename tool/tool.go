// Package tool implements the tool calling subsystem: the Tool capability,
// a function adapter, a name registry and the Invoker that wraps every call
// with schema validation, cancellation, tracing and the tool:* events.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/internal/schema"
)

// Error codes carried by ToolError.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeExecution    = "EXECUTION_ERROR"
	CodeToolNotFound = "TOOL_NOT_FOUND"
	CodeTimeout      = "TIMEOUT"
	CodeCancelled    = "CANCELLED"
)

// Tool is a capability the agent can invoke from a plan step.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define a JSON schema for their parameters
//   - Honor tc.Context() cancellation in any blocking work
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description for the planner.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool. Arguments have already been validated against
	// Parameters when the call arrives through an Invoker.
	Call(tc *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors.
type ValidationError = schema.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details

	cause error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ToolError) Unwrap() error { return e.cause }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// AsToolError normalizes err into a *ToolError for tool name. Existing
// ToolErrors pass through; timeouts and cancellations get their own codes.
func AsToolError(name string, err error) *ToolError {
	if err == nil {
		return nil
	}

	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	code := CodeExecution
	switch {
	case errors.Is(err, core.ErrInterventionTimeout), errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(err, core.ErrCancelled), errors.Is(err, context.Canceled):
		code = CodeCancelled
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		code = CodeValidation
	}

	return &ToolError{Tool: name, Message: err.Error(), Code: code, cause: err}
}
