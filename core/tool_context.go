package core

import (
	"context"

	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/logging"
)

// ToolContext is the execution surface handed to a tool. It carries the
// call's cancellation context, the run identity and an emitter scoped to the
// tool's namespace below the run.
type ToolContext struct {
	ctx     context.Context
	runID   string
	call    ToolCallSpec
	emitter *emitter.Emitter

	*loggerAdapter
}

// NewToolContext constructs a tool context. em is the tool's own namespace.
func NewToolContext(ctx context.Context, runID string, call ToolCallSpec, em *emitter.Emitter, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:           ctx,
		runID:         runID,
		call:          call,
		emitter:       em,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Context returns the cancellation context of the call.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the id of the run the call belongs to.
func (tc *ToolContext) RunID() string { return tc.runID }

// Call returns the tool call being executed.
func (tc *ToolContext) Call() ToolCallSpec { return tc.call }

// CorrelationID returns the correlation id of the call.
func (tc *ToolContext) CorrelationID() string { return tc.call.CorrelationID }

// Emitter returns the tool's namespace, or nil when the call is detached.
func (tc *ToolContext) Emitter() *emitter.Emitter { return tc.emitter }

// Emit publishes an event on the tool's namespace.
func (tc *ToolContext) Emit(name string, payload any) error {
	if tc.emitter == nil {
		return nil
	}
	return tc.emitter.Emit(tc.ctx, name, payload)
}
