package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/internal/telemetry"
	"github.com/hupe1980/replanmesh/logging"
	"go.opentelemetry.io/otel/trace"
)

// InvokerOptions configures an Invoker.
type InvokerOptions struct {
	// Timeout bounds a single call. Zero means no per-call timeout.
	Timeout time.Duration
	Logger  logging.Logger
	Tracer  trace.Tracer
}

// Invoker dispatches tool calls. Every call emits tool:start followed by
// exactly one of tool:success or tool:error on the tool's namespace
// (<run namespace>.tool.<name>).
type Invoker struct {
	registry *Registry
	opts     InvokerOptions
	logger   logging.Logger
}

// NewInvoker creates an Invoker over registry.
func NewInvoker(registry *Registry, optFns ...func(o *InvokerOptions)) *Invoker {
	opts := InvokerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Invoker{
		registry: registry,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Registry returns the tool registry.
func (inv *Invoker) Registry() *Registry { return inv.registry }

type callResult struct {
	out any
	err error
}

// Invoke runs call on behalf of runID. runEm is the run namespace. The
// returned error is always a *ToolError. Cancelling ctx aborts the call even
// when the tool itself is blocked, e.g. awaiting an intervention response.
func (inv *Invoker) Invoke(ctx context.Context, runEm *emitter.Emitter, runID string, call core.ToolCallSpec) (any, error) {
	if call.CorrelationID == "" {
		call.CorrelationID = uuid.NewString()
	}

	toolEm := runEm.Child("tool", call.Tool)
	start := time.Now()

	inv.emit(ctx, toolEm, core.EventToolStart, core.ToolEvent{RunID: runID, Call: call})

	out, err := inv.call(ctx, toolEm, runID, call)
	dur := time.Since(start)

	if al, ok := inv.logger.(*logging.AgentLogger); ok {
		al.LogToolCall(call.Tool, call.CorrelationID, dur, err)
	} else if err != nil {
		inv.logger.Warn("tool.call.error", "tool", call.Tool, "call_id", call.CorrelationID, "error", err.Error())
	} else {
		inv.logger.Debug("tool.call.success", "tool", call.Tool, "call_id", call.CorrelationID, "duration_ms", dur.Milliseconds())
	}

	if err != nil {
		te := AsToolError(call.Tool, err)
		inv.emit(context.WithoutCancel(ctx), toolEm, core.EventToolError, core.ToolEvent{
			RunID:    runID,
			Call:     call,
			Error:    te.Message,
			Code:     te.Code,
			Duration: dur,
		})
		return nil, te
	}

	inv.emit(ctx, toolEm, core.EventToolSuccess, core.ToolEvent{
		RunID:    runID,
		Call:     call,
		Output:   out,
		Duration: dur,
	})

	return out, nil
}

func (inv *Invoker) call(ctx context.Context, toolEm *emitter.Emitter, runID string, call core.ToolCallSpec) (out any, err error) {
	t, ok := inv.registry.Get(call.Tool)
	if !ok {
		return nil, NewToolError(call.Tool, fmt.Sprintf("tool %q is not registered", call.Tool), CodeToolNotFound)
	}

	if err := inv.registry.Validate(call.Tool, call.Input); err != nil {
		return nil, &ToolError{
			Tool:    call.Tool,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			cause:   err,
		}
	}

	ctx, span := telemetry.StartSpan(ctx, inv.opts.Tracer, "tool.call",
		telemetry.AttrRunID.String(runID),
		telemetry.AttrTool.String(call.Tool),
		telemetry.AttrCorrelationID.String(call.CorrelationID),
	)
	defer func() { telemetry.End(span, err) }()

	if inv.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.opts.Timeout)
		defer cancel()
	}

	args := call.Input
	if args == nil {
		args = map[string]any{}
	}
	tc := core.NewToolContext(ctx, runID, call, toolEm, inv.logger)

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: NewToolError(call.Tool, fmt.Sprintf("panic: %v", r), CodeExecution)}
			}
		}()
		o, e := t.Call(tc, args)
		done <- callResult{out: o, err: e}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.out, nil
	case <-ctx.Done():
		inv.logger.Warn("tool.call.abandoned", "tool", call.Tool, "call_id", call.CorrelationID, "error", ctx.Err().Error())
		return nil, abortError(call.Tool, ctx.Err())
	}
}

func abortError(name string, err error) *ToolError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Tool: name, Message: "tool call timed out", Code: CodeTimeout, cause: err}
	}
	return &ToolError{
		Tool:    name,
		Message: "tool call cancelled",
		Code:    CodeCancelled,
		cause:   fmt.Errorf("%w: %w", core.ErrCancelled, err),
	}
}

func (inv *Invoker) emit(ctx context.Context, em *emitter.Emitter, name string, payload core.ToolEvent) {
	if err := em.Emit(ctx, name, payload); err != nil {
		inv.logger.Warn("tool.event.dropped", "event", name, "tool", payload.Call.Tool, "error", err.Error())
	}
}
