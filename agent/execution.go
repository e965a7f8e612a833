package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/internal/telemetry"
	"github.com/hupe1980/replanmesh/logging"
	"github.com/hupe1980/replanmesh/memory"
	"go.opentelemetry.io/otel/attribute"
)

// Execution is a single run of a ReplanAgent. It is not reusable; Run may be
// called once.
type Execution struct {
	agent  *ReplanAgent
	em     *emitter.Emitter
	runID  string
	mem    *memory.InMemory
	logger logging.Logger

	mu        sync.Mutex
	state     core.RunState
	plan      *core.Plan
	lookback  string
	iteration int
	remaining int
	started   bool
	done      chan struct{}
}

// RunID returns the id of the run.
func (x *Execution) RunID() string { return x.runID }

// State returns the current loop state.
func (x *Execution) State() core.RunState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Plan returns a snapshot of the current plan, nil before the first plan.
func (x *Execution) Plan() *core.Plan {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.plan.Clone()
}

// Done is closed once the run reached DONE or FAILED.
func (x *Execution) Done() <-chan struct{} { return x.done }

// Run drives the loop until the planner finishes, a run level failure occurs
// or ctx is cancelled. Exactly one final update is emitted.
func (x *Execution) Run(ctx context.Context) (resp *Response, err error) {
	x.mu.Lock()
	if x.started {
		x.mu.Unlock()
		return nil, core.NewRunError(core.KindInvalidInput, nil, "execution already started")
	}
	x.started = true
	x.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, x.agent.opts.Tracer, "agent.run",
		telemetry.AttrRunID.String(x.runID),
		attribute.String("replan.agent", x.agent.opts.Name),
	)

	subs := x.track()

	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("agent.run.panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			resp = nil
			err = x.fail(ctx, core.NewRunError(core.KindInternal, fmt.Errorf("panic: %v", r), ""))
		}
		for _, s := range subs {
			s.Unsubscribe()
		}
		span.SetAttributes(telemetry.AttrIteration.Int(x.iterations()))
		telemetry.End(span, err)
		if len(x.em.Path()) > 0 {
			x.em.Close()
		}
	}()

	x.logger.Info("agent.run.start", "messages", x.mem.Len())

	return x.loop(ctx)
}

// Abort fails an execution that never started, for example because the
// caller gave up waiting for admission. The final update is still published.
func (x *Execution) Abort(ctx context.Context, cause error) (*Response, error) {
	x.mu.Lock()
	if x.started {
		x.mu.Unlock()
		return nil, core.NewRunError(core.KindInvalidInput, nil, "execution already started")
	}
	x.started = true
	x.mu.Unlock()

	err := x.cancelled(ctx, cause)
	if len(x.em.Path()) > 0 {
		x.em.Close()
	}
	return nil, err
}

func (x *Execution) loop(ctx context.Context) (*Response, error) {
	a := x.agent
	budget := core.NewIterationBudget(a.opts.MaxIterations)

	var previous *core.Plan

	for {
		if err := ctx.Err(); err != nil {
			return nil, x.cancelled(ctx, err)
		}

		iteration, err := budget.Begin()
		if err != nil {
			return nil, x.fail(ctx, core.NewRunError(core.KindMaxIterations, err, ""))
		}

		x.mu.Lock()
		x.iteration = iteration
		x.remaining = budget.Remaining()
		x.state = core.StatePlanning
		lookback := x.lookback
		x.mu.Unlock()

		res, err := a.planner.GeneratePlan(ctx, core.PlanRequest{
			RunID:         x.runID,
			Iteration:     iteration,
			MaxIterations: budget.Max(),
			Messages:      x.mem.Messages(),
			Tools:         a.tools.Infos(),
			Previous:      previous,
			Lookback:      lookback,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, x.cancelled(ctx, err)
			}
			return nil, x.fail(ctx, core.NewRunError(core.KindPlanGeneration, err, ""))
		}

		if res != nil {
			x.mu.Lock()
			x.lookback = res.Lookback
			x.mu.Unlock()
		}

		if res.Finished() {
			return x.finish(ctx, res), nil
		}

		plan := x.adopt(res)
		if plan.Revision > 1 {
			x.update(ctx)
		}

		if err := x.execute(ctx, plan); err != nil {
			return nil, err
		}

		x.mu.Lock()
		x.state = core.StateObserving
		previous = x.plan.Clone()
		x.mu.Unlock()
	}
}

// adopt installs the steps of res as the next plan revision.
func (x *Execution) adopt(res *core.PlanResult) *core.Plan {
	x.mu.Lock()
	defer x.mu.Unlock()

	rev := 1
	if x.plan != nil {
		rev = x.plan.Revision + 1
	}

	plan := &core.Plan{Revision: rev, Steps: make([]core.Step, len(res.Steps))}
	for i, s := range res.Steps {
		s.Status = core.StepPending
		s.Result = nil
		s.Error = ""
		if s.Call.CorrelationID == "" {
			s.Call.CorrelationID = uuid.NewString()
		}
		plan.Steps[i] = s
	}

	x.plan = plan
	x.logger.Debug("agent.plan.adopted", "revision", rev, "steps", len(plan.Steps))

	return plan
}

// execute runs the pending steps of plan in order. A failed step stops the
// plan early so the planner can observe the failure; only cancellation is
// returned as an error.
func (x *Execution) execute(ctx context.Context, plan *core.Plan) error {
	for {
		if err := ctx.Err(); err != nil {
			return x.cancelled(ctx, err)
		}

		x.mu.Lock()
		i := plan.NextPending()
		if i < 0 {
			x.mu.Unlock()
			return nil
		}
		plan.Steps[i].Status = core.StepRunning
		call := plan.Steps[i].Call
		x.state = core.StateExecutingStep
		x.mu.Unlock()

		out, err := x.agent.invoker.Invoke(ctx, x.em, x.runID, call)

		if err != nil && ctx.Err() != nil {
			return x.cancelled(ctx, ctx.Err())
		}

		x.mu.Lock()
		if x.state == core.StateAwaitingIntervention {
			x.state = core.StateExecutingStep
		}
		if err != nil {
			plan.Steps[i].Status = core.StepFailed
			plan.Steps[i].Error = err.Error()
		} else {
			plan.Steps[i].Status = core.StepDone
			plan.Steps[i].Result = out
		}
		x.mu.Unlock()

		x.update(ctx)

		if err != nil {
			x.logger.Warn("agent.step.failed", "step", plan.Steps[i].Title, "tool", call.Tool, "error", err.Error())
			return nil
		}
	}
}

// track follows intervention traffic of the run to expose the
// AWAITING_INTERVENTION state.
func (x *Execution) track() []*emitter.Subscription {
	set := func(from, to core.RunState) emitter.Handler {
		return func(context.Context, emitter.Event) error {
			x.mu.Lock()
			defer x.mu.Unlock()
			if x.state == from {
				x.state = to
			}
			return nil
		}
	}

	return []*emitter.Subscription{
		x.em.On(core.EventInterventionRequested, set(core.StateExecutingStep, core.StateAwaitingIntervention)),
		x.em.On(core.EventInterventionCompleted, set(core.StateAwaitingIntervention, core.StateExecutingStep)),
	}
}

func (x *Execution) finish(ctx context.Context, res *core.PlanResult) *Response {
	var text string
	if res != nil {
		text = res.FinalAnswer
		if text == "" {
			text = res.Lookback
		}
	}
	if text != "" {
		_ = x.mem.Add(core.NewAssistantMessage(text))
	}

	x.terminate(ctx, core.StateDone, text, nil)

	x.mu.Lock()
	defer x.mu.Unlock()

	x.logger.Info("agent.run.done", "iterations", x.iteration)

	return &Response{
		Text:       text,
		Plan:       x.plan.Clone(),
		Lookback:   x.lookback,
		Iterations: x.iteration,
		Memory:     x.mem,
	}
}

func (x *Execution) cancelled(ctx context.Context, cause error) error {
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		cause = errors.Join(core.ErrCancelled, context.Cause(ctx))
	}
	return x.fail(ctx, core.NewRunError(core.KindCancelled, cause, "run cancelled"))
}

func (x *Execution) fail(ctx context.Context, rerr *core.RunError) error {
	if x.terminate(ctx, core.StateFailed, "", rerr) {
		x.logger.Warn("agent.run.failed", "kind", string(rerr.Kind), "error", rerr.Message)
	}
	return rerr
}

// terminate moves the run into its terminal state and publishes the final
// update. It reports false when the run was already terminal.
func (x *Execution) terminate(ctx context.Context, state core.RunState, answer string, rerr *core.RunError) bool {
	x.mu.Lock()
	if x.state.Terminal() {
		x.mu.Unlock()
		return false
	}
	x.state = state
	ev := x.snapshotLocked()
	x.mu.Unlock()

	ev.Final = true
	ev.Answer = answer
	ev.Error = rerr
	x.publish(context.WithoutCancel(ctx), ev)

	close(x.done)

	return true
}

func (x *Execution) update(ctx context.Context) {
	x.mu.Lock()
	ev := x.snapshotLocked()
	x.mu.Unlock()

	x.publish(ctx, ev)
}

// snapshotLocked builds an update payload. Caller holds x.mu.
func (x *Execution) snapshotLocked() core.UpdateEvent {
	return core.UpdateEvent{
		RunID:     x.runID,
		State:     x.state,
		Iteration: x.iteration,
		Remaining: x.remaining,
		Plan:      x.plan.Clone(),
		Lookback:  x.lookback,
	}
}

func (x *Execution) publish(ctx context.Context, ev core.UpdateEvent) {
	if err := x.em.Emit(ctx, core.EventUpdate, ev); err != nil {
		x.logger.Warn("agent.update.dropped", "state", string(ev.State), "error", err.Error())
	}
}

func (x *Execution) iterations() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.iteration
}
