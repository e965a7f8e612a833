package runner

import (
	"context"

	"github.com/hupe1980/replanmesh/agent"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
)

// Handle refers to a started run.
type Handle struct {
	// RunID identifies the run.
	RunID string
	// Emitter is the run namespace. It is closed once the run terminates.
	Emitter *emitter.Emitter

	exec   *agent.Execution
	cancel context.CancelFunc
	done   chan struct{}
	resp   *agent.Response
	err    error
}

// Wait blocks until the run terminates and returns its outcome.
func (h *Handle) Wait() (*agent.Response, error) {
	<-h.done
	return h.resp, h.err
}

// Done is closed when the run terminated.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the current loop state of the run.
func (h *Handle) State() core.RunState { return h.exec.State() }

// Plan returns a snapshot of the run's current plan.
func (h *Handle) Plan() *core.Plan { return h.exec.Plan() }

// Cancel cancels the run. It is idempotent.
func (h *Handle) Cancel() { h.cancel() }
