// Package replanmesh provides a high-level façade over the plan-execute-observe
// runtime. Most applications interact with this package by:
//  1. Creating a Mesh via New() with a planner and the tools it may call
//  2. Running prompts synchronously (Run, RunSync) or asynchronously (Start)
//  3. Observing progress on the returned run namespaces or the bus root
//
// The façade wires the intervention registry, the intervention and human
// tools and the coordinator so tools can ask a human mid-step. All defaults
// are safe for local development; production deployments typically supply a
// model planner, a console or chat gateway and a structured logger.
package replanmesh

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/replanmesh/agent"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/human"
	"github.com/hupe1980/replanmesh/intervention"
	"github.com/hupe1980/replanmesh/logging"
	"github.com/hupe1980/replanmesh/runner"
	"github.com/hupe1980/replanmesh/session"
	"github.com/hupe1980/replanmesh/tool"
	"go.opentelemetry.io/otel/trace"
)

// Options configures the Mesh instance.
type Options struct {
	// MaxIterations bounds plan generations per run (0 = unlimited).
	MaxIterations int
	// ToolTimeout bounds every tool call (0 = none).
	ToolTimeout time.Duration
	// InterventionTimeout bounds every human round-trip (0 = none).
	InterventionTimeout time.Duration
	// MaxConcurrentRuns limits simultaneously executing runs (0 = unlimited).
	MaxConcurrentRuns int

	// Gateway answers intervention requests.
	Gateway human.Gateway
	// FormatIntervention renders the question shown to the human.
	FormatIntervention func(req core.InterventionRequest) string
	// DisableInterventionTools keeps the intervention and human tools out of
	// the planner's tool catalogue.
	DisableInterventionTools bool

	// SessionStore defaults to an in-memory store.
	SessionStore session.Store

	Logger logging.Logger
	Tracer trace.Tracer
}

// Mesh is the high-level façade aggregating the agent and its runner.
type Mesh struct {
	agent  *agent.ReplanAgent
	runner *runner.Runner
}

// New creates a Mesh planning with p over tools.
func New(p core.Planner, tools []tool.Tool, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		MaxIterations: agent.DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	reg := intervention.NewRegistry()

	all := append([]tool.Tool(nil), tools...)
	if !opts.DisableInterventionTools {
		withTimeout := func(o *intervention.ToolOptions) { o.Timeout = opts.InterventionTimeout }
		all = append(all, intervention.NewTool(reg, withTimeout), intervention.NewHumanTool(reg, withTimeout))
	}

	a, err := agent.NewReplanAgent(p, all, func(o *agent.Options) {
		o.MaxIterations = opts.MaxIterations
		o.ToolTimeout = opts.ToolTimeout
		o.Logger = opts.Logger
		o.Tracer = opts.Tracer
	})
	if err != nil {
		return nil, err
	}

	r := runner.New(a, func(o *runner.Options) {
		o.Gateway = opts.Gateway
		o.Registry = reg
		o.FormatIntervention = opts.FormatIntervention
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.Logger = opts.Logger
		o.Tracer = opts.Tracer
		if opts.SessionStore != nil {
			o.SessionStore = opts.SessionStore
		}
	})
	r.Open()

	return &Mesh{agent: a, runner: r}, nil
}

// Agent returns the underlying agent.
func (m *Mesh) Agent() *agent.ReplanAgent { return m.agent }

// Runner returns the underlying runner.
func (m *Mesh) Runner() *runner.Runner { return m.runner }

// Emitter returns the bus root. Subscribers here observe every run.
func (m *Mesh) Emitter() *emitter.Emitter { return m.runner.Emitter() }

// Run executes a run and blocks until it terminates.
func (m *Mesh) Run(ctx context.Context, in runner.Input, observers ...emitter.Handler) (*agent.Response, error) {
	return m.runner.Run(ctx, in, observers...)
}

// Start launches a run asynchronously.
func (m *Mesh) Start(ctx context.Context, in runner.Input, observers ...emitter.Handler) (*runner.Handle, error) {
	return m.runner.Start(ctx, in, observers...)
}

// Cancel cancels an active run.
func (m *Mesh) Cancel(runID string) error { return m.runner.Cancel(runID) }

// Close cancels every active run and releases the runtime.
func (m *Mesh) Close() { m.runner.Close() }

// RunSync is a synchronous helper that runs in and returns every event the
// run published, in order, alongside the outcome.
func (m *Mesh) RunSync(ctx context.Context, in runner.Input) (*agent.Response, []emitter.Event, error) {
	var (
		mu     sync.Mutex
		events []emitter.Event
	)

	resp, err := m.runner.Run(ctx, in, func(_ context.Context, ev emitter.Event) error {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	return resp, events, err
}
