package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/logging"
	"github.com/hupe1980/replanmesh/memory"
	"github.com/hupe1980/replanmesh/tool"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxIterations bounds the plan iterations of a run.
const DefaultMaxIterations = 10

// Options configures a ReplanAgent.
type Options struct {
	// Name identifies the agent in logs. Defaults to "replan".
	Name string
	// MaxIterations bounds plan generations per run. Zero means unlimited.
	MaxIterations int
	// ToolTimeout bounds every tool call. Zero means no timeout.
	ToolTimeout time.Duration
	Logger      logging.Logger
	Tracer      trace.Tracer
}

// Input is the run entry point payload. A non-empty Prompt is appended to a
// copy of Memory; an empty Prompt resumes Memory as-is.
type Input struct {
	Prompt string
	Memory memory.Memory
}

// Response is the terminal response of a successful run.
type Response struct {
	Text       string
	Plan       *core.Plan
	Lookback   string
	Iterations int
	Memory     *memory.InMemory
}

// ReplanAgent drives the plan-execute-observe loop. One agent may serve many
// concurrent runs; all per-run state lives in an Execution.
type ReplanAgent struct {
	planner core.Planner
	tools   *tool.Registry
	invoker *tool.Invoker
	opts    Options
	logger  logging.Logger
}

// NewReplanAgent creates an agent planning with planner over tools.
func NewReplanAgent(planner core.Planner, tools []tool.Tool, optFns ...func(o *Options)) (*ReplanAgent, error) {
	opts := Options{
		Name:          "replan",
		MaxIterations: DefaultMaxIterations,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if planner == nil {
		return nil, fmt.Errorf("agent %s: planner is required", opts.Name)
	}

	reg, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", opts.Name, err)
	}

	logger := logging.OrNoOp(opts.Logger)
	if al, ok := logger.(*logging.AgentLogger); ok {
		logger = al.WithComponent("agent." + opts.Name)
	}

	inv := tool.NewInvoker(reg, func(o *tool.InvokerOptions) {
		o.Timeout = opts.ToolTimeout
		o.Logger = logger
		o.Tracer = opts.Tracer
	})

	return &ReplanAgent{
		planner: planner,
		tools:   reg,
		invoker: inv,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Name returns the agent name.
func (a *ReplanAgent) Name() string { return a.opts.Name }

// Tools returns the agent's tool registry.
func (a *ReplanAgent) Tools() *tool.Registry { return a.tools }

// NewExecution prepares a run bound to the run namespace em. The input is
// validated and the memory copied; nothing is emitted until Run.
func (a *ReplanAgent) NewExecution(em *emitter.Emitter, runID string, in Input) (*Execution, error) {
	if em == nil {
		return nil, core.NewRunError(core.KindInvalidInput, nil, "run namespace is required")
	}
	if runID == "" {
		runID = core.NewID()
	}

	mem := memory.Clone(in.Memory)
	if in.Prompt != "" {
		_ = mem.Add(core.NewUserMessage(in.Prompt))
	}
	if mem.Len() == 0 {
		return nil, core.NewRunError(core.KindInvalidInput, nil, "either a prompt or a non-empty memory is required")
	}

	logger := a.logger
	if al, ok := logger.(*logging.AgentLogger); ok {
		logger = al.WithRun(runID)
	}

	return &Execution{
		agent:     a,
		em:        em,
		runID:     runID,
		mem:       mem,
		logger:    logger,
		state:     core.StatePlanning,
		remaining: core.NewIterationBudget(a.opts.MaxIterations).Remaining(),
		done:      make(chan struct{}),
	}, nil
}

// Run executes a run to completion on the run namespace em.
func (a *ReplanAgent) Run(ctx context.Context, em *emitter.Emitter, runID string, in Input) (*Response, error) {
	x, err := a.NewExecution(em, runID, in)
	if err != nil {
		return nil, err
	}
	return x.Run(ctx)
}
