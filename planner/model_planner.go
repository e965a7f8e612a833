package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/internal/schema"
	"github.com/hupe1980/replanmesh/internal/telemetry"
	"github.com/hupe1980/replanmesh/logging"
	"github.com/hupe1980/replanmesh/model"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidPlan is returned when the model output does not describe a plan.
var ErrInvalidPlan = errors.New("planner: invalid plan")

// Options configures a ModelPlanner.
type Options struct {
	// SystemPrompt replaces the default instructions. The tool catalogue and
	// output schema are always appended.
	SystemPrompt string
	// MaxRetries bounds the retries after the first attempt.
	MaxRetries uint64
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	Logger      logging.Logger
	Tracer      trace.Tracer
}

// ModelPlanner generates plans with a language model.
type ModelPlanner struct {
	model     model.Model
	opts      Options
	logger    logging.Logger
	validator *schema.Validator
}

// NewModelPlanner creates a planner backed by m.
func NewModelPlanner(m model.Model, optFns ...func(o *Options)) (*ModelPlanner, error) {
	opts := Options{
		SystemPrompt:    systemPrompt,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	v, err := schema.Compile("plan", OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}

	return &ModelPlanner{
		model:     m,
		opts:      opts,
		logger:    logging.OrNoOp(opts.Logger),
		validator: v,
	}, nil
}

// GeneratePlan implements core.Planner. Model failures and invalid output
// are retried with exponential backoff; cancellation is not.
func (p *ModelPlanner) GeneratePlan(ctx context.Context, req core.PlanRequest) (res *core.PlanResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, p.opts.Tracer, "plan.generate",
		telemetry.AttrRunID.String(req.RunID),
		telemetry.AttrIteration.Int(req.Iteration),
	)
	defer func() { telemetry.End(span, err) }()

	mreq := p.buildRequest(req)
	start := time.Now()
	attempt := 0

	op := func() error {
		attempt++
		r, err := p.attempt(ctx, mreq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			p.logger.Warn("plan.generate.retry", "run_id", req.RunID, "attempt", attempt, "error", err.Error())
			return err
		}
		res = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialInterval
	b.MaxInterval = p.opts.MaxInterval
	b.RandomizationFactor = 0.1

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.opts.MaxRetries), ctx))

	steps := 0
	if res != nil {
		steps = len(res.Steps)
	}
	if al, ok := p.logger.(*logging.AgentLogger); ok {
		al.LogPlanGeneration(req.Iteration, steps, time.Since(start), err)
	}

	if err != nil {
		return nil, fmt.Errorf("generate plan after %d attempt(s): %w", attempt, err)
	}
	return res, nil
}

func (p *ModelPlanner) buildRequest(req core.PlanRequest) model.Request {
	msgs := append([]core.Message(nil), req.Messages...)
	if obs := renderObservation(req); obs != "" {
		msgs = append(msgs, core.Message{Role: core.RoleUser, Text: obs})
	}

	return model.Request{
		Instructions:   renderSystem(p.opts.SystemPrompt, req.Tools),
		Messages:       msgs,
		ResponseSchema: OutputSchema,
		SchemaName:     "plan",
	}
}

func (p *ModelPlanner) attempt(ctx context.Context, req model.Request) (*core.PlanResult, error) {
	resp, err := model.Collect(ctx, p.model, req)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	if _, err := p.validator.ValidateJSON([]byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	var plan rawPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	return plan.result(), nil
}
