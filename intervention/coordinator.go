package intervention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/correlation"
	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/human"
	"github.com/hupe1980/replanmesh/internal/telemetry"
	"github.com/hupe1980/replanmesh/logging"
	"go.opentelemetry.io/otel/trace"
)

// ErrClosed rejects requests still queued when the coordinator is closed.
var ErrClosed = errors.New("intervention: coordinator closed")

// Registry is the correlation registry shared by tools and the coordinator.
type Registry = correlation.Registry[core.InterventionResponse]

// NewRegistry creates an empty intervention registry.
func NewRegistry() *Registry { return correlation.NewRegistry[core.InterventionResponse]() }

// Options configures a Coordinator.
type Options struct {
	Logger logging.Logger
	Tracer trace.Tracer
	// Format renders the gateway prompt of a request. Defaults to the
	// request message verbatim.
	Format func(req core.InterventionRequest) string
}

// Coordinator bridges intervention_requested events to a human.Gateway.
// At most one gateway prompt is outstanding at any time; requests are served
// in arrival order.
type Coordinator struct {
	root     *emitter.Emitter
	gateway  human.Gateway
	registry *Registry
	opts     Options
	logger   logging.Logger

	mu       sync.Mutex
	queue    []*pending
	inflight int
	closed   bool
	wake     chan struct{}
	sub      *emitter.Subscription

	stopCtx  context.Context
	stop     context.CancelFunc
	startOne sync.Once
	done     chan struct{}
}

type pending struct {
	ctx      context.Context
	req      core.InterventionRequest
	origin   *emitter.Emitter
	enqueued time.Time
	release  func() bool
}

// NewCoordinator creates a coordinator. Call Start to begin serving requests.
func NewCoordinator(root *emitter.Emitter, gw human.Gateway, reg *Registry, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Format: func(req core.InterventionRequest) string { return req.Message },
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	stopCtx, stop := context.WithCancel(context.Background())

	return &Coordinator{
		root:     root.Root(),
		gateway:  gw,
		registry: reg,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
		wake:     make(chan struct{}, 1),
		stopCtx:  stopCtx,
		stop:     stop,
		done:     make(chan struct{}),
	}
}

// Registry returns the correlation registry the coordinator resolves.
func (c *Coordinator) Registry() *Registry { return c.registry }

// Start subscribes to intervention_requested at the root namespace and
// starts the worker. It is idempotent.
func (c *Coordinator) Start() {
	c.startOne.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.sub = c.root.On(core.EventInterventionRequested, c.onRequest,
			emitter.WithIdentity("intervention.coordinator"))
		go c.work()
	})
}

// Close stops the coordinator. The in-flight prompt is aborted and queued
// requests are rejected with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	queued := c.queue
	c.queue = nil
	started := c.sub != nil
	c.mu.Unlock()

	if started {
		c.sub.Unsubscribe()
	}
	c.stop()

	for _, p := range queued {
		p.release()
		_ = c.registry.Reject(p.req.CorrelationID, ErrClosed)
	}

	if started {
		<-c.done
	}
}

// Outstanding returns the number of queued plus in-flight requests.
func (c *Coordinator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) + c.inflight
}

func (c *Coordinator) onRequest(ctx context.Context, ev emitter.Event) error {
	var req core.InterventionRequest
	switch p := ev.Payload.(type) {
	case core.InterventionRequest:
		req = p
	case *core.InterventionRequest:
		if p == nil {
			return fmt.Errorf("intervention request on %s: nil payload", ev.Namespace())
		}
		req = *p
	default:
		return fmt.Errorf("intervention request on %s: unexpected payload %T", ev.Namespace(), ev.Payload)
	}

	if req.CorrelationID == "" {
		return fmt.Errorf("intervention request on %s: missing correlation id", ev.Namespace())
	}
	if !req.Type.Valid() {
		_ = c.registry.Reject(req.CorrelationID, fmt.Errorf("unknown intervention type %q", req.Type))
		return fmt.Errorf("intervention request %s: unknown type %q", req.CorrelationID, req.Type)
	}

	origin := ev.Origin()
	if origin == nil {
		origin = c.root.Child(ev.Path...)
	}
	p := &pending{ctx: ctx, req: req, origin: origin, enqueued: time.Now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = c.registry.Reject(req.CorrelationID, ErrClosed)
		return nil
	}

	// A request whose context ends while queued leaves the queue at once.
	p.release = context.AfterFunc(ctx, func() { c.drop(p) })
	c.queue = append(c.queue, p)

	c.logger.Debug("intervention.queued",
		"correlation_id", req.CorrelationID,
		"type", string(req.Type),
		"run_id", req.RunID,
		"queued", len(c.queue),
	)

	select {
	case c.wake <- struct{}{}:
	default:
	}

	return nil
}

func (c *Coordinator) drop(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, q := range c.queue {
		if q == p {
			c.queue = append(c.queue[:i:i], c.queue[i+1:]...)
			c.logger.Debug("intervention.discarded", "correlation_id", p.req.CorrelationID, "reason", "cancelled while queued")
			return
		}
	}
}

func (c *Coordinator) next() (*pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	if len(c.queue) == 0 {
		return nil, true
	}

	p := c.queue[0]
	c.queue = c.queue[1:]
	p.release()
	c.inflight++

	return p, true
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
}

func (c *Coordinator) work() {
	defer close(c.done)

	for {
		p, ok := c.next()
		if !ok {
			return
		}
		if p == nil {
			select {
			case <-c.wake:
				continue
			case <-c.stopCtx.Done():
				return
			}
		}

		c.serve(p)
		c.finish()
	}
}

// serve drives one request through the gateway.
func (c *Coordinator) serve(p *pending) {
	req := p.req
	id := req.CorrelationID

	if p.ctx.Err() != nil || !c.registry.Has(id) {
		c.logger.Debug("intervention.discarded", "correlation_id", id, "reason", "no longer pending")
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	defer context.AfterFunc(c.stopCtx, cancel)()

	ctx, span := telemetry.StartSpan(ctx, c.opts.Tracer, "intervention.prompt",
		telemetry.AttrCorrelationID.String(id),
		telemetry.AttrRunID.String(req.RunID),
		telemetry.AttrInterventType.String(string(req.Type)),
	)

	c.logger.Info("intervention.prompt", "correlation_id", id, "type", string(req.Type), "run_id", req.RunID)

	answer, err := c.gateway.Prompt(ctx, c.opts.Format(req))
	c.logOutcome(id, req.Type, time.Since(p.enqueued), err)
	telemetry.End(span, err)

	if err != nil {
		switch {
		case p.ctx.Err() != nil:
			// Cancelled request: nothing is emitted, the waiter sees its own ctx.
		case c.stopCtx.Err() != nil:
			_ = c.registry.Reject(id, ErrClosed)
		default:
			_ = c.registry.Reject(id, fmt.Errorf("prompt %s: %w", id, err))
		}
		return
	}

	// An answer that arrives after its run was cancelled is dropped.
	if cause := context.Cause(p.ctx); cause != nil {
		_ = c.registry.Reject(id, cause)
		c.logger.Debug("intervention.discarded", "correlation_id", id, "reason", "cancelled while prompting")
		return
	}

	resp := Normalize(req, answer)

	f, ok := c.registry.Claim(id)
	if !ok {
		c.logger.Debug("intervention.discarded", "correlation_id", id, "reason", "claimed elsewhere")
		return
	}

	if err := p.origin.Emit(context.WithoutCancel(p.ctx), core.EventInterventionCompleted, resp); err != nil {
		c.logger.Warn("intervention.completed.dropped", "correlation_id", id, "error", err.Error())
	}

	f.Resolve(resp)
}

func (c *Coordinator) logOutcome(id string, kind core.InterventionType, wait time.Duration, err error) {
	if al, ok := c.logger.(*logging.AgentLogger); ok {
		al.LogIntervention(id, string(kind), wait, err)
		return
	}
	if err != nil {
		c.logger.Warn("intervention.prompt.failed", "correlation_id", id, "error", err.Error())
	}
}

// Normalize turns a raw answer into the response payload. Validation answers
// stay verbatim for the caller to interpret. Correction and clarification
// answers are also wrapped into Data keyed by the intervention type.
func Normalize(req core.InterventionRequest, answer string) core.InterventionResponse {
	resp := core.InterventionResponse{
		CorrelationID: req.CorrelationID,
		Type:          req.Type,
		Response:      answer,
	}
	if req.Type != core.InterventionValidation {
		resp.Data = map[string]string{string(req.Type): answer}
	}
	return resp
}
