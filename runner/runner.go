package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/replanmesh/agent"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/human"
	"github.com/hupe1980/replanmesh/intervention"
	"github.com/hupe1980/replanmesh/logging"
	"github.com/hupe1980/replanmesh/memory"
	"github.com/hupe1980/replanmesh/session"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed is returned when starting a run on a closed Runner.
	ErrClosed = errors.New("runner: closed")
	// ErrRunNotFound is returned by Cancel for unknown or finished runs.
	ErrRunNotFound = errors.New("runner: run not found")
	// ErrDuplicateRun is returned when a run id is already active.
	ErrDuplicateRun = errors.New("runner: run already active")
	// ErrNoGateway is reported to tools requesting an intervention when the
	// Runner has no human gateway.
	ErrNoGateway = errors.New("runner: no human gateway configured")
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// Gateway answers intervention requests. Without a gateway every
	// intervention fails with ErrNoGateway.
	Gateway human.Gateway
	// Registry is the intervention registry the agent's intervention tools
	// were built on. A fresh registry is used when nil.
	Registry *intervention.Registry
	// FormatIntervention renders the gateway prompt of a request.
	FormatIntervention func(req core.InterventionRequest) string
	// MaxConcurrentRuns limits concurrently executing runs. Zero means no limit.
	MaxConcurrentRuns int
	// SessionStore keeps conversations of runs started with a SessionID.
	SessionStore session.Store
	// ErrorSink receives handler failures of the bus.
	ErrorSink func(*emitter.HandlerError)
	Logger    logging.Logger
	Tracer    trace.Tracer
}

// Input describes one run.
type Input struct {
	// RunID is generated when empty.
	RunID string
	// Prompt is appended to the memory as a user message when non-empty.
	Prompt string
	// Memory seeds the run. When nil and SessionID is set, the session's
	// conversation is used.
	Memory memory.Memory
	// SessionID links the run to a stored conversation. Runs of the same
	// session execute one at a time.
	SessionID string
}

// Runner coordinates run execution. Public methods are safe for concurrent
// use.
type Runner struct {
	agent    *agent.ReplanAgent
	root     *emitter.Emitter
	registry *intervention.Registry
	coord    *intervention.Coordinator
	sessions session.Store
	sem      *semaphore.Weighted
	logger   logging.Logger

	lockMu       sync.Mutex
	sessionLocks map[string]*sessionLock

	mu      sync.Mutex
	started bool
	closed  bool
	runs    map[string]*Handle
	wg      sync.WaitGroup
}

// New constructs a Runner for a. Call Start before running.
func New(a *agent.ReplanAgent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	root := emitter.NewRoot(func(o *emitter.Options) {
		o.ErrorSink = opts.ErrorSink
		o.Logger = logger
	})

	gw := opts.Gateway
	if gw == nil {
		gw = human.GatewayFunc(func(context.Context, string) (string, error) {
			return "", ErrNoGateway
		})
	}

	reg := opts.Registry
	if reg == nil {
		reg = intervention.NewRegistry()
	}
	coord := intervention.NewCoordinator(root, gw, reg, func(o *intervention.Options) {
		o.Logger = logger
		o.Tracer = opts.Tracer
		if opts.FormatIntervention != nil {
			o.Format = opts.FormatIntervention
		}
	})

	var sem *semaphore.Weighted
	if opts.MaxConcurrentRuns > 0 {
		sem = semaphore.NewWeighted(int64(opts.MaxConcurrentRuns))
	}

	return &Runner{
		agent:    a,
		root:     root,
		registry: reg,
		coord:    coord,
		sessions: opts.SessionStore,
		sem:      sem,
		logger:   logger,
		runs:     make(map[string]*Handle),

		sessionLocks: make(map[string]*sessionLock),
	}
}

// Emitter returns the root of the bus. Subscribers here observe every run.
func (r *Runner) Emitter() *emitter.Emitter { return r.root }

// Registry returns the intervention registry shared by every run.
func (r *Runner) Registry() *intervention.Registry { return r.registry }

// Sessions returns the session store.
func (r *Runner) Sessions() session.Store { return r.sessions }

// Open starts the intervention coordinator. It is idempotent.
func (r *Runner) Open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	r.coord.Start()
}

// Close cancels every active run, waits for them to finish and shuts the
// coordinator and the bus down.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, h := range r.runs {
		h.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.coord.Close()
	r.root.Close()
}

// Run executes a run and blocks until it terminates.
func (r *Runner) Run(ctx context.Context, in Input, observers ...emitter.Handler) (*agent.Response, error) {
	h, err := r.Start(ctx, in, observers...)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// Start launches a run asynchronously. observers are subscribed to every
// event of the run namespace before the run begins.
func (r *Runner) Start(ctx context.Context, in Input, observers ...emitter.Handler) (*Handle, error) {
	runID := in.RunID
	if runID == "" {
		runID = core.NewID()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if !r.started {
		r.started = true
		r.coord.Start()
	}
	if _, ok := r.runs[runID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRun, runID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		RunID:   runID,
		Emitter: r.root.Child("run", runID),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.runs[runID] = h
	r.wg.Add(1)
	r.mu.Unlock()

	release := func() {
		cancel()
		r.mu.Lock()
		delete(r.runs, runID)
		r.mu.Unlock()
		r.wg.Done()
	}

	mem, history, err := r.memoryFor(in)
	if err != nil {
		release()
		return nil, err
	}

	x, err := r.agent.NewExecution(h.Emitter, runID, agent.Input{Prompt: in.Prompt, Memory: mem})
	if err != nil {
		release()
		return nil, err
	}
	h.exec = x

	for _, obs := range observers {
		h.Emitter.On(emitter.Wildcard, obs)
	}

	go func() {
		defer release()
		defer close(h.done)

		h.resp, h.err = r.execute(runCtx, x, in.SessionID)
		r.persist(in.SessionID, x, h.resp, h.err, history)
	}()

	return h, nil
}

// Cancel cancels an active run by id.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	h, ok := r.runs[runID]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	h.cancel()
	return nil
}

// Active returns the ids of the runs that have not finished yet.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	return ids
}

// execute applies admission control and runs x.
func (r *Runner) execute(ctx context.Context, x *agent.Execution, sessionID string) (*agent.Response, error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return x.Abort(ctx, err)
		}
		defer r.sem.Release(1)
	}

	if sessionID != "" {
		if !r.acquireSession(ctx, sessionID) {
			return x.Abort(ctx, ctx.Err())
		}
		defer r.releaseSession(sessionID)
	}

	r.logger.Debug("runner.run.start", "run_id", x.RunID(), "session_id", sessionID)

	return x.Run(ctx)
}

// memoryFor resolves the memory a run starts from. The second result is the
// stored conversation of the session, if any.
func (r *Runner) memoryFor(in Input) (memory.Memory, []core.Message, error) {
	if in.SessionID == "" || r.sessions == nil {
		return in.Memory, nil, nil
	}

	sess, err := r.sessions.Get(in.SessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return in.Memory, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("load session %s: %w", in.SessionID, err)
	}

	if in.Memory != nil {
		return in.Memory, sess.Messages, nil
	}
	return memory.NewInMemory(sess.Messages...), sess.Messages, nil
}

// persist stores the conversation of a finished session run. A failed run
// keeps the previous conversation.
func (r *Runner) persist(sessionID string, x *agent.Execution, resp *agent.Response, runErr error, history []core.Message) {
	if sessionID == "" || r.sessions == nil {
		return
	}

	rec := session.RunRecord{RunID: x.RunID(), State: x.State()}
	msgs := history
	if resp != nil {
		rec.Iterations = resp.Iterations
		msgs = resp.Memory.Messages()
	}
	var rerr *core.RunError
	if errors.As(runErr, &rerr) {
		rec.Error = rerr
	}

	if err := r.sessions.Save(sessionID, msgs, rec); err != nil {
		r.logger.Error("runner.session.save_failed", "session_id", sessionID, "run_id", x.RunID(), "error", err.Error())
	}
}

// sessionLock serializes runs of one session. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type sessionLock struct {
	token chan struct{}
	refs  int
}

func (r *Runner) acquireSession(ctx context.Context, id string) bool {
	r.lockMu.Lock()
	l, ok := r.sessionLocks[id]
	if !ok {
		l = &sessionLock{token: make(chan struct{}, 1)}
		l.token <- struct{}{}
		r.sessionLocks[id] = l
	}
	l.refs++
	r.lockMu.Unlock()

	select {
	case <-l.token:
		return true
	case <-ctx.Done():
		r.unrefSession(id, l)
		return false
	}
}

func (r *Runner) releaseSession(id string) {
	r.lockMu.Lock()
	l, ok := r.sessionLocks[id]
	r.lockMu.Unlock()
	if !ok {
		return
	}
	l.token <- struct{}{}
	r.unrefSession(id, l)
}

func (r *Runner) unrefSession(id string, l *sessionLock) {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	l.refs--
	if l.refs == 0 && r.sessionLocks[id] == l {
		delete(r.sessionLocks, id)
	}
}

// sessionLockCount reports how many sessions have a run holding or awaiting
// their lock.
func (r *Runner) sessionLockCount() int {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	return len(r.sessionLocks)
}
