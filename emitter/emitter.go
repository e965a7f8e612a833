// Package emitter implements a hierarchical publish/subscribe event bus.
//
// Namespaces form a tree of string segments. An Emitter is a view bound to one
// namespace; Child derives a view rooted below it. Emitting on a namespace
// notifies the subscribers of that namespace and of every ancestor up to the
// root, so a root level listener observes all traffic while every component
// still gets an isolated scope.
//
// Dispatch is synchronous: Emit returns after every matching handler has
// returned. Handler failures (errors and panics) are isolated per handler and
// reported to the configured error sink instead of the emitter.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/replanmesh/logging"
)

var (
	// ErrClosed is returned when emitting on a namespace that was closed.
	ErrClosed = errors.New("emitter: namespace closed")
	// ErrEmptyName is returned when emitting an event without a name.
	ErrEmptyName = errors.New("emitter: event name must not be empty")
	// ErrEmptySegment is returned by ChildE for blank namespace segments.
	ErrEmptySegment = errors.New("emitter: namespace segment must not be empty")
)

// Wildcard matches every event name.
const Wildcard = "*"

// Handler receives events. ctx is the context passed to Emit.
type Handler func(ctx context.Context, ev Event) error

// Mode controls the lifetime of a subscription.
type Mode int

const (
	// Persistent subscriptions live until Unsubscribe or namespace Close.
	Persistent Mode = iota
	// FireOnce subscriptions are removed before their first invocation.
	FireOnce
)

// Options configures the root of a bus.
type Options struct {
	// ErrorSink receives every handler failure. Defaults to logging the
	// failure through Logger.
	ErrorSink func(*HandlerError)

	// Logger is used by the default error sink and for debug tracing.
	Logger logging.Logger
}

// Emitter is a namespace scoped view onto a shared bus. A view is bound to
// the namespace node that existed when it was created, so a view of a closed
// namespace stays closed even after the same path is opened again.
type Emitter struct {
	bus  *bus
	path []string
	node *node
}

type bus struct {
	mu     sync.Mutex
	root   *node
	sink   func(*HandlerError)
	logger logging.Logger
}

type node struct {
	segment  string
	parent   *node
	children map[string]*node
	subs     []*Subscription
	closed   bool
}

// NewRoot creates a new bus and returns its root view.
func NewRoot(optFns ...func(o *Options)) *Emitter {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &bus{
		root:   newNode("", nil),
		logger: logging.OrNoOp(opts.Logger),
	}

	b.sink = opts.ErrorSink
	if b.sink == nil {
		b.sink = func(herr *HandlerError) {
			b.logger.Error("emitter.handler.failed",
				"event", herr.Event.FullName(),
				"subscription_id", herr.SubscriptionID,
				"panicked", herr.Panicked,
				"error", herr.Err.Error(),
			)
		}
	}

	return &Emitter{bus: b, node: b.root}
}

func newNode(segment string, parent *node) *node {
	return &node{segment: segment, parent: parent, children: map[string]*node{}}
}

// Child returns a view bound to the namespace below e extended by segments.
// Empty segments are skipped, so Child() returns a view equal to e.
func (e *Emitter) Child(segments ...string) *Emitter {
	path := make([]string, len(e.path), len(e.path)+len(segments))
	copy(path, e.path)
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		path = append(path, s)
	}

	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()

	n := e.nodeLocked()
	for _, seg := range path[len(e.path):] {
		n = n.child(seg)
	}
	return &Emitter{bus: e.bus, path: path, node: n}
}

// ChildE is like Child but rejects blank segments instead of skipping them.
func (e *Emitter) ChildE(segments ...string) (*Emitter, error) {
	for i, s := range segments {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w (position %d)", ErrEmptySegment, i)
		}
	}
	return e.Child(segments...), nil
}

// Root returns the root view of the bus e belongs to.
func (e *Emitter) Root() *Emitter { return &Emitter{bus: e.bus, node: e.bus.root} }

// Path returns a copy of the namespace path of this view.
func (e *Emitter) Path() []string {
	out := make([]string, len(e.path))
	copy(out, e.path)
	return out
}

// Namespace returns the dotted namespace of this view ("" for root).
func (e *Emitter) Namespace() string { return strings.Join(e.path, ".") }

// SubscribeOption customizes a subscription.
type SubscribeOption func(*Subscription)

// WithIdentity sets the deduplication key of a subscription. Subscriptions
// sharing an identity are invoked at most once per emission, which matters
// when one handler is registered on several ancestors of the same namespace.
// By default every subscription has its own identity.
func WithIdentity(key string) SubscribeOption {
	return func(s *Subscription) {
		if key != "" {
			s.identity = key
		}
	}
}

// On registers a persistent handler for name on this namespace. name may be
// an exact event name, Wildcard, or a prefix ending in "*" (e.g. "tool:*").
func (e *Emitter) On(name string, h Handler, opts ...SubscribeOption) *Subscription {
	return e.Subscribe(name, h, Persistent, opts...)
}

// Once registers a handler that fires for the first matching event only.
func (e *Emitter) Once(name string, h Handler, opts ...SubscribeOption) *Subscription {
	return e.Subscribe(name, h, FireOnce, opts...)
}

// Subscribe registers h for name with the given mode. Subscribing on a closed
// namespace returns an inert subscription that never fires.
func (e *Emitter) Subscribe(name string, h Handler, mode Mode, opts ...SubscribeOption) *Subscription {
	id := uuid.NewString()
	s := &Subscription{
		id:       id,
		identity: id,
		name:     name,
		mode:     mode,
		handler:  h,
		bus:      e.bus,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()

	n := e.nodeLocked()
	closed := n.closedLocked()
	if closed || h == nil {
		s.removed.Store(true)
		e.bus.logger.Warn("emitter.subscribe.rejected", "namespace", e.Namespace(), "event", name, "closed", closed)
		return s
	}

	s.node = n
	n.subs = append(n.subs, s)

	return s
}

// Emit publishes an event named name with payload on this namespace. It
// returns once every matching handler of this namespace and its ancestors has
// been invoked. Handler failures are reported to the error sink, never
// returned. The only errors are ErrEmptyName and ErrClosed.
func (e *Emitter) Emit(ctx context.Context, name string, payload any) error {
	if name == "" {
		return ErrEmptyName
	}

	ev := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      e.Path(),
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		origin:    e,
	}

	matches, err := e.bus.collect(e, name)
	if err != nil {
		return fmt.Errorf("emit %s: %w", ev.FullName(), err)
	}

	for _, s := range matches {
		s.invoke(ctx, ev)
	}

	return nil
}

// Close removes every subscription at and below this namespace and rejects
// further emissions and subscriptions through views of it. The namespace is
// detached from its parent, so a later Child with the same path starts a
// fresh namespace. Closing the root closes the bus.
func (e *Emitter) Close() {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()

	n := e.nodeLocked()
	n.close()
	if p := n.parent; p != nil && p.children[n.segment] == n {
		delete(p.children, n.segment)
	}
}

// Closed reports whether this namespace or one of its ancestors was closed.
func (e *Emitter) Closed() bool {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()

	return e.nodeLocked().closedLocked()
}

// nodeLocked returns the node e is bound to. Views built without one resolve
// their path from the root. Caller holds bus.mu.
func (e *Emitter) nodeLocked() *node {
	if e.node != nil {
		return e.node
	}
	n := e.bus.root
	for _, seg := range e.path {
		n = n.child(seg)
	}
	return n
}

// child returns the child named seg, creating it. Caller holds bus.mu.
func (n *node) child(seg string) *node {
	c, ok := n.children[seg]
	if !ok {
		c = newNode(seg, n)
		n.children[seg] = c
	}
	return c
}

// closedLocked reports whether n or an ancestor is closed. Caller holds bus.mu.
func (n *node) closedLocked() bool {
	for c := n; c != nil; c = c.parent {
		if c.closed {
			return true
		}
	}
	return false
}

// collect snapshots the subscriptions that must receive an event named name
// emitted through e: e's node first, then each ancestor up to root, registration order within a node. Fire-once subscriptions are claimed
// and detached here so that concurrent emissions cannot fire them twice.
func (b *bus) collect(e *Emitter, name string) ([]*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := e.nodeLocked()
	if n.closedLocked() {
		return nil, ErrClosed
	}

	seen := map[string]struct{}{}
	var out []*Subscription
	for c := n; c != nil; c = c.parent {
		for _, s := range c.subs {
			if !s.matches(name) || s.removed.Load() {
				continue
			}
			if _, dup := seen[s.identity]; dup {
				continue
			}
			if s.mode == FireOnce && !s.fired.CompareAndSwap(false, true) {
				continue
			}
			seen[s.identity] = struct{}{}
			out = append(out, s)
		}
	}

	for _, s := range out {
		if s.mode == FireOnce {
			s.detachLocked()
		}
	}

	return out, nil
}

func (n *node) close() {
	n.closed = true
	for _, s := range n.subs {
		s.removed.Store(true)
		s.node = nil
	}
	n.subs = nil
	for _, c := range n.children {
		c.close()
	}
}

func (n *node) remove(target *Subscription) {
	for i, s := range n.subs {
		if s == target {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}
