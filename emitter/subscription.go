package emitter

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// Subscription is the handle returned by On, Once and Subscribe.
type Subscription struct {
	id       string
	identity string
	name     string
	mode     Mode
	handler  Handler
	bus      *bus
	node     *node // nil once detached; guarded by bus.mu

	fired   atomic.Bool
	removed atomic.Bool
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Name returns the event name pattern the subscription matches.
func (s *Subscription) Name() string { return s.name }

// Mode returns the subscription mode.
func (s *Subscription) Mode() Mode { return s.mode }

// Active reports whether the subscription can still fire.
func (s *Subscription) Active() bool { return !s.removed.Load() }

// Unsubscribe detaches the subscription. It is idempotent.
func (s *Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.detachLocked()
}

// detachLocked removes s from its node. Caller holds bus.mu.
func (s *Subscription) detachLocked() {
	s.removed.Store(true)
	if s.node != nil {
		s.node.remove(s)
		s.node = nil
	}
}

func (s *Subscription) matches(name string) bool {
	switch {
	case s.name == Wildcard:
		return true
	case strings.HasSuffix(s.name, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(s.name, "*"))
	default:
		return s.name == name
	}
}

// invoke runs the handler, turning errors and panics into HandlerErrors for
// the sink. A persistent subscription removed after collect is skipped.
func (s *Subscription) invoke(ctx context.Context, ev Event) {
	if s.mode == Persistent && s.removed.Load() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.bus.sink(&HandlerError{
				Event:          ev,
				SubscriptionID: s.id,
				Err:            fmt.Errorf("%v", r),
				Panicked:       true,
			})
		}
	}()

	if err := s.handler(ctx, ev); err != nil {
		s.bus.sink(&HandlerError{Event: ev, SubscriptionID: s.id, Err: err})
	}
}
