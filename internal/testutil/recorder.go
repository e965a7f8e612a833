package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/replanmesh/emitter"
)

// Recorder subscribes to every event of a namespace and keeps them in
// arrival order. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []emitter.Event
	signal chan struct{}
	sub    *emitter.Subscription
}

// Record attaches a recorder to em.
func Record(em *emitter.Emitter) *Recorder {
	r := &Recorder{signal: make(chan struct{}, 1)}
	r.sub = em.On(emitter.Wildcard, func(_ context.Context, ev emitter.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()

		select {
		case r.signal <- struct{}{}:
		default:
		}
		return nil
	})
	return r
}

// Stop detaches the recorder.
func (r *Recorder) Stop() { r.sub.Unsubscribe() }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []emitter.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitter.Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Name
	}
	return out
}

// Named returns the recorded events called name.
func (r *Recorder) Named(name string) []emitter.Event {
	var out []emitter.Event
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events called name were recorded.
func (r *Recorder) Count(name string) int { return len(r.Named(name)) }

// WaitFor blocks until at least n events called name were recorded or the
// timeout elapses. It reports whether the condition was met.
func (r *Recorder) WaitFor(name string, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if r.Count(name) >= n {
			return true
		}
		select {
		case <-r.signal:
		case <-deadline.C:
			return r.Count(name) >= n
		}
	}
}
