// Package correlation tracks outstanding asynchronous request/response pairs.
//
// A Registry maps a correlation id to a single-resolution Future. The waiting
// side registers the id and awaits the future; the resolving side claims the
// id and completes it. Claiming removes the entry, so each id resolves at most
// once and a discarded id can no longer be completed.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicate is returned when registering an id that is already pending.
	ErrDuplicate = errors.New("correlation: id already pending")
	// ErrUnknown is returned when resolving an id that is not pending.
	ErrUnknown = errors.New("correlation: id not pending")
	// ErrCancelled wraps the context error when an await is abandoned.
	ErrCancelled = errors.New("correlation: await cancelled")
	// ErrDiscarded is the rejection reason of a future discarded while pending.
	ErrDiscarded = errors.New("correlation: request discarded")
)

// Registry holds pending futures keyed by correlation id. The zero value is
// not usable; construct with NewRegistry.
type Registry[T any] struct {
	mu      sync.Mutex
	pending map[string]*Future[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{pending: map[string]*Future[T]{}}
}

// Register creates the future for id.
func (r *Registry[T]) Register(id string) (*Future[T], error) {
	if id == "" {
		return nil, fmt.Errorf("register: empty id: %w", ErrUnknown)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		return nil, fmt.Errorf("register %s: %w", id, ErrDuplicate)
	}

	f := newFuture[T](id)
	r.pending[id] = f

	return f, nil
}

// Claim removes and returns the future for id. Only the caller that claims an
// id may complete it.
func (r *Registry[T]) Claim(id string) (*Future[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}

	return f, ok
}

// Resolve claims id and completes it with v.
func (r *Registry[T]) Resolve(id string, v T) error {
	f, ok := r.Claim(id)
	if !ok {
		return fmt.Errorf("resolve %s: %w", id, ErrUnknown)
	}
	f.Resolve(v)
	return nil
}

// Reject claims id and completes it with err.
func (r *Registry[T]) Reject(id string, err error) error {
	f, ok := r.Claim(id)
	if !ok {
		return fmt.Errorf("reject %s: %w", id, ErrUnknown)
	}
	f.Reject(err)
	return nil
}

// Discard drops id without resolving it for the resolver. A waiter still
// blocked on the future observes ErrDiscarded. Reports whether id was pending.
func (r *Registry[T]) Discard(id string) bool {
	f, ok := r.Claim(id)
	if ok {
		f.Reject(ErrDiscarded)
	}
	return ok
}

// Has reports whether id is pending.
func (r *Registry[T]) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Pending returns the number of outstanding ids.
func (r *Registry[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Future is a value that is completed at most once and may be awaited.
type Future[T any] struct {
	id   string
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any](id string) *Future[T] {
	return &Future[T]{id: id, done: make(chan struct{})}
}

// ID returns the correlation id.
func (f *Future[T]) ID() string { return f.id }

// Done is closed once the future is completed.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Resolve completes the future with v. Reports whether this call completed it.
func (f *Future[T]) Resolve(v T) bool {
	completed := false
	f.once.Do(func() {
		f.val = v
		completed = true
		close(f.done)
	})
	return completed
}

// Reject completes the future with err. Reports whether this call completed it.
func (f *Future[T]) Reject(err error) bool {
	completed := false
	f.once.Do(func() {
		f.err = err
		completed = true
		close(f.done)
	})
	return completed
}

// Await blocks until the future is completed or ctx is done. On ctx
// cancellation the returned error wraps both ErrCancelled and ctx.Err().
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("await %s: %w: %w", f.id, ErrCancelled, ctx.Err())
	}
}
