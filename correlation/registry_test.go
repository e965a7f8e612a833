package correlation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ResolveDeliversToWaiter(t *testing.T) {
	r := NewRegistry[string]()
	f, err := r.Register("c-1")
	require.NoError(t, err)
	assert.True(t, r.Has("c-1"))
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, "c-1", f.ID())

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = r.Resolve("c-1", "A")
	}()

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", v)
	assert.False(t, r.Has("c-1"))
	assert.Equal(t, 0, r.Pending())
}

func TestRegistry_DuplicateAndUnknown(t *testing.T) {
	r := NewRegistry[int]()
	_, err := r.Register("x")
	require.NoError(t, err)

	_, err = r.Register("x")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = r.Register("")
	assert.Error(t, err)

	assert.ErrorIs(t, r.Resolve("nope", 1), ErrUnknown)
	assert.ErrorIs(t, r.Reject("nope", errors.New("x")), ErrUnknown)
}

func TestRegistry_ResolvesExactlyOnce(t *testing.T) {
	r := NewRegistry[int]()
	f, err := r.Register("c")
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Resolve("c", i) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	_, err = f.Await(context.Background())
	assert.NoError(t, err)
}

func TestRegistry_Reject(t *testing.T) {
	r := NewRegistry[string]()
	f, _ := r.Register("c")
	boom := errors.New("boom")
	require.NoError(t, r.Reject("c", boom))

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_DiscardPreventsResolution(t *testing.T) {
	r := NewRegistry[string]()
	f, _ := r.Register("c")

	assert.True(t, r.Discard("c"))
	assert.False(t, r.Discard("c"))

	_, ok := r.Claim("c")
	assert.False(t, ok)

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrDiscarded)
}

func TestFuture_AwaitCancelled(t *testing.T) {
	r := NewRegistry[string]()
	f, _ := r.Register("c")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The entry stays registered until the waiter discards it.
	assert.True(t, r.Has("c"))
}

func TestFuture_CompletedValueWinsOverCancelledContext(t *testing.T) {
	r := NewRegistry[string]()
	f, _ := r.Register("c")
	require.NoError(t, r.Resolve("c", "done"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.False(t, f.Resolve("again"))
	assert.False(t, f.Reject(errors.New("late")))
}
