package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/replanmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_QueueThenCannedThenEcho(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.Enqueue("first")
	m.AddResponse("hi", "hello there")

	req := Request{Messages: []core.Message{core.NewUserMessage("hi")}}

	r, err := Collect(context.Background(), m, req)
	require.NoError(t, err)
	assert.Equal(t, "first", r.Text)

	r, err = Collect(context.Background(), m, req)
	require.NoError(t, err)
	assert.Equal(t, "hello there", r.Text)

	r, err = Collect(context.Background(), m, Request{Messages: []core.Message{core.NewUserMessage("x")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: x", r.Text)

	assert.Len(t, m.Requests(), 3)
	assert.Equal(t, "mock", m.Info().Provider)
}

func TestCollect_Streaming(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.Enqueue("abc")

	r, err := Collect(context.Background(), m, Request{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "abc", r.Text)
	assert.Equal(t, "stop", r.FinishReason)
}

func TestCollect_Error(t *testing.T) {
	m := NewMockModel("mock", "mock")
	boom := errors.New("rate limited")
	m.EnqueueError(boom)

	_, err := Collect(context.Background(), m, Request{})
	assert.ErrorIs(t, err, boom)
}

func TestCollect_Cancelled(t *testing.T) {
	m := NewMockModel("mock", "mock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, m, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
