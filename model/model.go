package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/replanmesh/core"
)

// Request captures the normalized model input produced by the planner.
type Request struct {
	Instructions string         `json:"instructions"` // System prompt
	Messages     []core.Message `json:"messages"`
	Stream       bool           `json:"stream,omitempty"`

	// ResponseSchema asks the provider for JSON output matching the schema
	// when it supports structured output. Callers still validate the result.
	ResponseSchema map[string]any `json:"response_schema,omitempty"`
	SchemaName     string         `json:"schema_name,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"` // Indicates if this is a partial response
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required to drive generation. Implementations
// emit zero or more partial responses followed by one final response on the
// first channel, or a single error on the second. Both channels are closed
// when generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by Collect when the model produced nothing.
var ErrNoResponse = errors.New("model: no response")

// Collect drains a Generate call and returns the final response. When the
// model only streamed partial chunks, their text is concatenated.
func Collect(ctx context.Context, m Model, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, errCh := m.Generate(ctx, req)

	var (
		final   *Response
		partial strings.Builder
	)

	for out != nil || errCh != nil {
		select {
		case r, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			if r.Partial {
				partial.WriteString(r.Text)
				continue
			}
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if final == nil {
		if partial.Len() == 0 {
			return nil, ErrNoResponse
		}
		final = &Response{Text: partial.String(), FinishReason: "stop"}
	}
	if final.Text == "" && partial.Len() > 0 {
		final.Text = partial.String()
	}

	return final, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Queued responses are returned in order; afterwards canned responses keyed
// by the last user message apply, falling back to an echo.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	queue     []mockReply
	responses map[string]string
	requests  []Request
}

type mockReply struct {
	text string
	err  error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends a reply returned by the next Generate call.
func (m *MockModel) Enqueue(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{text: text})
}

// EnqueueError appends a failure returned by the next Generate call.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{err: err})
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockModel) next(req Request) mockReply {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		return r
	}

	var input string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			input = req.Messages[i].Text
			break
		}
	}
	if full, ok := m.responses[input]; ok {
		return mockReply{text: full}
	}
	return mockReply{text: fmt.Sprintf("Mock response to: %s", input)}
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	reply := m.next(req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if reply.err != nil {
			errCh <- reply.err
			return
		}
		if req.Stream {
			for _, r := range reply.text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: reply.text, FinishReason: "stop"}:
		}
	}()

	return respCh, errCh
}

// Info returns the mock's metadata.
func (m *MockModel) Info() Info { return m.info }
