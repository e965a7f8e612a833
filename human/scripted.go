package human

import (
	"context"
	"sync"
	"time"
)

// Scripted answers prompts from a fixed list. It records every prompt and
// the highest number of prompts that were open at the same time, which tests
// use to check serialization.
type Scripted struct {
	mu        sync.Mutex
	answers   []string
	prompts   []string
	open      int
	maxOpen   int
	delay     time.Duration
	block     chan struct{}
	onPrompt  func(message string)
	exhausted error
}

// NewScripted creates a gateway answering with answers in order.
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers, exhausted: ErrClosed}
}

// WithDelay makes every prompt take d before answering.
func (s *Scripted) WithDelay(d time.Duration) *Scripted {
	s.delay = d
	return s
}

// WithBlock makes every prompt wait until ch is closed or ctx is done.
func (s *Scripted) WithBlock(ch chan struct{}) *Scripted {
	s.block = ch
	return s
}

// OnPrompt registers a callback invoked when a prompt opens.
func (s *Scripted) OnPrompt(fn func(message string)) *Scripted {
	s.onPrompt = fn
	return s
}

// Prompt implements Gateway.
func (s *Scripted) Prompt(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, message)
	s.open++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	cb := s.onPrompt
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.open--
		s.mu.Unlock()
	}()

	if cb != nil {
		cb(message)
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.answers) == 0 {
		return "", s.exhausted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Prompts returns the prompts received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// MaxConcurrent returns the highest number of simultaneously open prompts.
func (s *Scripted) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpen
}
