package planner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/replanmesh/core"
)

// Scripted returns a fixed sequence of plan results, one per call. After the
// script is exhausted it returns a finished result.
type Scripted struct {
	mu       sync.Mutex
	results  []*core.PlanResult
	errs     map[int]error
	requests []core.PlanRequest
}

// NewScripted creates a planner returning results in order.
func NewScripted(results ...*core.PlanResult) *Scripted {
	return &Scripted{results: results, errs: map[int]error{}}
}

// FailAt makes call number n (1-based) fail with err.
func (s *Scripted) FailAt(n int, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[n] = err
	return s
}

// GeneratePlan implements core.Planner.
func (s *Scripted) GeneratePlan(ctx context.Context, req core.PlanRequest) (*core.PlanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	n := len(s.requests)

	if err, ok := s.errs[n]; ok {
		return nil, fmt.Errorf("scripted plan %d: %w", n, err)
	}
	if len(s.results) == 0 {
		return &core.PlanResult{Lookback: "done"}, nil
	}

	r := s.results[0]
	s.results = s.results[1:]

	out := *r
	out.Steps = append([]core.Step(nil), r.Steps...)
	return &out, nil
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []core.PlanRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PlanRequest(nil), s.requests...)
}

// Func adapts a function to core.Planner.
type Func = core.PlannerFunc
