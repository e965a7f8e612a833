package core

import "context"

// ToolInfo describes a tool to the planner.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// PlanRequest is the context handed to the planner.
type PlanRequest struct {
	RunID     string
	Iteration int
	// MaxIterations is the iteration bound of the run, 0 when unbounded.
	MaxIterations int
	Messages      []Message
	Tools         []ToolInfo
	// Previous is the last executed plan, nil on the first iteration.
	Previous *Plan
	// Lookback is the observation summary of the previous plan.
	Lookback string
}

// PlanResult is what the planner returns. An empty Steps slice or a non-empty
// FinalAnswer ends the run.
type PlanResult struct {
	Lookback    string `json:"lookback"`
	Steps       []Step `json:"steps"`
	FinalAnswer string `json:"final_answer,omitempty"`
}

// Finished reports whether the planner considers the task complete.
func (r *PlanResult) Finished() bool {
	return r == nil || r.FinalAnswer != "" || len(r.Steps) == 0
}

// Planner is the external plan-generation collaborator. It may be slow and it
// may fail; a failure is fatal to the run.
type Planner interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (*PlanResult, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, req PlanRequest) (*PlanResult, error)

// GeneratePlan implements Planner.
func (f PlannerFunc) GeneratePlan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	return f(ctx, req)
}
