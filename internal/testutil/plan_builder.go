package testutil

import (
	"github.com/hupe1980/replanmesh/core"
)

// PlanBuilder provides a fluent helper for constructing plan results.
// Example:
//
//	res := NewPlanBuilder().Lookback("start").Step("look up", "search", map[string]any{"q": "go"}).Build()
type PlanBuilder struct {
	lookback string
	answer   string
	steps    []core.Step
}

// NewPlanBuilder creates an empty builder.
func NewPlanBuilder() *PlanBuilder { return &PlanBuilder{} }

// Lookback sets the lookback text (chainable).
func (b *PlanBuilder) Lookback(s string) *PlanBuilder { b.lookback = s; return b }

// Answer sets the final answer (chainable).
func (b *PlanBuilder) Answer(s string) *PlanBuilder { b.answer = s; return b }

// Step appends a pending step calling tool with input (chainable).
func (b *PlanBuilder) Step(title, tool string, input map[string]any) *PlanBuilder {
	b.steps = append(b.steps, core.Step{
		Title:  title,
		Call:   core.ToolCallSpec{Tool: tool, Input: input},
		Status: core.StepPending,
	})
	return b
}

// Build returns the plan result.
func (b *PlanBuilder) Build() *core.PlanResult {
	return &core.PlanResult{
		Lookback:    b.lookback,
		Steps:       append([]core.Step(nil), b.steps...),
		FinalAnswer: b.answer,
	}
}
