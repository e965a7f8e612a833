package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/replanmesh/emitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_CursorAndStatus(t *testing.T) {
	p := &Plan{Revision: 1, Steps: []Step{
		{Title: "a", Status: StepDone},
		{Title: "b", Status: StepPending},
		{Title: "c", Status: StepPending},
	}}

	assert.Equal(t, 1, p.NextPending())
	assert.False(t, p.Done())
	assert.False(t, p.Failed())

	p.Steps[1].Status = StepFailed
	p.Steps[2].Status = StepDone
	assert.Equal(t, -1, p.NextPending())
	assert.True(t, p.Done())
	assert.True(t, p.Failed())

	var nilPlan *Plan
	assert.True(t, nilPlan.Done())
	assert.Equal(t, -1, nilPlan.NextPending())
	assert.Nil(t, nilPlan.Clone())
}

func TestPlan_CloneIsIndependent(t *testing.T) {
	p := &Plan{Revision: 2, Steps: []Step{{
		Title:  "lookup",
		Call:   ToolCallSpec{Tool: "search", Input: map[string]any{"q": "go"}},
		Status: StepPending,
	}}}

	c := p.Clone()
	c.Steps[0].Status = StepDone
	c.Steps[0].Call.Input["q"] = "rust"

	assert.Equal(t, StepPending, p.Steps[0].Status)
	assert.Equal(t, "go", p.Steps[0].Call.Input["q"])
	assert.Equal(t, 2, c.Revision)
}

func TestParseInterventionType(t *testing.T) {
	tests := []struct {
		in      string
		want    InterventionType
		wantErr bool
	}{
		{"validation", InterventionValidation, false},
		{" Correction ", InterventionCorrection, false},
		{"CLARIFICATION", InterventionClarification, false},
		{"approval", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterventionType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunError(t *testing.T) {
	cause := errors.New("llm unavailable")
	err := NewRunError(KindPlanGeneration, cause, "")

	assert.Equal(t, "llm unavailable", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), "plan_generation")

	cancelled := NewRunError(KindCancelled, context.Canceled, "run cancelled")
	assert.ErrorIs(t, cancelled, ErrCancelled)
	assert.ErrorIs(t, cancelled, context.Canceled)

	var re *RunError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", cancelled), &re)
	assert.Equal(t, KindCancelled, re.Kind)
}

func TestPlanResult_Finished(t *testing.T) {
	var nilResult *PlanResult
	assert.True(t, nilResult.Finished())
	assert.True(t, (&PlanResult{}).Finished())
	assert.True(t, (&PlanResult{FinalAnswer: "42", Steps: []Step{{}}}).Finished())
	assert.False(t, (&PlanResult{Steps: []Step{{}}}).Finished())
}

func TestIterationBudget(t *testing.T) {
	b := NewIterationBudget(2)
	assert.Equal(t, 2, b.Remaining())

	n, err := b.Begin()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, b.Remaining())

	n, err = b.Begin()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, b.Remaining())

	_, err = b.Begin()
	assert.Error(t, err)
	assert.Equal(t, 2, b.Used(), "a refused iteration is not counted")

	unbounded := NewIterationBudget(-3)
	for i := 0; i < 50; i++ {
		_, err := unbounded.Begin()
		require.NoError(t, err)
	}
	assert.Equal(t, -1, unbounded.Remaining())
	assert.Zero(t, unbounded.Max())
}

func TestToolContext_EmitsOnToolNamespace(t *testing.T) {
	root := emitter.NewRoot()
	toolNS := root.Child("run", "r1", "tool", "search")

	var got emitter.Event
	root.On("progress", func(_ context.Context, ev emitter.Event) error {
		got = ev
		return nil
	})

	tc := NewToolContext(context.Background(), "r1", ToolCallSpec{Tool: "search", CorrelationID: "c1"}, toolNS, nil)
	require.NoError(t, tc.Emit("progress", 50))

	assert.Equal(t, "run.r1.tool.search", got.Namespace())
	assert.Equal(t, 50, got.Payload)
	assert.Equal(t, "c1", tc.CorrelationID())
	assert.Equal(t, "r1", tc.RunID())
	assert.NotNil(t, tc.Logger())

	detached := NewToolContext(nil, "r1", ToolCallSpec{}, nil, nil) //nolint:staticcheck
	assert.NoError(t, detached.Emit("progress", 1))
	assert.NotNil(t, detached.Context())
}
