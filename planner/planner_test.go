package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/internal/testutil"
	"github.com/hupe1980/replanmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetries(n uint64) func(o *Options) {
	return func(o *Options) {
		o.MaxRetries = n
		o.InitialInterval = time.Millisecond
		o.MaxInterval = time.Millisecond
	}
}

func TestModelPlanner_ParsesPlan(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue("Here is the plan:\n```json\n" + `{
		"lookback": "Nothing done yet",
		"steps": [
			{"title": "Ask preferences", "tool": "human", "input": {"message": "What do you like?"}},
			{"title": "Check weather", "tool": "weather", "input": {"city": "Prague"}}
		]
	}` + "\n```")

	p, err := NewModelPlanner(m)
	require.NoError(t, err)

	res, err := p.GeneratePlan(context.Background(), core.PlanRequest{
		RunID:    "r1",
		Messages: []core.Message{core.NewUserMessage("plan a trip")},
		Tools:    []core.ToolInfo{{Name: "weather", Description: "Weather lookup"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Nothing done yet", res.Lookback)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "human", res.Steps[0].Call.Tool)
	assert.Equal(t, "Prague", res.Steps[1].Call.Input["city"])
	assert.Equal(t, core.StepPending, res.Steps[1].Status)
	assert.False(t, res.Finished())

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "- weather: Weather lookup")
	assert.Contains(t, reqs[0].Instructions, "Output schema:")
	assert.NotNil(t, reqs[0].ResponseSchema)
}

func TestModelPlanner_RetriesInvalidOutput(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue("I cannot produce JSON today")
	m.EnqueueError(errors.New("rate limited"))
	m.Enqueue(`{"lookback": "all done", "steps": [], "final_answer": "42"}`)

	p, err := NewModelPlanner(m, fastRetries(2))
	require.NoError(t, err)

	res, err := p.GeneratePlan(context.Background(), core.PlanRequest{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "42", res.FinalAnswer)
	assert.True(t, res.Finished())
	assert.Len(t, m.Requests(), 3)
}

func TestModelPlanner_GivesUp(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	for i := 0; i < 3; i++ {
		m.Enqueue(`{"steps": "not an array"}`)
	}

	p, err := NewModelPlanner(m, fastRetries(1))
	require.NoError(t, err)

	_, err = p.GeneratePlan(context.Background(), core.PlanRequest{})
	assert.ErrorIs(t, err, ErrInvalidPlan)
	assert.Len(t, m.Requests(), 2)
}

func TestModelPlanner_Cancelled(t *testing.T) {
	p, err := NewModelPlanner(model.NewMockModel("mock", "mock"), fastRetries(5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.GeneratePlan(ctx, core.PlanRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderObservation(t *testing.T) {
	assert.Empty(t, renderObservation(core.PlanRequest{}))

	obs := renderObservation(core.PlanRequest{
		Iteration: 2,
		Lookback:  "asked the user",
		Previous: &core.Plan{Steps: []core.Step{
			{Title: "ask", Call: core.ToolCallSpec{Tool: "human"}, Status: core.StepDone, Result: `{"clarification":"A"}`},
			{Title: "search", Call: core.ToolCallSpec{Tool: "search"}, Status: core.StepFailed, Error: "boom"},
		}},
	})

	assert.True(t, strings.HasPrefix(obs, "Iteration 2 observation."))
	assert.Contains(t, obs, "Lookback: asked the user")
	assert.Contains(t, obs, "1. ask [done] tool=human result=")
	assert.Contains(t, obs, "2. search [failed] tool=search error=boom")
	assert.NotContains(t, obs, "last iteration")

	last := renderObservation(core.PlanRequest{Iteration: 3, MaxIterations: 3, Previous: &core.Plan{}})
	assert.Contains(t, last, "This is the last iteration: return a final answer.")
}

func TestScripted(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted(
		testutil.NewPlanBuilder().Lookback("first").Step("a", "t", nil).Build(),
	).FailAt(2, boom)

	res, err := s.GeneratePlan(context.Background(), core.PlanRequest{Iteration: 1})
	require.NoError(t, err)
	assert.Equal(t, "first", res.Lookback)

	_, err = s.GeneratePlan(context.Background(), core.PlanRequest{Iteration: 2})
	assert.ErrorIs(t, err, boom)

	res, err = s.GeneratePlan(context.Background(), core.PlanRequest{Iteration: 3})
	require.NoError(t, err)
	assert.True(t, res.Finished())

	assert.Len(t, s.Requests(), 3)
}

func TestFunc(t *testing.T) {
	var p core.Planner = Func(func(_ context.Context, req core.PlanRequest) (*core.PlanResult, error) {
		return &core.PlanResult{FinalAnswer: req.RunID}, nil
	})
	res, err := p.GeneratePlan(context.Background(), core.PlanRequest{RunID: "r9"})
	require.NoError(t, err)
	assert.Equal(t, "r9", res.FinalAnswer)
}
