package intervention

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
	"github.com/hupe1980/replanmesh/human"
	"github.com/hupe1980/replanmesh/internal/testutil"
	"github.com/hupe1980/replanmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root  *emitter.Emitter
	reg   *Registry
	coord *Coordinator
	inv   *tool.Invoker
}

func newFixture(t *testing.T, gw human.Gateway, toolOpts ...func(o *ToolOptions)) *fixture {
	t.Helper()

	root := emitter.NewRoot()
	reg := NewRegistry()
	coord := NewCoordinator(root, gw, reg)
	coord.Start()
	t.Cleanup(coord.Close)

	tools, err := tool.NewRegistry(NewTool(reg, toolOpts...), NewHumanTool(reg, toolOpts...))
	require.NoError(t, err)

	return &fixture{root: root, reg: reg, coord: coord, inv: tool.NewInvoker(tools)}
}

func (f *fixture) ask(ctx context.Context, runID string, kind core.InterventionType, msg string) (any, error) {
	return f.inv.Invoke(ctx, f.root.Child("run", runID), runID, core.ToolCallSpec{
		Tool:  ToolName,
		Input: map[string]any{"type": string(kind), "message": msg},
	})
}

func TestCoordinator_ClarificationRoundTrip(t *testing.T) {
	gw := human.NewScripted("A")
	f := newFixture(t, gw)
	rec := testutil.Record(f.root)

	out, err := f.ask(context.Background(), "r1", core.InterventionClarification, "Pick A or B")
	require.NoError(t, err)
	assert.JSONEq(t, `{"clarification":"A"}`, out.(string))
	assert.Equal(t, []string{"Pick A or B"}, gw.Prompts())

	requested := rec.Named(core.EventInterventionRequested)
	completed := rec.Named(core.EventInterventionCompleted)
	require.Len(t, requested, 1)
	require.Len(t, completed, 1)

	req := requested[0].Payload.(core.InterventionRequest)
	resp := completed[0].Payload.(core.InterventionResponse)

	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.Equal(t, core.InterventionClarification, resp.Type)
	assert.Equal(t, "A", resp.Response)
	assert.Equal(t, "r1", req.RunID)
	assert.Equal(t, "run.r1.tool.intervention", completed[0].Namespace())

	assert.Equal(t, []string{
		core.EventToolStart,
		core.EventInterventionRequested,
		core.EventInterventionCompleted,
		core.EventToolSuccess,
	}, rec.Names())

	assert.Equal(t, 0, f.reg.Pending())
	assert.Equal(t, 0, f.coord.Outstanding())
}

func TestCoordinator_ValidationIsVerbatim(t *testing.T) {
	f := newFixture(t, human.NewScripted("Yes"))
	rec := testutil.Record(f.root)

	out, err := f.ask(context.Background(), "r1", core.InterventionValidation, "Book the 9am flight?")
	require.NoError(t, err)
	assert.Equal(t, "Yes", out)

	resp := rec.Named(core.EventInterventionCompleted)[0].Payload.(core.InterventionResponse)
	assert.Nil(t, resp.Data)
	assert.True(t, resp.Approved())
}

func TestCoordinator_SerializesConcurrentRequests(t *testing.T) {
	var mu sync.Mutex
	var log []string
	appendLog := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		log = append(log, s)
	}

	gw := human.NewScripted("first", "second").
		WithDelay(30 * time.Millisecond).
		OnPrompt(func(m string) { appendLog("prompt:" + m) })
	f := newFixture(t, gw)

	f.root.On(core.EventInterventionCompleted, func(_ context.Context, ev emitter.Event) error {
		appendLog("completed:" + ev.Payload.(core.InterventionResponse).Response)
		return nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i, run := range []string{"r1", "r2"} {
		wg.Add(1)
		go func(i int, run string) {
			defer wg.Done()
			_, err := f.ask(context.Background(), run, core.InterventionCorrection, "q-"+run)
			errs <- err
		}(i, run)
		if i == 0 {
			require.Eventually(t, func() bool { return len(gw.Prompts()) == 1 }, time.Second, time.Millisecond)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, gw.MaxConcurrent())
	assert.Equal(t, []string{
		"prompt:q-r1",
		"completed:first",
		"prompt:q-r2",
		"completed:second",
	}, log)
}

func TestCoordinator_CancellationDiscardsWithoutCompletion(t *testing.T) {
	block := make(chan struct{})
	gw := human.NewScripted("late").WithBlock(block)
	f := newFixture(t, gw)
	rec := testutil.Record(f.root)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, msg := range []string{"in flight", "queued"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			_, err := f.ask(ctx, "r1", core.InterventionClarification, msg)
			errs <- err
		}(msg)
	}

	require.Eventually(t, func() bool { return f.coord.Outstanding() == 2 }, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
	close(errs)

	for err := range errs {
		var te *tool.ToolError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, tool.CodeCancelled, te.Code)
	}

	require.Eventually(t, func() bool { return f.coord.Outstanding() == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.reg.Pending() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, rec.Count(core.EventInterventionRequested))
	assert.Equal(t, 0, rec.Count(core.EventInterventionCompleted))
	assert.Len(t, gw.Prompts(), 1)

	// The coordinator keeps serving other requests.
	close(block)
	out, err := f.ask(context.Background(), "r2", core.InterventionClarification, "still there?")
	require.NoError(t, err)
	assert.JSONEq(t, `{"clarification":"late"}`, out.(string))
}

func TestCoordinator_AnswerAfterCancellationIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := human.GatewayFunc(func(context.Context, string) (string, error) {
		cancel()
		return "A", nil
	})
	f := newFixture(t, gw)
	rec := testutil.Record(f.root)

	_, err := f.ask(ctx, "r1", core.InterventionClarification, "Pick A or B")
	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeCancelled, te.Code)

	require.Eventually(t, func() bool { return f.coord.Outstanding() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, rec.Count(core.EventInterventionRequested))
	assert.Equal(t, 0, rec.Count(core.EventInterventionCompleted))
	assert.Equal(t, 0, f.reg.Pending())
}

func TestTool_Timeout(t *testing.T) {
	gw := human.NewScripted("never").WithBlock(make(chan struct{}))
	f := newFixture(t, gw, func(o *ToolOptions) { o.Timeout = 20 * time.Millisecond })
	rec := testutil.Record(f.root)

	_, err := f.ask(context.Background(), "r1", core.InterventionCorrection, "fix it")

	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeTimeout, te.Code)
	assert.ErrorIs(t, err, core.ErrInterventionTimeout)
	assert.Equal(t, 0, rec.Count(core.EventInterventionCompleted))
}

func TestTool_GatewayFailureFailsTheCall(t *testing.T) {
	boom := errors.New("terminal gone")
	f := newFixture(t, human.GatewayFunc(func(context.Context, string) (string, error) { return "", boom }))
	rec := testutil.Record(f.root)

	_, err := f.ask(context.Background(), "r1", core.InterventionClarification, "hello?")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, rec.Count(core.EventInterventionCompleted))
	assert.Equal(t, 1, rec.Count(core.EventToolError))
}

func TestTool_InvalidInput(t *testing.T) {
	f := newFixture(t, human.NewScripted())

	tests := []map[string]any{
		{"type": "approval", "message": "x"},
		{"type": "validation", "message": ""},
		{"message": "x"},
	}
	for _, in := range tests {
		_, err := f.inv.Invoke(context.Background(), f.root.Child("run", "r"), "r", core.ToolCallSpec{Tool: ToolName, Input: in})

		var te *tool.ToolError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, tool.CodeValidation, te.Code)
	}
}

func TestHumanTool_AlwaysClarification(t *testing.T) {
	f := newFixture(t, human.NewScripted("I enjoy cultural activities"))
	rec := testutil.Record(f.root)

	out, err := f.inv.Invoke(context.Background(), f.root.Child("run", "r1"), "r1", core.ToolCallSpec{
		Tool:  HumanToolName,
		Input: map[string]any{"message": "What do you like?"},
	})
	require.NoError(t, err)

	var data map[string]string
	require.NoError(t, json.Unmarshal([]byte(out.(string)), &data))
	assert.Equal(t, "I enjoy cultural activities", data["clarification"])

	req := rec.Named(core.EventInterventionRequested)[0].Payload.(core.InterventionRequest)
	assert.Equal(t, core.InterventionClarification, req.Type)
	assert.Equal(t, HumanToolName, req.Tool)
}

func TestCoordinator_CloseRejectsPending(t *testing.T) {
	root := emitter.NewRoot()
	reg := NewRegistry()
	coord := NewCoordinator(root, human.NewScripted("x").WithBlock(make(chan struct{})), reg)
	coord.Start()

	tools, err := tool.NewRegistry(NewTool(reg))
	require.NoError(t, err)
	inv := tool.NewInvoker(tools)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := inv.Invoke(context.Background(), root.Child("run", "r"), "r", core.ToolCallSpec{
				Tool:  ToolName,
				Input: map[string]any{"type": "validation", "message": "ok?"},
			})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return coord.Outstanding() == 2 }, time.Second, time.Millisecond)
	coord.Close()
	coord.Close()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errs, ErrClosed)
	}
}

func TestNormalizeAndFormat(t *testing.T) {
	tests := []struct {
		kind core.InterventionType
		want string
	}{
		{core.InterventionValidation, "no"},
		{core.InterventionCorrection, `{"correction":"no"}`},
		{core.InterventionClarification, `{"clarification":"no"}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			resp := Normalize(core.InterventionRequest{CorrelationID: "c", Type: tt.kind}, "no")
			assert.Equal(t, "no", resp.Response)
			assert.Equal(t, "c", resp.CorrelationID)

			out, err := FormatOutput(resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}
