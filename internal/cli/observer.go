package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/emitter"
)

// writer is the output surface of the observer.
type writer interface {
	Write(prefix, text string)
}

// observer renders run progress: lookbacks, plan steps, tool calls and
// completed interventions.
type observer struct {
	w writer
}

func (o *observer) handle(_ context.Context, ev emitter.Event) error {
	switch p := ev.Payload.(type) {
	case core.UpdateEvent:
		o.update(p)
	case core.ToolEvent:
		o.tool(ev.Name, p)
	case core.InterventionResponse:
		if ev.Name == core.EventInterventionCompleted {
			o.w.Write("Intervention: ", fmt.Sprintf("'%s' completed with response: %s", p.Type, p.Response))
		}
	}
	return nil
}

func (o *observer) update(u core.UpdateEvent) {
	if u.Final {
		if u.Error != nil {
			o.w.Write("Run: ", fmt.Sprintf("%s (%s)", u.State, u.Error.Kind))
		}
		return
	}
	if u.Lookback != "" {
		o.w.Write("Lookback: ", u.Lookback)
	}
	if u.Plan == nil {
		return
	}
	for _, s := range u.Plan.Steps {
		o.w.Write(fmt.Sprintf("  [%s] ", s.Status), s.Title)
	}
}

func (o *observer) tool(name string, t core.ToolEvent) {
	switch name {
	case core.EventToolStart:
		o.w.Write("Tool: ", fmt.Sprintf("start %s with %s", t.Call.Tool, compact(t.Call.Input)))
	case core.EventToolSuccess:
		o.w.Write("Tool: ", fmt.Sprintf("success %s with %s", t.Call.Tool, compact(t.Output)))
	case core.EventToolError:
		o.w.Write("Tool: ", fmt.Sprintf("error %s [%s] %s", t.Call.Tool, t.Code, t.Error))
	}
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
