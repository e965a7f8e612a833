package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/replanmesh/core"
)

const systemPrompt = `You are a planning assistant. You always think ahead and use smart approaches to solve the user's problems. You are an expert user of the provided tools.

You must not use factual information that was not provided by the user or by tools in this conversation. Information about places, people and events is unknown to you; use tools to obtain it.

Work in iterations. Each iteration you receive what happened so far and return:
- "lookback": a short summary of what happened and what is known
- "steps": the ordered tool calls to execute next, each with a "title", the "tool" name and its "input"
- "final_answer": set only when the task is complete; return no steps in that case

When you need a human to validate, correct or clarify something, plan a step using the "intervention" tool with the appropriate type.`

// OutputSchema is the JSON schema of a plan response.
var OutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"lookback": map[string]any{"type": "string"},
		"steps": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{"type": "string", "minLength": 1},
					"tool":  map[string]any{"type": "string", "minLength": 1},
					"input": map[string]any{"type": "object"},
				},
				"required": []string{"title", "tool"},
			},
		},
		"final_answer": map[string]any{"type": "string"},
	},
	"required": []string{"lookback", "steps"},
}

type rawPlan struct {
	Lookback    string    `json:"lookback"`
	Steps       []rawStep `json:"steps"`
	FinalAnswer string    `json:"final_answer"`
}

type rawStep struct {
	Title string         `json:"title"`
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

func (p rawPlan) result() *core.PlanResult {
	res := &core.PlanResult{Lookback: p.Lookback, FinalAnswer: p.FinalAnswer}
	for _, s := range p.Steps {
		res.Steps = append(res.Steps, core.Step{
			Title:  s.Title,
			Call:   core.ToolCallSpec{Tool: s.Tool, Input: s.Input},
			Status: core.StepPending,
		})
	}
	return res
}

// renderSystem appends the tool catalogue and output schema to the system prompt.
func renderSystem(base string, tools []core.ToolInfo) string {
	var b strings.Builder
	b.WriteString(base)

	if len(tools) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		for _, t := range tools {
			params, _ := json.Marshal(t.Parameters)
			fmt.Fprintf(&b, "- %s: %s\n  input schema: %s\n", t.Name, strings.TrimSpace(t.Description), params)
		}
	}

	schema, _ := json.Marshal(OutputSchema)
	fmt.Fprintf(&b, "\nOutput schema: %s", schema)

	return b.String()
}

// renderObservation describes the previous plan to the model.
func renderObservation(req core.PlanRequest) string {
	if req.Previous == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d observation.\n", req.Iteration)
	if req.MaxIterations > 0 && req.Iteration >= req.MaxIterations {
		b.WriteString("This is the last iteration: return a final answer.\n")
	}
	if req.Lookback != "" {
		fmt.Fprintf(&b, "Lookback: %s\n", req.Lookback)
	}
	for i, s := range req.Previous.Steps {
		fmt.Fprintf(&b, "%d. %s [%s] tool=%s", i+1, s.Title, s.Status, s.Call.Tool)
		switch {
		case s.Error != "":
			fmt.Fprintf(&b, " error=%s", s.Error)
		case s.Result != nil:
			out, err := json.Marshal(s.Result)
			if err != nil {
				out = []byte(fmt.Sprint(s.Result))
			}
			fmt.Fprintf(&b, " result=%s", out)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// extractJSON returns the outermost JSON object of text, tolerating code
// fences and prose around it.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in model output")
	}
	return text[start : end+1], nil
}
