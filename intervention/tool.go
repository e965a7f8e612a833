package intervention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/internal/schema"
	"github.com/hupe1980/replanmesh/tool"
)

// ToolName is the name of the intervention tool.
const ToolName = "intervention"

// HumanToolName is the name of the initial information gathering tool.
const HumanToolName = "human"

const interventionDescription = `Creates a decision point where a human guides the plan after initial information gathering.
Use "validation" to confirm critical decisions, "correction" to fix factual details and
"clarification" to choose between options or resolve ambiguity. The message must be a
specific, answerable question.`

const humanDescription = `Gathers initial information from the user at the start of a task:
preferences, requirements and constraints needed before planning begins. Ask one open but
specific question. Use the intervention tool for refinements once a plan exists.`

// ToolOptions configures the intervention and human tools.
type ToolOptions struct {
	// Timeout bounds the wait for a human response. Zero waits until the
	// call is cancelled.
	Timeout time.Duration
}

type interventionArgs struct {
	Type    string `json:"type" enum:"validation,correction,clarification" description:"Kind of intervention"`
	Message string `json:"message" description:"Question shown to the human"`
}

type humanArgs struct {
	Message string `json:"message" description:"Question shown to the user"`
}

// Tool asks a human for validation, correction or clarification and blocks
// until the coordinator answers.
type Tool struct {
	registry *Registry
	opts     ToolOptions
	params   map[string]any
}

// NewTool creates the intervention tool over the coordinator's registry.
func NewTool(reg *Registry, optFns ...func(o *ToolOptions)) *Tool {
	opts := ToolOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	params := schema.FromStruct(interventionArgs{})
	params["properties"].(map[string]any)["message"].(map[string]any)["minLength"] = 1

	return &Tool{registry: reg, opts: opts, params: params}
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return ToolName }

// Description implements tool.Tool.
func (t *Tool) Description() string { return interventionDescription }

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any { return t.params }

// Call implements tool.Tool. Validation answers are returned verbatim; the
// other types return the JSON object {"<type>": "<answer>"}.
func (t *Tool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	kind, err := core.ParseInterventionType(fmt.Sprint(args["type"]))
	if err != nil {
		return nil, &tool.ToolError{Tool: ToolName, Message: err.Error(), Code: tool.CodeValidation}
	}

	msg, _ := args["message"].(string)
	if strings.TrimSpace(msg) == "" {
		return nil, &tool.ToolError{Tool: ToolName, Message: "message cannot be empty", Code: tool.CodeValidation}
	}

	resp, err := request(tc, t.registry, t.opts.Timeout, kind, msg)
	if err != nil {
		return nil, tool.AsToolError(ToolName, err)
	}

	return FormatOutput(resp)
}

// HumanTool gathers initial information from the user. Every answer is
// treated as a clarification.
type HumanTool struct {
	registry *Registry
	opts     ToolOptions
	params   map[string]any
}

// NewHumanTool creates the human tool over the coordinator's registry.
func NewHumanTool(reg *Registry, optFns ...func(o *ToolOptions)) *HumanTool {
	opts := ToolOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	params := schema.FromStruct(humanArgs{})
	params["properties"].(map[string]any)["message"].(map[string]any)["minLength"] = 1

	return &HumanTool{registry: reg, opts: opts, params: params}
}

// Name implements tool.Tool.
func (t *HumanTool) Name() string { return HumanToolName }

// Description implements tool.Tool.
func (t *HumanTool) Description() string { return humanDescription }

// Parameters implements tool.Tool.
func (t *HumanTool) Parameters() map[string]any { return t.params }

// Call implements tool.Tool. It blocks until the answer arrives, the run is
// cancelled or the timeout passes.
func (t *HumanTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	msg, _ := args["message"].(string)
	if strings.TrimSpace(msg) == "" {
		return nil, &tool.ToolError{Tool: HumanToolName, Message: "message cannot be empty", Code: tool.CodeValidation}
	}

	resp, err := request(tc, t.registry, t.opts.Timeout, core.InterventionClarification, msg)
	if err != nil {
		return nil, tool.AsToolError(HumanToolName, err)
	}

	return FormatOutput(resp)
}

// FormatOutput renders a response as tool output.
func FormatOutput(resp core.InterventionResponse) (string, error) {
	if resp.Type == core.InterventionValidation || len(resp.Data) == 0 {
		return resp.Response, nil
	}

	b, err := json.Marshal(resp.Data)
	if err != nil {
		return "", fmt.Errorf("encode %s response: %w", resp.Type, err)
	}
	return string(b), nil
}

// request performs one intervention round-trip: register the correlation id,
// announce it on the tool's namespace and wait for the coordinator.
func request(tc *core.ToolContext, reg *Registry, timeout time.Duration, kind core.InterventionType, msg string) (core.InterventionResponse, error) {
	var zero core.InterventionResponse

	if tc.Emitter() == nil {
		return zero, errors.New("intervention requires an event namespace")
	}

	id := uuid.NewString()
	future, err := reg.Register(id)
	if err != nil {
		return zero, err
	}
	defer reg.Discard(id)

	ctx := tc.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := core.InterventionRequest{
		CorrelationID: id,
		Type:          kind,
		Message:       msg,
		RunID:         tc.RunID(),
		Tool:          tc.Call().Tool,
	}

	tc.LogDebug("intervention.requested", "correlation_id", id, "type", string(kind), "run_id", tc.RunID())

	if err := tc.Emitter().Emit(ctx, core.EventInterventionRequested, req); err != nil {
		return zero, fmt.Errorf("request intervention %s: %w", id, err)
	}

	resp, err := future.Await(ctx)
	if err != nil {
		switch {
		case tc.Context().Err() != nil:
			return zero, fmt.Errorf("intervention %s: %w: %w", id, core.ErrCancelled, tc.Context().Err())
		case errors.Is(err, context.DeadlineExceeded):
			return zero, fmt.Errorf("intervention %s after %s: %w", id, timeout, core.ErrInterventionTimeout)
		default:
			return zero, fmt.Errorf("intervention %s: %w", id, err)
		}
	}

	return resp, nil
}
