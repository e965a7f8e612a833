package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	sdkopenai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/replanmesh/config"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/logging"
	"github.com/hupe1980/replanmesh/model"
	"github.com/hupe1980/replanmesh/model/anthropic"
	"github.com/hupe1980/replanmesh/model/openai"
	"github.com/hupe1980/replanmesh/planner"
	"go.opentelemetry.io/otel/trace"
)

// newPlanner builds the planner selected by cfg.
func newPlanner(cfg config.Config, logger logging.Logger, tracer trace.Tracer) (core.Planner, error) {
	var m model.Model

	switch strings.ToLower(cfg.Planner.Provider) {
	case config.ProviderMock:
		return mockPlanner(), nil
	case config.ProviderAnthropic:
		m = anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Planner.Model != "" {
				o.Model = sdkanthropic.Model(cfg.Planner.Model)
			}
			o.Temperature = cfg.Planner.Temperature
			o.MaxTokens = cfg.Planner.MaxTokens
			o.APIKey = cfg.Planner.APIKey
		})
	case config.ProviderOpenAI:
		var reqOpts []option.RequestOption
		if cfg.Planner.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(cfg.Planner.APIKey))
		}
		client := sdkopenai.NewClient(reqOpts...)
		m = openai.NewModelFromClient(&client, func(o *openai.Options) {
			if cfg.Planner.Model != "" {
				o.Model = cfg.Planner.Model
			}
			o.Temperature = cfg.Planner.Temperature
			o.MaxCompletionTokens = cfg.Planner.MaxTokens
		})
	default:
		return nil, fmt.Errorf("unknown planner provider %q", cfg.Planner.Provider)
	}

	return planner.NewModelPlanner(m, func(o *planner.Options) {
		o.MaxRetries = uint64(cfg.Planner.MaxRetries)
		o.Logger = logger
		o.Tracer = tracer
	})
}

// mockPlanner is an offline planner for demos: it asks the human for a time
// zone, looks up the time there and reports the tool results.
func mockPlanner() core.Planner {
	return planner.Func(func(_ context.Context, req core.PlanRequest) (*core.PlanResult, error) {
		switch req.Iteration {
		case 1:
			return &core.PlanResult{
				Lookback: "Nothing has been done yet.",
				Steps: []core.Step{{
					Title: "Ask which time zone to use",
					Call: core.ToolCallSpec{Tool: "intervention", Input: map[string]any{
						"type":    "clarification",
						"message": "Which time zone should I use (for example Europe/Berlin)?",
					}},
				}},
			}, nil
		case 2:
			zone := "UTC"
			if req.Previous != nil && len(req.Previous.Steps) > 0 {
				if s, ok := req.Previous.Steps[0].Result.(string); ok {
					var data map[string]string
					if json.Unmarshal([]byte(s), &data) == nil && data["clarification"] != "" {
						zone = data["clarification"]
					}
				}
			}
			return &core.PlanResult{
				Lookback: "The user chose " + zone + ".",
				Steps: []core.Step{{
					Title: "Look up the current time",
					Call:  core.ToolCallSpec{Tool: "clock", Input: map[string]any{"location": zone}},
				}},
			}, nil
		default:
			var parts []string
			if req.Previous != nil {
				for _, s := range req.Previous.Steps {
					if s.Status == core.StepFailed {
						parts = append(parts, fmt.Sprintf("%s failed: %s", s.Title, s.Error))
						continue
					}
					parts = append(parts, fmt.Sprintf("%s: %v", s.Title, s.Result))
				}
			}
			return &core.PlanResult{
				Lookback:    "All steps finished.",
				FinalAnswer: strings.Join(parts, "; "),
			}, nil
		}
	})
}
