package openai

import (
	"testing"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(model.Request{
		Instructions: "You plan.",
		Messages: []core.Message{
			core.NewUserMessage("plan a trip"),
			core.NewAssistantMessage("sure"),
			{Role: core.RoleTool, Text: "result"},
			{Role: core.RoleUser, Text: ""},
		},
	})

	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
	assert.NotNil(t, msgs[3].OfUser)
}

func TestBuildParams_ResponseSchema(t *testing.T) {
	client := openai.NewClient(option.WithAPIKey("test"))
	m := NewModelFromClient(&client, func(o *Options) { o.Model = "gpt-test" })

	params := m.buildParams(model.Request{
		ResponseSchema: map[string]any{"type": "object"},
		SchemaName:     "plan",
	})

	require.NotNil(t, params.ResponseFormat.OfJSONSchema)
	assert.Equal(t, "plan", params.ResponseFormat.OfJSONSchema.JSONSchema.Name)
	assert.Equal(t, "gpt-test", m.Info().Name)
	assert.Equal(t, "openai", m.Info().Provider)
}
