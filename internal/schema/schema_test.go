package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty"`
	K string `json:"kind" enum:"validation,correction"`
	x int
}

func TestFromStruct(t *testing.T) {
	s := FromStruct(sampleArgs{})
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)

	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.NotContains(t, props, "x")
	assert.ElementsMatch(t, []string{"a", "kind"}, s["required"])
	assert.Equal(t, "Field A", props["a"].(map[string]any)["description"])
	assert.Equal(t, []any{"validation", "correction"}, props["kind"].(map[string]any)["enum"])

	assert.Equal(t, "object", FromStruct(42)["type"])
}

func TestValidator(t *testing.T) {
	v, err := Compile("args", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []string{"x"},
	})
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"x": 5}))
	assert.NoError(t, v.Validate(map[string]any{"x": 5.0}))

	err = v.Validate(map[string]any{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Error(t, v.Validate(map[string]any{"x": "nope"}))
	assert.Error(t, v.Validate(map[string]any{"x": 1.5}))
}

func TestValidator_NilSchemaAcceptsEverything(t *testing.T) {
	v, err := Compile("none", nil)
	require.NoError(t, err)
	assert.NoError(t, v.Validate("anything"))

	var nilV *Validator
	assert.NoError(t, nilV.Validate(1))
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile("bad", map[string]any{"type": 12})
	assert.Error(t, err)
}

func TestValidateJSON(t *testing.T) {
	v, err := Compile("obj", map[string]any{"type": "object", "required": []string{"steps"}})
	require.NoError(t, err)

	doc, err := v.ValidateJSON([]byte(`{"steps": []}`))
	require.NoError(t, err)
	assert.Contains(t, doc, "steps")

	_, err = v.ValidateJSON([]byte(`{`))
	assert.Error(t, err)
	_, err = v.ValidateJSON([]byte(`{}`))
	assert.Error(t, err)
}
