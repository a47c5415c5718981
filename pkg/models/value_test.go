package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueKind_CompatibleWith(t *testing.T) {
	testCases := []struct {
		name       string
		source     ValueKind
		target     ValueKind
		compatible bool
	}{
		{
			name:       "identical scalar kinds",
			source:     ValueKindString,
			target:     ValueKindString,
			compatible: true,
		},
		{
			name:       "identical media kinds",
			source:     ValueKindImage,
			target:     ValueKindImage,
			compatible: true,
		},
		{
			name:       "json accepts string",
			source:     ValueKindString,
			target:     ValueKindJSON,
			compatible: true,
		},
		{
			name:       "json accepts media",
			source:     ValueKindVideo,
			target:     ValueKindJSON,
			compatible: true,
		},
		{
			name:       "image flows into generic object",
			source:     ValueKindImage,
			target:     ValueKindObject,
			compatible: true,
		},
		{
			name:       "generic object flows into audio",
			source:     ValueKindObject,
			target:     ValueKindAudio,
			compatible: true,
		},
		{
			name:       "image does not flow into audio",
			source:     ValueKindImage,
			target:     ValueKindAudio,
			compatible: false,
		},
		{
			name:       "string does not flow into number",
			source:     ValueKindString,
			target:     ValueKindNumber,
			compatible: false,
		},
		{
			name:       "json does not flow into string",
			source:     ValueKindJSON,
			target:     ValueKindString,
			compatible: false,
		},
		{
			name:       "number does not flow into image",
			source:     ValueKindNumber,
			target:     ValueKindImage,
			compatible: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.compatible, tc.source.CompatibleWith(tc.target))
		})
	}
}

func TestValueKind_IsMedia(t *testing.T) {
	assert.True(t, ValueKindImage.IsMedia())
	assert.True(t, ValueKindAudio.IsMedia())
	assert.True(t, ValueKindVideo.IsMedia())
	assert.True(t, ValueKindObject.IsMedia())
	assert.False(t, ValueKindString.IsMedia())
	assert.False(t, ValueKindJSON.IsMedia())
}

func TestNodeDescriptor_InputSchema(t *testing.T) {
	descriptor := NodeDescriptor{
		Type:     "test:render",
		Name:     "Render",
		Category: CategoryTypeAction,
		Inputs: []ParameterSpec{
			{Name: "prompt", Kind: ValueKindString, Required: true},
			{Name: "seed", Kind: ValueKindNumber, Default: 42},
			{Name: "reference", Kind: ValueKindImage},
		},
	}

	schema := descriptor.InputSchema()

	assert.Equal(t, "object", schema.Type)
	assert.Len(t, schema.Properties, 3)
	assert.Equal(t, "string", schema.Properties["prompt"].Type)
	assert.Equal(t, "number", schema.Properties["seed"].Type)
	assert.Equal(t, 42, schema.Properties["seed"].Default)

	// Media inputs validate as reference objects
	reference := schema.Properties["reference"]
	assert.Equal(t, "object", reference.Type)
	assert.Equal(t, []string{"id"}, reference.Required)

	// Required-ness is the graph validator's concern, not the schema's
	assert.Empty(t, schema.Required)
}

func TestNodeDescriptor_PortLookup(t *testing.T) {
	descriptor := NodeDescriptor{
		Type: "test:transform",
		Inputs: []ParameterSpec{
			{Name: "value", Kind: ValueKindJSON, Required: true},
		},
		Outputs: []ParameterSpec{
			{Name: "result", Kind: ValueKindJSON},
		},
	}

	require := descriptor.Input("value")
	assert.NotNil(t, require)
	assert.True(t, require.Required)

	assert.Nil(t, descriptor.Input("missing"))
	assert.NotNil(t, descriptor.Output("result"))
	assert.Nil(t, descriptor.Output("value"))
}
