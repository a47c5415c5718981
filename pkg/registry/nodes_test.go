package registry

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/models"
)

func TestRegisterDefaultNodes(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes()

	expected := []string{
		"delay",
		"httprequest",
		"log",
		"merge",
		"predict",
		"render",
		"transform",
		models.NodeTypeTriggerEmail,
		models.NodeTypeTriggerManual,
		models.NodeTypeTriggerQueue,
		models.NodeTypeTriggerSchedule,
		models.NodeTypeTriggerWebhook,
	}

	descriptors := registry.Descriptors()
	require.Len(t, descriptors, len(expected))

	types := make([]string, len(descriptors))
	for i, descriptor := range descriptors {
		types[i] = descriptor.Type
	}

	assert.ElementsMatch(t, expected, types)
}

func TestDefaultNodes_TriggerCategory(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes()

	for _, descriptor := range registry.Descriptors() {
		if strings.HasPrefix(descriptor.Type, "trigger:") {
			assert.Equal(t, models.CategoryTypeTrigger, descriptor.Category, descriptor.Type)
		} else {
			assert.Equal(t, models.CategoryTypeAction, descriptor.Category, descriptor.Type)
		}
	}
}

func TestDefaultNodes_DurableFlags(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes()

	durable := map[string]bool{"delay": true, "render": true, "predict": true}

	for _, descriptor := range registry.Descriptors() {
		assert.Equal(t, durable[descriptor.Type], descriptor.Durable, descriptor.Type)
	}
}

func TestCreateDefaultNode(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes()

	node, err := registry.CreateNode(context.Background(), "httprequest", "fetch", map[string]any{
		"url":    "https://api.example.com/items",
		"method": "GET",
	})
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "httprequest", node.Descriptor().Type)

	_, err = registry.CreateNode(context.Background(), "httprequest", "fetch", map[string]any{
		"method": "TELEPORT",
	})
	require.Error(t, err)
}
