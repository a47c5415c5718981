// Package cmd provides common initialization functions for the strand
// binaries.
package cmd

import (
	"log/slog"

	"github.com/strandhq/strand/pkg/registry"
)

// NewRegistry builds the node registry with every built-in factory plus any
// .so plugins found under pluginsPath. An empty pluginsPath skips plugin
// loading.
func NewRegistry(logger *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	if pluginsPath != "" {
		registerNodePlugins(reg, pluginsPath)
	}

	return reg
}

func registerNodePlugins(reg *registry.Registry, pluginsPath string) {
	nodePlugins, err := reg.LoadNodePlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range nodePlugins {
		reg.RegisterNode(plugin)
	}
}
