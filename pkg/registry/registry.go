// Package registry maps node and trigger type identifiers onto their factories.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// ErrNotRegistered is wrapped by lookups for unknown type identifiers.
var ErrNotRegistered = fmt.Errorf("type not registered")

type Registry struct {
	logger           *slog.Logger
	nodeFactories    map[string]protocol.NodeFactory
	triggerFactories map[string]protocol.TriggerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log,
		nodeFactories:    make(map[string]protocol.NodeFactory),
		triggerFactories: make(map[string]protocol.TriggerFactory),
	}
}

func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

func (r *Registry) RegisterTrigger(factory protocol.TriggerFactory) {
	r.triggerFactories[factory.ID()] = factory
}

// CreateNode instantiates a node of the given type with its static config.
func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.Node, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("node %w: %q", ErrNotRegistered, nodeType)
	}

	return factory.Create(ctx, id, config)
}

func (r *Registry) CreateTrigger(triggerID string, config map[string]any) (protocol.Trigger, error) {
	factory, ok := r.triggerFactories[triggerID]
	if !ok {
		return nil, fmt.Errorf("trigger %w: %q", ErrNotRegistered, triggerID)
	}

	return factory.Create(config, r.logger)
}

// NodeDescriptor returns the static descriptor for a node type.
func (r *Registry) NodeDescriptor(nodeType string) (models.NodeDescriptor, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return models.NodeDescriptor{}, fmt.Errorf("node %w: %q", ErrNotRegistered, nodeType)
	}

	return factory.Descriptor(), nil
}

// HealthCheck reports whether the registry holds a usable node catalog.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.nodeFactories) == 0 {
		return "No node types registered", false
	}

	return fmt.Sprintf("%d node types registered", len(r.nodeFactories)), true
}

// Descriptors lists all registered node descriptors sorted by type, for the
// editor and validation surfaces.
func (r *Registry) Descriptors() []models.NodeDescriptor {
	descriptors := make([]models.NodeDescriptor, 0, len(r.nodeFactories))
	for _, factory := range r.nodeFactories {
		descriptors = append(descriptors, factory.Descriptor())
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Type < descriptors[j].Type
	})

	return descriptors
}

// LoadNodePlugins loads node factories from .so files under pluginsPath/nodes.
func (r *Registry) LoadNodePlugins(pluginsPath string) ([]protocol.NodeFactory, error) {
	return loadPlugin[protocol.NodeFactory](r.logger, pluginsPath, "Node")
}

// LoadTriggerPlugins loads trigger factories from .so files under pluginsPath/triggers.
func (r *Registry) LoadTriggerPlugins(pluginsPath string) ([]protocol.TriggerFactory, error) {
	return loadPlugin[protocol.TriggerFactory](r.logger, pluginsPath, "Trigger")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("lookup %s in %s: %w", symbolName, p, err)
		}

		cast, ok := symbol.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has wrong type", p, symbolName)
		}

		pluginList = append(pluginList, cast)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
