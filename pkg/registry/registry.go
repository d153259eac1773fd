// Package registry maps task types to handler factories, including factories
// loaded from compiled plugins.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"

	"github.com/planforge/planforge/pkg/protocol"
)

type Registry struct {
	logger           *slog.Logger
	handlerFactories map[string]protocol.HandlerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log,
		handlerFactories: make(map[string]protocol.HandlerFactory),
	}
}

func (r *Registry) LoadHandlerPlugins(pluginsPath string) ([]protocol.HandlerFactory, error) {
	return loadPlugin[protocol.HandlerFactory](r.logger, pluginsPath, "Handler")
}

func (r *Registry) RegisterHandler(handlerFactory protocol.HandlerFactory) {
	r.handlerFactories[handlerFactory.ID()] = handlerFactory
}

// CreateHandler instantiates a handler for the given task type. The type must
// have been registered, natively or via plugin.
func (r *Registry) CreateHandler(taskType string, config map[string]any) (protocol.Handler, error) {
	factory, ok := r.handlerFactories[taskType]
	if !ok {
		return nil, fmt.Errorf("task type '%s' not registered", taskType)
	}

	return factory.Create(config)
}

// IsHandlerRegistered reports whether a factory exists for the task type.
func (r *Registry) IsHandlerRegistered(taskType string) bool {
	_, exists := r.handlerFactories[taskType]

	return exists
}

// Factories returns all registered factories sorted by ID.
func (r *Registry) Factories() []protocol.HandlerFactory {
	factories := make([]protocol.HandlerFactory, 0, len(r.handlerFactories))
	for _, factory := range r.handlerFactories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
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
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s is missing symbol %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s symbol %s has unexpected type", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded handler plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
