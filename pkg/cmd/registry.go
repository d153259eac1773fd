// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/planforge/planforge/pkg/handlers/docfetch"
	loghandler "github.com/planforge/planforge/pkg/handlers/log"
	"github.com/planforge/planforge/pkg/handlers/scaffold"
	"github.com/planforge/planforge/pkg/registry"
)

func registerHandlerPlugins(reg *registry.Registry, pluginsPath string) {
	handlerPlugins, err := reg.LoadHandlerPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range handlerPlugins {
		reg.RegisterHandler(plugin)
	}
}

func registerNativeHandlers(reg *registry.Registry) {
	reg.RegisterHandler(scaffold.NewScaffoldHandlerFactory())
	reg.RegisterHandler(loghandler.NewLogHandlerFactory())
	reg.RegisterHandler(docfetch.NewDocFetchHandlerFactory())
}

func NewRegistry(log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		registerHandlerPlugins(reg, pluginsPath)
	}

	registerNativeHandlers(reg)

	return reg
}
