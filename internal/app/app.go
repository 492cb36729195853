// Package app wires the served application, its tool table and every
// surface that exposes it.
package app

import (
	"fmt"
	"sync"

	"go.uber.org/dig"

	"github.com/bobmcallan/toolhost/internal/adapter/httpapi"
	"github.com/bobmcallan/toolhost/internal/adapter/rpc"
	"github.com/bobmcallan/toolhost/internal/apps"
	"github.com/bobmcallan/toolhost/internal/backend"
	"github.com/bobmcallan/toolhost/internal/common"
	"github.com/bobmcallan/toolhost/internal/config"
	"github.com/bobmcallan/toolhost/internal/dispatch"
	"github.com/bobmcallan/toolhost/internal/handlers"
	"github.com/bobmcallan/toolhost/internal/mcp"
	"github.com/bobmcallan/toolhost/internal/schema"
	"github.com/bobmcallan/toolhost/internal/tool"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Instance apps.App
	Specs    []tool.Spec
	Document *schema.Document
	Table    *dispatch.Table

	// HTTP handlers
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler
	SchemaHandler  *handlers.SchemaHandler
	ToolsHandler   *handlers.ToolsHandler
	ToolHandler    *httpapi.Handler
	MCPHandler     *mcp.Handler

	RPCServer *rpc.Server

	renderOnce sync.Once
	rendered   []byte
}

// New builds every component from cfg. Registration and generation
// problems surface here, before anything listens.
func New(cfg *config.Config, logger *common.Logger) (*App, error) {
	d := dig.New()

	provide := []any{
		func() *config.Config { return cfg },
		func() *common.Logger { return logger },
		newBackend,
		newInstance,
		newSpecs,
		newDocument,
		newTable,
		newRPCServer,
		newMCPHandler,
	}
	for _, p := range provide {
		if err := d.Provide(p); err != nil {
			return nil, fmt.Errorf("wiring %s: %w", cfg.App.Name, err)
		}
	}

	var a *App
	err := d.Invoke(func(
		instance apps.App,
		specs []tool.Spec,
		doc *schema.Document,
		table *dispatch.Table,
		rpcServer *rpc.Server,
		mcpHandler *mcp.Handler,
	) {
		a = &App{
			Config:    cfg,
			Logger:    logger,
			Instance:  instance,
			Specs:     specs,
			Document:  doc,
			Table:     table,
			RPCServer: rpcServer,
		}
		if cfg.MCP.Enabled {
			a.MCPHandler = mcpHandler
		}
	})
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", cfg.App.Name, dig.RootCause(err))
	}

	a.initHandlers()

	logger.Info().
		Str("app", cfg.App.Name).
		Int("tools", a.Table.Len()).
		Str("fingerprint", a.Table.Fingerprint()).
		Msg("application initialization complete")

	return a, nil
}

func newBackend(cfg *config.Config) apps.Backend {
	return backend.NewClient(backend.Options{
		URL:             cfg.Backend.URL,
		CompletionModel: cfg.Backend.CompletionModel,
		EmbeddingModel:  cfg.Backend.EmbeddingModel,
		Temperature:     cfg.Backend.Temperature,
		MaxTokens:       cfg.Backend.MaxTokens,
		TopP:            cfg.Backend.TopP,
		Timeout:         cfg.Backend.GetTimeout(),
	})
}

func newInstance(cfg *config.Config, b apps.Backend) (apps.App, error) {
	return apps.New(cfg.App.Name, b)
}

func newSpecs(instance apps.App) ([]tool.Spec, error) {
	return apps.Specs(instance)
}

func newDocument(cfg *config.Config, specs []tool.Spec) (*schema.Document, error) {
	return schema.Build(specs, schema.Options{
		Package: cfg.Schema.Package,
		Service: cfg.Schema.Service,
	})
}

func newTable(cfg *config.Config, logger *common.Logger, specs []tool.Spec) (*dispatch.Table, error) {
	return dispatch.Build(specs, dispatch.Options{
		MaxConcurrent: cfg.Dispatch.MaxConcurrent,
		CallTimeout:   cfg.Dispatch.GetCallTimeout(),
		Logger:        logger,
	})
}

func newRPCServer(cfg *config.Config, logger *common.Logger, table *dispatch.Table) *rpc.Server {
	return rpc.NewServer(table, rpc.Options{
		Network:         cfg.RPC.Network,
		Address:         cfg.RPC.Address,
		Package:         cfg.Schema.Package,
		Service:         cfg.Schema.Service,
		ReadTimeout:     cfg.RPC.GetReadTimeout(),
		WriteTimeout:    cfg.RPC.GetWriteTimeout(),
		MaxRequestBytes: cfg.RPC.MaxRequestBytes,
		Logger:          logger,
	})
}

func newMCPHandler(cfg *config.Config, logger *common.Logger, table *dispatch.Table) *mcp.Handler {
	return mcp.NewHandler(cfg.App.Name, table, logger)
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	a.HealthHandler = handlers.NewHealthHandler(a.Logger, a.Config.App.Name, a.Table.Len())
	a.VersionHandler = handlers.NewVersionHandler(a.Logger)
	a.SchemaHandler = handlers.NewSchemaHandler(a.Schema())
	a.ToolsHandler = handlers.NewToolsHandler(a.Specs)
	a.ToolHandler = httpapi.New(a.Table, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Schema returns the rendered interface definition document.
func (a *App) Schema() []byte {
	a.renderOnce.Do(func() {
		a.rendered = a.Document.Render()
	})
	return a.rendered
}

// WriteSchema writes the document to the configured output path. An
// empty path skips writing.
func (a *App) WriteSchema() error {
	path := a.Config.Schema.Output
	if path == "" {
		return nil
	}
	if err := schema.WriteFile(path, a.Schema()); err != nil {
		return err
	}
	a.Logger.Info().
		Str("path", path).
		Int("methods", len(a.Document.Methods)).
		Int("messages", len(a.Document.Messages)).
		Msg("interface definition written")
	return nil
}

// Close closes all application resources.
func (a *App) Close() error {
	return nil
}
