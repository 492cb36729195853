package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/toolhost/internal/app"
	"github.com/bobmcallan/toolhost/internal/config"
	"github.com/bobmcallan/toolhost/internal/server"
)

func newServeCmd() *cobra.Command {
	var overrides config.Overrides

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Generate the interface definition and serve the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(overrides)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	bindServeFlags(cmd.Flags(), &overrides)
	return cmd
}

func bindServeFlags(flags *pflag.FlagSet, o *config.Overrides) {
	flags.StringVar(&o.Host, "host", "", "HTTP host (overrides config)")
	flags.IntVarP(&o.Port, "port", "p", 0, "HTTP port (overrides config)")
	flags.StringVar(&o.RPCAddress, "rpc-address", "", "RPC listen address (overrides config)")
}

// serve runs the HTTP and RPC servers until ctx is cancelled or either
// server fails. Registration and generation errors stop it before any
// listener opens.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := setupLogger(cfg)

	logger.Info().
		Str("app", cfg.App.Name).
		Str("http", cfg.Server.Addr()).
		Bool("rpc", cfg.RPC.Enabled).
		Bool("mcp", cfg.MCP.Enabled).
		Str("config_files", fmt.Sprintf("%v", configFiles)).
		Msg("configuration loaded")

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}
	defer application.Close()

	if err := application.WriteSchema(); err != nil {
		logger.Error().Err(err).Msg("failed to write interface definition")
		return err
	}

	srv := server.New(application)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if cfg.RPC.Enabled {
		g.Go(func() error {
			return application.RPCServer.ListenAndServe(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info().
		Str("url", fmt.Sprintf("http://%s", cfg.Server.Addr())).
		Msg("server ready")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
