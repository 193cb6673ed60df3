package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentconductor/config"
	"github.com/hupe1980/agentconductor/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		addr       string
		agentsFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API until SIGINT or SIGTERM.

Routes: POST /create-agent, POST /add-tool, POST /start-conversation,
GET /agents, GET /tools, GET /conversations, GET /conversations/{id},
GET /health and GET /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, agentsFile, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&agentsFile, "agents", "", "YAML file of agents to register at startup (overrides agents_file)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, agentsFile string, logOut io.Writer) error {
	a, err := newApp(ctx, cfg, appOptions{LogOutput: logOut, Metrics: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("shutdown.close", "error", err)
		}
	}()

	if err := a.seed(agentsFile); err != nil {
		return err
	}

	srv := a.conductor.Server(func(o *server.Options) {
		o.RunTimeout = cfg.Server.RunTimeout
		o.MaxTurnsLimit = cfg.Server.MaxTurnsLimit
		o.MaxBodyBytes = cfg.Server.MaxBodyBytes
		o.ReadTimeout = cfg.Server.ReadTimeout
		o.WriteTimeout = cfg.Server.WriteTimeout
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown.signal")
		}
		return nil
	})

	return g.Wait()
}
