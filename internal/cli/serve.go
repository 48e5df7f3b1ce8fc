package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/benchrun/internal/api"
)

func serveCmd(load loader) *cobra.Command {
	var addr string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run benchmarks on request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			a.logger.Info("benchrun: starting",
				"listen_addr", addr,
				"db_path", a.cfg.DBPath,
				"catalog", a.cfg.CatalogPath,
				"groups", a.catalog.GroupCount(),
			)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.engine.Recover(ctx); err != nil {
				return err
			}

			srv := api.NewServer(addr, api.Deps{
				Store:     a.store,
				Catalog:   a.catalog,
				Launchers: a.launchers,
				Engine:    a.engine,
				Actions:   a.actions,
				Feed:      a.feed,
			}, a.logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.engine.Run(gctx) })
			g.Go(func() error { return srv.Run(gctx) })
			return g.Wait()
		},
	}

	c.Flags().StringVar(&addr, "addr", "", "listen address (env BENCHRUN_LISTEN_ADDR)")
	return c
}

// runEngine runs the engine's main loop until the returned stop is called.
func runEngine(ctx context.Context, a *app) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.engine.Run(ctx); err != nil {
			a.logger.Error("engine stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
