package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/datastar/internal/app"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server with the demo application.

The server stops on SIGINT or SIGTERM. Open event streams are cancelled and
in-flight requests get server.shutdown_timeout to finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := flags.logger()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					logger.Error("close app", "error", err)
				}
			}()

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           a.Handler,
				ReadHeaderTimeout: 10 * time.Second,
				// Request contexts end with ctx so streams stop on shutdown.
				BaseContext: func(net.Listener) context.Context { return ctx },
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("listening", "addr", cfg.Server.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				logger.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.addr)")
	return cmd
}
