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

	adapthttp "hydration/internal/adapter/http"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			if addr == "" {
				addr = b.cfg.HTTP.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The series endpoints read these publications; the window is
			// reopened at every local midnight.
			followed := make(chan struct{})
			go func() {
				defer close(followed)
				b.water.FollowSeries(ctx, time.After)
			}()
			defer func() {
				stop()
				<-followed
			}()

			h := adapthttp.New(b.water, b.cfg.HTTP.WebDir,
				adapthttp.WithLogger(b.logger.With("component", "http")),
				adapthttp.WithPasswordHash(b.cfg.HTTP.PasswordHash),
				adapthttp.WithAllowedOrigins(b.cfg.HTTP.AllowedOrigins...),
			).Handler()

			srv := &http.Server{
				Addr:              addr,
				Handler:           h,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(_ net.Listener) context.Context { return ctx },
			}

			errc := make(chan error, 1)
			go func() {
				b.logger.Info("listening", "addr", addr, "repository", b.cfg.Repository.Type)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			b.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
