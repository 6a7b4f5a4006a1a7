package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"go-midipreset/dispatch"
	"go-midipreset/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Serves presets, ports and metrics over HTTP. Send requests are accepted immediately and dispatched in the background.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Serve.Addr
			}
			d, err := a.dispatcher(dispatch.Hooks{})
			if err != nil {
				return err
			}

			s := server.New(a.store, a.ports, d,
				server.WithLogger(a.logger),
				server.WithGatherer(a.registry),
				server.WithMaxInflight(a.cfg.Serve.MaxInflight),
			)
			srv := &http.Server{
				Addr:              addr,
				Handler:           s.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", addr)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				s.Close()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err

			case <-cmd.Context().Done():
				a.logger.Info("shutting down")

				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					a.logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
					if err := srv.Close(); err != nil {
						a.logger.Error("close server", "err", err)
					}
				}
				s.Close()
				a.logger.Info("server stopped")
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
