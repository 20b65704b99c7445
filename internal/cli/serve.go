package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/tspbatch/internal/api"
	"github.com/shaiso/tspbatch/internal/repo"
)

const (
	defaultServeAddr     = ":8080"
	serveShutdownTimeout = 10 * time.Second
)

// NewServeCmd создаёт команду serve: HTTP API отчётов плюс /healthz и /metrics.
func NewServeCmd(appFn AppFunc) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve saved reports over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") && app.Config.Metrics.Addr != "" {
				addr = app.Config.Metrics.Addr
			}

			ctx := cmd.Context()

			pool, err := repo.NewPool(ctx, app.Config.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repo.EnsureSchema(ctx, pool); err != nil {
				return err
			}

			handler := api.NewHandler(api.Config{
				Reports: repo.NewReportRepo(pool),
				Logger:  app.Logger,
			})

			mux := newOpsMux(newRegistry())
			handler.RegisterRoutes(mux)

			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				app.Logger.Info("listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			app.Logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "Listen address")

	return cmd
}
