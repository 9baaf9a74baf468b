package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"docprov/internal/config"
	"docprov/internal/docdb"
	"docprov/internal/logging"
	"docprov/internal/metrics"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	var listen string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory document service emulator over HTTP",
		Long: `Run an in-memory document service emulator speaking the REST surface used
by the http backend. Point --endpoint at it to try projects locally.
Metrics are served under /metrics of the emulator unless --metrics-addr is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listener, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving document service emulator on http://%s\n", listener.Addr())

			return serve(cmd.Context(), listener, a.config)
		},
	}

	serveCmd.Flags().StringVar(&listen, "listen", "localhost:8081", "Address the emulator listens on")
	return serveCmd
}

// serve runs the emulator on listener until ctx is done
func serve(ctx context.Context, listener net.Listener, cfg config.Config) error {
	mux := http.NewServeMux()
	mux.Handle("/", docdb.NewHandler(docdb.NewMemoryClient(), cfg.Key))

	if cfg.MetricsAddr == "" {
		mux.Handle("/metrics", metrics.Handler())
	} else {
		stop, err := exposeMetrics(cfg.MetricsAddr)
		if err != nil {
			listener.Close()
			return err
		}
		defer stop()
	}

	server := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info("Serve", "Shutting down")
	case serveErr = <-errCh:
		logging.Error("Serve", serveErr, "Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Serve", "Shutdown: %v", err)
	}

	return serveErr
}

// exposeMetrics serves /metrics on addr until the returned stop is called.
// An empty addr serves nothing.
func exposeMetrics(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	server, err := metrics.Start(addr)
	if err != nil {
		return nil, err
	}
	logging.Info("Metrics", "Metrics available on http://%s/metrics", server.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logging.Warn("Metrics", "Shutdown: %v", err)
		}
	}, nil
}
