package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/interactive.eval/internal/api"
	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/storage"
)

type serveOptions struct {
	listen      string
	datasetRoot string
	dbPath      string
	subset      string
	userKeys    []string
	admin       bool
}

func newServeCmd(a *app) *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the remote evaluation server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.listen, "listen", "", "HTTP listen address (default from config)")
	f.StringVar(&o.datasetRoot, "dataset-root", "", "DAVIS checkout (default from config)")
	f.StringVar(&o.dbPath, "db", "", "results database (default from config)")
	f.StringVar(&o.subset, "subset", dataset.TestDev, "subset to serve")
	f.StringSliceVar(&o.userKeys, "user-key", nil, "accepted user keys (default any)")
	f.BoolVar(&o.admin, "admin", false, "mount the database browser under /debug/")
	return cmd
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// serviceConfig builds the evaluation settings of subset from the config.
func (a *app) serviceConfig(subset string) evaluation.ServiceConfig {
	return evaluation.ServiceConfig{
		Subset:          subset,
		MaxTime:         a.cfg.GetMaxTime(),
		MaxInteractions: a.cfg.GetMaxInteractions(),
		Metric:          a.cfg.GetMetric(),
		TimeThreshold:   a.cfg.GetTimeThreshold(),
		Robot:           a.cfg.RobotParams(),
	}
}

func (a *app) serve(ctx context.Context, o serveOptions) error {
	ds, err := dataset.New(orDefault(o.datasetRoot, a.cfg.GetDatasetRoot()), nil)
	if err != nil {
		return err
	}
	store, err := storage.Open(orDefault(o.dbPath, a.cfg.GetDBPath()))
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := evaluation.NewService(ds, store, a.serviceConfig(o.subset))
	if err != nil {
		return err
	}
	if err := svc.CheckFiles(ctx); err != nil {
		return err
	}

	var opts []api.Option
	if len(o.userKeys) > 0 {
		opts = append(opts, api.WithUserKeys(o.userKeys...))
	}
	if o.admin {
		opts = append(opts, api.WithAdmin())
	}
	mux, err := api.NewServer(svc, store, opts...).ServeMux()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              orDefault(o.listen, a.cfg.GetListenAddr()),
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		monitoring.Opsf("serving %s on %s", o.subset, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Opsf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Opsf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Opsf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Opsf("graceful shutdown complete")
	return nil
}
