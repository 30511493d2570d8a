package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"carepay/internal/app"
	"carepay/internal/platform/config"
	"carepay/internal/platform/httpserver"
	"carepay/internal/platform/logger"
	"carepay/pkg/platform/httputil"
)

// main runs the verification worker. SIGTERM stops polling; the batch in hand is
// finished before exit so its messages are not redelivered.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer deps.Close()
	if deps.InProcessQueue() {
		return errors.New("REDIS_URL is required: the worker cannot consume another process's in-memory queue")
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Ready(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	metricsSrv := httpserver.New(cfg.Worker.MetricsAddr, mux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Worker().Run(gctx)
	})
	if cfg.Worker.SweepInterval > 0 {
		sweeper := deps.Sweeper()
		g.Go(func() error { return sweeper.Start(gctx, cfg.Worker.SweepInterval) })
	}
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Worker.ShutdownGrace)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.Info("verification worker running", "queue", cfg.Queue.Name, "metrics_addr", cfg.Worker.MetricsAddr)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("verification worker stopped")
	return nil
}
