package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"carepay/internal/app"
	"carepay/internal/blob"
	httpapi "carepay/internal/http"
	identityhandler "carepay/internal/identity/handler"
	jwttoken "carepay/internal/jwt_token"
	"carepay/internal/platform/config"
	"carepay/internal/platform/httpserver"
	"carepay/internal/platform/logger"
)

// main wires dependencies and runs the API server. With the in-process queue it also
// runs the verification worker, since no other process can consume that queue.
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

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Logger:     log,
		Identity:   identityhandler.New(deps.IdentityService(), log),
		Blobs:      blob.NewHandler(deps.Blobs, deps.Signer, log),
		Validator:  jwttoken.NewMiddlewareValidator(jwtService),
		Tenants:    deps.TenantService,
		Ready:      deps.Ready,
		Gatherer:   prometheus.DefaultGatherer,
		TrustProxy: cfg.Server.TrustProxy,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting carepay api", "addr", cfg.Server.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Worker.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if deps.InProcessQueue() {
		w := deps.Worker()
		g.Go(func() error { return w.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("carepay api stopped")
	return nil
}
