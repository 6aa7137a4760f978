package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/api"
	"github.com/linkmeAman/universal-middleware/internal/wiring"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"github.com/linkmeAman/universal-middleware/pkg/metrics"
	"github.com/linkmeAman/universal-middleware/pkg/tracing"
	"go.uber.org/zap"
)

// checkExecModeAgreement aborts startup when both EXEC_MODE and
// NEXT_PUBLIC_EXEC_MODE are set but disagree — the two are meant to
// mirror each other across the backend and any browser-facing client.
func checkExecModeAgreement(cfg *config.Config) error {
	public, ok := os.LookupEnv("NEXT_PUBLIC_EXEC_MODE")
	if !ok || public == "" {
		return nil
	}
	if !strings.EqualFold(public, cfg.ExecMode) {
		return fmt.Errorf("EXEC_MODE=%q and NEXT_PUBLIC_EXEC_MODE=%q disagree", cfg.ExecMode, public)
	}
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := checkExecModeAgreement(cfg); err != nil {
		return fmt.Errorf("startup strict-check failed: %w", err)
	}

	log, err := logger.New("command-service", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	m := metrics.New("command_service")

	if cfg.TracingDisable {
		log.Info("tracing is disabled, skipping initialization")
	} else {
		tracer, terr := tracing.New(tracing.Config{
			ServiceName:    "command-service",
			ServiceVersion: "1.0.0",
			Environment:    cfg.ExecMode,
			Endpoint:       cfg.TracingEndpoint,
		}, log)
		if terr != nil {
			return fmt.Errorf("failed to initialize tracer: %w", terr)
		}
		defer tracer.Shutdown(context.Background())
	}

	var graph *wiring.Graph
	maxRetries, retryInterval := 5, 2*time.Second
	for i := 0; i < maxRetries; i++ {
		graph, err = wiring.Build(cfg, log, m)
		if err == nil {
			break
		}
		if i < maxRetries-1 {
			log.Warn("failed to connect to dependencies, retrying...", zap.Int("attempt", i+1), zap.Error(err))
			time.Sleep(retryInterval)
			continue
		}
		return fmt.Errorf("failed to build dependency graph after %d attempts: %w", maxRetries, err)
	}
	defer graph.Close()

	if err := graph.Store.CheckSchema(context.Background()); err != nil {
		return fmt.Errorf("startup strict-check failed: %w", err)
	}

	apiLayer := api.New(graph.Store, graph.Registry, graph.KillSwitch, graph.PanicGuard, graph.Lockout, graph.HardLimits, graph.RateLimiter, cfg, log)
	router := apiLayer.NewRouter(m)

	addr := cfg.HTTPAddr
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutting down...")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}

	return nil
}
