// Command worker runs N concurrent drain loops against the shared
// commands queue, applying the policy and risk guardrails before each
// claimed command reaches its handler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/linkmeAman/universal-middleware/internal/worker"
	"github.com/linkmeAman/universal-middleware/internal/wiring"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"github.com/linkmeAman/universal-middleware/pkg/metrics"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New("worker", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	m := metrics.New("anchor_worker")

	graph, err := wiring.Build(cfg, log, m)
	if err != nil {
		return fmt.Errorf("build wiring: %w", err)
	}
	defer graph.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		r := graph.NewRunner(workerID, log)
		loop := worker.NewLoop(r, graph.Store, cfg, graph.KillSwitch, graph.Notifier, workerID, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx)
		}()
	}

	log.Info("worker pool started", zap.Int("concurrency", concurrency))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining worker pool")
	cancel()
	wg.Wait()
	return nil
}
