// Package wiring builds the shared dependency graph (store, registry,
// policies, risk, ops control plane, eventlog sinks) that both the
// worker process and the submission API are assembled from.
package wiring

import (
	"fmt"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/action"
	"github.com/linkmeAman/universal-middleware/internal/action/binancefutures"
	"github.com/linkmeAman/universal-middleware/internal/database"
	"github.com/linkmeAman/universal-middleware/internal/database/postgres"
	"github.com/linkmeAman/universal-middleware/internal/eventlog"
	"github.com/linkmeAman/universal-middleware/internal/ops"
	"github.com/linkmeAman/universal-middleware/internal/policy"
	"github.com/linkmeAman/universal-middleware/internal/risk"
	"github.com/linkmeAman/universal-middleware/internal/runner"
	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"github.com/linkmeAman/universal-middleware/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// Graph holds every component a binary needs, already wired together.
type Graph struct {
	DB          *postgres.DB
	Redis       redis.UniversalClient
	Store       *store.Store
	Registry    *action.Registry
	Policies    *policy.Chain
	Lockout     *risk.Lockout
	HardLimits  *risk.HardLimits
	KillSwitch  *ops.KillSwitch
	PanicGuard  *ops.PanicGuard
	Notifier    *eventlog.Notifier
	KafkaSink   *eventlog.KafkaSink
	RateLimiter *policy.SubmissionRateLimiter // nil when Redis or the limit itself is unconfigured
}

// Build connects to Postgres and (optionally) Redis, and wires every
// domain component against them. Callers are responsible for closing
// DB/Redis/KafkaSink on shutdown.
func Build(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Graph, error) {
	db, err := postgres.InitFromConfig(cfg, log, m)
	if err != nil {
		return nil, fmt.Errorf("wiring: connect database: %w", err)
	}

	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("wiring: parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	s := store.New(database.DB(db), log)

	registry := action.NewRegistry()
	var production action.ProductionQuoter
	if cfg.QuoteExecutionMode == "binance_testnet" {
		client, err := binancefutures.New(binancefutures.Config{
			Base: cfg.BinanceBase, APIKey: cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret, RecvWindow: cfg.BinanceRecvWindow,
		})
		if err != nil {
			return nil, fmt.Errorf("wiring: binance testnet client: %w", err)
		}
		production = binancefutures.NewQuoter(client)
	}
	registry.Init(production)

	policies := policy.NewChain(
		&policy.IdempotencyPolicy{Store: s},
		&policy.RateLimitPolicy{Store: s, LimitFor: cfg.RateLimitFor},
		&policy.CooldownAfterFailPolicy{Store: s, CooldownSeconds: cfg.PolicyFailCooldownSeconds},
		&policy.QuoteNotionalPolicy{MaxNotional: cfg.PolicyQuoteMaxNotional},
	)

	var drawdown risk.DrawdownSource = risk.ZeroDrawdownSource{}
	lockout := risk.NewLockout(s, cfg, rdb, log, drawdown)
	hardLimits := risk.NewHardLimits(s, cfg, drawdown)

	killSwitch := ops.NewKillSwitch(cfg, rdb, s)
	panicGuard := ops.NewPanicGuard(s, cfg, killSwitch)
	notifier := eventlog.NewNotifier(cfg, log)

	kafkaSink, err := eventlog.NewKafkaSink(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("wiring: kafka sink: %w", err)
	}

	var rateLimiter *policy.SubmissionRateLimiter
	if rdb != nil && cfg.SubmissionRateLimitMax > 0 {
		window := time.Duration(cfg.SubmissionRateLimitWindowSec) * time.Second
		rateLimiter = policy.NewSubmissionRateLimiter(rdb, cfg.SubmissionRateLimitMax, window)
	}

	return &Graph{
		DB: db, Redis: rdb, Store: s, Registry: registry, Policies: policies,
		Lockout: lockout, HardLimits: hardLimits, KillSwitch: killSwitch,
		PanicGuard: panicGuard, Notifier: notifier, KafkaSink: kafkaSink,
		RateLimiter: rateLimiter,
	}, nil
}

// NewRunner builds a runner bound to this graph for one worker identity.
func (g *Graph) NewRunner(workerID string, log *logger.Logger) *runner.Runner {
	return runner.New(g.Store, g.Registry, g.Policies, g.Lockout, g.HardLimits, workerID, log)
}

// Close releases the database and Redis connections.
func (g *Graph) Close() {
	if g.DB != nil {
		g.DB.Close()
	}
	if g.Redis != nil {
		_ = g.Redis.Close()
	}
	if g.KafkaSink != nil {
		_ = g.KafkaSink.Close()
	}
}
