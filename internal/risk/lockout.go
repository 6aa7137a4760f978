package risk

import (
	"context"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AllowlistDuringLockout is the only command type still runnable while
// the lockout gate is tripped.
var AllowlistDuringLockout = map[string]bool{"NOOP": true}

const (
	lockoutClearedKey = "anchor:risk_lockout_cleared"
	lockoutClearTTL   = time.Hour
)

// Lockout gates command execution once today's realized losses or
// today's MARK_FAILED count cross a configured threshold. The count
// covers every failure of the day, not only an unbroken run, since a
// success in between does not reset it. A manual Redis
// override lets an operator resume trading for up to an hour without
// waiting for the day to roll over.
type Lockout struct {
	Store    *store.Store
	Config   *config.Config
	Redis    redis.UniversalClient
	Log      *logger.Logger
	Drawdown DrawdownSource
}

func NewLockout(s *store.Store, cfg *config.Config, rdb redis.UniversalClient, log *logger.Logger, drawdown DrawdownSource) *Lockout {
	if drawdown == nil {
		drawdown = ZeroDrawdownSource{}
	}
	return &Lockout{Store: s, Config: cfg, Redis: rdb, Log: log, Drawdown: drawdown}
}

// Status is the lockout gate's current verdict.
type Status struct {
	Active bool
	Reason string
	Until  *time.Time
}

// Check reports the current lockout status. Never returns an error to
// the caller; a store failure is logged and treated as not locked out,
// matching the original's fail-open behavior. A Redis failure while
// reading the clear override counts as no override, and the counters
// still decide.
func (l *Lockout) Check(ctx context.Context) Status {
	if l.Config.RiskLockoutDisable {
		return Status{}
	}
	if l.isClearedOverride(ctx) {
		return Status{}
	}

	consecutive, err := l.Store.CountMarkFailedToday(ctx)
	if err != nil {
		l.logError("lockout: count_mark_failed_today", err)
		return Status{}
	}

	lossPct, err := l.Drawdown.TodayLossPct(ctx)
	if err != nil {
		lossPct = 0
	}

	var reasons []string
	if lossPct >= l.Config.RiskLockoutLossPct {
		reasons = append(reasons, "daily_loss_pct")
	}
	if consecutive >= l.Config.RiskLockoutConsecLosses {
		reasons = append(reasons, "consecutive_losses")
	}

	if len(reasons) == 0 {
		return Status{}
	}

	until := time.Now().UTC().Add(time.Duration(l.Config.RiskLockoutMinutes) * time.Minute)
	reason := reasons[0]
	for _, r := range reasons[1:] {
		reason += "; " + r
	}
	return Status{Active: true, Reason: reason, Until: &until}
}

// ClearOverride suspends the lockout gate for one hour regardless of
// the underlying counters, for manual recovery by an operator.
func (l *Lockout) ClearOverride(ctx context.Context) error {
	if l.Redis == nil {
		return nil
	}
	return l.Redis.Set(ctx, lockoutClearedKey, "1", lockoutClearTTL).Err()
}

func (l *Lockout) isClearedOverride(ctx context.Context) bool {
	if l.Redis == nil {
		return false
	}
	v, err := l.Redis.Get(ctx, lockoutClearedKey).Result()
	if err != nil {
		return false
	}
	return v == "1"
}

func (l *Lockout) logError(op string, err error) {
	if l.Log == nil {
		return
	}
	l.Log.Error(op, zap.Error(err))
}

// IsAllowed reports whether cmdType may still run while locked out.
func IsAllowed(cmdType string) bool {
	return AllowlistDuringLockout[cmdType]
}
