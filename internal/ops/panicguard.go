package ops

import (
	"context"
	"errors"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/config"
)

// ErrForbiddenInProd is returned when a destructive/diagnostic ops
// action is attempted while EXEC_MODE is prod/production.
var ErrForbiddenInProd = errors.New("forbidden in production mode")

// ErrCooldownActive is returned when Trigger is called again before
// PANIC_GUARD_COOLDOWN_SEC has elapsed since the last trip.
var ErrCooldownActive = errors.New("panic guard cooldown active")

// PanicGuard exposes the manual trigger/reset controls for the same
// kill-switch the worker loop trips automatically.
type PanicGuard struct {
	Store      *store.Store
	Config     *config.Config
	KillSwitch *KillSwitch
}

func NewPanicGuard(s *store.Store, cfg *config.Config, ks *KillSwitch) *PanicGuard {
	return &PanicGuard{Store: s, Config: cfg, KillSwitch: ks}
}

// Trigger manually trips the kill switch, subject to the production
// lock and the cooldown since the last trip (manual or automatic).
func (p *PanicGuard) Trigger(ctx context.Context, actor string) error {
	if p.Config.IsProd() {
		return ErrForbiddenInProd
	}

	if entry, err := p.Store.OpsStateGet(ctx, "worker_panic"); err == nil && entry != nil {
		if lastStr, ok := entry.Value["last_panic_at"].(string); ok {
			if last, err := time.Parse(time.RFC3339, lastStr); err == nil {
				if time.Since(last) < time.Duration(p.Config.PanicGuardCooldownSec)*time.Second {
					return ErrCooldownActive
				}
			}
		}
	}

	if err := p.KillSwitch.SetRedis(ctx, true); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := p.Store.UpsertOpsState(ctx, "worker_panic", map[string]any{
		"last_panic_at": now.Format(time.RFC3339), "triggered_by": actor, "source": "manual",
	}); err != nil {
		return err
	}
	p.Store.AppendEvent(ctx, "ops-worker", "PANIC_GUARD_TRIGGERED", 0, map[string]any{"actor": actor})
	return nil
}

// Reset clears the kill switch and the worker_panic state, re-arming
// the cooldown.
func (p *PanicGuard) Reset(ctx context.Context, actor string) error {
	if p.Config.IsProd() {
		return ErrForbiddenInProd
	}
	if err := p.KillSwitch.SetRedis(ctx, false); err != nil {
		return err
	}
	if err := p.Store.UpsertOpsState(ctx, "worker_panic", map[string]any{"cleared": true, "cleared_by": actor}); err != nil {
		return err
	}
	p.Store.AppendEvent(ctx, "ops-worker", "PANIC_GUARD_RESET", 0, map[string]any{"actor": actor})
	return nil
}

// CooldownRemaining reports seconds left before Trigger may be called
// again, or 0 if it is available now.
func (p *PanicGuard) CooldownRemaining(ctx context.Context) int {
	entry, err := p.Store.OpsStateGet(ctx, "worker_panic")
	if err != nil || entry == nil {
		return 0
	}
	lastStr, ok := entry.Value["last_panic_at"].(string)
	if !ok {
		return 0
	}
	last, err := time.Parse(time.RFC3339, lastStr)
	if err != nil {
		return 0
	}
	remaining := time.Duration(p.Config.PanicGuardCooldownSec)*time.Second - time.Since(last)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds())
}
