// Package ops implements the operator control plane: kill-switch,
// panic-guard trigger/reset, and state snapshot/history export.
package ops

import (
	"context"

	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/redis/go-redis/v9"
)

const killSwitchRedisKey = "anchor:kill_switch"

// KillSwitch is the cluster-wide emergency stop. Precedence when
// reading: environment ON > Redis > default OFF.
type KillSwitch struct {
	Config *config.Config
	Redis  redis.UniversalClient
	Store  *store.Store
}

func NewKillSwitch(cfg *config.Config, rdb redis.UniversalClient, s *store.Store) *KillSwitch {
	return &KillSwitch{Config: cfg, Redis: rdb, Store: s}
}

// State returns (enabled, source) where source is "env", "redis" or
// "none". Never errors; a Redis failure is treated as unset.
func (k *KillSwitch) State(ctx context.Context) (bool, string) {
	if k.Config.KillSwitchEnv != nil && *k.Config.KillSwitchEnv {
		return true, "env"
	}
	if k.Redis == nil {
		return false, "none"
	}
	v, err := k.Redis.Get(ctx, killSwitchRedisKey).Result()
	if err != nil {
		return false, "none"
	}
	if v == "1" {
		return true, "redis"
	}
	return false, "none"
}

// SetRedis writes the kill-switch flag to Redis directly, bypassing
// the event/ops_state mirror — used by the panic guard's self-trip.
func (k *KillSwitch) SetRedis(ctx context.Context, enabled bool) error {
	if k.Redis == nil {
		return nil
	}
	val := "0"
	if enabled {
		val = "1"
	}
	return k.Redis.Set(ctx, killSwitchRedisKey, val, 0).Err()
}

// Set writes the flag to Redis, appends a KILL_SWITCH_SET event, and
// mirrors the new value into ops_state.
func (k *KillSwitch) Set(ctx context.Context, enabled bool, actor string) error {
	if err := k.SetRedis(ctx, enabled); err != nil {
		return err
	}
	k.Store.AppendEvent(ctx, "ops-kill-switch", "KILL_SWITCH_SET", 0, map[string]any{
		"enabled": enabled, "actor": actor,
	})
	return k.Store.UpsertOpsState(ctx, "kill_switch", map[string]any{
		"enabled": enabled, "actor": actor,
	})
}
