// Package worker runs the single-goroutine drain loop: claim, gate on
// the kill switch, run one command through the runner, sleep, repeat.
// A sliding-window panic guard trips the kill switch if the loop itself
// starts throwing.
package worker

import (
	"container/list"
	"context"
	"fmt"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/eventlog"
	"github.com/linkmeAman/universal-middleware/internal/ops"
	"github.com/linkmeAman/universal-middleware/internal/runner"
	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"go.uber.org/zap"
)

const heartbeatCommandID = "anchor:worker_heartbeat"

// Loop drives one worker drain loop. Not safe to Run concurrently from
// multiple goroutines against the same Loop value; give each goroutine
// its own Loop, as cmd/worker does for WORKER_CONCURRENCY > 1.
type Loop struct {
	Runner   *runner.Runner
	Store    *store.Store
	Config   *config.Config
	KillSwitch *ops.KillSwitch
	Notify   *eventlog.Notifier
	WorkerID string
	Log      *logger.Logger

	lastHeartbeat        time.Time
	lastPendingCheck     time.Time
	killSwitchWrittenIDs map[string]struct{}
	panicTimestamps      *list.List
}

func NewLoop(r *runner.Runner, s *store.Store, cfg *config.Config, killSwitch *ops.KillSwitch, notify *eventlog.Notifier, workerID string, log *logger.Logger) *Loop {
	return &Loop{
		Runner:               r,
		Store:                s,
		Config:               cfg,
		KillSwitch:           killSwitch,
		Notify:               notify,
		WorkerID:             workerID,
		Log:                  log,
		killSwitchWrittenIDs: map[string]struct{}{},
		panicTimestamps:      list.New(),
	}
}

// Run blocks until ctx is done, draining the queue one command at a
// time.
func (l *Loop) Run(ctx context.Context) {
	l.Log.Info("worker loop started", zap.String("worker_id", l.WorkerID))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		l.tick(ctx)
	}
}

func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			l.onPanic(ctx, rec)
		}
	}()

	if l.Config.WorkerInjectPanic {
		panic("INJECTED_PANIC_FOR_E2E")
	}

	l.maybeHeartbeat(ctx)

	if l.killSwitchActive(ctx) {
		l.maybeAnnounceKillSwitch(ctx)
		sleep(ctx, time.Second)
		return
	}

	result := l.Runner.RunOne(ctx)
	if result == nil {
		sleep(ctx, time.Duration(l.Config.WorkerPollIntervalSec)*time.Second)
		return
	}
	l.Log.Info("command drained",
		zap.String("id", result.ID),
		zap.String("type", result.Type),
		zap.String("final_status", result.FinalStatus),
	)
}

func (l *Loop) maybeHeartbeat(ctx context.Context) {
	interval := time.Duration(l.Config.WorkerHeartbeatSeconds) * time.Second
	if interval <= 0 || time.Since(l.lastHeartbeat) < interval {
		return
	}
	now := time.Now().UTC()
	l.Store.AppendEvent(ctx, heartbeatCommandID, "WORKER_HEARTBEAT", 0, map[string]any{
		"worker": l.WorkerID, "reason": "loop",
	})
	if err := l.Store.UpsertOpsState(ctx, "worker_heartbeat", map[string]any{
		"last_heartbeat_at": now.Format(time.RFC3339),
		"source":            "worker",
	}); err != nil {
		l.Log.Error("worker_heartbeat state_store failed", zap.Error(err))
	}
	l.lastHeartbeat = now
}

func (l *Loop) killSwitchActive(ctx context.Context) bool {
	enabled, _ := l.KillSwitch.State(ctx)
	return enabled
}

func (l *Loop) maybeAnnounceKillSwitch(ctx context.Context) {
	interval := time.Duration(l.Config.PendingCheckIntervalSec) * time.Second
	var pendingID string
	if interval <= 0 || time.Since(l.lastPendingCheck) >= interval {
		pendingID, _ = l.Store.OldestPendingID(ctx)
		l.lastPendingCheck = time.Now()
	}
	if pendingID == "" {
		return
	}
	if _, seen := l.killSwitchWrittenIDs[pendingID]; seen {
		return
	}
	_, source := l.KillSwitch.State(ctx)
	l.Store.AppendEvent(ctx, pendingID, "KILL_SWITCH_ON", 0, map[string]any{
		"reason": "kill_switch", "source": source,
	})
	l.killSwitchWrittenIDs[pendingID] = struct{}{}
}

func (l *Loop) onPanic(ctx context.Context, rec any) {
	l.Log.Error("worker loop panic", zap.Any("recovered", rec))

	now := time.Now()
	l.panicTimestamps.PushBack(now)
	window := time.Duration(l.Config.WorkerPanicWindowSeconds) * time.Second
	for e := l.panicTimestamps.Front(); e != nil; {
		next := e.Next()
		if ts, ok := e.Value.(time.Time); ok && now.Sub(ts) > window {
			l.panicTimestamps.Remove(e)
		}
		e = next
	}

	n := l.panicTimestamps.Len()
	if n < l.Config.WorkerPanicThreshold {
		sleep(ctx, time.Second)
		return
	}

	l.Store.AppendEvent(ctx, "ops-worker", "WORKER_PANIC", 0, map[string]any{
		"reason": "unhandled_exception_storm", "count": n, "window_sec": l.Config.WorkerPanicWindowSeconds, "source": "worker",
	})
	if err := l.Store.UpsertOpsState(ctx, "worker_panic", map[string]any{
		"last_panic_at": now.UTC().Format(time.RFC3339), "count": n, "window_sec": l.Config.WorkerPanicWindowSeconds,
	}); err != nil {
		l.Log.Error("worker_panic state_store failed", zap.Error(err))
	}
	if err := l.KillSwitch.SetRedis(ctx, true); err != nil {
		l.Log.Error("panic guard kill switch set failed", zap.Error(err))
	}
	if l.Notify != nil {
		l.Notify.Send(ctx, fmt.Sprintf("WORKER_PANIC unhandled_exception_storm count=%d window_sec=%d", n, l.Config.WorkerPanicWindowSeconds), "WORKER_PANIC")
	}
	l.panicTimestamps.Init()

	l.Log.Warn("panic guard triggered", zap.Int("cooldown_sec", l.Config.WorkerPanicCooldownSec))
	sleep(ctx, time.Duration(l.Config.WorkerPanicCooldownSec)*time.Second)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
