package ops

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/store"
)

// Snapshot is the ops control plane's point-in-time view, returned by
// GET /ops/state.
type Snapshot struct {
	KillSwitchEnabled bool           `json:"kill_switch_enabled"`
	KillSwitchSource  string         `json:"kill_switch_source"`
	LastHeartbeat     map[string]any `json:"last_heartbeat,omitempty"`
	WorkerPanic       map[string]any `json:"worker_panic,omitempty"`
	PanicCooldownSec  int            `json:"panic_cooldown_remaining_sec"`
}

// State returns the current ops snapshot. State reads never fail the
// caller; a missing ops_state row simply omits that field.
func State(ctx context.Context, s *store.Store, ks *KillSwitch, pg *PanicGuard) Snapshot {
	enabled, source := ks.State(ctx)
	snap := Snapshot{
		KillSwitchEnabled: enabled,
		KillSwitchSource:  source,
		PanicCooldownSec:  pg.CooldownRemaining(ctx),
	}
	if entry, err := s.OpsStateGet(ctx, "worker_heartbeat"); err == nil && entry != nil {
		snap.LastHeartbeat = entry.Value
	}
	if entry, err := s.OpsStateGet(ctx, "worker_panic"); err == nil && entry != nil {
		snap.WorkerPanic = entry.Value
	}
	return snap
}

// Summary returns the most recent `limit` events of select types within
// the last `minutes`, with a per-type count — backing GET /ops/summary.
// Counts are tallied over those returned events only, so they add up to
// at most `limit` even when the window holds more matching events.
type Summary struct {
	WindowMinutes int            `json:"window_minutes"`
	Counts        map[string]int `json:"counts"`
	Recent        []*store.Event `json:"recent"`
}

var summaryEventTypes = []string{"FAILED", "POLICY_BLOCK", "EXCEPTION", "KILL_SWITCH_ON"}

func BuildSummary(ctx context.Context, s *store.Store, minutes, limit int) (*Summary, error) {
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	recent, err := s.RecentEventsByTypes(ctx, summaryEventTypes, since, limit)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, t := range summaryEventTypes {
		counts[t] = 0
	}
	for _, e := range recent {
		counts[e.EventType]++
	}
	return &Summary{WindowMinutes: minutes, Counts: counts, Recent: recent}, nil
}

// HistoryExportRow is one flattened row of ops_state_history, shaped
// for both the JSON and CSV export endpoints.
type HistoryExportRow struct {
	Timestamp string         `json:"ts"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
}

func ExportHistory(entries []*store.OpsStateHistoryEntry) []HistoryExportRow {
	out := make([]HistoryExportRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryExportRow{
			Timestamp: e.CreatedAt.UTC().Format(time.RFC3339),
			Key:       e.Key,
			Value:     e.Value,
		})
	}
	return out
}

// WriteHistoryCSV writes rows as CSV: ts,key,value(json).
func WriteHistoryCSV(w io.Writer, rows []HistoryExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ts", "key", "value"}); err != nil {
		return err
	}
	for _, r := range rows {
		value, err := json.Marshal(r.Value)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{r.Timestamp, r.Key, string(value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
