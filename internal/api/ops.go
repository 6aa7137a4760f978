package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/ops"
)

func (a *API) handleKillSwitchGet(w http.ResponseWriter, r *http.Request) {
	enabled, source := a.KillSwitch.State(r.Context())
	a.writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled, "source": source})
}

func (a *API) handleKillSwitchSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool   `json:"enabled"`
		Actor   string `json:"actor"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if err := a.KillSwitch.Set(r.Context(), body.Enabled, body.Actor); err != nil {
		a.logError("kill_switch_set", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not set kill switch")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"enabled": body.Enabled})
}

func (a *API) handlePanicTrigger(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	err := a.PanicGuard.Trigger(r.Context(), actor)
	switch err {
	case nil:
		a.writeJSON(w, http.StatusOK, map[string]any{"triggered": true})
	case ops.ErrForbiddenInProd:
		a.writeError(w, http.StatusForbidden, "FORBIDDEN_IN_PROD", "panic guard is disabled in production")
	case ops.ErrCooldownActive:
		a.writeError(w, http.StatusConflict, "COOLDOWN_ACTIVE", "panic guard cooldown still active")
	default:
		a.logError("panic_trigger", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not trigger panic guard")
	}
}

func (a *API) handlePanicReset(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	err := a.PanicGuard.Reset(r.Context(), actor)
	switch err {
	case nil:
		a.writeJSON(w, http.StatusOK, map[string]any{"reset": true})
	case ops.ErrForbiddenInProd:
		a.writeError(w, http.StatusForbidden, "FORBIDDEN_IN_PROD", "panic guard is disabled in production")
	default:
		a.logError("panic_reset", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not reset panic guard")
	}
}

func actorFrom(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "unknown"
}

func (a *API) handleOpsState(w http.ResponseWriter, r *http.Request) {
	snap := ops.State(r.Context(), a.Store, a.KillSwitch, a.PanicGuard)
	a.writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleOpsStateHistory(w http.ResponseWriter, r *http.Request) {
	if a.Config.IsProd() {
		a.writeError(w, http.StatusForbidden, "FORBIDDEN_IN_PROD", "state history is disabled in production")
		return
	}
	key, since, until, limit := a.parseHistoryQuery(r)
	entries, err := a.Store.OpsStateHistory(r.Context(), key, since, until, limit)
	if err != nil {
		a.logError("ops_state_history", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not read ops state history")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (a *API) handleOpsStateHistoryExport(w http.ResponseWriter, r *http.Request) {
	if a.Config.IsProd() {
		a.writeError(w, http.StatusForbidden, "FORBIDDEN_IN_PROD", "state history export is disabled in production")
		return
	}
	key, since, until, limit := a.parseHistoryQuery(r)
	entries, err := a.Store.OpsStateHistory(r.Context(), key, since, until, limit)
	if err != nil {
		a.logError("ops_state_history_export", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not read ops state history")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"rows": ops.ExportHistory(entries)})
}

func (a *API) handleOpsStateHistoryExportCSV(w http.ResponseWriter, r *http.Request) {
	if a.Config.IsProd() {
		a.writeError(w, http.StatusForbidden, "FORBIDDEN_IN_PROD", "state history export is disabled in production")
		return
	}
	key, since, until, limit := a.parseHistoryQuery(r)
	entries, err := a.Store.OpsStateHistory(r.Context(), key, since, until, limit)
	if err != nil {
		a.logError("ops_state_history_export_csv", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not read ops state history")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=ops_state_history.csv")
	w.WriteHeader(http.StatusOK)
	if err := ops.WriteHistoryCSV(w, ops.ExportHistory(entries)); err != nil {
		a.logError("ops_state_history_export_csv: write", err)
	}
}

func (a *API) parseHistoryQuery(r *http.Request) (key string, since, until time.Time, limit int) {
	q := r.URL.Query()
	key = q.Get("key")
	if key == "" {
		key = "kill_switch"
	}
	until = time.Now().UTC()
	since = until.Add(-24 * time.Hour)
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			until = t
		}
	}
	limit = parseLimit(q.Get("limit"), 200, 1, 1000)
	return
}

func (a *API) handleOpsSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minutes := parseLimit(q.Get("minutes"), 60, 1, 1440)
	limit := parseLimit(q.Get("limit"), 100, 1, 500)
	summary, err := ops.BuildSummary(r.Context(), a.Store, minutes, limit)
	if err != nil {
		a.logError("ops_summary", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not build ops summary")
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDevResetPending(w http.ResponseWriter, r *http.Request) {
	n, err := a.Store.ResetPendingCommands(r.Context())
	if err != nil {
		a.logError("dev_reset_pending", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not reset pending commands")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"reset": n})
}
