// Package api implements the thin HTTP submission surface and the ops
// control plane: command create/retry/list/get/events, kill-switch,
// panic guard, ops state snapshot/history, and risk endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/action"
	"github.com/linkmeAman/universal-middleware/internal/ops"
	"github.com/linkmeAman/universal-middleware/internal/policy"
	"github.com/linkmeAman/universal-middleware/internal/risk"
	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"go.uber.org/zap"
)

// API holds the dependencies every handler closes over.
type API struct {
	Store       *store.Store
	Registry    *action.Registry
	KillSwitch  *ops.KillSwitch
	PanicGuard  *ops.PanicGuard
	Lockout     *risk.Lockout
	HardLimits  *risk.HardLimits
	RateLimiter *policy.SubmissionRateLimiter // nil disables HTTP-layer rate limiting
	Config      *config.Config
	Log         *logger.Logger
}

func New(s *store.Store, reg *action.Registry, ks *ops.KillSwitch, pg *ops.PanicGuard, lockout *risk.Lockout, hardLimits *risk.HardLimits, rateLimiter *policy.SubmissionRateLimiter, cfg *config.Config, log *logger.Logger) *API {
	return &API{
		Store: s, Registry: reg, KillSwitch: ks, PanicGuard: pg,
		Lockout: lockout, HardLimits: hardLimits, RateLimiter: rateLimiter,
		Config: cfg, Log: log,
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logError("write_json", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, code, message string) {
	a.writeJSON(w, status, map[string]any{"error": code, "message": message})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) logError(op string, err error) {
	if a.Log == nil {
		return
	}
	a.Log.Error("api."+op, zap.Error(err))
}

// commandView is the JSON shape returned for a single command, matching
// the create/retry/get response contract.
type commandView struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Attempt   int            `json:"attempt"`
	Payload   map[string]any `json:"payload,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toCommandView(c *store.Command) commandView {
	return commandView{
		ID: c.ID, Type: c.Type, Status: string(c.Status), Attempt: c.Attempt,
		Payload: c.Payload, Result: c.Result, Error: c.Error,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

// withBinanceMetadata merges the `_binance_testnet` block out of a
// command's result into its payload, if present — GET exposes the
// production quoter's execution metadata alongside the request.
func withBinanceMetadata(c *store.Command) *store.Command {
	if c == nil || c.Result == nil {
		return c
	}
	meta, ok := c.Result["_binance_testnet"].(map[string]any)
	if !ok {
		return c
	}
	merged := make(map[string]any, len(c.Payload)+1)
	for k, v := range c.Payload {
		merged[k] = v
	}
	merged["_binance_testnet"] = meta
	out := *c
	out.Payload = merged
	return &out
}
