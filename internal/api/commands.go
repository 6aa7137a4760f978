package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linkmeAman/universal-middleware/internal/store"
)

const idempotencyHeader = "X-Idempotency-Key"

func (a *API) handleCreateNoop(w http.ResponseWriter, r *http.Request) {
	a.createCommand(w, r, "NOOP", true)
}

func (a *API) handleCreateFail(w http.ResponseWriter, r *http.Request) {
	a.createCommand(w, r, "FAIL", false)
}

func (a *API) handleCreateFlaky(w http.ResponseWriter, r *http.Request) {
	a.createCommand(w, r, "FLAKY", false)
}

func (a *API) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.readPayload(w, r)
	if !ok {
		return
	}
	if _, ok := payload["symbol"]; !ok {
		payload["symbol"] = "BTCUSDT"
	}
	if _, ok := payload["side"]; !ok {
		payload["side"] = "BUY"
	}
	if _, ok := payload["notional"]; !ok {
		payload["notional"] = 100.0
	}
	a.insertAndRespond(w, r, "QUOTE", payload, false)
}

func (a *API) readPayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	payload := map[string]any{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err.Error() != "EOF" {
			a.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
			return nil, false
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, true
}

func (a *API) createCommand(w http.ResponseWriter, r *http.Request, cmdType string, honorIdempotency bool) {
	payload, ok := a.readPayload(w, r)
	if !ok {
		return
	}

	key := ""
	if honorIdempotency {
		key = r.Header.Get(idempotencyHeader)
	}
	if key == "" {
		a.insertAndRespond(w, r, cmdType, payload, false)
		return
	}

	proposedID := uuid.New().String()
	effectiveID, won, err := a.Store.ClaimIdempotencyKey(r.Context(), key, proposedID)
	if err != nil {
		a.logError("create_noop: claim_idempotency_key", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not claim idempotency key")
		return
	}
	if won {
		cmd, err := a.Store.InsertCommand(r.Context(), proposedID, cmdType, payload)
		if err != nil {
			a.logError("create_noop: insert", err)
			a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not create command")
			return
		}
		a.writeJSON(w, http.StatusOK, toCommandView(cmd))
		return
	}

	// lost the race: the winner's insert may not have committed yet from
	// this request's perspective — brief read-retry.
	var cmd *store.Command
	for attempt := 0; attempt < 3; attempt++ {
		cmd, err = a.Store.GetCommand(r.Context(), effectiveID)
		if err == nil && cmd != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil || cmd == nil {
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not read existing command")
		return
	}
	a.writeJSON(w, http.StatusOK, toCommandView(cmd))
}

func (a *API) insertAndRespond(w http.ResponseWriter, r *http.Request, cmdType string, payload map[string]any, _ bool) {
	id := uuid.New().String()
	cmd, err := a.Store.InsertCommand(r.Context(), id, cmdType, payload)
	if err != nil {
		a.logError("insert_and_respond", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not create command")
		return
	}
	a.writeJSON(w, http.StatusOK, toCommandView(cmd))
}

func (a *API) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := a.Store.GetCommand(r.Context(), id)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not read command")
		return
	}
	if existing == nil {
		a.writeError(w, http.StatusNotFound, "NOT_FOUND", "command not found")
		return
	}
	if existing.Status != store.StatusFailed {
		a.writeError(w, http.StatusBadRequest, "NOT_FAILED", "command is not in FAILED status")
		return
	}

	cmd, err := a.Store.Retry(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFailed {
			a.writeError(w, http.StatusConflict, "RACE", "command left FAILED status before retry committed")
			return
		}
		a.logError("retry", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not retry command")
		return
	}
	a.Store.AppendEvent(r.Context(), id, "RETRY", cmd.Attempt, map[string]any{"type": cmd.Type})
	a.writeJSON(w, http.StatusOK, toCommandView(cmd))
}

func (a *API) handleListCommands(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 1, 200)
	cmds, err := a.Store.ListCommands(r.Context(), limit)
	if err != nil {
		a.logError("list_commands", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not list commands")
		return
	}
	views := make([]commandView, 0, len(cmds))
	for _, c := range cmds {
		views = append(views, toCommandView(c))
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"commands": views})
}

func (a *API) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cmd, err := a.Store.GetCommand(r.Context(), id)
	if err != nil {
		a.logError("get_command", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not read command")
		return
	}
	if cmd == nil {
		a.writeError(w, http.StatusNotFound, "NOT_FOUND", "command not found")
		return
	}
	a.writeJSON(w, http.StatusOK, toCommandView(withBinanceMetadata(cmd)))
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := parseLimit(r.URL.Query().Get("limit"), 200, 1, 500)
	events, err := a.Store.ListEvents(r.Context(), id, limit)
	if err != nil {
		a.logError("list_events", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not list events")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func parseLimit(raw string, def, min, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
