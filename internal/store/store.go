package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/linkmeAman/universal-middleware/internal/database"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"go.uber.org/zap"
)

// Store is the typed data-access layer the runner, worker, ops plane and
// submission API are all built against. It holds no business logic of
// its own beyond the transactional shape each operation requires.
type Store struct {
	db  database.DB
	log *logger.Logger
}

func New(db database.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log}
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

func unmarshalJSONB(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// ClaimOne atomically selects the oldest PENDING row under
// FOR UPDATE SKIP LOCKED, transitions it to RUNNING, and increments
// attempt. Returns (nil, nil) when there is nothing to claim.
func (s *Store) ClaimOne(ctx context.Context, workerID string) (*Command, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim_one: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT id, type, attempt, payload
		FROM commands_domain
		WHERE status = $1
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, StatusPending)

	var id, cmdType string
	var attempt int
	var payloadRaw []byte
	if err := row.Scan(&id, &cmdType, &attempt, &payloadRaw); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim_one: select: %w", err)
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE commands_domain
		SET status = $1, attempt = attempt + 1, locked_by = $2, locked_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`, StatusRunning, workerID, now, id, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("claim_one: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// lost the race between select and update; benign, nothing claimed
		return nil, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("claim_one: commit: %w", err)
	}
	committed = true

	return &Command{
		ID:       id,
		Type:     cmdType,
		Status:   StatusRunning,
		Attempt:  attempt + 1,
		Payload:  unmarshalJSONB(payloadRaw),
		LockedBy: workerID,
		LockedAt: &now,
	}, nil
}

// MarkDone transitions id from {PENDING,RUNNING} to DONE. Returns rows
// affected; 0 is a benign lost race, never retried by the caller.
func (s *Store) MarkDone(ctx context.Context, id string, result map[string]any) (int64, error) {
	raw, err := marshalJSON(result)
	if err != nil {
		return 0, fmt.Errorf("mark_done: marshal result: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE commands_domain
		SET status = $1, result = $2, error = NULL, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, StatusDone, raw, id, StatusPending, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark_done: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkFailed transitions id from {PENDING,RUNNING} to FAILED.
func (s *Store) MarkFailed(ctx context.Context, id, reason string, detail map[string]any) (int64, error) {
	var raw []byte
	var err error
	if detail != nil {
		raw, err = marshalJSON(detail)
		if err != nil {
			return 0, fmt.Errorf("mark_failed: marshal detail: %w", err)
		}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE commands_domain
		SET status = $1, error = $2, result = $3, updated_at = now()
		WHERE id = $4 AND status IN ($5, $6)
	`, StatusFailed, reason, raw, id, StatusPending, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ErrNotFailed is returned by Retry when the command is not in FAILED.
var ErrNotFailed = fmt.Errorf("command is not in FAILED status")

// Retry transitions id from FAILED back to PENDING, clearing
// error/result/lock but preserving attempt.
func (s *Store) Retry(ctx context.Context, id string) (*Command, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE commands_domain
		SET status = $1, error = NULL, result = NULL, locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $2 AND status = $3
	`, StatusPending, id, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFailed
	}
	return s.GetCommand(ctx, id)
}

const payloadMaxBytes = 8000

// trimPayload keeps the code/message/type/attempt/ts/error/result_summary
// fields whole, then adds other fields while the marshalled payload stays
// under payloadMaxBytes. Nothing is truncated: long strings and nested
// maps in the retained fields are kept as they are, so a payload whose
// retained fields alone reach the budget is returned over it.
func trimPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	kept := map[string]any{}
	for _, k := range []string{"code", "message", "type", "attempt", "ts", "error", "result_summary"} {
		if v, ok := payload[k]; ok {
			kept[k] = v
		}
	}
	// carry over any small remaining fields until the budget is spent
	raw, _ := json.Marshal(kept)
	if len(raw) >= payloadMaxBytes {
		return kept
	}
	for k, v := range payload {
		if _, already := kept[k]; already {
			continue
		}
		candidate := make(map[string]any, len(kept)+1)
		for kk, vv := range kept {
			candidate[kk] = vv
		}
		candidate[k] = v
		candRaw, err := json.Marshal(candidate)
		if err != nil || len(candRaw) >= payloadMaxBytes {
			continue
		}
		kept = candidate
	}
	return kept
}

// AppendEvent writes one append-only row. It never raises to the
// caller; failures are logged and swallowed.
func (s *Store) AppendEvent(ctx context.Context, commandID, eventType string, attempt int, payload map[string]any) {
	trimmed := trimPayload(payload)
	raw, err := marshalJSON(trimmed)
	if err != nil {
		s.logError("append_event: marshal", err, commandID, eventType)
		return
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO domain_events (command_id, event_type, attempt, payload)
		VALUES ($1, $2, $3, $4)
	`, commandID, eventType, attempt, raw)
	if err != nil {
		s.logError("append_event: insert", err, commandID, eventType)
	}
}

func (s *Store) logError(op string, err error, commandID, eventType string) {
	if s.log == nil {
		return
	}
	s.log.Error(op,
		zap.Error(err),
		zap.String("command_id", commandID),
		zap.String("event_type", eventType),
	)
}

// ClaimIdempotencyKey inserts (key, proposedCommandID) on-conflict-do-nothing
// then re-reads the row, returning the command id that actually won the
// race — proposedCommandID if this call created the row, or the
// pre-existing first_command_id otherwise.
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key, proposedCommandID string) (effectiveCommandID string, won bool, err error) {
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO idempotency_keys (key, first_command_id, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (key) DO NOTHING
	`, key, proposedCommandID, now)
	if err != nil {
		return "", false, fmt.Errorf("claim_idempotency_key: insert: %w", err)
	}

	row := s.db.QueryRow(ctx, `SELECT first_command_id FROM idempotency_keys WHERE key = $1`, key)
	if err := row.Scan(&effectiveCommandID); err != nil {
		return "", false, fmt.Errorf("claim_idempotency_key: read back: %w", err)
	}

	if effectiveCommandID == proposedCommandID {
		return effectiveCommandID, true, nil
	}
	_, _ = s.db.Exec(ctx, `UPDATE idempotency_keys SET last_seen_at = $1 WHERE key = $2`, now, key)
	return effectiveCommandID, false, nil
}

// UpsertOpsState writes the current value for key and appends to history
// atomically.
func (s *Store) UpsertOpsState(ctx context.Context, key string, value map[string]any) error {
	raw, err := marshalJSON(value)
	if err != nil {
		return fmt.Errorf("upsert_ops_state: marshal: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("upsert_ops_state: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO ops_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, raw); err != nil {
		return fmt.Errorf("upsert_ops_state: upsert: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ops_state_history (key, value, created_at)
		VALUES ($1, $2, now())
	`, key, raw); err != nil {
		return fmt.Errorf("upsert_ops_state: history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("upsert_ops_state: commit: %w", err)
	}
	committed = true
	return nil
}

// CurrentNetExposure sums notional for commands in {DONE,PENDING} of
// tradeable types, reading payload->>'notional'.
func (s *Store) CurrentNetExposure(ctx context.Context, tradeableTypes []string) (float64, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM((payload->>'notional')::numeric), 0)
		FROM commands_domain
		WHERE status IN ($1, $2) AND type = ANY($3)
	`, StatusDone, StatusPending, tradeableTypes)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("current_net_exposure: %w", err)
	}
	return total, nil
}

// ReserveExposure locks the single risk-ledger row, checks
// current+notional <= maxTotal, and if so increments and returns the new
// total. On exceed, returns *ExposureExceededError without mutating
// anything.
func (s *Store) ReserveExposure(ctx context.Context, notional, maxTotal float64) (float64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("reserve_exposure: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT current_exposure_usd FROM risk_state WHERE id = 1 FOR UPDATE`)
	var current float64
	if err := row.Scan(&current); err != nil {
		return 0, fmt.Errorf("reserve_exposure: select: %w", err)
	}

	if current+notional > maxTotal {
		return 0, &ExposureExceededError{Current: current, Notional: notional, MaxTotal: maxTotal}
	}

	newTotal := current + notional
	if _, err := tx.Exec(ctx, `
		UPDATE risk_state SET current_exposure_usd = $1, updated_at = now() WHERE id = 1
	`, newTotal); err != nil {
		return 0, fmt.Errorf("reserve_exposure: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("reserve_exposure: commit: %w", err)
	}
	committed = true
	return newTotal, nil
}

// GetCommand reads one command by id.
func (s *Store) GetCommand(ctx context.Context, id string) (*Command, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, type, status, attempt, payload, result, error, locked_by, locked_at, created_at, updated_at
		FROM commands_domain WHERE id = $1
	`, id)
	return scanCommand(row)
}

func scanCommand(row database.Row) (*Command, error) {
	var c Command
	var payloadRaw, resultRaw []byte
	var errStr *string
	var lockedBy *string
	var lockedAt *time.Time
	if err := row.Scan(&c.ID, &c.Type, &c.Status, &c.Attempt, &payloadRaw, &resultRaw, &errStr, &lockedBy, &lockedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	c.Payload = unmarshalJSONB(payloadRaw)
	if resultRaw != nil {
		c.Result = unmarshalJSONB(resultRaw)
	}
	if errStr != nil {
		c.Error = *errStr
	}
	if lockedBy != nil {
		c.LockedBy = *lockedBy
	}
	c.LockedAt = lockedAt
	return &c, nil
}

// InsertCommand creates a new PENDING row with attempt 0.
func (s *Store) InsertCommand(ctx context.Context, id, cmdType string, payload map[string]any) (*Command, error) {
	raw, err := marshalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("insert_command: marshal: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO commands_domain (id, type, status, attempt, payload, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $5)
	`, id, cmdType, StatusPending, raw, now)
	if err != nil {
		return nil, fmt.Errorf("insert_command: %w", err)
	}
	return &Command{ID: id, Type: cmdType, Status: StatusPending, Payload: payload, CreatedAt: now, UpdatedAt: now}, nil
}

// ListCommands returns the most recent commands, newest first.
func (s *Store) ListCommands(ctx context.Context, limit int) ([]*Command, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, status, attempt, payload, result, error, locked_by, locked_at, created_at, updated_at
		FROM commands_domain ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list_commands: %w", err)
	}
	defer rows.Close()

	var out []*Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("list_commands: scan: %w", err)
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}

// ListEvents returns the most recent `limit` events for a command (or
// synthetic subject id), newest first.
func (s *Store) ListEvents(ctx context.Context, commandID string, limit int) ([]*Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, command_id, event_type, attempt, payload, created_at
		FROM domain_events WHERE command_id = $1 ORDER BY created_at DESC LIMIT $2
	`, commandID, limit)
	if err != nil {
		return nil, fmt.Errorf("list_events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var raw []byte
		if err := rows.Scan(&e.ID, &e.CommandID, &e.EventType, &e.Attempt, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list_events: scan: %w", err)
		}
		e.Payload = unmarshalJSONB(raw)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// HasTerminalEvent reports whether a MARK_DONE or MARK_FAILED event
// already exists for (commandID, attempt) — the idempotency policy's
// exactly-one-terminal-write check.
func (s *Store) HasTerminalEvent(ctx context.Context, commandID string, attempt int) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM domain_events
		WHERE command_id = $1 AND attempt = $2 AND event_type IN ('MARK_DONE', 'MARK_FAILED')
	`, commandID, attempt)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("has_terminal_event: %w", err)
	}
	return n > 0, nil
}

// CountEventsSince counts events of the given types for a command type in
// the window since `since`, joining through commands_domain.type — used
// by the rate-limit policy (type="PICKED").
func (s *Store) CountEventsSince(ctx context.Context, cmdType string, eventTypes []string, since time.Time) (int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM domain_events e
		JOIN commands_domain c ON c.id = e.command_id
		WHERE c.type = $1 AND e.event_type = ANY($2) AND e.created_at >= $3
	`, cmdType, eventTypes, since)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count_events_since: %w", err)
	}
	return n, nil
}

// LastEventAt returns the created_at of the most recent matching event
// for a command type, or nil if none exists.
func (s *Store) LastEventAt(ctx context.Context, cmdType string, eventTypes []string, since time.Time) (*time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT MAX(e.created_at)
		FROM domain_events e
		JOIN commands_domain c ON c.id = e.command_id
		WHERE c.type = $1 AND e.event_type = ANY($2) AND e.created_at >= $3
	`, cmdType, eventTypes, since)
	var t *time.Time
	if err := row.Scan(&t); err != nil {
		return nil, fmt.Errorf("last_event_at: %w", err)
	}
	return t, nil
}

// OldestPendingID returns the id of the oldest PENDING command, or "" if
// none exist — used by the worker loop's kill-switch gate to emit
// KILL_SWITCH_ON once per pending id per ON-session.
func (s *Store) OldestPendingID(ctx context.Context) (string, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id FROM commands_domain WHERE status = $1 ORDER BY created_at ASC LIMIT 1
	`, StatusPending)
	var id string
	if err := row.Scan(&id); err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("oldest_pending_id: %w", err)
	}
	return id, nil
}

// OpsStateGet reads the current value for key, or nil if unset.
func (s *Store) OpsStateGet(ctx context.Context, key string) (*OpsStateEntry, error) {
	row := s.db.QueryRow(ctx, `SELECT key, value, updated_at FROM ops_state WHERE key = $1`, key)
	var e OpsStateEntry
	var raw []byte
	if err := row.Scan(&e.Key, &raw, &e.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ops_state_get: %w", err)
	}
	e.Value = unmarshalJSONB(raw)
	return &e, nil
}

// OpsStateHistory returns history rows for key within [since, until],
// newest first, capped at limit.
func (s *Store) OpsStateHistory(ctx context.Context, key string, since, until time.Time, limit int) ([]*OpsStateHistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, key, value, created_at FROM ops_state_history
		WHERE key = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC LIMIT $4
	`, key, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("ops_state_history: %w", err)
	}
	defer rows.Close()

	var out []*OpsStateHistoryEntry
	for rows.Next() {
		var e OpsStateHistoryEntry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.Key, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ops_state_history: scan: %w", err)
		}
		e.Value = unmarshalJSONB(raw)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// RecentEventsByTypes returns the most recent events across all commands
// whose event_type is in types, within the last `since` window.
func (s *Store) RecentEventsByTypes(ctx context.Context, types []string, since time.Time, limit int) ([]*Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, command_id, event_type, attempt, payload, created_at
		FROM domain_events
		WHERE event_type = ANY($1) AND created_at >= $2
		ORDER BY created_at DESC LIMIT $3
	`, types, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent_events_by_types: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var raw []byte
		if err := rows.Scan(&e.ID, &e.CommandID, &e.EventType, &e.Attempt, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent_events_by_types: scan: %w", err)
		}
		e.Payload = unmarshalJSONB(raw)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ResetPendingCommands is a dev-only helper that resets stuck RUNNING
// rows back to PENDING, clearing the lock. It exists for manual recovery
// since the core does not auto-reap crashed-worker locks.
func (s *Store) ResetPendingCommands(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE commands_domain SET status = $1, locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE status = $2
	`, StatusPending, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("reset_pending_commands: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountMarkFailedToday counts MARK_FAILED events recorded today (UTC
// calendar date) — the lockout gate's losses signal. Every failure of
// the day counts; a success in between does not reset the count.
func (s *Store) CountMarkFailedToday(ctx context.Context) (int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM domain_events
		WHERE event_type = 'MARK_FAILED' AND created_at::date = CURRENT_DATE
	`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count_mark_failed_today: %w", err)
	}
	return n, nil
}

// requiredTables lists the schema this engine depends on; CheckSchema is
// the startup strict-check that aborts before anything else runs rather
// than surfacing confusing errors mid-claim.
var requiredTables = []string{
	"commands_domain", "domain_events", "idempotency_keys",
	"ops_state", "ops_state_history", "risk_state", "ops_audit",
}

// CheckSchema verifies every required table is present in the connected
// database, returning an error naming whatever is missing.
func (s *Store) CheckSchema(ctx context.Context) error {
	rows, err := s.db.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = ANY($1)
	`, requiredTables)
	if err != nil {
		return fmt.Errorf("check_schema: %w", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("check_schema: scan: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("check_schema: %w", err)
	}

	var missing []string
	for _, t := range requiredTables {
		if !found[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("check_schema: missing required tables: %v", missing)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
