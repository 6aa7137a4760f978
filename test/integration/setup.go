package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linkmeAman/universal-middleware/internal/database"
)

// domainTables lists every table CheckSchema requires at startup; tests
// truncate the same set so each run starts from an empty queue.
var domainTables = []string{
	"domain_events",
	"idempotency_keys",
	"ops_state_history",
	"ops_state",
	"risk_state",
	"ops_audit",
	"commands_domain",
}

// ResetDB truncates every domain table so a test run starts from a clean
// queue, independent of whatever a previous run left behind.
func ResetDB(ctx context.Context, db database.DB) error {
	for _, table := range domainTables {
		if _, err := db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// InsertCommand seeds a command directly, bypassing the submission API —
// useful for tests that need a command already sitting in a given status
// before the worker loop touches it.
func InsertCommand(ctx context.Context, db database.DB, id, cmdType, status string, payload map[string]any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO commands_domain (id, type, status, attempt, payload, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, now(), now())
	`, id, cmdType, status, payloadJSON)
	return err
}
