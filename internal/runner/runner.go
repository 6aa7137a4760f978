// Package runner orchestrates one end-to-end claim: pick, guard, execute,
// persist. It never panics to its caller — any unrecovered failure is
// turned into a FAILED command plus an audit trail explaining why.
package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linkmeAman/universal-middleware/internal/action"
	"github.com/linkmeAman/universal-middleware/internal/policy"
	"github.com/linkmeAman/universal-middleware/internal/risk"
	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"go.uber.org/zap"
)

// Result summarizes the outcome of one claim, for the caller's logs.
type Result struct {
	ID          string
	Type        string
	FinalStatus string
}

// Runner wires the store, action registry, policy chain and risk
// guardrails into the claim → guard → execute → persist sequence.
type Runner struct {
	Store      *store.Store
	Registry   *action.Registry
	Policies   *policy.Chain
	Lockout    *risk.Lockout
	HardLimits *risk.HardLimits
	WorkerID   string
	Log        *logger.Logger
}

func New(s *store.Store, reg *action.Registry, policies *policy.Chain, lockout *risk.Lockout, hardLimits *risk.HardLimits, workerID string, log *logger.Logger) *Runner {
	return &Runner{
		Store:      s,
		Registry:   reg,
		Policies:   policies,
		Lockout:    lockout,
		HardLimits: hardLimits,
		WorkerID:   workerID,
		Log:        log,
	}
}

// RunOne claims the oldest pending command and drives it to a terminal
// state. Returns nil when there was nothing to claim.
func (r *Runner) RunOne(ctx context.Context) *Result {
	cmd, err := r.Store.ClaimOne(ctx, r.WorkerID)
	if err != nil {
		r.logError("claim_one", err, "")
		return nil
	}
	if cmd == nil {
		return nil
	}
	return r.drive(ctx, cmd)
}

func (r *Runner) drive(ctx context.Context, cmd *store.Command) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Store.AppendEvent(ctx, cmd.ID, "EXCEPTION", cmd.Attempt, map[string]any{
				"code": "RUNNER_PERSIST_ERROR", "message": fmt.Sprintf("%v", rec),
			})
			r.Store.MarkFailed(ctx, cmd.ID, "RUNNER_PERSIST_ERROR", map[string]any{"panic": fmt.Sprintf("%v", rec)})
			result = &Result{ID: cmd.ID, Type: cmd.Type, FinalStatus: string(store.StatusFailed)}
		}
	}()

	r.Store.AppendEvent(ctx, cmd.ID, "PICKED", cmd.Attempt, map[string]any{"type": cmd.Type})

	if status := r.Lockout.Check(ctx); status.Active && !risk.IsAllowed(cmd.Type) {
		r.Store.AppendEvent(ctx, cmd.ID, "RISK_LOCKOUT_BLOCK", cmd.Attempt, map[string]any{
			"code": "RISK_LOCKOUT_ACTIVE", "message": status.Reason,
		})
		return r.fail(ctx, cmd, "RISK_LOCKOUT_ACTIVE", map[string]any{"reason": status.Reason, "until": status.Until})
	}

	if ok, reason, err := r.HardLimits.Check(ctx, cmd); err != nil {
		r.logError("hard_limits_check", err, cmd.ID)
	} else if !ok {
		r.Store.AppendEvent(ctx, cmd.ID, "RISK_HARD_LIMITS_BLOCK", cmd.Attempt, map[string]any{"code": reason})
		return r.fail(ctx, cmd, reason, map[string]any{"message": reason})
	}

	blockedBy, decision, passed := r.Policies.Run(ctx, cmd)
	if blockedBy != "" {
		r.Store.AppendEvent(ctx, cmd.ID, "POLICY_BLOCK", cmd.Attempt, map[string]any{
			"policy": blockedBy, "code": decision.Code, "message": decision.Message,
		})
		return r.fail(ctx, cmd, decision.Code, map[string]any{"message": decision.Message, "policy": blockedBy})
	}
	r.Store.AppendEvent(ctx, cmd.ID, "POLICY_ALLOW", cmd.Attempt, map[string]any{"policies": passed})

	handler, found := r.Registry.Lookup(cmd.Type)
	if !found {
		r.Store.AppendEvent(ctx, cmd.ID, "ACTION_FAIL", cmd.Attempt, map[string]any{
			"error": map[string]any{"code": "UNKNOWN_TYPE", "type": cmd.Type}, "type": cmd.Type,
		})
		return r.fail(ctx, cmd, "UNKNOWN_TYPE", map[string]any{"type": cmd.Type})
	}

	out := action.RunPipeline(ctx, handler, action.Command{
		ID: cmd.ID, Type: cmd.Type, Attempt: cmd.Attempt, Payload: cmd.Payload,
	})

	if out.OK {
		r.Store.AppendEvent(ctx, cmd.ID, "ACTION_OK", cmd.Attempt, map[string]any{"result": resultSummary(out.Result)})
		rows, err := r.Store.MarkDone(ctx, cmd.ID, out.Result)
		if err != nil {
			r.logError("mark_done", err, cmd.ID)
			return r.fail(ctx, cmd, "RUNNER_PERSIST_ERROR", map[string]any{"message": "could not persist DONE outcome"})
		}
		if rows == 0 {
			return &Result{ID: cmd.ID, Type: cmd.Type, FinalStatus: "LOST_RACE"}
		}
		r.Store.AppendEvent(ctx, cmd.ID, "MARK_DONE", cmd.Attempt, map[string]any{"result_summary": resultSummary(out.Result)})
		return &Result{ID: cmd.ID, Type: cmd.Type, FinalStatus: string(store.StatusDone)}
	}

	r.Store.AppendEvent(ctx, cmd.ID, "ACTION_FAIL", cmd.Attempt, map[string]any{"error": out.Error, "type": cmd.Type})
	reason, detail := errorToReasonAndDetail(out.Error)
	return r.fail(ctx, cmd, reason, detail)
}

func (r *Runner) fail(ctx context.Context, cmd *store.Command, reason string, detail map[string]any) *Result {
	rows, err := r.Store.MarkFailed(ctx, cmd.ID, reason, detail)
	if err != nil {
		r.logError("mark_failed", err, cmd.ID)
	}
	if rows == 0 && err == nil {
		return &Result{ID: cmd.ID, Type: cmd.Type, FinalStatus: "LOST_RACE"}
	}
	r.Store.AppendEvent(ctx, cmd.ID, "MARK_FAILED", cmd.Attempt, map[string]any{"error": detail, "type": cmd.Type})
	return &Result{ID: cmd.ID, Type: cmd.Type, FinalStatus: string(store.StatusFailed)}
}

func errorToReasonAndDetail(errVal any) (string, map[string]any) {
	if errVal == nil {
		return "ACTION_FAILED", map[string]any{}
	}
	if m, ok := errVal.(map[string]any); ok {
		if code, ok := m["code"].(string); ok {
			return code, m
		}
		raw, _ := json.Marshal(m)
		return string(raw), m
	}
	return fmt.Sprintf("%v", errVal), map[string]any{"error": fmt.Sprintf("%v", errVal)}
}

// resultSummary keeps only the small, audit-relevant keys from an
// action's result, matching the event payload's byte budget.
func resultSummary(result map[string]any) map[string]any {
	if result == nil {
		return map[string]any{}
	}
	out := map[string]any{}
	for _, k := range []string{"ok", "type", "attempt", "ts", "code", "message"} {
		if v, ok := result[k]; ok {
			out[k] = v
		}
	}
	return out
}

func (r *Runner) logError(op string, err error, commandID string) {
	if r.Log == nil {
		return
	}
	r.Log.Error("runner."+op, zap.Error(err), zap.String("command_id", commandID))
}
