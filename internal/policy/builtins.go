package policy

import (
	"context"
	"time"

	"github.com/linkmeAman/universal-middleware/internal/store"
)

// IdempotencyPolicy blocks a re-run of an attempt that already has a
// terminal event, enforcing exactly-one terminal write per attempt.
type IdempotencyPolicy struct {
	Store *store.Store
}

func (p *IdempotencyPolicy) Name() string { return "idempotency" }

func (p *IdempotencyPolicy) Check(ctx context.Context, cmd *store.Command) Decision {
	has, err := p.Store.HasTerminalEvent(ctx, cmd.ID, cmd.Attempt)
	if err != nil || !has {
		return allow()
	}
	return block("IDEMPOTENT_BLOCK", "a terminal event already exists for this attempt")
}

// RateLimitPolicy caps PICKED events per command type over a 60s window.
type RateLimitPolicy struct {
	Store    *store.Store
	LimitFor func(cmdType string) int
}

func (p *RateLimitPolicy) Name() string { return "rate_limit" }

func (p *RateLimitPolicy) Check(ctx context.Context, cmd *store.Command) Decision {
	limit := p.LimitFor(cmd.Type)
	if limit <= 0 {
		return allow()
	}
	since := time.Now().Add(-60 * time.Second)
	n, err := p.Store.CountEventsSince(ctx, cmd.Type, []string{"PICKED"}, since)
	if err != nil {
		return allow()
	}
	if n >= limit {
		return block("RATE_LIMIT", "per-minute PICKED rate limit exceeded")
	}
	return allow()
}

// CooldownAfterFailPolicy blocks a type shortly after its most recent
// failure.
type CooldownAfterFailPolicy struct {
	Store          *store.Store
	CooldownSeconds int
}

func (p *CooldownAfterFailPolicy) Name() string { return "cooldown_after_fail" }

func (p *CooldownAfterFailPolicy) Check(ctx context.Context, cmd *store.Command) Decision {
	if p.CooldownSeconds <= 0 {
		return allow()
	}
	since := time.Now().Add(-1 * time.Hour)
	last, err := p.Store.LastEventAt(ctx, cmd.Type, []string{"ACTION_FAIL", "MARK_FAILED"}, since)
	if err != nil || last == nil {
		return allow()
	}
	if time.Since(*last) < time.Duration(p.CooldownSeconds)*time.Second {
		return block("COOLDOWN_AFTER_FAIL", "recent failure for this type is still within cooldown")
	}
	return allow()
}

// QuoteNotionalPolicy caps QUOTE notional. Registered as a built-in
// regardless of whether a given snapshot of the pack's reference
// registry wires it — see DESIGN.md.
type QuoteNotionalPolicy struct {
	MaxNotional float64 // 0 disables
}

func (p *QuoteNotionalPolicy) Name() string { return "quote_notional_cap" }

func (p *QuoteNotionalPolicy) Check(ctx context.Context, cmd *store.Command) Decision {
	if cmd.Type != "QUOTE" || p.MaxNotional <= 0 {
		return allow()
	}
	notional, _ := cmd.Payload["notional"].(float64)
	if notional > p.MaxNotional {
		return block("QUOTE_NOTIONAL_TOO_LARGE", "notional exceeds the configured cap")
	}
	return allow()
}
