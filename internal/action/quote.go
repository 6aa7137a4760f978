package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// ProductionQuoter is implemented by an optional live execution path
// (e.g. internal/action/binancefutures) that can be wired into Quote in
// place of the deterministic local derivation.
type ProductionQuoter interface {
	// Quote returns (price, qty, extra metadata) for symbol/side/notional,
	// or an error using the BINANCE_* error code taxonomy.
	Quote(ctx context.Context, symbol, side string, notional float64) (price, qty float64, meta map[string]any, err error)
}

// Quote derives a deterministic price/qty pair, or delegates to a
// ProductionQuoter when one is configured.
type Quote struct {
	production ProductionQuoter
}

func NewQuote(production ProductionQuoter) *Quote {
	return &Quote{production: production}
}

func (q *Quote) Name() string { return "QUOTE" }

func (q *Quote) Run(ctx context.Context, cmd Command) Output {
	return q.RunCore(ctx, cmd)
}

func (q *Quote) RunCore(ctx context.Context, cmd Command) Output {
	symbol := strOr(cmd.Payload["symbol"], "BTCUSDT")
	side := strings.ToUpper(strOr(cmd.Payload["side"], "BUY"))
	if side != "BUY" && side != "SELL" {
		side = "BUY"
	}
	notional := floatOr(cmd.Payload["notional"], 100)
	if notional <= 0 {
		notional = 100
	}

	if q.production != nil {
		price, qty, meta, err := q.production.Quote(ctx, symbol, side, notional)
		if err != nil {
			return Output{OK: false, Error: err.Error()}
		}
		result := map[string]any{
			"ok": true, "type": "quote", "symbol": symbol, "side": side,
			"notional": notional, "price": price, "qty": qty,
		}
		for k, v := range meta {
			result[k] = v
		}
		return Output{OK: true, Result: result}
	}

	price, hasPrice := cmd.Payload["price"]
	p := floatOr(price, 0)
	if hasPrice && p > 0 {
		p = round2(p)
	} else {
		p = derivePrice(symbol, side)
	}

	var qty float64
	if p != 0 {
		qty = round8(notional / p)
	}

	return Output{OK: true, Result: map[string]any{
		"ok": true, "type": "quote", "symbol": symbol, "side": side,
		"notional": notional, "price": p, "qty": qty,
	}}
}

// derivePrice maps the first 8 hex digits of SHA-256(symbol) into
// [10, 100000] inclusive, adding 1 for SELL so BUY and SELL quotes never
// collide.
func derivePrice(symbol, side string) float64 {
	sum := sha256.Sum256([]byte(symbol))
	hexDigits := hex.EncodeToString(sum[:])[:8]
	n, _ := strconv.ParseUint(hexDigits, 16, 64)
	const lo, hi = 10, 100000
	price := float64(lo) + float64(n%uint64(hi-lo+1))
	if side == "SELL" {
		price++
	}
	return round2(price)
}

func round2(v float64) float64 {
	const f = 1e2
	return math.Round(v*f) / f
}

func round8(v float64) float64 {
	const f = 1e8
	return math.Round(v*f) / f
}

func strOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func floatOr(v any, def float64) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f
		}
	}
	return def
}
