// Package risk implements the pre-execution risk guardrails: hard
// position/exposure limits and the daily lockout gate. Both run before
// the policy chain and before a handler is invoked.
package risk

import (
	"context"
	"fmt"

	"github.com/linkmeAman/universal-middleware/internal/store"
	"github.com/linkmeAman/universal-middleware/pkg/config"
)

const blockReasonPrefix = "RISK_HARD_LIMITS_"

var tradeableTypes = []string{"QUOTE"}

// DrawdownSource reports today's realized loss as a percentage of
// capital. No realized-PnL ledger exists yet, so the default source
// always reports zero — see DESIGN.md.
type DrawdownSource interface {
	TodayLossPct(ctx context.Context) (float64, error)
}

// ZeroDrawdownSource is the default DrawdownSource.
type ZeroDrawdownSource struct{}

func (ZeroDrawdownSource) TodayLossPct(ctx context.Context) (float64, error) { return 0, nil }

// HardLimits validates a command against capital-relative position
// limits before it is allowed to execute.
type HardLimits struct {
	Store    *store.Store
	Config   *config.Config
	Drawdown DrawdownSource
}

func NewHardLimits(s *store.Store, cfg *config.Config, drawdown DrawdownSource) *HardLimits {
	if drawdown == nil {
		drawdown = ZeroDrawdownSource{}
	}
	return &HardLimits{Store: s, Config: cfg, Drawdown: drawdown}
}

// Check runs every hard-limit validation in the original's order,
// returning (true, "") on pass or (false, reason) on the first failure.
func (h *HardLimits) Check(ctx context.Context, cmd *store.Command) (bool, string, error) {
	if h.Config.RiskHardLimitsDisable {
		return true, "", nil
	}
	if !isTradeable(cmd.Type) {
		return true, "", nil
	}

	notional := getNotional(cmd.Payload)
	capital := h.Config.CapitalUSD

	if ok, reason := validateStopRequired(cmd.Payload); !ok {
		return false, blockReasonPrefix + reason, nil
	}
	if ok, reason := validateSingleTradeRisk(notional, capital, h.Config.MaxSingleTradeRiskPct); !ok {
		return false, blockReasonPrefix + reason, nil
	}

	maxExposureUSD := capital * (h.Config.MaxNetExposurePct / 100.0)
	var exposureForLeverage float64
	if h.Config.RiskExposureAtomic {
		newTotal, err := h.Store.ReserveExposure(ctx, notional, maxExposureUSD)
		if err != nil {
			var exceeded *store.ExposureExceededError
			if isExposureExceeded(err, &exceeded) {
				return false, fmt.Sprintf("%sNET_EXPOSURE_EXCEEDED:%.2f>%.2f", blockReasonPrefix, exceeded.Current+exceeded.Notional, exceeded.MaxTotal), nil
			}
			return true, "", err
		}
		exposureForLeverage = newTotal - notional
	} else {
		current, err := h.Store.CurrentNetExposure(ctx, tradeableTypes)
		if err != nil {
			return true, "", err
		}
		if ok, reason := validateNetExposure(current, notional, capital, h.Config.MaxNetExposurePct); !ok {
			return false, blockReasonPrefix + reason, nil
		}
		exposureForLeverage = current
	}

	if ok, reason := validateLeverage(exposureForLeverage, notional, capital, h.Config.MaxLeverage); !ok {
		return false, blockReasonPrefix + reason, nil
	}

	lossPct, err := h.Drawdown.TodayLossPct(ctx)
	if err != nil {
		lossPct = 0
	}
	if ok, reason := validateDailyDrawdown(lossPct, h.Config.MaxDailyDrawdownPct); !ok {
		return false, blockReasonPrefix + reason, nil
	}

	return true, "", nil
}

func isExposureExceeded(err error, target **store.ExposureExceededError) bool {
	e, ok := err.(*store.ExposureExceededError)
	if ok {
		*target = e
	}
	return ok
}

func isTradeable(cmdType string) bool {
	return store.TradeableTypes[cmdType]
}

func getNotional(payload map[string]any) float64 {
	if v, ok := payload["notional"]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	if v, ok := payload["notional_usd"]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func validateStopRequired(payload map[string]any) (bool, string) {
	_, hasStop := payload["stop_loss"]
	_, hasStopPrice := payload["stop_price"]
	if !hasStop && !hasStopPrice {
		return false, "STOP_REQUIRED:missing stop_loss or stop_price"
	}
	return true, ""
}

func validateSingleTradeRisk(notional, capital, maxPct float64) (bool, string) {
	if capital <= 0 || notional <= 0 {
		return true, ""
	}
	pct := (notional / capital) * 100.0
	if pct > maxPct {
		return false, fmt.Sprintf("SINGLE_TRADE_RISK_EXCEEDED:%.2f%%>%.2f%%", pct, maxPct)
	}
	return true, ""
}

func validateNetExposure(current, notional, capital, maxPct float64) (bool, string) {
	if capital <= 0 {
		return true, ""
	}
	total := current + notional
	pct := (total / capital) * 100.0
	if pct > maxPct {
		return false, fmt.Sprintf("NET_EXPOSURE_EXCEEDED:%.2f%%>%.2f%%", pct, maxPct)
	}
	return true, ""
}

func validateLeverage(current, notional, capital, maxLeverage float64) (bool, string) {
	if capital <= 0 {
		return true, ""
	}
	total := current + notional
	lev := total / capital
	if lev > maxLeverage {
		return false, fmt.Sprintf("LEVERAGE_EXCEEDED:%.2f>%.2f", lev, maxLeverage)
	}
	return true, ""
}

func validateDailyDrawdown(todayLossPct, maxPct float64) (bool, string) {
	if todayLossPct >= maxPct {
		return false, fmt.Sprintf("DAILY_DRAWDOWN_EXCEEDED:%.2f%%>=%.2f%%", todayLossPct, maxPct)
	}
	return true, ""
}
