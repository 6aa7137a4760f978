package api

import "net/http"

func (a *API) handleRiskState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lockoutStatus := a.Lockout.Check(ctx)
	exposure, err := a.Store.CurrentNetExposure(ctx, []string{"QUOTE"})
	if err != nil {
		a.logError("risk_state: current_net_exposure", err)
	}

	body := map[string]any{
		"lockout": map[string]any{
			"active": lockoutStatus.Active,
			"reason": lockoutStatus.Reason,
			"until":  lockoutStatus.Until,
		},
		"hard_limits_disabled": a.Config.RiskHardLimitsDisable,
		"net_exposure_usd":     exposure,
		"capital_usd":          a.Config.CapitalUSD,
		"limits": map[string]any{
			"max_single_trade_risk_pct": a.Config.MaxSingleTradeRiskPct,
			"max_net_exposure_pct":      a.Config.MaxNetExposurePct,
			"max_leverage":              a.Config.MaxLeverage,
			"max_daily_drawdown_pct":    a.Config.MaxDailyDrawdownPct,
		},
	}
	a.writeJSON(w, http.StatusOK, body)
}

func (a *API) handleRiskLockoutClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Lockout.ClearOverride(r.Context()); err != nil {
		a.logError("risk_lockout_clear", err)
		a.writeError(w, http.StatusInternalServerError, "INTERNAL", "could not clear lockout override")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
