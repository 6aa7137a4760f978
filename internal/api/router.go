package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/linkmeAman/universal-middleware/internal/api/middleware"
	"github.com/linkmeAman/universal-middleware/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full HTTP surface: standard chi middleware,
// health/metrics, command submission, and the ops/risk control plane.
func (a *API) NewRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(apimiddleware.WithMetrics(m))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", a.handleHealth)

	r.Route("/domain-commands", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(a.withSubmissionRateLimit)
			r.Post("/noop", a.handleCreateNoop)
			r.Post("/fail", a.handleCreateFail)
			r.Post("/flaky", a.handleCreateFlaky)
			r.Post("/quote", a.handleCreateQuote)
			r.Post("/{id}/retry", a.handleRetry)
		})
		r.Get("/", a.handleListCommands)
		r.Get("/{id}", a.handleGetCommand)
		r.Get("/{id}/events", a.handleListEvents)
	})

	r.Route("/ops", func(r chi.Router) {
		r.Get("/kill-switch", a.handleKillSwitchGet)
		r.With(a.requireOpsToken).Post("/kill-switch", a.handleKillSwitchSet)
		r.Post("/panic_guard/trigger", a.handlePanicTrigger)
		r.Post("/panic_guard/reset", a.handlePanicReset)
		r.Get("/state", a.handleOpsState)
		r.Get("/state/history", a.handleOpsStateHistory)
		r.Get("/state/history/export", a.handleOpsStateHistoryExport)
		r.Get("/state/history/export.csv", a.handleOpsStateHistoryExportCSV)
		r.Get("/summary", a.handleOpsSummary)
		r.Post("/dev/reset-pending-domain-commands", a.handleDevResetPending)
	})

	r.Route("/risk", func(r chi.Router) {
		r.Get("/state", a.handleRiskState)
		r.Post("/lockout/clear", a.handleRiskLockoutClear)
	})

	return r
}

// requireOpsToken enforces the X-Ops-Token header when OPS_TOKEN is
// configured; a blank OPS_TOKEN leaves the endpoint open, matching the
// original's "enforced only if configured" semantics.
func (a *API) requireOpsToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Config.OpsToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-Ops-Token") != a.Config.OpsToken {
			a.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid ops token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withSubmissionRateLimit caps writes to the submission API per remote
// address; a nil RateLimiter (no Redis configured, or the limit
// disabled) leaves it a no-op.
func (a *API) withSubmissionRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := a.RateLimiter.Allow(r.Context(), r.RemoteAddr)
		if err != nil {
			a.logError("submission_rate_limit", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			a.writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "submission rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
