package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the engine reads at
// startup. Field names mirror the environment variable they come from so
// the mapping is obvious at the call site.
type Config struct {
	DatabaseURL string
	RedisURL    string

	// ExecMode gates production-only behaviors (panic endpoints, history
	// export). One of "dev", "staging", "prod"/"production".
	ExecMode string

	OpsToken string

	// KillSwitchEnv, when set to true, forces the kill switch ON whatever
	// Redis says (env ON > redis > off); when false or unset, the Redis
	// flag decides.
	KillSwitchEnv *bool

	WorkerPollIntervalSec     int
	WorkerHeartbeatSeconds    int
	WorkerPanicThreshold      int
	WorkerPanicWindowSeconds  int
	WorkerPanicCooldownSec    int
	WorkerInjectPanic         bool
	PendingCheckIntervalSec   int
	WorkerConcurrency         int

	PanicGuardCooldownSec int

	PolicyRateLimitPerMinuteDefault int
	PolicyRateLimitPerMinute        map[string]int
	PolicyFailCooldownSeconds       int
	PolicyQuoteMaxNotional          float64

	CapitalUSD float64

	MaxSingleTradeRiskPct float64
	MaxNetExposurePct     float64
	MaxLeverage           float64
	MaxDailyDrawdownPct   float64

	RiskLockoutLossPct      float64
	RiskLockoutConsecLosses int
	RiskLockoutMinutes      int
	RiskLockoutDisable      bool
	RiskHardLimitsDisable   bool
	RiskExposureAtomic      bool

	TelegramNotifyEnabled   bool
	TelegramBotToken        string
	TelegramChatID          string
	TelegramThrottleSeconds int

	QuoteExecutionMode string // "local" | "binance_testnet"

	BinanceBase       string
	BinanceAPIKey     string
	BinanceAPISecret  string
	BinanceRecvWindow int

	KafkaBrokers []string // empty disables the domain-event Kafka sink
	KafkaTopic   string

	// SubmissionRateLimit* gate internal/policy.SubmissionRateLimiter, an
	// HTTP-layer limiter on the submission API itself (distinct from the
	// per-type event-log-counted RateLimitPolicy). 0 max disables it.
	SubmissionRateLimitMax        int
	SubmissionRateLimitWindowSec  int

	HTTPAddr string
	LogLevel string

	TracingDisable  bool
	TracingEndpoint string
}

// Load reads configuration from the process environment, loading a local
// .env file first if one is found (teacher's pkg/env lookup behavior).
func Load() (*Config, error) {
	if envFile := findEnvFile(); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		ExecMode:    getEnvDefault("EXEC_MODE", "dev"),
		OpsToken:    os.Getenv("OPS_TOKEN"),

		WorkerPollIntervalSec:    getEnvInt("WORKER_POLL_INTERVAL_SEC", 1),
		WorkerHeartbeatSeconds:   getEnvInt("WORKER_HEARTBEAT_SECONDS", 30),
		WorkerPanicThreshold:     getEnvInt("WORKER_PANIC_THRESHOLD", 5),
		WorkerPanicWindowSeconds: getEnvInt("WORKER_PANIC_WINDOW_SECONDS", 60),
		WorkerPanicCooldownSec:   getEnvInt("WORKER_PANIC_COOLDOWN_SECONDS", 60),
		WorkerInjectPanic:        getEnvBool("WORKER_INJECT_PANIC", false),
		PendingCheckIntervalSec:  getEnvInt("PENDING_CHECK_INTERVAL_SEC", 10),
		WorkerConcurrency:        getEnvInt("WORKER_CONCURRENCY", 1),

		PanicGuardCooldownSec: getEnvInt("PANIC_GUARD_COOLDOWN_SEC", 60),

		PolicyRateLimitPerMinuteDefault: getEnvInt("POLICY_RATE_LIMIT_PER_MINUTE", 100000),
		PolicyFailCooldownSeconds:       getEnvInt("POLICY_FAIL_COOLDOWN_SECONDS", 0),
		PolicyQuoteMaxNotional:          getEnvFloat("POLICY_QUOTE_MAX_NOTIONAL", 0),

		CapitalUSD: getEnvFloat("CAPITAL_USD", 100000),

		MaxSingleTradeRiskPct: getEnvFloat("MAX_SINGLE_TRADE_RISK_PCT", 2.0),
		MaxNetExposurePct:     getEnvFloat("MAX_NET_EXPOSURE_PCT", 50.0),
		MaxLeverage:           getEnvFloat("MAX_LEVERAGE", 5.0),
		MaxDailyDrawdownPct:   getEnvFloat("MAX_DAILY_DRAWDOWN_PCT", 5.0),

		RiskLockoutLossPct:      getEnvFloat("RISK_LOCKOUT_LOSS_PCT", 10.0),
		RiskLockoutConsecLosses: getEnvInt("RISK_LOCKOUT_CONSEC_LOSSES", 5),
		RiskLockoutMinutes:      getEnvInt("RISK_LOCKOUT_MINUTES", 60),
		RiskLockoutDisable:      getEnvBool("RISK_LOCKOUT_DISABLE", false),
		RiskHardLimitsDisable:   getEnvBool("RISK_HARD_LIMITS_DISABLE", false),
		RiskExposureAtomic:      getEnvBool("RISK_EXPOSURE_ATOMIC", false),

		TelegramNotifyEnabled:   getEnvBool("TELEGRAM_NOTIFY_ENABLED", false),
		TelegramBotToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:          os.Getenv("TELEGRAM_CHAT_ID"),
		TelegramThrottleSeconds: getEnvInt("TELEGRAM_THROTTLE_SECONDS", 60),

		QuoteExecutionMode: getEnvDefault("QUOTE_EXECUTION_MODE", "local"),

		BinanceBase:       os.Getenv("BINANCE_TESTNET_BASE"),
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		BinanceRecvWindow: getEnvInt("BINANCE_RECV_WINDOW_MS", 0),

		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnvDefault("KAFKA_TOPIC", "anchor.domain_events"),

		SubmissionRateLimitMax:       getEnvInt("SUBMISSION_RATE_LIMIT_PER_MINUTE", 0),
		SubmissionRateLimitWindowSec: getEnvInt("SUBMISSION_RATE_LIMIT_WINDOW_SECONDS", 60),

		HTTPAddr: getEnvDefault("HTTP_ADDR", ":8082"),
		LogLevel: getEnvDefault("LOG_LEVEL", "info"),

		TracingDisable:  getEnvBool("TRACING_DISABLE", true),
		TracingEndpoint: os.Getenv("TRACING_ENDPOINT"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if v, ok := os.LookupEnv("ANCHOR_KILL_SWITCH"); ok {
		b := parseBool(v, false)
		cfg.KillSwitchEnv = &b
	}

	cfg.PolicyRateLimitPerMinute = parseRateLimits()

	return cfg, nil
}

// IsProd reports whether EXEC_MODE locks destructive/diagnostic ops.
func (c *Config) IsProd() bool {
	m := strings.ToLower(c.ExecMode)
	return m == "prod" || m == "production"
}

// RateLimitFor returns the per-minute PICKED-event limit for a command
// type, falling back to the global default. Limit <= 0 disables the check.
func (c *Config) RateLimitFor(cmdType string) int {
	if n, ok := c.PolicyRateLimitPerMinute[strings.ToUpper(cmdType)]; ok {
		return n
	}
	return c.PolicyRateLimitPerMinuteDefault
}

// parseRateLimits scans the environment for
// POLICY_RATE_LIMIT_PER_MINUTE_<TYPE> variables, one per command type,
// keyed by the uppercase type name.
func parseRateLimits() map[string]int {
	const prefix = "POLICY_RATE_LIMIT_PER_MINUTE_"
	out := map[string]int{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		cmdType := strings.TrimPrefix(parts[0], prefix)
		if n, err := strconv.Atoi(parts[1]); err == nil {
			out[cmdType] = n
		}
	}
	return out
}

func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		return parseBool(v, def)
	}
	return def
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
