package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"github.com/linkmeAman/universal-middleware/pkg/metrics"
	"go.opentelemetry.io/otel"
)

// InitFromConfig initializes a database connection pool from the
// process-wide DATABASE_URL DSN.
func InitFromConfig(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*DB, error) {
	return NewFromDSN(cfg.DatabaseURL, log, m)
}

// NewFromDSN builds a pool directly from a postgres:// connection string,
// the shape DATABASE_URL arrives in.
func NewFromDSN(dsn string, log *logger.Logger, m *metrics.Metrics) (*DB, error) {
	pgxCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{
		pool:    pool,
		logger:  log,
		metrics: m,
		tracer:  otel.GetTracerProvider().Tracer("postgres-db"),
	}, nil
}
