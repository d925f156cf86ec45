package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/metrics"
)

// DB owns the pgx pool shared by the repositories.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Config holds Postgres connection parameters.
type Config struct {
	Host     string
	Password string
	User     string
	Database string
	SSLMode  string
	Port     int
}

func (c Config) dsn() string {
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.User),
		fmt.Sprintf("dbname=%s", c.Database),
		fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	return strings.Join(parts, " ")
}

// New opens the connection pool and verifies it with a ping. Pool
// sizing is fixed: the gateway and the retry worker share one pool,
// and the claim query holds row locks, so connections stay bounded.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "courier"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("connected to postgres",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)

	return &DB{pool: pool, logger: logger}, nil
}

// Close shuts down the pool.
func (db *DB) Close() {
	db.logger.Info("closing postgres pool")
	db.pool.Close()
}

// Pool exposes the underlying pool to the repositories.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Health pings the database and refreshes the connection gauge for
// the /health endpoint.
func (db *DB) Health(ctx context.Context) error {
	metrics.SetDBConnections(int(db.pool.Stat().AcquiredConns()))
	return db.pool.Ping(ctx)
}
