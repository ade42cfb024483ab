package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
)

// DB wraps a pgxpool connection pool for the snapshot store.
type DB struct {
	*pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ConfigFromSettings maps the application database settings to a pool config.
func ConfigFromSettings(cfg config.DatabaseConfig) *Config {
	return &Config{
		URL:            cfg.ConnectionString(),
		MaxConnections: cfg.MaxConnections,
	}
}

// PoolConfig parses the URL and applies pool defaults (25 connections,
// one hour lifetime, 30 minutes idle).
func (c *Config) PoolConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = c.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 25
	}

	poolConfig.MaxConnLifetime = c.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}
	return poolConfig, nil
}

// NewConnection creates a new database connection pool and verifies it with a ping.
func NewConnection(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	poolConfig, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to snapshot store",
		zap.String("url", logging.SanitizeConnectionString(cfg.URL)),
		zap.Int32("max_connections", poolConfig.MaxConns))

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
