package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/migrations"
)

// RunMigrations applies the embedded snapshot store migrations.
// It is idempotent: only pending migrations are executed.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	return RunMigrationsFromPath(db, "", logger)
}

// RunMigrationsFromPath applies migrations from a directory on disk, or the
// embedded set when migrationsPath is empty.
func RunMigrationsFromPath(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	var m *migrate.Migrate
	if migrationsPath == "" {
		source, srcErr := iofs.New(migrations.FS, ".")
		if srcErr != nil {
			return fmt.Errorf("failed to open embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance(
			fmt.Sprintf("file://%s", migrationsPath),
			"postgres", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully", zap.Uint("version", newVersion))
	return nil
}

// Migrate opens a database/sql handle over the pool and applies migrations.
// The handle is closed before returning; the pool stays open.
func (db *DB) Migrate(migrationsPath string, logger *zap.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()
	return RunMigrationsFromPath(sqlDB, migrationsPath, logger)
}
