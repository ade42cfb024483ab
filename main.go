package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/database"
	"github.com/ekaya-inc/ekaya-catalog/pkg/llm"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
	"github.com/ekaya-inc/ekaya-catalog/pkg/repositories"
	"github.com/ekaya-inc/ekaya-catalog/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// main migrates the snapshot store, loads the latest snapshot, embeds any
// columns still missing a vector, re-derives annotations and saves the result
// as a new snapshot.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Catalog refresh failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting ekaya-catalog",
		zap.String("version", Version),
		zap.String("env", cfg.Env),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("embedding_dimension", cfg.Embedding.Dimension),
		zap.String("metric", cfg.Similarity.Metric))

	db, err := database.NewConnection(ctx, database.ConfigFromSettings(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath, logger); err != nil {
		return err
	}

	repo := repositories.NewSnapshotRepository(db, logger)
	id, err := repo.Latest(ctx)
	if errors.Is(err, apperrors.ErrNotFound) {
		logger.Info("No catalog snapshot stored yet; nothing to refresh")
		return nil
	}
	if err != nil {
		return err
	}

	cat, store, err := repo.Load(ctx, id)
	if err != nil {
		return err
	}

	if cfg.Embedding.APIKey != "" {
		client, err := llm.NewClientFromConfig(cfg.Embedding, logger)
		if err != nil {
			return err
		}
		embedder := services.NewColumnEmbeddingService(cat, store, client, cfg.Embedding, logger)
		if _, err := embedder.EmbedMissing(ctx); err != nil {
			return err
		}
	} else {
		logger.Warn("EMBEDDING_API_KEY not set; skipping embedding of new columns")
	}

	svc, err := services.NewCatalogService(cat, store, cfg, logger)
	if err != nil {
		return err
	}
	result, err := svc.Refresh(ctx)
	if err != nil {
		return err
	}

	connectivity, err := svc.Connectivity()
	if err != nil {
		return err
	}
	normalized, err := svc.Normalized()
	if err != nil {
		return err
	}

	newID, err := repo.Save(ctx, cat, normalized, store)
	if err != nil {
		return err
	}

	logger.Info("Catalog snapshot refreshed",
		zap.String("source_snapshot", id.String()),
		zap.String("snapshot", newID.String()),
		zap.Int("annotated_columns", result.Classification.Len()),
		zap.Strings("junction_tables", result.Classification.JunctionTables()),
		zap.Int("indexed", result.Index.Indexed),
		zap.Int("components", len(connectivity.Components)),
		zap.Int("islands", len(connectivity.Islands)))
	return nil
}
