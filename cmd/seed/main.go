package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/dpin8449/KOMBUCHAS/internal/config"
	"github.com/dpin8449/KOMBUCHAS/internal/infra/postgresql"
	"github.com/dpin8449/KOMBUCHAS/internal/infra/postgresql/migrations"
	"github.com/dpin8449/KOMBUCHAS/internal/observability"
	"github.com/dpin8449/KOMBUCHAS/internal/repository"
	"github.com/dpin8449/KOMBUCHAS/internal/seed"
)

// Imports the legacy spreadsheet export into the batch table. The file path
// comes from SEED_FILE or the first command line argument; reruns are
// harmless because existing ids are skipped.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	path := cfg.SeedFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		logger.Fatal("no seed file given, set SEED_FILE or pass a path argument")
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Fatal("failed to open seed file", zap.String("path", path), zap.Error(err))
	}
	defer file.Close()

	loader, err := seed.NewLoader(repository.NewGormBatchRepo(db), logger)
	if err != nil {
		logger.Fatal("seed loader initialization failed", zap.Error(err))
	}

	result, err := loader.Load(context.Background(), file)
	if err != nil {
		logger.Fatal("seed run failed", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("invalid", result.Invalid),
	)
}
