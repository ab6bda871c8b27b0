package main

import (
	"context"
	"os"
	"time"

	"expensedash/internal/cli"
	"expensedash/internal/seed"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataset := seed.Demo()
	if err := repo.ImportDataset(ctx, dataset); err != nil {
		logger.Error("Failed to import demo dataset", "error", err, "db_path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	logger.Info("Demo dataset imported",
		"users", len(dataset.Users),
		"tags", len(dataset.Tags),
		"expenses", len(dataset.Expenses),
		"db_path", cfg.SQLiteDBPath)
}
