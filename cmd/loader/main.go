// Package main streams a trade CSV export into the ClickHouse trades table.
//
// Usage:
//
//	loader -csv data/trades.csv [-config inspector.yaml] [-batch 10000] [-row-offset 0]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-trade-inspector/internal/config"
	"solana-trade-inspector/internal/dataset"
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/logger"
	chstore "solana-trade-inspector/internal/storage/clickhouse"
	"solana-trade-inspector/internal/storage/migrations"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	envFile := flag.String("env-file", ".env", "Path to .env file (optional)")
	csvPath := flag.String("csv", "", "CSV export to load (default: data.csv_path from config)")
	batchSize := flag.Int("batch", 10000, "Rows per insert batch")
	rowOffset := flag.Uint64("row-offset", 0, "Added to every row_id, for loading several exports into one table")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.ClickHouse.DSN == "" {
		fmt.Fprintln(os.Stderr, "clickhouse.dsn is required")
		os.Exit(1)
	}
	if *csvPath == "" {
		*csvPath = cfg.Data.CSVPath
	}
	if *batchSize < 1 {
		fmt.Fprintln(os.Stderr, "-batch must be >= 1")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := load(ctx, log.Logger, cfg.ClickHouse.DSN, *csvPath, *batchSize, *rowOffset); err != nil {
		log.Error("load failed", zap.Error(err))
		log.Close()
		os.Exit(1)
	}
}

func load(ctx context.Context, log *zap.Logger, dsn, path string, batchSize int, rowOffset uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	// First pass decides which pass-through columns are numeric.
	schema, err := dataset.InferSchema(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind dataset: %w", err)
	}
	reader, err := dataset.NewReader(f)
	if err != nil {
		return err
	}
	reader.UseSchema(schema)

	conn, err := migrations.RunClickhouseMigrations(ctx, dsn, log.Named("migrations"))
	if err != nil {
		return err
	}
	defer conn.Close()
	store := chstore.NewTradeSource(conn)
	if err := store.RegisterColumns(ctx, schema); err != nil {
		return err
	}
	log.Info("schema registered", zap.Int("columns", schema.Len()))

	start := time.Now()
	var (
		total int
		batch = make([]*domain.TradeRecord, 0, batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.InsertBulk(ctx, batch); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", batch[0].RowID, batch[len(batch)-1].RowID, err)
		}
		total += len(batch)
		log.Info("batch inserted", zap.Int("rows", len(batch)), zap.Int("total", total))
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		rec.RowID += rowOffset
		batch = append(batch, rec)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	log.Info("load complete",
		zap.String("path", path),
		zap.Int("rows", total),
		zap.Int64("invalid_cells", reader.Invalid),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
