// Package main runs the trade inspector HTTP API over a CSV export loaded
// into memory or over a ClickHouse table populated by cmd/loader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-trade-inspector/internal/api"
	"solana-trade-inspector/internal/birdeye"
	"solana-trade-inspector/internal/cache"
	"solana-trade-inspector/internal/config"
	"solana-trade-inspector/internal/dataset"
	"solana-trade-inspector/internal/engine"
	"solana-trade-inspector/internal/logger"
	"solana-trade-inspector/internal/observability"
	"solana-trade-inspector/internal/solana"
	"solana-trade-inspector/internal/storage"
	chstore "solana-trade-inspector/internal/storage/clickhouse"
	"solana-trade-inspector/internal/storage/memory"
	"solana-trade-inspector/internal/storage/migrations"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	envFile := flag.String("env-file", ".env", "Path to .env file (optional)")
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

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil {
		log.Error("server stopped", zap.Error(err))
		log.Close()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	source, closeSource, err := openSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSource()

	svc := engine.New(engine.Options{
		Source:         source,
		Cache:          cache.New(nil),
		Logger:         log.Named("engine"),
		TTL:            cfg.Cache.TTL,
		MaxConcurrency: cfg.Query.MaxConcurrency,
	})

	opts := api.Options{
		Engine:        svc,
		Logger:        log.Named("api"),
		DefaultRate:   cfg.Query.DefaultRate,
		MaxBatchItems: cfg.Server.MaxBatchItems,
		Slots: solana.NewHTTPClient(solana.Config{
			Endpoint: cfg.Solana.RPCEndpoint,
			Timeout:  cfg.Solana.Timeout,
			Interval: cfg.Solana.Interval,
		}, log.Named("solana")),
	}
	if cfg.Birdeye.APIKey != "" {
		opts.Prices = birdeye.NewClient(birdeye.Config{
			BaseURL:  cfg.Birdeye.BaseURL,
			APIKey:   cfg.Birdeye.APIKey,
			Interval: cfg.Birdeye.Interval,
			Timeout:  cfg.Birdeye.Timeout,
		}, log.Named("birdeye"))
	} else {
		log.Warn("birdeye api key not set, /api/birdeye_prices disabled")
	}

	srv := api.NewServer(opts).HTTPServer(cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openSource returns the configured trade source and its cleanup function.
func openSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.TradeSource, func(), error) {
	switch cfg.Data.Source {
	case config.SourceClickHouse:
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.ClickHouse.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN, log.Named("migrations"))
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		src := chstore.NewTradeSource(conn)
		n, err := src.Count(ctx, nil)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("count trades: %w", err)
		}
		observability.SetDatasetRows(n)
		log.Info("using clickhouse source", zap.Int64("rows", n))
		return src, func() { conn.Close() }, nil

	default:
		start := time.Now()
		ds, err := dataset.LoadFile(cfg.Data.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		src := memory.NewTradeSource(ds.Schema)
		if err := src.InsertBulk(ctx, ds.Records); err != nil {
			return nil, nil, fmt.Errorf("index dataset: %w", err)
		}
		observability.SetDatasetRows(int64(src.Len()))
		log.Info("dataset loaded",
			zap.String("path", cfg.Data.CSVPath),
			zap.Int("rows", src.Len()),
			zap.Int64("invalid_cells", ds.Invalid),
			zap.Duration("elapsed", time.Since(start)),
		)
		return src, func() {}, nil
	}
}
