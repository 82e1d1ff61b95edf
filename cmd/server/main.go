package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/clueworks/huntapi/internal/config"
	"github.com/clueworks/huntapi/internal/database"
	"github.com/clueworks/huntapi/internal/migrations"
	"github.com/clueworks/huntapi/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Redis (optional event bridge) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")
	}

	// --- Core ---
	store := server.NewSQLiteStore(db)
	broker := server.NewBroker(rdb, logger)
	scheduler := server.NewScheduler(store, broker, logger)
	broker.NotifyEurekas(func(teamID, eurekaID string) {
		if err := scheduler.OnEurekaDiscovered(ctx, teamID, eurekaID); err != nil {
			logger.Error("rescheduling hints from bridge", "team", teamID, "eureka", eurekaID, "error", err)
		}
	})
	processor := server.NewGuessProcessor(store, broker, scheduler, logger)
	accrual := server.NewAccrual(store, processor, logger, cfg.PointsInterval)

	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Store:     store,
		Broker:    broker,
		Scheduler: scheduler,
		Processor: processor,
		DB:        db,
		Redis:     rdb,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return broker.Run(gctx)
	})

	g.Go(func() error {
		return accrual.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
