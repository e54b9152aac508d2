package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/princekumarofficial/video-service/internal/cache"
	"github.com/princekumarofficial/video-service/internal/config"
	"github.com/princekumarofficial/video-service/internal/processing"
	"github.com/princekumarofficial/video-service/internal/storage"
	"github.com/princekumarofficial/video-service/internal/storage/backend"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}

	// Load config
	cfg := config.MustLoad()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	sqlStore, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer sqlStore.Close()

	// Go through the cache so API readers see the failed status at once.
	var store storage.Storage = sqlStore
	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, cache entries will expire on their own", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		defer redisClient.Close()
		store = cache.NewCacheService(sqlStore, redisClient)
	}

	sweeper := processing.NewSweeper(store, cfg.Processing.StaleAfter, cfg.Processing.SweepInterval)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	sweeper.Start(ctx)

	slog.Info("Stale sweeper stopped")
}
