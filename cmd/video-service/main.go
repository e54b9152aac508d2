package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/princekumarofficial/video-service/docs"
	"github.com/princekumarofficial/video-service/internal/cache"
	"github.com/princekumarofficial/video-service/internal/config"
	"github.com/princekumarofficial/video-service/internal/events"
	"github.com/princekumarofficial/video-service/internal/http/handlers/users"
	"github.com/princekumarofficial/video-service/internal/http/handlers/videos"
	wsHandler "github.com/princekumarofficial/video-service/internal/http/handlers/websocket"
	"github.com/princekumarofficial/video-service/internal/http/middleware"
	"github.com/princekumarofficial/video-service/internal/media/ingest"
	"github.com/princekumarofficial/video-service/internal/media/layout"
	"github.com/princekumarofficial/video-service/internal/media/stream"
	"github.com/princekumarofficial/video-service/internal/metrics"
	"github.com/princekumarofficial/video-service/internal/processing"
	"github.com/princekumarofficial/video-service/internal/ratelimit"
	"github.com/princekumarofficial/video-service/internal/services/media"
	"github.com/princekumarofficial/video-service/internal/storage"
	"github.com/princekumarofficial/video-service/internal/storage/backend"
	"github.com/princekumarofficial/video-service/internal/utils/response"
	wsHub "github.com/princekumarofficial/video-service/internal/websocket"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Video Service API
// @version 1.0
// @description Video upload, processing status and byte-range streaming.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}

	// load config
	cfg := config.MustLoad()
	setupLogger(cfg.Env)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// database setup
	sqlStore, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	slog.Info("Metadata store ready", slog.String("driver", cfg.Database.Driver))

	var store storage.Storage = sqlStore

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, caching and rate limiting disabled", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		store = cache.NewCacheService(sqlStore, redisClient)
		slog.Info("Redis cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	// media areas
	files, err := layout.New(cfg.Media)
	if err != nil {
		log.Fatal("Failed to prepare media directories:", err)
	}
	writer := ingest.NewWriter(files, cfg.Media.ChunkSize, cfg.Media.MaxUploadBytes, cfg.Media.AllowedExtensions)
	responder := stream.New(cfg.Media.ChunkSize)

	// realtime events
	hub := wsHub.NewHub()
	go hub.Run(ctx)
	publisher := events.NewEventPublisher(hub)

	// optional object storage for thumbnails
	var (
		mirror     processing.ThumbnailMirror
		thumbnails videos.ThumbnailStore
	)
	mediaService, err := media.NewService(ctx, cfg.MinIO)
	switch {
	case err == nil:
		mirror, thumbnails = mediaService, mediaService
		slog.Info("Thumbnail mirroring enabled", slog.String("bucket", cfg.MinIO.BucketName))
	case !errors.Is(err, media.ErrDisabled):
		slog.Warn("MinIO unavailable, thumbnails served from disk", slog.String("error", err.Error()))
	}

	// processing workers
	inspector := processing.NewFFmpegInspector(cfg.Processing.FFprobePath, cfg.Processing.FFmpegPath, cfg.Processing.ThumbnailOffset)
	queue := processing.NewQueue(processing.Options{
		Workers:   cfg.Processing.Workers,
		QueueSize: cfg.Processing.QueueSize,
		Timeout:   cfg.Processing.Timeout,
	}, store, inspector, files, publisher, mirror)
	queue.Start()

	videoHandler := videos.New(videos.Handler{
		Store:      store,
		Layout:     files,
		Ingest:     writer,
		Responder:  responder,
		Queue:      queue,
		Publisher:  publisher,
		Thumbnails: thumbnails,
	})

	router := newRouter(cfg, store, redisClient, hub, videoHandler)

	server := http.Server{
		Addr:              cfg.HTTPServer.Address,
		Handler:           middleware.CORS(cfg.HTTPServer.CORSOrigins)(router),
		ReadHeaderTimeout: cfg.HTTPServer.ReadTimeout,
	}

	slog.Info("Server started", slog.String("address", cfg.HTTPServer.Address))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-done

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
	}

	// No new uploads can arrive now; let queued jobs finish.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancelDrain()
	if err := queue.Shutdown(drainCtx); err != nil {
		slog.Warn("Processing queue did not drain in time", slog.String("error", err.Error()))
	}

	stop()
	if err := store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		redisClient.Close()
	}

	slog.Info("Server stopped")
}

func setupLogger(env string) {
	level := slog.LevelInfo
	if env == config.EnvLocal {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func newRouter(cfg *config.Config, store storage.Storage, redisClient *redis.Client, hub *wsHub.Hub, h *videos.Handler) *http.ServeMux {
	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	limits := middleware.NewRateLimitConfig(redisClient, cfg.RateLimit)

	router := http.NewServeMux()

	router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"clients":   hub.GetClientCount(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.Handle("GET /metrics", metrics.Handler())
	router.Handle("GET /swagger/", httpSwagger.WrapHandler)

	router.HandleFunc("POST /api/register", users.Register(store))
	router.HandleFunc("POST /api/login", users.Login(store, cfg.JWTSecret))

	router.Handle("POST /api/upload", auth(limits.RateLimitMiddleware(ratelimit.Upload)(h.Upload())))
	router.Handle("GET /api/videos", auth(h.ListVideos()))
	router.HandleFunc("GET /api/video/{id}", h.GetVideo())
	router.HandleFunc("GET /api/video/{id}/thumbnail", h.Thumbnail())
	router.HandleFunc("GET /api/stream/{id}", h.Stream())
	router.Handle("DELETE /api/video/{id}", auth(h.DeleteVideo()))

	router.HandleFunc("GET /ws", wsHandler.WebSocketHandler(hub, cfg.JWTSecret))

	if redisClient != nil {
		router.Handle("GET /admin/cache/stats", auth(cache.GetCacheStats(redisClient)))
		router.Handle("POST /admin/cache/clear", auth(cache.ClearCache(redisClient)))
	}

	return router
}
