// Package main runs the live lecture HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lecturehall/backend/config"
	"github.com/lecturehall/backend/internal/auth"
	"github.com/lecturehall/backend/internal/capture"
	"github.com/lecturehall/backend/internal/chat"
	"github.com/lecturehall/backend/internal/lectures"
	"github.com/lecturehall/backend/internal/middleware"
	"github.com/lecturehall/backend/internal/realtime"
	"github.com/lecturehall/backend/internal/registry"
	"github.com/lecturehall/backend/internal/sessionlog"
	"github.com/lecturehall/backend/internal/subtitles"
	"github.com/lecturehall/backend/internal/transcription"
	"github.com/lecturehall/backend/internal/worker"
	"github.com/lecturehall/backend/pkg/database"
	"github.com/lecturehall/backend/pkg/queue"
	"github.com/lecturehall/backend/pkg/redis"
	"github.com/lecturehall/backend/pkg/response"
	"github.com/lecturehall/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			TranscriptsBucket:    cfg.AWS.TranscriptsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	verifier := auth.NewVerifier(jwtService, authRepo)

	// Lectures and the live room registry
	lectureRepo := lectures.NewRepository(pool)
	lectureHandler := lectures.NewHandler(lectureRepo)
	roomRegistry := registry.New(lectureRepo, logger)

	// Chat
	chatRepo := chat.NewRepository(pool)
	chatHandler := chat.NewHandler(chatRepo)

	// Subtitles
	subtitleRepo := subtitles.NewRepository(pool)
	subtitleHandler := subtitles.NewHandler(subtitleRepo)

	// Attendance
	sessionLogRepo := sessionlog.NewRepository(pool)
	sessionLogHandler := sessionlog.NewHandler(sessionLogRepo)

	// Transcription pipeline
	jobQueue := queue.NewQueue(rdb.Client, logger)
	transcriptionRepo := transcription.NewRepository(pool)
	backend := transcription.NewWhisperBackend(
		cfg.Transcription.APIURL,
		cfg.Transcription.APIKey,
		cfg.Transcription.Model,
		cfg.Transcription.Language,
	)
	bytesPerSecond := cfg.Transcription.SampleRate * cfg.Transcription.Channels * cfg.Transcription.BytesPerSample
	policy := transcription.NewPolicy(transcription.NewLocalBackend(bytesPerSecond), logger)
	scheduler := transcription.NewScheduler(
		cfg.Transcription,
		backend,
		policy,
		transcriptionRepo,
		subtitleRepo,
		hub,
		jobQueue,
		logger,
	)
	transcriptionHandler := transcription.NewHandler(transcriptionRepo, s3Client)

	// Transcript export worker (same process; cmd/worker runs it standalone)
	exporter := worker.NewTranscriptExporter(transcriptionRepo, s3Client, jobQueue, logger)

	// Capture sources
	captureRegistry := capture.NewRegistry(cfg.Capture.Sources)
	captureHandler := capture.NewHandler(captureRegistry)

	// Session gateway
	gateway := realtime.NewGateway(hub, verifier, roomRegistry, lectureRepo, chatRepo, subtitleRepo, scheduler, captureRegistry, logger)
	gateway.SetAttendance(sessionLogRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Lectures
		api.GET("/lectures", lectureHandler.List)
		api.POST("/lectures", middleware.RequireRole("admin", "instructor"), lectureHandler.Create)
		api.GET("/lectures/:id", lectureHandler.GetByID)
		api.PATCH("/lectures/:id", lectureHandler.Update)
		api.PATCH("/lectures/:id/status", lectureHandler.UpdateStatus)
		api.DELETE("/lectures/:id", lectureHandler.Delete)
		api.GET("/lectures/:id/participants", lectureHandler.Participants)

		// Room history and records
		api.GET("/lectures/:id/messages", chatHandler.ListByLecture)
		api.GET("/lectures/:id/subtitles", subtitleHandler.ListByLecture)
		api.GET("/lectures/:id/attendance", middleware.RequireRole("admin", "instructor"), sessionLogHandler.ListByLecture)

		// Transcripts
		api.GET("/transcripts/:id", transcriptionHandler.GetByID)
		api.GET("/transcripts/:id/download-url", transcriptionHandler.DownloadURL)

		// Capture source discovery
		api.GET("/capture/sources", captureHandler.List)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", gateway.ServeWs())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (transcript export to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go exporter.Run(workerCtx)
		logger.Info("transcript export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
