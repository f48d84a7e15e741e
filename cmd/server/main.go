package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"social-story-server/internal/config"
	"social-story-server/internal/database"
	"social-story-server/internal/handler"
	"social-story-server/internal/imagegen"
	"social-story-server/internal/middleware"
	"social-story-server/internal/repository"
	"social-story-server/internal/service"
	"social-story-server/internal/storage"
	"social-story-server/pkg/ai"
	"social-story-server/pkg/logger"
	"social-story-server/pkg/taskmanager"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	log.Info("Configuration loaded", zap.String("env", cfg.Env))

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := database.NewPool(ctx, cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()

	if err := database.ApplyMigrations(ctx, pgPool, log); err != nil {
		log.Fatal("Failed to apply database migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// --- Dependency Injection ---
	aiClient, err := ai.NewClient(cfg.AI, log)
	if err != nil {
		log.Fatal("Failed to create AI client", zap.Error(err))
	}
	imageClient := imagegen.NewClient(cfg.ImageGen, log)
	imageStore, err := storage.NewLocalImageStore(cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to create image store", zap.Error(err))
	}

	progressRepo := repository.NewRedisBatchRepository(redisClient, cfg.Batch.ProgressTTL, log)
	studentRepo := repository.NewPgStudentRepository(pgPool, log)

	tasks := taskmanager.New(cfg.Tasks, log)

	planner := service.NewVisualPlanner(aiClient, log)
	assetGenerator := service.NewAssetGenerator(imageClient, imageStore, studentRepo, log)
	sceneGenerator := service.NewSceneGenerator(imageClient, imageStore, log)
	batchService := service.NewBatchService(
		planner, assetGenerator, sceneGenerator,
		progressRepo, studentRepo, tasks,
		cfg.Batch.SceneConcurrency, log,
	)
	studentService := service.NewStudentService(studentRepo, log)

	apiHandler := handler.NewHandler(batchService, studentService, log)

	// --- HTTP Server (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.ZapLogging(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Сгенерированные изображения раздаются как статика
	router.Static(cfg.Storage.PublicBaseURL, cfg.Storage.Dir)

	apiHandler.RegisterRoutes(router)

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	// Даем запущенным батчам шанс дойти до конца перед выходом
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Warn("Some batch pipelines did not finish before shutdown", zap.Error(err))
	}

	log.Info("Server exiting")
}
