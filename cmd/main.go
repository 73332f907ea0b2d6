package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vidcourse/vidcourse-backend/internal/cache"
	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/db"
	"github.com/vidcourse/vidcourse-backend/internal/handlers"
	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/server"
	"github.com/vidcourse/vidcourse-backend/internal/services"
	"github.com/vidcourse/vidcourse-backend/internal/sse"
	"github.com/vidcourse/vidcourse-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Pipeline policy
	cfg, err := config.Load(os.Getenv("PIPELINE_CONFIG_PATH"))
	if err != nil {
		log.Error("Could not load pipeline config", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (optional; progress falls back to the database when absent)
	var progressCache cache.ProgressCache
	if addr := utils.GetEnv("REDIS_ADDR", "", log); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		progressCache = cache.NewProgressCache(rdb)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	courseRepo := repos.NewCourseRepo(thePG, log)
	segmentRepo := repos.NewSegmentRepo(thePG, log)
	planRepo := repos.NewQuestionPlanRepo(thePG, log)
	questionRepo := repos.NewQuestionRepo(thePG, log)
	metricRepo := repos.NewQualityMetricRepo(thePG, log)
	progressRepo := repos.NewProgressRepo(thePG, log)

	// SSE
	sseHub := sse.NewSSEHub(log)

	// Services
	log.Info("Setting up Services from main...")
	synthesisClient, err := services.NewSynthesisClient(log)
	if err != nil {
		log.Error("Could not init SynthesisClient", "error", err)
		os.Exit(1)
	}
	transcriptProvider, err := services.NewTranscriptProvider(log)
	if err != nil {
		log.Error("Could not init TranscriptProvider", "error", err)
		os.Exit(1)
	}
	frameAnnotator, err := services.NewFrameAnnotator(log)
	if err != nil {
		log.Warn("Frame annotator unavailable, hotspot fallback disabled", "error", err)
	}

	segmenterService := services.NewSegmenterService(thePG, log, cfg, courseRepo, segmentRepo)
	plannerService := services.NewPlannerService(thePG, log, cfg, segmentRepo, planRepo)
	generators := services.DefaultGenerators(log, synthesisClient, frameAnnotator, cfg.Generation.FrameURLTemplate)
	pool := services.NewGeneratorPool(thePG, log, cfg, planRepo, questionRepo, segmentRepo, generators)
	qualityService := services.NewQualityService(thePG, log, cfg, synthesisClient, segmentRepo, questionRepo, metricRepo)
	progressService := services.NewProgressService(log, cfg, progressRepo, progressCache, sseHub)
	publicationService := services.NewPublicationService(thePG, log, courseRepo, segmentRepo, questionRepo, sseHub)
	recoveryService := services.NewRecoveryService(
		thePG,
		log,
		cfg,
		courseRepo,
		segmentRepo,
		planRepo,
		transcriptProvider,
		segmenterService,
		plannerService,
		pool,
		qualityService,
		progressService,
		publicationService,
	)
	processingService := services.NewProcessingService(thePG, log, courseRepo, segmentRepo, questionRepo, recoveryService)

	go recoveryService.StartSweeper(context.Background())

	// Handlers
	courseHandler := handlers.NewCourseHandler(processingService)
	progressHandler := handlers.NewProgressHandler(progressService)
	sseHandler := handlers.NewSSEHandler(sseHub)

	router := server.NewRouter(server.RouterConfig{
		CourseHandler:   courseHandler,
		ProgressHandler: progressHandler,
		SSEHandler:      sseHandler,
		AllowOrigins:    splitOrigins(os.Getenv("CORS_ALLOW_ORIGINS")),
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
