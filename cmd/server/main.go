package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/config"
	"github.com/stemsi/cq-evaluator/internal/database"
	"github.com/stemsi/cq-evaluator/internal/handler"
	"github.com/stemsi/cq-evaluator/internal/llm"
	"github.com/stemsi/cq-evaluator/internal/logger"
	"github.com/stemsi/cq-evaluator/internal/repository"
	"github.com/stemsi/cq-evaluator/internal/router"
	"github.com/stemsi/cq-evaluator/internal/service"
	"github.com/stemsi/cq-evaluator/internal/storage"
	"github.com/stemsi/cq-evaluator/internal/validator"
	"github.com/stemsi/cq-evaluator/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("evaluation_mode", string(cfg.EvaluationMode)).
		Str("archive_backend", string(cfg.ArchiveBackend)).
		Msg("Starting CQ Evaluator")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	resultRepo := repository.NewExamResultRepository(pool, cfg.SubmissionLockTTL)
	questionRepo := repository.NewQuestionRepository(pool)
	auraRepo := repository.NewAuraRepository(pool)
	topicRepo := repository.NewTopicRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)

	// ─── Answer Photo Archive ─────────────────────────────────────────
	normalizer := storage.Normalizer{
		Enabled:      cfg.ArchiveWebP,
		Quality:      cfg.ArchiveWebPQuality,
		MaxDimension: cfg.ArchiveMaxDimension,
	}
	var archiver service.ImageArchiver
	switch cfg.ArchiveBackend {
	case config.ArchiveBackendOSS:
		ossArchiver, err := storage.NewOSSArchiver(cfg.OSS, normalizer, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize OSS archive")
		}
		archiver = ossArchiver
	default:
		archiver = storage.NewLocalArchiver(cfg.UploadDir, normalizer, log)
	}

	// ─── Assessment Oracle ────────────────────────────────────────────
	gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Gemini client")
	}
	defer gemini.Close()

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	gradingWorker := service.NewEvaluationWorker(archiver, questionRepo, gemini, cfg.OracleTimeout, log)
	auraService := service.NewAuraService(auraRepo, log)
	recommender := service.NewRecommendationService(gemini, topicRepo, topicRepo, cfg.RecommendationLimit, log)

	evaluationService := service.NewEvaluationService(service.EvaluationDeps{
		Results:        resultRepo,
		Questions:      questionRepo,
		Worker:         gradingWorker,
		Aura:           auraService,
		Recommender:    recommender,
		Feedback:       gemini,
		Activity:       activityRepo,
		Lock:           service.NewRedisSubmissionLock(rdb, cfg.SubmissionLockTTL),
		Notifier:       service.NewRedisEvaluationNotifier(rdb),
		ModelVersion:   gemini.ModelVersion(),
		MaxConcurrency: cfg.MaxConcurrentGrading,
	}, log)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	// A nil queue makes the handler grade inside the request.
	var queue handler.JobQueue
	if cfg.EvaluationMode == config.EvaluationModeAsync {
		queue = worker.NewSubmissionQueue(rdb)
		submissionWorker := worker.NewSubmissionWorker(rdb, evaluationService, cfg.EvaluationWorkers, log)
		go func() {
			submissionWorker.Start(workerCtx)
			close(workerDone)
		}()
	} else {
		close(workerDone)
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Evaluation: handler.NewEvaluationHandler(evaluationService, queue, handler.UploadLimits{
			MaxFileBytes:         cfg.MaxUploadBytes,
			MaxRequestBytes:      cfg.MaxSubmissionBytes,
			MaxImagesPerQuestion: cfg.MaxImagesPerQuestion,
			SpoolDir:             cfg.SpoolDir(),
		}, log),
		WS: handler.NewWSHandler(rdb, log, cfg.AllowedOrigins),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Synchronous grading runs inside
	// the request, so give it as long as one oracle call.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.OracleTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the queue worker and wait for in-flight evaluations.
	workerCancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Timed out waiting for in-flight evaluations")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
