package router

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/cq-evaluator/internal/config"
	"github.com/stemsi/cq-evaluator/internal/handler"
	"github.com/stemsi/cq-evaluator/internal/middleware"
	"github.com/stemsi/cq-evaluator/internal/response"
	"github.com/stemsi/cq-evaluator/internal/service"
)

// Submissions allowed per student per minute on the evaluate endpoint.
const evaluateRatePerMinute = 5

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Evaluation *handler.EvaluationHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the lifetime of background helpers such as the rate limiter.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Archived answer photos on the local backend.
	if cfg.ArchiveBackend == config.ArchiveBackendLocal {
		archive := router.Group("/uploads/archive")
		archive.Use(middleware.ImmutableAsset(365 * 24 * time.Hour))
		archive.Static("/", filepath.Join(cfg.UploadDir, "archive"))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Student Group (Student JWT) ────────────────────────────────
	student := router.Group("/api/v1/student")
	student.Use(middleware.RequireStudentJWT(authService), middleware.CompressJSON(middleware.DefaultCompressMinLength))
	{
		evaluateLimiter := middleware.NewRateLimiter(ctx, evaluateRatePerMinute, time.Minute)
		student.POST("/exams/:exam_id/evaluate", evaluateLimiter.Middleware(), handlers.Evaluation.SubmitExam)

		student.GET("/results", handlers.Evaluation.ListResults)
		student.GET("/results/:id", handlers.Evaluation.GetResult)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/evaluations/stream", handlers.WS.EvaluationStream)
	}

	return router
}
