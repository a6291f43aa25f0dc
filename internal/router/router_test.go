package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/config"
	"github.com/stemsi/cq-evaluator/internal/handler"
	"github.com/stemsi/cq-evaluator/internal/service"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		GinMode:        "test",
		JWTSecret:      "test-secret",
		UploadDir:      t.TempDir(),
		ArchiveBackend: config.ArchiveBackendLocal,
	}
	handlers := &Handlers{
		Evaluation: handler.NewEvaluationHandler(nil, nil, handler.UploadLimits{}, zerolog.Nop()),
		WS:         handler.NewWSHandler(nil, zerolog.Nop(), nil),
	}
	return SetupRouter(ctx, service.NewAuthService(cfg), handlers, cfg)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestStudentRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/student/exams/0b6f4a52-4b8e-4a8f-9e0a-3f6c6b1f2a10/evaluate"},
		{http.MethodGet, "/api/v1/student/results"},
		{http.MethodGet, "/api/v1/student/results/0b6f4a52-4b8e-4a8f-9e0a-3f6c6b1f2a10"},
		{http.MethodGet, "/ws/v1/student/evaluations/stream"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
