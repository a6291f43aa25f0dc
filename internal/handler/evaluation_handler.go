package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/middleware"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/response"
	"github.com/stemsi/cq-evaluator/internal/service"
	"github.com/stemsi/cq-evaluator/internal/storage"
	"github.com/stemsi/cq-evaluator/internal/validator"
)

var (
	errInvalidQuestionID = errors.New("form field name is not a question id")
	errTooManyImages     = errors.New("too many images for one question")
)

// Evaluator is the part of service.EvaluationService the handler drives.
type Evaluator interface {
	Evaluate(ctx context.Context, sub *model.Submission) (*model.ExamResult, error)
	Accept(ctx context.Context, sub *model.Submission) (*model.ExamResult, error)
	Abort(ctx context.Context, result *model.ExamResult, sub *model.Submission, cause error)
	GetResult(ctx context.Context, userID, resultID uuid.UUID) (*model.ExamResult, error)
	ListResults(ctx context.Context, userID uuid.UUID, q model.ListResultsQuery) ([]model.ExamResult, int64, error)
}

// JobQueue hands accepted submissions to the background grader.
type JobQueue interface {
	Enqueue(ctx context.Context, job *model.EvaluationJob) error
}

// UploadLimits bounds a single exam submission.
type UploadLimits struct {
	MaxFileBytes         int64
	MaxRequestBytes      int64
	MaxImagesPerQuestion int
	SpoolDir             string
}

// EvaluationHandler handles exam submission and result endpoints.
type EvaluationHandler struct {
	evaluator Evaluator
	queue     JobQueue
	limits    UploadLimits
	log       zerolog.Logger
}

// NewEvaluationHandler creates a new EvaluationHandler. A nil queue grades
// submissions inside the request.
func NewEvaluationHandler(evaluator Evaluator, queue JobQueue, limits UploadLimits, log zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		evaluator: evaluator,
		queue:     queue,
		limits:    limits,
		log:       log.With().Str("component", "evaluation_handler").Logger(),
	}
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/evaluate
// Accepts answer photos as multipart files. Every file field is named after
// the question it answers; photos of a question keep their upload order.
func (h *EvaluationHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if h.limits.MaxRequestBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxRequestBytes)
	}

	images, err := h.readImages(c.Request)
	if err != nil {
		service.RemoveSpooledImages(images, h.log)
		h.failUpload(c, err)
		return
	}
	if len(images) == 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrEmptySubmission)
		return
	}

	sub := &model.Submission{ExamID: examID, UserID: claims.UserID, Images: images}
	ctx := c.Request.Context()

	if h.queue == nil {
		result, err := h.evaluator.Evaluate(ctx, sub)
		if err != nil {
			if result == nil {
				service.RemoveSpooledImages(images, h.log)
			}
			h.failSubmission(c, result, err)
			return
		}
		response.Success(c, http.StatusOK, result)
		return
	}

	result, err := h.evaluator.Accept(ctx, sub)
	if err != nil {
		service.RemoveSpooledImages(images, h.log)
		h.failSubmission(c, nil, err)
		return
	}

	if err := h.queue.Enqueue(ctx, &model.EvaluationJob{ResultID: result.ID, Submission: *sub}); err != nil {
		h.evaluator.Abort(ctx, result, sub, fmt.Errorf("enqueue evaluation: %w", err))
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, result)
}

// GetResult godoc
// GET /api/v1/student/results/:id
func (h *EvaluationHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	resultID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.evaluator.GetResult(c.Request.Context(), claims.UserID, resultID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ListResults godoc
// GET /api/v1/student/results?page=1&per_page=20&status=evaluated
// Returns the student's results, newest first, without per-question detail.
func (h *EvaluationHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.ListResultsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	q = q.WithDefaults()

	results, total, err := h.evaluator.ListResults(c.Request.Context(), claims.UserID, q)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	summaries := []model.ResultSummary{}
	if len(results) > 0 {
		if err := copier.Copy(&summaries, &results); err != nil {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
	}

	response.SuccessWithPagination(c, http.StatusOK, summaries, response.NewPagination(q.Page, q.PerPage, total))
}

// readImages streams the multipart body part by part and spools every file to
// disk. On error the images spooled so far are returned so the caller can
// remove them.
func (h *EvaluationHandler) readImages(r *http.Request) ([]model.SubmittedImage, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(h.limits.SpoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}

	var images []model.SubmittedImage
	perQuestion := make(map[uuid.UUID]int)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return images, nil
		}
		if err != nil {
			return images, err
		}

		// Plain form values carry nothing to grade.
		if part.FileName() == "" {
			part.Close()
			continue
		}

		img, err := h.spoolPart(part, perQuestion)
		part.Close()
		if err != nil {
			return images, err
		}
		images = append(images, *img)
	}
}

func (h *EvaluationHandler) spoolPart(part *multipart.Part, perQuestion map[uuid.UUID]int) (*model.SubmittedImage, error) {
	questionID, err := uuid.Parse(part.FormName())
	if err != nil {
		return nil, errInvalidQuestionID
	}

	mimeType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err != nil || !storage.IsAllowedMIMEType(mimeType) {
		return nil, storage.ErrUnsupportedFileType
	}

	perQuestion[questionID]++
	if h.limits.MaxImagesPerQuestion > 0 && perQuestion[questionID] > h.limits.MaxImagesPerQuestion {
		return nil, errTooManyImages
	}

	f, err := os.CreateTemp(h.limits.SpoolDir, "answer-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	src := io.Reader(part)
	if h.limits.MaxFileBytes > 0 {
		src = io.LimitReader(part, h.limits.MaxFileBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = copyErr
	case closeErr != nil:
		err = fmt.Errorf("close spool file: %w", closeErr)
	case h.limits.MaxFileBytes > 0 && n > h.limits.MaxFileBytes:
		err = storage.ErrFileTooLarge
	case n == 0:
		err = storage.ErrUnsupportedFileType
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	return &model.SubmittedImage{
		QuestionID: questionID,
		Filename:   part.FileName(),
		MIMEType:   mimeType,
		Path:       f.Name(),
		Size:       n,
	}, nil
}

func (h *EvaluationHandler) failUpload(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errInvalidQuestionID):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
	case errors.Is(err, errTooManyImages):
		response.Fail(c, http.StatusBadRequest, response.ErrTooManyImages)
	case errors.Is(err, storage.ErrUnsupportedFileType):
		response.Fail(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)
	case errors.Is(err, storage.ErrFileTooLarge), errors.As(err, &tooLarge):
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
	default:
		h.log.Debug().Err(err).Msg("Rejected malformed submission body")
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
	}
}

func (h *EvaluationHandler) failSubmission(c *gin.Context, result *model.ExamResult, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateSubmission):
		response.Fail(c, http.StatusConflict, response.ErrDuplicateSubmission)
	case errors.Is(err, service.ErrEmptySubmission):
		response.Fail(c, http.StatusBadRequest, response.ErrEmptySubmission)
	case result != nil && result.ErrorMessage != nil:
		response.FailWithMessage(c, http.StatusInternalServerError, response.ErrEvaluationFailed, *result.ErrorMessage)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
