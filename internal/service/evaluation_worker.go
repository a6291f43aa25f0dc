package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/validator"
)

// ArchiveFolder is where original answer photos for an exam are stored.
func ArchiveFolder(examID uuid.UUID) string {
	return "originals/" + examID.String()
}

// EvaluationWorker grades the answer to a single creative question.
type EvaluationWorker struct {
	archiver  ImageArchiver
	questions QuestionStore
	oracle    AssessmentOracle
	timeout   time.Duration
	log       zerolog.Logger
}

// NewEvaluationWorker creates a new EvaluationWorker. timeout bounds each oracle call.
func NewEvaluationWorker(
	archiver ImageArchiver,
	questions QuestionStore,
	oracle AssessmentOracle,
	timeout time.Duration,
	log zerolog.Logger,
) *EvaluationWorker {
	return &EvaluationWorker{
		archiver:  archiver,
		questions: questions,
		oracle:    oracle,
		timeout:   timeout,
		log:       log.With().Str("component", "evaluation_worker").Logger(),
	}
}

// Evaluate archives the photos, grades them and builds the answer evaluation.
// Exactly one of the return values is non-nil. Spooled image files are
// removed whatever the outcome.
func (w *EvaluationWorker) Evaluate(ctx context.Context, examID uuid.UUID, qa model.QuestionAnswer) (ans *model.AnswerEvaluation, failure *EvaluationFailure) {
	log := w.log.With().
		Str("exam_id", examID.String()).
		Str("question_id", qa.QuestionID.String()).
		Logger()

	defer RemoveSpooledImages(qa.Images, log)
	defer func() {
		if rec := recover(); rec != nil {
			ans = nil
			failure = newFailure(qa.QuestionID, StageInternal, fmt.Errorf("panic: %v", rec))
			log.Error().Interface("panic", rec).Msg("Question evaluation panicked")
		}
	}()

	if len(qa.Images) == 0 {
		return nil, newFailure(qa.QuestionID, StageArchive, ErrEmptySubmission)
	}

	inputs, urls, err := w.archive(ctx, examID, qa.Images)
	if err != nil {
		log.Warn().Err(err).Msg("Archiving answer images failed")
		return nil, newFailure(qa.QuestionID, StageArchive, err)
	}

	question, err := w.questions.GetByID(ctx, qa.QuestionID)
	if err != nil {
		if errors.Is(err, ErrQuestionNotFound) {
			// The field name did not match any question of the bank.
			log.Warn().Msg("Answer submitted for an unknown creative question")
			return nil, newFailure(qa.QuestionID, StageQuestion, fmt.Errorf("%w: %s", ErrQuestionNotFound, qa.QuestionID))
		}
		log.Warn().Err(err).Msg("Loading creative question failed")
		return nil, newFailure(qa.QuestionID, StageQuestion, fmt.Errorf("load question: %w", err))
	}

	card, err := w.grade(ctx, question, inputs)
	if err != nil {
		log.Warn().Err(err).Msg("Oracle grading failed")
		return nil, newFailure(qa.QuestionID, StageOracle, err)
	}

	if err := ValidateScorecard(card); err != nil {
		log.Warn().Err(err).Msg("Oracle returned an invalid scorecard")
		return nil, newFailure(qa.QuestionID, StageValidate, err)
	}

	ans = BuildAnswerEvaluation(qa.QuestionID, urls, card)
	log.Debug().
		Float64("marks", ans.MarksObtained).
		Float64("confidence", ans.EvaluationConfidence).
		Msg("Question graded")
	return ans, nil
}

// archive stores every image or none of the URLs are used.
func (w *EvaluationWorker) archive(ctx context.Context, examID uuid.UUID, images []model.SubmittedImage) ([]model.ImageInput, []string, error) {
	folder := ArchiveFolder(examID)
	inputs := make([]model.ImageInput, 0, len(images))
	urls := make([]string, 0, len(images))

	for _, img := range images {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", img.Filename, err)
		}

		url, err := w.archiver.Store(ctx, data, img.MIMEType, folder)
		if err != nil {
			return nil, nil, fmt.Errorf("store %s: %w", img.Filename, err)
		}

		inputs = append(inputs, model.ImageInput{MIMEType: img.MIMEType, Data: data})
		urls = append(urls, url)
	}
	return inputs, urls, nil
}

func (w *EvaluationWorker) grade(ctx context.Context, question *model.CreativeQuestion, inputs []model.ImageInput) (*model.Scorecard, error) {
	oracleCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	card, err := w.oracle.Grade(oracleCtx, model.GradeRequest{Question: question, Images: inputs})
	if err != nil {
		if errors.Is(oracleCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("oracle timed out after %s: %w", w.timeout, err)
		}
		return nil, fmt.Errorf("oracle: %w", err)
	}
	if card == nil {
		return nil, errors.New("oracle returned no scorecard")
	}
	return card, nil
}

// ValidateScorecard rejects scorecards with part marks outside the schema
// bounds, a confidence outside [0,1] or an unknown handwriting grade.
func ValidateScorecard(card *model.Scorecard) error {
	if card == nil {
		return fmt.Errorf("%w: empty scorecard", ErrScorecardOutOfBounds)
	}

	for _, v := range []float64{card.MarksA, card.MarksB, card.MarksC, card.MarksD, card.EvaluationConfidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrScorecardOutOfBounds)
		}
	}

	if err := validator.Struct(card); err != nil {
		return fmt.Errorf("%w: %s", ErrScorecardOutOfBounds, validator.Summarize(err))
	}
	return nil
}

// BuildAnswerEvaluation turns a validated scorecard into an answer evaluation.
func BuildAnswerEvaluation(questionID uuid.UUID, urls []string, card *model.Scorecard) *model.AnswerEvaluation {
	ans := &model.AnswerEvaluation{
		ID:                   uuid.New(),
		QuestionID:           questionID,
		OriginalImages:       urls,
		MarksA:               card.MarksA,
		MarksB:               card.MarksB,
		MarksC:               card.MarksC,
		MarksD:               card.MarksD,
		FeedbackA:            card.FeedbackA,
		FeedbackB:            card.FeedbackB,
		FeedbackC:            card.FeedbackC,
		FeedbackD:            card.FeedbackD,
		HandWriting:          card.HandWriting,
		Feedback:             card.OverallFeedback,
		EvaluationConfidence: card.EvaluationConfidence,
	}
	ans.Recompute()
	return ans
}

// RemoveSpooledImages deletes the temporary files behind uploaded images.
func RemoveSpooledImages(images []model.SubmittedImage, log zerolog.Logger) {
	for _, img := range images {
		if img.Path == "" {
			continue
		}
		if err := os.Remove(img.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", img.Path).Msg("Failed to remove spooled image")
		}
	}
}
