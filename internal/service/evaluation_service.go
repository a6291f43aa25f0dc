package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/model"
	"golang.org/x/sync/errgroup"
)

const (
	// NoEvaluationFeedback is the report shown when every question failed.
	NoEvaluationFeedback = "No questions could be successfully evaluated. Please review the submission."
	// FallbackFeedback is used when the exam report could not be written.
	FallbackFeedback = "Your answers have been graded. A detailed report could not be generated at this time; please review the feedback for each question."
)

// EvaluationDeps wires the collaborators of an EvaluationService.
type EvaluationDeps struct {
	Results        ResultStore
	Questions      QuestionStore
	Worker         *EvaluationWorker
	Aura           *AuraService
	Recommender    *RecommendationService
	Feedback       FeedbackWriter
	Activity       ActivityLog
	Lock           SubmissionLock
	Notifier       EvaluationNotifier
	ModelVersion   string
	MaxConcurrency int
}

// EvaluationService drives a submission from receipt to a terminal result.
// It is the only writer of an ExamResult while the result is evaluating.
type EvaluationService struct {
	results        ResultStore
	questions      QuestionStore
	worker         *EvaluationWorker
	aura           *AuraService
	recommender    *RecommendationService
	feedback       FeedbackWriter
	activity       ActivityLog
	lock           SubmissionLock
	notifier       EvaluationNotifier
	modelVersion   string
	maxConcurrency int
	log            zerolog.Logger
	now            func() time.Time
}

// NewEvaluationService creates a new EvaluationService.
func NewEvaluationService(deps EvaluationDeps, log zerolog.Logger) *EvaluationService {
	if deps.MaxConcurrency <= 0 {
		deps.MaxConcurrency = 4
	}
	return &EvaluationService{
		results:        deps.Results,
		questions:      deps.Questions,
		worker:         deps.Worker,
		aura:           deps.Aura,
		recommender:    deps.Recommender,
		feedback:       deps.Feedback,
		activity:       deps.Activity,
		lock:           deps.Lock,
		notifier:       deps.Notifier,
		modelVersion:   deps.ModelVersion,
		maxConcurrency: deps.MaxConcurrency,
		log:            log.With().Str("component", "evaluation_service").Logger(),
		now:            time.Now,
	}
}

// Evaluate accepts the submission and grades it before returning.
func (s *EvaluationService) Evaluate(ctx context.Context, sub *model.Submission) (*model.ExamResult, error) {
	result, err := s.Accept(ctx, sub)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, result, sub)
}

// Accept registers a new attempt and persists it as evaluating before any
// grading starts. Concurrent or repeated submissions of the same exam by the
// same user are rejected with ErrDuplicateSubmission.
func (s *EvaluationService) Accept(ctx context.Context, sub *model.Submission) (*model.ExamResult, error) {
	if sub == nil || len(sub.Images) == 0 {
		return nil, ErrEmptySubmission
	}

	log := s.log.With().
		Str("exam_id", sub.ExamID.String()).
		Str("user_id", sub.UserID.String()).
		Logger()

	acquired, err := s.lock.Acquire(ctx, sub.ExamID, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	if !acquired {
		log.Info().Msg("Submission rejected, evaluation already in progress")
		return nil, ErrDuplicateSubmission
	}

	result := model.NewExamResult(sub.ExamID, sub.UserID)
	result.AIModelVersion = s.modelVersion
	if err := result.TransitionTo(model.ResultStatusEvaluating); err != nil {
		s.releaseLock(ctx, sub)
		return nil, err
	}

	if err := s.results.CreateEvaluating(ctx, result); err != nil {
		s.releaseLock(ctx, sub)
		if errors.Is(err, ErrDuplicateSubmission) {
			log.Info().Msg("Submission rejected, result already exists")
			return nil, ErrDuplicateSubmission
		}
		return nil, fmt.Errorf("create result: %w", err)
	}

	questionCount := len(GroupByQuestion(sub.Images))
	activity := &model.UserActivity{
		ID:           uuid.New(),
		UserID:       sub.UserID,
		ActivityType: model.ActivityExamSubmitted,
		ExamID:       sub.ExamID,
		ExamType:     model.ExamTypeCQ,
		Message:      fmt.Sprintf("Submitted a creative question exam with %d answered question(s) for evaluation.", questionCount),
	}
	if err := s.activity.Record(ctx, activity); err != nil {
		log.Warn().Err(err).Msg("Failed to record submission activity")
	}

	log.Info().
		Str("result_id", result.ID.String()).
		Int("questions", questionCount).
		Int("images", len(sub.Images)).
		Msg("Submission accepted")
	return result, nil
}

// Run grades an accepted submission and stores the terminal result. Grading is
// detached from ctx cancellation so a dropped client does not abandon the
// attempt halfway. The returned error is non-nil only for system failures, in
// which case the result is in the error status.
func (s *EvaluationService) Run(ctx context.Context, result *model.ExamResult, sub *model.Submission) (*model.ExamResult, error) {
	ctx = context.WithoutCancel(ctx)
	defer s.releaseLock(ctx, sub)

	log := s.log.With().
		Str("result_id", result.ID.String()).
		Str("exam_id", result.ExamID.String()).
		Str("user_id", result.UserID.String()).
		Logger()

	groups := GroupByQuestion(sub.Images)
	answers, failures := s.fanOut(ctx, result.ExamID, groups)

	if err := s.finish(ctx, result, answers, failures); err != nil {
		log.Error().Err(err).Msg("Evaluation failed with a system error")
		s.fail(ctx, result, err)
		s.publish(ctx, result)
		return result, err
	}

	log.Info().
		Str("status", string(result.Status)).
		Int("evaluated", len(answers)).
		Int("failed", len(failures)).
		Float64("total_marks", result.TotalMarksObtained).
		Int("aura_change", result.AuraChange).
		Msg("Evaluation finished")

	s.publish(ctx, result)
	return result, nil
}

// fanOut grades every question concurrently and waits for all of them.
// Successes and failures keep the submission's question order.
func (s *EvaluationService) fanOut(ctx context.Context, examID uuid.UUID, groups []model.QuestionAnswer) ([]model.AnswerEvaluation, []*EvaluationFailure) {
	answers := make([]*model.AnswerEvaluation, len(groups))
	failures := make([]*EvaluationFailure, len(groups))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for i, qa := range groups {
		g.Go(func() error {
			answers[i], failures[i] = s.worker.Evaluate(ctx, examID, qa)
			return nil
		})
	}
	_ = g.Wait()

	okAnswers := make([]model.AnswerEvaluation, 0, len(groups))
	var failed []*EvaluationFailure
	for i := range groups {
		switch {
		case failures[i] != nil:
			failed = append(failed, failures[i])
		case answers[i] != nil:
			okAnswers = append(okAnswers, *answers[i])
		}
	}
	return okAnswers, failed
}

func (s *EvaluationService) finish(ctx context.Context, result *model.ExamResult, answers []model.AnswerEvaluation, failures []*EvaluationFailure) error {
	result.SetAnswers(answers)
	result.AuraChange = 0

	next := model.ResultStatusEvaluated
	if len(failures) > 0 {
		next = model.ResultStatusReviewRequired
		result.SetError(FormatFailures(failures))
	} else {
		result.SetError("")
		result.AuraChange = ComputeAura(result).Total
	}

	if len(answers) > 0 {
		summary := s.performanceSummary(ctx, answers)
		topics := s.recommender.Recommend(ctx, result.UserID, summary)
		result.Feedback = s.examReport(ctx, summary, topics)
	} else {
		result.Feedback = NoEvaluationFeedback
	}

	if err := result.TransitionTo(next); err != nil {
		return err
	}
	now := s.now()
	result.EvaluatedAt = &now
	result.Recompute()

	if err := s.results.Save(ctx, result); err != nil {
		// The terminal status was never stored and nothing was credited.
		result.Status = model.ResultStatusEvaluating
		return fmt.Errorf("save result: %w", err)
	}

	// Only a stored result is credited.
	if result.Status == model.ResultStatusEvaluated {
		s.applyAura(ctx, result)
	}
	return nil
}

func (s *EvaluationService) applyAura(ctx context.Context, result *model.ExamResult) {
	b, err := s.aura.Apply(ctx, result)
	if err == nil {
		return
	}
	// The exam result stays valid; the balance needs manual reconciliation.
	s.log.Error().
		Err(err).
		Bool("critical", true).
		Str("result_id", result.ID.String()).
		Str("user_id", result.UserID.String()).
		Int("points", b.Total).
		Msg("Aura ledger out of sync with exam result")
}

func (s *EvaluationService) performanceSummary(ctx context.Context, answers []model.AnswerEvaluation) string {
	ids := make([]uuid.UUID, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}
	questions, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Msg("Loading questions for performance summary failed")
		questions = nil
	}
	return BuildPerformanceSummary(answers, questions)
}

func (s *EvaluationService) examReport(ctx context.Context, summary string, topics []model.TopicRef) string {
	report, err := s.feedback.WriteExamReport(ctx, summary, SummarizeTopics(topics))
	if err != nil || report == "" {
		s.log.Warn().Err(err).Msg("Exam report generation failed, using fallback")
		return FallbackFeedback
	}
	return report
}

// fail moves the result to error and stores it on a best-effort basis.
func (s *EvaluationService) fail(ctx context.Context, result *model.ExamResult, cause error) {
	if err := result.TransitionTo(model.ResultStatusError); err != nil {
		s.log.Warn().Err(err).Msg("Forcing result into error status")
		result.Status = model.ResultStatusError
	}
	result.SetError("A system error occurred: " + cause.Error())
	result.AuraChange = 0
	now := s.now()
	result.EvaluatedAt = &now

	if err := s.results.Save(ctx, result); err != nil {
		s.log.Error().
			Err(err).
			Str("result_id", result.ID.String()).
			Msg("Failed to persist error status")
	}
}

func (s *EvaluationService) publish(ctx context.Context, result *model.ExamResult) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, result); err != nil {
		s.log.Warn().Err(err).Str("result_id", result.ID.String()).Msg("Failed to publish evaluation event")
	}
}

func (s *EvaluationService) releaseLock(ctx context.Context, sub *model.Submission) {
	if err := s.lock.Release(ctx, sub.ExamID, sub.UserID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to release submission lock")
	}
}

// Abort ends an accepted submission that could not be handed to grading,
// for example when the job queue is unreachable. The result moves to error
// so the student can resubmit.
func (s *EvaluationService) Abort(ctx context.Context, result *model.ExamResult, sub *model.Submission, cause error) {
	ctx = context.WithoutCancel(ctx)
	defer s.releaseLock(ctx, sub)

	RemoveSpooledImages(sub.Images, s.log)
	s.log.Error().
		Err(cause).
		Str("result_id", result.ID.String()).
		Msg("Submission aborted before grading")
	s.fail(ctx, result, cause)
	s.publish(ctx, result)
}

// ProcessJob grades a submission that was accepted and queued earlier.
// Jobs whose result already reached a terminal status are dropped.
func (s *EvaluationService) ProcessJob(ctx context.Context, job *model.EvaluationJob) error {
	result, err := s.results.GetByID(ctx, job.ResultID)
	if err != nil {
		RemoveSpooledImages(job.Submission.Images, s.log)
		s.releaseLock(ctx, &job.Submission)
		return fmt.Errorf("load result: %w", err)
	}

	if result.Status.IsTerminal() {
		s.log.Warn().
			Str("result_id", result.ID.String()).
			Str("status", string(result.Status)).
			Msg("Skipping job for result that is already finished")
		RemoveSpooledImages(job.Submission.Images, s.log)
		return nil
	}

	_, err = s.Run(ctx, result, &job.Submission)
	return err
}

// GetResult returns one of the user's results.
func (s *EvaluationService) GetResult(ctx context.Context, userID, resultID uuid.UUID) (*model.ExamResult, error) {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if result.UserID != userID {
		return nil, ErrResultNotFound
	}
	return result, nil
}

// ListResults returns a page of the user's results, newest first.
func (s *EvaluationService) ListResults(ctx context.Context, userID uuid.UUID, q model.ListResultsQuery) ([]model.ExamResult, int64, error) {
	q = q.WithDefaults()
	results, total, err := s.results.ListByUser(ctx, userID, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	return results, total, nil
}

// FormatFailures renders the error message for a batch with failed questions.
func FormatFailures(failures []*EvaluationFailure) string {
	details, err := json.Marshal(failures)
	if err != nil {
		details = []byte("[]")
	}
	return fmt.Sprintf("Failed to evaluate %d question(s). Details: %s", len(failures), details)
}
