package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a result is moved to a status its
// current status does not lead to.
var ErrInvalidTransition = errors.New("invalid result status transition")

// ResultStatus enumerates the lifecycle of an exam result.
type ResultStatus string

const (
	ResultStatusSubmitted      ResultStatus = "submitted"
	ResultStatusEvaluating     ResultStatus = "evaluating"
	ResultStatusEvaluated      ResultStatus = "evaluated"
	ResultStatusReviewRequired ResultStatus = "review_required"
	ResultStatusError          ResultStatus = "error"
)

// EvaluatedByAI marks results graded by the assessment oracle.
const EvaluatedByAI = "ai"

var resultTransitions = map[ResultStatus][]ResultStatus{
	ResultStatusSubmitted:  {ResultStatusEvaluating, ResultStatusError},
	ResultStatusEvaluating: {ResultStatusEvaluated, ResultStatusReviewRequired, ResultStatusError},
	// A failed attempt may be evaluated again.
	ResultStatusError: {ResultStatusEvaluating},
}

// IsTerminal reports whether no further grading happens in this status.
func (s ResultStatus) IsTerminal() bool {
	switch s {
	case ResultStatusEvaluated, ResultStatusReviewRequired, ResultStatusError:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s.
func (s ResultStatus) CanTransitionTo(next ResultStatus) bool {
	for _, allowed := range resultTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExamResult is one student's graded attempt at a creative question exam.
type ExamResult struct {
	ID                 uuid.UUID          `json:"id"`
	ExamID             uuid.UUID          `json:"exam_id"`
	UserID             uuid.UUID          `json:"user_id"`
	Answers            []AnswerEvaluation `json:"answers"`
	Status             ResultStatus       `json:"status"`
	TotalMarksObtained float64            `json:"total_marks_obtained"`
	AuraChange         int                `json:"aura_change"`
	Feedback           string             `json:"feedback,omitempty"`
	EvaluatedBy        string             `json:"evaluated_by"`
	AIModelVersion     string             `json:"ai_model_version,omitempty"`
	ErrorMessage       *string            `json:"error_message,omitempty"`
	EvaluatedAt        *time.Time         `json:"evaluated_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewExamResult returns a freshly submitted result for the given attempt.
func NewExamResult(examID, userID uuid.UUID) *ExamResult {
	return &ExamResult{
		ID:          uuid.New(),
		ExamID:      examID,
		UserID:      userID,
		Answers:     []AnswerEvaluation{},
		Status:      ResultStatusSubmitted,
		EvaluatedBy: EvaluatedByAI,
	}
}

// TransitionTo moves the result to next, rejecting moves the lifecycle forbids.
func (r *ExamResult) TransitionTo(next ResultStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// SetAnswers replaces the answer list and recomputes every derived total.
func (r *ExamResult) SetAnswers(answers []AnswerEvaluation) {
	if answers == nil {
		answers = []AnswerEvaluation{}
	}
	r.Answers = answers
	r.Recompute()
}

// Recompute derives per-answer marks and the exam total from part marks.
// It is pure over the answer list and safe to call any number of times.
func (r *ExamResult) Recompute() {
	var total float64
	for i := range r.Answers {
		r.Answers[i].Recompute()
		total += r.Answers[i].MarksObtained
	}
	r.TotalMarksObtained = total
}

// ZeroMarkParts counts parts across all answers that scored exactly zero.
func (r *ExamResult) ZeroMarkParts() int {
	n := 0
	for _, a := range r.Answers {
		n += a.ZeroMarkParts()
	}
	return n
}

// SetError records a message on the result. An empty message clears it.
func (r *ExamResult) SetError(msg string) {
	if msg == "" {
		r.ErrorMessage = nil
		return
	}
	r.ErrorMessage = &msg
}

// ResultSummary is the list view of a result, without per-question detail.
type ResultSummary struct {
	ID                 uuid.UUID    `json:"id"`
	ExamID             uuid.UUID    `json:"exam_id"`
	Status             ResultStatus `json:"status"`
	TotalMarksObtained float64      `json:"total_marks_obtained"`
	AuraChange         int          `json:"aura_change"`
	EvaluatedAt        *time.Time   `json:"evaluated_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// ListResultsQuery is the query string for listing a student's results.
type ListResultsQuery struct {
	Page    int    `form:"page" json:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" json:"per_page" binding:"omitempty,min=1,max=100"`
	Status  string `form:"status" json:"status" binding:"omitempty,oneof=evaluating evaluated review_required error"`
}

// Default paging for result listings.
const (
	DefaultResultsPerPage = 20
)

// WithDefaults fills in the first page and the default page size.
func (q ListResultsQuery) WithDefaults() ListResultsQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultResultsPerPage
	}
	return q
}
