package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Evaluation errors.
var (
	ErrDuplicateSubmission  = errors.New("submission for this exam is already being evaluated or has been evaluated")
	ErrEmptySubmission      = errors.New("submission contains no answer images")
	ErrResultNotFound       = errors.New("exam result not found")
	ErrQuestionNotFound     = errors.New("creative question not found")
	ErrScorecardOutOfBounds = errors.New("scorecard out of bounds")
	ErrBalanceNotConfirmed  = errors.New("aura balance update not confirmed")
)

// FailureStage names the step of question evaluation that failed.
type FailureStage string

const (
	StageArchive  FailureStage = "archive"
	StageQuestion FailureStage = "question"
	StageOracle   FailureStage = "oracle"
	StageValidate FailureStage = "validate"
	StageInternal FailureStage = "internal"
)

// EvaluationFailure describes why a single question could not be graded.
// It never aborts the rest of the submission.
type EvaluationFailure struct {
	QuestionID uuid.UUID    `json:"question_id"`
	Stage      FailureStage `json:"stage"`
	Reason     string       `json:"reason"`
	Err        error        `json:"-"`
}

func (f *EvaluationFailure) Error() string {
	return fmt.Sprintf("evaluation failed for question %s: %s", f.QuestionID, f.Reason)
}

func (f *EvaluationFailure) Unwrap() error {
	return f.Err
}

func newFailure(questionID uuid.UUID, stage FailureStage, err error) *EvaluationFailure {
	return &EvaluationFailure{
		QuestionID: questionID,
		Stage:      stage,
		Reason:     err.Error(),
		Err:        err,
	}
}
