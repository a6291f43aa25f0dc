package model

import (
	"github.com/google/uuid"
)

// SubmittedImage is one uploaded answer photo spooled to a temporary file.
type SubmittedImage struct {
	QuestionID uuid.UUID `json:"question_id"`
	Filename   string    `json:"filename"`
	MIMEType   string    `json:"mime_type"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
}

// Submission is a student's full set of answer photos for one exam.
type Submission struct {
	ExamID uuid.UUID        `json:"exam_id"`
	UserID uuid.UUID        `json:"user_id"`
	Images []SubmittedImage `json:"images"`
}

// QuestionAnswer groups the photos answering a single question, in upload order.
type QuestionAnswer struct {
	QuestionID uuid.UUID
	Images     []SubmittedImage
}

// EvaluationJob is the queue payload for asynchronous grading.
type EvaluationJob struct {
	ResultID   uuid.UUID  `json:"result_id"`
	Submission Submission `json:"submission"`
}

// EvaluationEvent is published whenever a result reaches a terminal status.
type EvaluationEvent struct {
	ResultID           uuid.UUID    `json:"result_id"`
	ExamID             uuid.UUID    `json:"exam_id"`
	Status             ResultStatus `json:"status"`
	TotalMarksObtained float64      `json:"total_marks_obtained"`
	AuraChange         int          `json:"aura_change"`
	ErrorMessage       *string      `json:"error_message,omitempty"`
}
