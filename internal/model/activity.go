package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActivityExamSubmitted = "exam_submitted"
	ExamTypeCQ            = "cq"
)

// UserActivity is an entry in a user's activity feed.
type UserActivity struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	ExamID       uuid.UUID `json:"exam_id"`
	ExamType     string    `json:"exam_type"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}
