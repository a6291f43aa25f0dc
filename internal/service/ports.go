package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/cq-evaluator/internal/model"
)

// The evaluation engine talks to storage, the oracle and the catalog only
// through these interfaces. The repository, storage and llm packages provide
// the production implementations.

// ImageArchiver durably stores an answer photo and returns its public URL.
type ImageArchiver interface {
	Store(ctx context.Context, data []byte, mimeType, folder string) (string, error)
}

// AssessmentOracle grades one creative question answer from its photos.
type AssessmentOracle interface {
	Grade(ctx context.Context, req model.GradeRequest) (*model.Scorecard, error)
	ModelVersion() string
}

// TopicExtractor turns a performance summary into short study search phrases.
type TopicExtractor interface {
	ExtractTopics(ctx context.Context, summary string) ([]string, error)
}

// FeedbackWriter writes the overall exam report shown to the student.
type FeedbackWriter interface {
	WriteExamReport(ctx context.Context, summary, topics string) (string, error)
}

// QuestionStore reads creative questions.
type QuestionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.CreativeQuestion, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.CreativeQuestion, error)
}

// ResultStore persists exam results. CreateEvaluating must fail with
// ErrDuplicateSubmission when a non-retryable result already exists for the
// same exam and user.
type ResultStore interface {
	CreateEvaluating(ctx context.Context, r *model.ExamResult) error
	Save(ctx context.Context, r *model.ExamResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamResult, error)
	ListByUser(ctx context.Context, userID uuid.UUID, q model.ListResultsQuery) ([]model.ExamResult, int64, error)
}

// BalanceStore applies an aura change. Incrementing the balance and appending
// the ledger entry happen atomically or not at all.
type BalanceStore interface {
	ApplyAuraChange(ctx context.Context, entry *model.AuraLedgerEntry) error
}

// TopicCatalog finds topics matching any of the keywords.
type TopicCatalog interface {
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]model.TopicRef, error)
}

// RecommendationStore adds topics to a user's recommendation set.
type RecommendationStore interface {
	AddTopics(ctx context.Context, userID uuid.UUID, topicIDs []uuid.UUID) error
}

// ActivityLog records entries in the user activity feed.
type ActivityLog interface {
	Record(ctx context.Context, a *model.UserActivity) error
}

// SubmissionLock is a short-lived guard against concurrent submissions of the
// same exam by the same user.
type SubmissionLock interface {
	Acquire(ctx context.Context, examID, userID uuid.UUID) (bool, error)
	Release(ctx context.Context, examID, userID uuid.UUID) error
}

// EvaluationNotifier announces terminal results to interested listeners.
type EvaluationNotifier interface {
	Publish(ctx context.Context, r *model.ExamResult) error
}
