package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cq-evaluator/internal/model"
)

// ActivityRepository writes the user activity feed.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Record inserts an activity entry.
func (r *ActivityRepository) Record(ctx context.Context, a *model.UserActivity) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO user_activities (id, user_id, activity_type, exam_id, exam_type, message)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		a.ID, a.UserID, a.ActivityType, a.ExamID, a.ExamType, a.Message,
	).Scan(&a.CreatedAt)
}
