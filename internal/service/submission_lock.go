package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cq-evaluator/internal/config"
	"github.com/stemsi/cq-evaluator/internal/model"
)

// RedisSubmissionLock implements SubmissionLock with SETNX keys that expire
// after ttl, so a crashed evaluation cannot block the user forever.
type RedisSubmissionLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSubmissionLock creates a new RedisSubmissionLock.
func NewRedisSubmissionLock(rdb *redis.Client, ttl time.Duration) *RedisSubmissionLock {
	return &RedisSubmissionLock{rdb: rdb, ttl: ttl}
}

func (l *RedisSubmissionLock) Acquire(ctx context.Context, examID, userID uuid.UUID) (bool, error) {
	key := config.CacheKey.SubmissionLockKey(examID.String(), userID.String())
	ok, err := l.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (l *RedisSubmissionLock) Release(ctx context.Context, examID, userID uuid.UUID) error {
	key := config.CacheKey.SubmissionLockKey(examID.String(), userID.String())
	return l.rdb.Del(ctx, key).Err()
}

// RedisEvaluationNotifier publishes terminal results on the user's
// evaluation channel.
type RedisEvaluationNotifier struct {
	rdb *redis.Client
}

// NewRedisEvaluationNotifier creates a new RedisEvaluationNotifier.
func NewRedisEvaluationNotifier(rdb *redis.Client) *RedisEvaluationNotifier {
	return &RedisEvaluationNotifier{rdb: rdb}
}

func (n *RedisEvaluationNotifier) Publish(ctx context.Context, r *model.ExamResult) error {
	payload, err := json.Marshal(model.EvaluationEvent{
		ResultID:           r.ID,
		ExamID:             r.ExamID,
		Status:             r.Status,
		TotalMarksObtained: r.TotalMarksObtained,
		AuraChange:         r.AuraChange,
		ErrorMessage:       r.ErrorMessage,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := config.CacheKey.UserEvaluationChannel(r.UserID.String())
	return n.rdb.Publish(ctx, channel, payload).Err()
}
