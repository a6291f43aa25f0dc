package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SubmissionLockKey guards a single (exam, user) evaluation while it is in flight.
func (r *CacheKeyStruct) SubmissionLockKey(examID, userID string) string {
	return fmt.Sprintf("cq:exam:%s:user:%s:evaluating", examID, userID)
}

// UserEvaluationChannel returns the Redis PubSub channel carrying a user's evaluation events.
func (r *CacheKeyStruct) UserEvaluationChannel(userID string) string {
	return fmt.Sprintf("user:%s:evaluations", userID)
}

var CacheKey = NewCacheKeyStruct()
