package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/config"
	"github.com/stemsi/cq-evaluator/internal/model"
)

const (
	SubmissionPollTimeout = 1 * time.Second
	// SubmissionErrorBackoff pauses the loop after Redis itself fails.
	SubmissionErrorBackoff = 2 * time.Second
)

// SubmissionQueue pushes accepted submissions onto the evaluation queue.
type SubmissionQueue struct {
	rdb redis.Cmdable
	key string
}

// NewSubmissionQueue creates a queue producer on config.WorkerKey.EvaluateSubmissionQueue.
func NewSubmissionQueue(rdb redis.Cmdable) *SubmissionQueue {
	return &SubmissionQueue{rdb: rdb, key: config.WorkerKey.EvaluateSubmissionQueue}
}

// Enqueue appends the job to the tail of the queue.
func (q *SubmissionQueue) Enqueue(ctx context.Context, job *model.EvaluationJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal evaluation job: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("push evaluation job: %w", err)
	}
	return nil
}

// JobProcessor grades one queued submission.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *model.EvaluationJob) error
}

// SubmissionWorker consumes the evaluation queue and grades submissions with
// up to `concurrency` jobs in flight.
type SubmissionWorker struct {
	rdb         redis.Cmdable
	processor   JobProcessor
	key         string
	concurrency int
	log         zerolog.Logger
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(rdb redis.Cmdable, processor JobProcessor, concurrency int, log zerolog.Logger) *SubmissionWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SubmissionWorker{
		rdb:         rdb,
		processor:   processor,
		key:         config.WorkerKey.EvaluateSubmissionQueue,
		concurrency: concurrency,
		log:         log.With().Str("component", "submission_worker").Logger(),
	}
}

// Start begins the worker loop and blocks until ctx is cancelled and every
// in-flight job has finished. Call in a goroutine. Jobs still queued stay in
// Redis for the next start.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Int("concurrency", w.concurrency).Msg("Worker started")

	slots := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for {
		// Take a slot before popping so a job never waits in memory.
		select {
		case <-ctx.Done():
			w.stop(&wg)
			return
		case slots <- struct{}{}:
		}

		job, err := w.next(ctx)
		if err != nil || job == nil {
			<-slots
			if err != nil {
				w.sleep(ctx, SubmissionErrorBackoff)
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			w.process(ctx, job)
		}()
	}
}

func (w *SubmissionWorker) stop(wg *sync.WaitGroup) {
	w.log.Info().Msg("Worker stopping, waiting for in-flight evaluations...")
	wg.Wait()
	w.log.Info().Msg("Worker stopped")
}

// next pops one job. A nil job with a nil error means the poll timed out or
// the payload was unusable.
func (w *SubmissionWorker) next(ctx context.Context) (*model.EvaluationJob, error) {
	item, err := w.rdb.BLPop(ctx, SubmissionPollTimeout, w.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		w.log.Error().Err(err).Msg("BLPop error")
		return nil, err
	}
	if len(item) < 2 {
		return nil, nil
	}

	var job model.EvaluationJob
	if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("Dropping invalid evaluation job payload")
		return nil, nil
	}
	return &job, nil
}

func (w *SubmissionWorker) process(ctx context.Context, job *model.EvaluationJob) {
	log := w.log.With().
		Str("result_id", job.ResultID.String()).
		Str("exam_id", job.Submission.ExamID.String()).
		Str("user_id", job.Submission.UserID.String()).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Evaluation job panicked")
		}
	}()

	start := time.Now()
	// Shutdown lets a started job finish. Failed jobs are not retried; the
	// result is left in the error status and the student may resubmit.
	if err := w.processor.ProcessJob(context.WithoutCancel(ctx), job); err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("Evaluation job failed")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("Evaluation job done")
}

func (w *SubmissionWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
