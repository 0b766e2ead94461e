// Package jobqueue runs pull request reviews as River jobs backed by
// PostgreSQL. Enqueueing is idempotent on the webhook delivery id, so a
// redelivered webhook never produces a second review of the same event.
package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/diffsentry/pkg/models"
)

// ReviewJobArgs carries one webhook delivery through the queue. The
// delivery id is the uniqueness key: inserting the same delivery twice is
// a no-op.
type ReviewJobArgs struct {
	PR         models.PullRequest `json:"pr"`
	DeliveryID string             `json:"delivery_id" river:"unique"`
	TraceID    string             `json:"trace_id"`
}

func (ReviewJobArgs) Kind() string { return "pr_review" }

func (ReviewJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: maxJobAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	}
}

// ReviewRunner is the pipeline a worker hands each job to.
type ReviewRunner interface {
	Run(ctx context.Context, pr models.PullRequest, deliveryID, traceID string) error
}

// ReviewWorker executes review jobs. Job starts share a rate limiter so a
// burst of webhooks cannot stampede the model provider.
type ReviewWorker struct {
	river.WorkerDefaults[ReviewJobArgs]
	runner  ReviewRunner
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func (w *ReviewWorker) Work(ctx context.Context, job *river.Job[ReviewJobArgs]) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	logger := w.logger.With().
		Str("delivery_id", job.Args.DeliveryID).
		Str("trace_id", job.Args.TraceID).
		Str("pr", fmt.Sprintf("%s#%d", job.Args.PR.FullName(), job.Args.PR.Number)).
		Int("attempt", job.Attempt).
		Logger()

	logger.Info().Msg("Starting review job")

	if err := w.runner.Run(ctx, job.Args.PR, job.Args.DeliveryID, job.Args.TraceID); err != nil {
		logger.Error().Err(err).Msg("Review job failed")
		return err
	}

	logger.Info().Msg("Review job completed")
	return nil
}

// JobQueue owns the River client and the shared connection pool.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue registers the review worker and builds the River client on a
// pool shared with the store. The caller owns the pool's lifecycle.
func NewJobQueue(pool *pgxpool.Pool, cfg *QueueConfig, runner ReviewRunner, logger zerolog.Logger) (*JobQueue, error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, &ReviewWorker{
		runner:  runner,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.JobsPerMinute)/60.0), cfg.JobBurst),
		logger:  logger.With().Str("component", "review_worker").Logger(),
	})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  cfg.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool, config: cfg}, nil
}

// Pool returns the underlying pgx pool for sharing with the store.
func (jq *JobQueue) Pool() *pgxpool.Pool {
	return jq.pool
}

// Start begins working jobs.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop drains running jobs. The shared pool stays open for the caller.
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// EnqueueReview inserts a review job. Returns false when the delivery id
// was already enqueued and the insert was skipped.
func (jq *JobQueue) EnqueueReview(ctx context.Context, pr models.PullRequest, deliveryID, traceID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}

	res, err := jq.client.Insert(ctx, ReviewJobArgs{PR: pr, DeliveryID: deliveryID, TraceID: traceID}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue review job: %w", err)
	}
	return !res.UniqueSkippedAsDuplicate, nil
}
