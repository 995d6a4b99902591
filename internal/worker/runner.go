// Package worker drives the job queue to completion: lease a batch,
// dispatch each job by type, record the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/hash"
	"github.com/skillens/skillens/internal/log"
	"github.com/skillens/skillens/internal/models"
)

// Handler executes one job. Handlers must be idempotent: a retried job
// whose previous attempt partially succeeded must converge on the same
// rows, not duplicate them.
type Handler interface {
	Handle(ctx context.Context, job *models.AnalysisJob) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *models.AnalysisJob) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *models.AnalysisJob) error {
	return f(ctx, job)
}

// Options tunes the runner loop.
type Options struct {
	WorkerID       string
	LeaseBatch     int
	Concurrency    int
	PollInterval   time.Duration
	HandlerTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		WorkerID:       defaultWorkerID(),
		LeaseBatch:     10,
		Concurrency:    4,
		PollInterval:   5 * time.Second,
		HandlerTimeout: 10 * time.Minute,
	}
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), hash.TruncatedSHA256(fmt.Sprint(time.Now().UnixNano()))[:6])
}

// Runner leases jobs and dispatches them to registered handlers.
type Runner struct {
	db       *db.DB
	handlers map[models.JobType]Handler
	opts     Options
}

// New creates a runner. Handlers are registered per job type; leasing
// only considers registered types.
func New(database *db.DB, opts Options) *Runner {
	if opts.WorkerID == "" {
		opts.WorkerID = defaultWorkerID()
	}
	if opts.LeaseBatch <= 0 {
		opts.LeaseBatch = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{
		db:       database,
		handlers: make(map[models.JobType]Handler),
		opts:     opts,
	}
}

// Register installs the handler for a job type.
func (r *Runner) Register(jobType models.JobType, h Handler) {
	r.handlers[jobType] = h
}

// WorkerID returns the runner's lease identity.
func (r *Runner) WorkerID() string {
	return r.opts.WorkerID
}

// jobTypes returns the registered types in dispatch-table order.
func (r *Runner) jobTypes() []models.JobType {
	types := make([]models.JobType, 0, len(r.handlers))
	for _, t := range models.AllJobTypes() {
		if _, ok := r.handlers[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// RunOnce leases one batch and processes it, returning the number of
// jobs handled. Individual job failures are recorded against the job,
// never returned: nothing a handler does is fatal to the runner.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	jobs, err := r.db.LeaseJobs(r.opts.WorkerID, r.jobTypes(), r.opts.LeaseBatch)
	if err != nil {
		return 0, fmt.Errorf("lease jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			r.process(gctx, &job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

// Run polls until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	log.L().Info("worker started",
		zap.String("worker_id", r.opts.WorkerID),
		zap.Int("lease_batch", r.opts.LeaseBatch),
		zap.Int("concurrency", r.opts.Concurrency))

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := r.RunOnce(ctx)
		if err != nil {
			log.L().Error("lease cycle failed", zap.Error(err))
		}
		if processed > 0 {
			// Drain eagerly while work is available.
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process runs one leased job and records its outcome.
func (r *Runner) process(ctx context.Context, job *models.AnalysisJob) {
	logger := log.L().With(
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.String("target", job.TargetKey()),
		zap.Int("attempt", job.AttemptCount+1))

	handler, ok := r.handlers[job.JobType]
	if !ok {
		// Leasing filters on registered types, so this means the
		// dispatch table changed under us.
		r.recordFailure(job, fmt.Errorf("no handler for job type %q", job.JobType), logger)
		return
	}

	hctx := ctx
	if r.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, r.opts.HandlerTimeout)
		defer cancel()
	}

	err := r.invoke(hctx, handler, job)
	if err != nil {
		r.recordFailure(job, err, logger)
		return
	}

	if err := r.db.CompleteJob(job.ID); err != nil {
		if errors.Is(err, db.ErrStaleTransition) {
			logger.Warn("complete on stale lease", zap.Error(err))
			return
		}
		logger.Error("record completion", zap.Error(err))
		return
	}
	logger.Info("job done")
}

// invoke calls the handler, converting panics into retryable errors so a
// bad job cannot take the worker process down.
func (r *Runner) invoke(ctx context.Context, handler Handler, job *models.AnalysisJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler.Handle(ctx, job)
}

func (r *Runner) recordFailure(job *models.AnalysisJob, jobErr error, logger *zap.Logger) {
	if err := r.db.FailJob(job.ID, jobErr); err != nil {
		if errors.Is(err, db.ErrStaleTransition) {
			logger.Warn("fail on stale lease", zap.Error(jobErr))
			return
		}
		logger.Error("record failure", zap.Error(err))
		return
	}
	logger.Warn("job failed", zap.Error(jobErr))
}
