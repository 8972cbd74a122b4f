package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate = validator.New()

// Options tunes the worker pool.
type Options struct {
	Workers     int           `validate:"min=1,max=256"`
	MaxAttempts int           `validate:"min=1,max=50"`
	BackoffBase time.Duration `validate:"min=0"`
	BackoffMax  time.Duration `validate:"gtefield=BackoffBase"`
	// JobTimeout bounds a single attempt; zero means no limit.
	JobTimeout time.Duration `validate:"min=0"`
}

// DefaultOptions mirrors the defaults in config.
func DefaultOptions() Options {
	return Options{
		Workers:     4,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
		JobTimeout:  10 * time.Minute,
	}
}

// Validate checks the options against their struct tags.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid queue options: %w", err)
	}
	return nil
}

// Backoff returns the delay before the given retry (1-based), doubling from BackoffBase up to BackoffMax.
func (o Options) Backoff(attempt int) time.Duration {
	if attempt < 1 || o.BackoffBase <= 0 {
		return 0
	}
	d := o.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if o.BackoffMax > 0 && d >= o.BackoffMax {
			return o.BackoffMax
		}
	}
	if o.BackoffMax > 0 && d > o.BackoffMax {
		return o.BackoffMax
	}
	return d
}

// Pool pulls jobs from a Broker and runs them on a fixed number of workers.
type Pool struct {
	broker   Broker
	failed   FailedJobStore
	opts     Options
	logger   zerolog.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	cancel  context.CancelFunc
	workers sync.WaitGroup
	retries sync.WaitGroup
}

var _ Enqueuer = (*Pool)(nil)

// NewPool creates a worker pool. Handlers must be registered before Start.
func NewPool(broker Broker, failed FailedJobStore, opts Options, logger zerolog.Logger) (*Pool, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if failed == nil {
		failed = NewMemoryFailedJobStore()
	}
	return &Pool{
		broker:   broker,
		failed:   failed,
		opts:     opts,
		logger:   logger.With().Str("component", "queue").Logger(),
		handlers: make(map[string]HandlerFunc),
	}, nil
}

// Register binds a handler to a job type.
func (p *Pool) Register(jobType string, h HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = h
}

func (p *Pool) handler(jobType string) (HandlerFunc, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[jobType]
	return h, ok
}

// FailedJobs exposes the dead-letter store.
func (p *Pool) FailedJobs() FailedJobStore {
	return p.failed
}

// Enqueue wraps payload in a job and pushes it to the broker. It does not wait for the job to run.
func (p *Pool) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	job, err := NewJob(jobType, payload, p.opts.MaxAttempts)
	if err != nil {
		return "", err
	}
	if err := p.broker.Push(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	p.logger.Debug().Str("jobId", job.ID).Str("jobType", jobType).Msg("Job enqueued")
	return job.ID, nil
}

// Start launches the workers. It returns immediately.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		p.workers.Add(1)
		go p.work(ctx, i)
	}
	p.logger.Info().Int("workers", p.opts.Workers).Int("maxAttempts", p.opts.MaxAttempts).Msg("Queue workers started")
}

// Stop stops pulling new jobs and waits for in-flight jobs to finish or ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		p.retries.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Queue workers stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue shutdown timed out: %w", ctx.Err())
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.workers.Done()
	lgr := p.logger.With().Int("worker", id).Logger()

	for {
		job, err := p.broker.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrBrokerClosed) {
				return
			}
			lgr.Error().Err(err).Msg("Failed to pull job")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		p.process(ctx, job)
	}
}

// process runs one attempt. A job in flight is never cancelled by Stop. The
// delivery is acknowledged only once the job has completed, been requeued or
// been dead-lettered.
func (p *Pool) process(ctx context.Context, job Job) {
	job.Attempts++
	lgr := p.logger.With().
		Str("jobId", job.ID).
		Str("jobType", job.Type).
		Int("attempt", job.Attempts).
		Logger()

	h, ok := p.handler(job.Type)
	if !ok {
		if p.deadLetter(job, ErrNoHandler, lgr) {
			p.ack(job, lgr)
		}
		return
	}

	runCtx := context.WithoutCancel(ctx)
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, p.opts.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(runCtx, h, job)
	if err == nil {
		lgr.Debug().Dur("took", time.Since(start)).Msg("Job completed")
		p.ack(job, lgr)
		return
	}

	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		if p.deadLetter(job, err, lgr) {
			p.ack(job, lgr)
		}
		return
	}

	delay := p.opts.Backoff(job.Attempts)
	lgr.Warn().Err(err).Dur("retryIn", delay).Msg("Job failed, scheduling retry")
	p.scheduleRetry(ctx, job, delay, lgr)
}

func (p *Pool) scheduleRetry(ctx context.Context, job Job, delay time.Duration, lgr zerolog.Logger) {
	p.retries.Add(1)
	go func() {
		defer p.retries.Done()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// push back right away so a durable broker keeps the job across restarts
		}
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		retry := job
		retry.receipt = ""
		if err := p.broker.Push(pushCtx, retry); err != nil {
			lgr.Error().Err(err).Msg("Failed to requeue job")
			if !p.deadLetter(job, fmt.Errorf("requeue failed: %w", err), lgr) {
				return
			}
		}
		p.ack(job, lgr)
	}()
}

// ack releases the delivery. A failed ack leaves the job for redelivery.
func (p *Pool) ack(job Job, lgr zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.broker.Ack(ctx, job); err != nil {
		lgr.Error().Err(err).Msg("Failed to acknowledge job")
	}
}

// deadLetter records the job as failed and reports whether the record was stored.
func (p *Pool) deadLetter(job Job, cause error, lgr zerolog.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := FailedJob{
		JobID:    job.ID,
		Type:     job.Type,
		Payload:  job.Payload,
		Attempts: job.Attempts,
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
	}
	if err := p.failed.Record(ctx, record); err != nil {
		lgr.Error().Err(err).AnErr("cause", cause).Msg("Failed to record failed job")
		return false
	}
	lgr.Error().Err(cause).Msg("Job permanently failed")
	return true
}

func safeRun(ctx context.Context, h HandlerFunc, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, job)
}
