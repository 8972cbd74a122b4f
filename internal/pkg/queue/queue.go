// Package queue provides an at-least-once background job queue: a Broker carries
// jobs, a Pool of workers runs the handler registered for each job type, failed
// attempts are retried with exponential backoff and jobs that exhaust their retry
// budget are written to a FailedJobStore.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoHandler is recorded when a job type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job type")
	// ErrBrokerClosed is returned by Pop after Close.
	ErrBrokerClosed = errors.New("broker closed")
)

// Job is a unit of work carried by a Broker.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	LastError   string          `json:"lastError,omitempty"`

	// receipt identifies the delivery to the broker that popped the job
	receipt string
}

// NewJob marshals payload into a new job with a random id.
func NewJob(jobType string, payload any, maxAttempts int) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

// HandlerFunc processes one job. A non-nil error schedules a retry.
type HandlerFunc func(ctx context.Context, job Job) error

// Enqueuer is the producer side of the queue. Callers enqueue and return.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) (string, error)
}

// Broker moves jobs between producers and workers.
type Broker interface {
	Push(ctx context.Context, job Job) error
	// Pop blocks until a job is available, ctx is done or the broker is closed.
	Pop(ctx context.Context) (Job, error)
	// Ack releases a popped job once it has completed, been requeued or been
	// dead-lettered. A durable broker redelivers unacknowledged jobs after a restart.
	Ack(ctx context.Context, job Job) error
	Close() error
}

// FailedJob is the dead-letter record of a job whose retries are exhausted.
type FailedJob struct {
	ID       int64           `json:"id"`
	JobID    string          `json:"jobId"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failedAt"`
}

// FailedJobStore persists dead-lettered jobs.
type FailedJobStore interface {
	Record(ctx context.Context, job FailedJob) error
	List(ctx context.Context, limit int, offset uint64) ([]FailedJob, int64, error)
}

// Nop swallows jobs. Used where background work is disabled.
type Nop struct{}

var _ Enqueuer = Nop{}

func (Nop) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	return "", nil
}
