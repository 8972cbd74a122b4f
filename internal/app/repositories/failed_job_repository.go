package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/registrar/internal/pkg/queue"
)

type failedJobRepository struct {
	db *pgxpool.Pool
}

// NewFailedJobRepository creates the Postgres dead-letter store
func NewFailedJobRepository(db *pgxpool.Pool) queue.FailedJobStore {
	return &failedJobRepository{db: db}
}

// Record stores a job whose retries are exhausted
func (r *failedJobRepository) Record(ctx context.Context, job queue.FailedJob) error {
	sql, args, err := psql.Insert("failed_jobs").
		Columns("job_id", "job_type", "payload", "attempts", "error", "failed_at").
		Values(job.JobID, job.Type, []byte(job.Payload), job.Attempts, job.Error, job.FailedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building failed job insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("error recording failed job %s: %w", job.JobID, err)
	}
	return nil
}

// List returns failed jobs, newest first, with the total count
func (r *failedJobRepository) List(ctx context.Context, limit int, offset uint64) ([]queue.FailedJob, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting failed jobs: %w", err)
	}

	sql, args, err := psql.Select("id", "job_id", "job_type", "payload", "attempts", "error", "failed_at").
		From("failed_jobs").
		OrderBy("failed_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("error building failed job query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing failed jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]queue.FailedJob, 0, limit)
	for rows.Next() {
		var (
			job     queue.FailedJob
			payload []byte
		)
		if err := rows.Scan(&job.ID, &job.JobID, &job.Type, &payload, &job.Attempts, &job.Error, &job.FailedAt); err != nil {
			return nil, 0, fmt.Errorf("error scanning failed job: %w", err)
		}
		job.Payload = payload
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}
