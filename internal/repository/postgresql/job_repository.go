package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rulegen-service/internal/entity"
)

var ErrNotFound = errors.New("not found")

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, logFileID uuid.UUID, requestedRuleID *int) (uuid.UUID, error) {
	const q = `
INSERT INTO jobs (log_file_id, status, requested_rule_id)
VALUES ($1, 'pending', $2)
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, logFileID, requestedRuleID).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, log_file_id, status, retry_count, requested_rule_id, error_message,
       started_at, completed_at, created_at
FROM jobs
WHERE id = $1;
`
	var (
		job        entity.Job
		statusText string
	)
	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&job.LogFileID,
		&statusText,
		&job.RetryCount,
		&job.RequestedRuleID,
		&job.ErrorMessage,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.Status = entity.JobStatus(statusText)
	return &job, nil
}

func (r *JobRepository) List(ctx context.Context) ([]entity.Job, error) {
	const q = `
SELECT id, log_file_id, status, retry_count, requested_rule_id, error_message,
       started_at, completed_at, created_at
FROM jobs
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []entity.Job
	for rows.Next() {
		var (
			job        entity.Job
			statusText string
		)
		if err := rows.Scan(
			&job.ID,
			&job.LogFileID,
			&statusText,
			&job.RetryCount,
			&job.RequestedRuleID,
			&job.ErrorMessage,
			&job.StartedAt,
			&job.CompletedAt,
			&job.CreatedAt,
		); err != nil {
			return nil, err
		}
		job.Status = entity.JobStatus(statusText)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) ListIDsByLogFile(ctx context.Context, logFileID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT id FROM jobs WHERE log_file_id = $1;`

	rows, err := r.pool.Query(ctx, q, logFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkProcessing records the transition into processing. StartedAt is written
// only when it is still NULL so retries keep the original clock.
func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID, retryCount int, startedAt time.Time) error {
	const q = `
UPDATE jobs
SET status = 'processing',
    retry_count = $2,
    started_at = COALESCE(started_at, $3)
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, q, id, retryCount, startedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	const q = `
UPDATE jobs SET status='completed', completed_at=$2, error_message=NULL WHERE id=$1;
`
	tag, err := r.pool.Exec(ctx, q, id, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	const q = `UPDATE jobs SET status='failed', error_message=$2 WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id, errText)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM jobs WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
