package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"protocol-backend/internal/analysis"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (id, file_name, status, page_count, result, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	resultPayload, err := marshalJSONB(job.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.FileName,
		job.Status,
		job.PageCount,
		resultPayload,
		job.ErrorMessage,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by its ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	const query = `
SELECT id, file_name, status, page_count, result, error_message, created_at, started_at, completed_at
FROM jobs WHERE id = $1`
	row := r.DB.QueryRowContext(ctx, query, jobID)

	var job Job
	var resultPayload []byte
	err := row.Scan(
		&job.ID,
		&job.FileName,
		&job.Status,
		&job.PageCount,
		&resultPayload,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	if len(resultPayload) > 0 {
		var result analysis.Result
		if err := json.Unmarshal(resultPayload, &result); err != nil {
			return Job{}, err
		}
		job.Result = &result
	}
	return job, nil
}

// UpdateStatus updates status, result, and error fields plus timestamps.
func (r *PGRepo) UpdateStatus(ctx context.Context, jobID, status string, result *analysis.Result, errorMessage *string) error {
	const query = `
UPDATE jobs
SET status = $2,
    result = COALESCE($3, result),
    error_message = COALESCE($4, error_message),
    started_at = CASE WHEN $2 = 'processing' AND started_at IS NULL THEN $5 ELSE started_at END,
    completed_at = CASE WHEN $2 IN ('completed', 'failed') AND completed_at IS NULL THEN $5 ELSE completed_at END
WHERE id = $1`
	resultPayload, err := marshalJSONB(result)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, jobID, status, resultPayload, errorMessage, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalJSONB(result *analysis.Result) (any, error) {
	if result == nil {
		return nil, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

var _ Repo = (*PGRepo)(nil)
