package jobs

import (
	"context"
	"sync"
	"time"

	"protocol-backend/internal/analysis"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Job)}
}

// Create stores the job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = job
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// UpdateStatus updates status, result, and error fields plus timestamps.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, jobID, status string, result *analysis.Result, errorMessage *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	if result != nil {
		job.Result = result
	}
	if errorMessage != nil {
		job.ErrorMessage = errorMessage
	}
	now := time.Now().UTC()
	switch status {
	case StatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case StatusCompleted, StatusFailed:
		if job.CompletedAt == nil {
			job.CompletedAt = &now
		}
	}
	r.byID[jobID] = job
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
