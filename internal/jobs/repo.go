package jobs

import (
	"context"

	"protocol-backend/internal/analysis"
)

// Repo stores job records. Implementations must be safe for concurrent use.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	UpdateStatus(ctx context.Context, jobID, status string, result *analysis.Result, errorMessage *string) error
}
