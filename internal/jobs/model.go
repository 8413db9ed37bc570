package jobs

import (
	"errors"
	"time"

	"protocol-backend/internal/analysis"
)

// Job statuses. queued and processing are non-terminal.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrNotFound is returned when no job matches the given id.
var ErrNotFound = errors.New("job not found")

// Job records one asynchronous analyze request. The ID doubles as the
// caller-facing document id.
type Job struct {
	ID           string
	FileName     string
	Status       string
	PageCount    int
	Result       *analysis.Result
	ErrorMessage *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
