package b2

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when storage credentials are absent.
var ErrNotConfigured = errors.New("b2 credentials not configured")

// ErrBucketNotFound is returned when no bucket matches the configured name.
var ErrBucketNotFound = errors.New("bucket not found")

// UpstreamError carries a non-2xx response from the B2 API.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("b2 %s: upstream status %d: %s", e.Op, e.Status, e.Body)
}
