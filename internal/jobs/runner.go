package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"protocol-backend/internal/analysis"
	"protocol-backend/internal/shared/metrics"
	"protocol-backend/internal/shared/telemetry"
)

// ProcessFunc runs the upload-then-analyze chain for one job.
type ProcessFunc func(ctx context.Context, job Job, content []byte, contentType string) (analysis.Result, error)

// Runner executes queued jobs on background goroutines and records their
// status transitions in the repo.
type Runner struct {
	Repo    Repo
	Process ProcessFunc

	wg sync.WaitGroup
}

// Enqueue hands the job to a background goroutine and returns immediately.
// The job must already exist in the repo with status queued.
func (r *Runner) Enqueue(job Job, content []byte, contentType string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job, content, contentType)
	}()
}

// Wait blocks until all in-flight jobs finish. Used by tests and shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(job Job, content []byte, contentType string) {
	ctx := context.Background()
	start := time.Now()
	metrics.IncAnalysisStarted()

	defer func() {
		if rec := recover(); rec != nil {
			message := fmt.Sprintf("job panic: %v", rec)
			r.fail(ctx, job.ID, message)
		}
	}()

	if err := r.Repo.UpdateStatus(ctx, job.ID, StatusProcessing, nil, nil); err != nil {
		telemetry.Error("job.transition_failed", map[string]any{"document_id": job.ID, "err": err.Error()})
	}
	telemetry.Info("job.started", map[string]any{
		"document_id": job.ID,
		"file_name":   job.FileName,
		"page_count":  job.PageCount,
	})

	result, err := r.Process(ctx, job, content, contentType)
	if err != nil {
		r.fail(ctx, job.ID, err.Error())
		metrics.ObserveAnalysisDurationMs(float64(time.Since(start).Milliseconds()))
		return
	}

	if result.Status == analysis.StatusSuccess {
		if err := r.Repo.UpdateStatus(ctx, job.ID, StatusCompleted, &result, nil); err != nil {
			telemetry.Error("job.transition_failed", map[string]any{"document_id": job.ID, "err": err.Error()})
		}
		metrics.IncAnalysisCompleted()
		telemetry.Info("job.completed", map[string]any{
			"document_id": job.ID,
			"fields":      len(result.Fields),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	} else {
		message := result.Status
		if result.ErrorMessage != nil {
			message = *result.ErrorMessage
		}
		if err := r.Repo.UpdateStatus(ctx, job.ID, StatusFailed, &result, &message); err != nil {
			telemetry.Error("job.transition_failed", map[string]any{"document_id": job.ID, "err": err.Error()})
		}
		metrics.IncAnalysisFailed()
	}
	metrics.ObserveAnalysisDurationMs(float64(time.Since(start).Milliseconds()))
}

func (r *Runner) fail(ctx context.Context, jobID, message string) {
	if err := r.Repo.UpdateStatus(ctx, jobID, StatusFailed, nil, &message); err != nil {
		telemetry.Error("job.transition_failed", map[string]any{"document_id": jobID, "err": err.Error()})
	}
	metrics.IncAnalysisFailed()
	telemetry.Error("job.failed", map[string]any{"document_id": jobID, "err": message})
}
