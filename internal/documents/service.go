package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"protocol-backend/internal/analysis"
	"protocol-backend/internal/extract"
	"protocol-backend/internal/jobs"
	"protocol-backend/internal/shared/metrics"
	"protocol-backend/internal/shared/telemetry"
)

// ErrStorageNotConfigured is returned when the object-storage credentials are
// absent; the analyze flow requires a public document URL.
var ErrStorageNotConfigured = errors.New("object storage not configured")

// Storage uploads document bytes and returns a public URL.
type Storage interface {
	Configured() bool
	Upload(ctx context.Context, content []byte, filename, contentType string) (fileID, publicURL string, err error)
}

// Analyzer runs the submit/poll/parse flow against the analysis provider.
type Analyzer interface {
	Analyze(ctx context.Context, documentURL string) analysis.Result
}

// Downstream forwards extracted fields to the external processing API.
type Downstream interface {
	Process(ctx context.Context, fields map[string]any) map[string]any
}

// Service orchestrates storage, analysis, and job bookkeeping.
type Service struct {
	Storage    Storage
	Analyzer   Analyzer
	Downstream Downstream
	Jobs       jobs.Repo
	Runner     *jobs.Runner
}

// Analyze uploads the document to object storage and runs analysis on the
// resulting public URL. The sync contract always routes through storage.
func (s *Service) Analyze(ctx context.Context, content []byte, filename, contentType string) (analysis.Result, error) {
	if !s.Storage.Configured() {
		return analysis.Result{}, ErrStorageNotConfigured
	}

	start := time.Now()
	metrics.IncAnalysisStarted()

	fileID, publicURL, err := s.Storage.Upload(ctx, content, filename, contentType)
	if err != nil {
		metrics.IncAnalysisFailed()
		return analysis.Result{}, err
	}
	telemetry.Info("document.stored", map[string]any{
		"file_id":    fileID,
		"file_name":  filename,
		"size_bytes": len(content),
		"page_count": extract.PageCount(content),
	})

	result := s.Analyzer.Analyze(ctx, publicURL)
	if result.Status == analysis.StatusSuccess {
		metrics.IncAnalysisCompleted()
		s.forwardDownstream(ctx, result)
	} else {
		metrics.IncAnalysisFailed()
	}
	metrics.ObserveAnalysisDurationMs(float64(time.Since(start).Milliseconds()))
	return result, nil
}

// EnqueueAnalysis records a queued job and hands it to the background runner.
// The returned id is the caller-facing document id for status polling.
func (s *Service) EnqueueAnalysis(ctx context.Context, content []byte, filename, contentType string) (string, error) {
	job := jobs.Job{
		ID:        uuid.NewString(),
		FileName:  filename,
		Status:    jobs.StatusQueued,
		PageCount: extract.PageCount(content),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return "", err
	}
	s.Runner.Enqueue(job, content, contentType)
	return job.ID, nil
}

// Process is the runner callback: upload then analyze, with the result pinned
// to the job's document id.
func (s *Service) Process(ctx context.Context, job jobs.Job, content []byte, contentType string) (analysis.Result, error) {
	if !s.Storage.Configured() {
		return analysis.Result{}, ErrStorageNotConfigured
	}

	fileID, publicURL, err := s.Storage.Upload(ctx, content, job.FileName, contentType)
	if err != nil {
		return analysis.Result{}, err
	}
	telemetry.Info("document.stored", map[string]any{
		"document_id": job.ID,
		"file_id":     fileID,
		"file_name":   job.FileName,
		"size_bytes":  len(content),
	})

	result := s.Analyzer.Analyze(ctx, publicURL)
	result.DocumentID = job.ID
	if result.Status == analysis.StatusSuccess {
		s.forwardDownstream(ctx, result)
	}
	return result, nil
}

// JobStatus returns the job record for a document id.
func (s *Service) JobStatus(ctx context.Context, documentID string) (jobs.Job, error) {
	return s.Jobs.GetByID(ctx, documentID)
}

// forwardDownstream pushes extracted fields to the processing API when wired.
// Failures are logged only; the analyze response does not depend on it.
func (s *Service) forwardDownstream(ctx context.Context, result analysis.Result) {
	if s.Downstream == nil || len(result.Fields) == 0 {
		return
	}
	fields := make(map[string]any, len(result.Fields))
	for _, f := range result.Fields {
		fields[f.FieldName] = f.Value
	}
	descriptor := s.Downstream.Process(ctx, fields)
	if status, ok := descriptor["status"].(string); ok && status == "error" {
		telemetry.Error("downstream.process_failed", map[string]any{
			"document_id": result.DocumentID,
			"error":       descriptor["error"],
		})
		return
	}
	telemetry.Info("downstream.processed", map[string]any{"document_id": result.DocumentID})
}
