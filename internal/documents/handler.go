package documents

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"protocol-backend/internal/jobs"
	"protocol-backend/internal/shared/server/respond"
	"protocol-backend/internal/storage/b2"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches analyze routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.analyze)
	rg.POST("/analyze/async", h.analyzeAsync)
	rg.GET("/analyze/:documentId", h.status)
}

func (h *Handler) analyze(c *gin.Context) {
	content, filename, contentType, ok := h.readUpload(c)
	if !ok {
		return
	}

	result, err := h.Svc.Analyze(c.Request.Context(), content, filename, contentType)
	if err != nil {
		var upstream *b2.UpstreamError
		switch {
		case errors.Is(err, ErrStorageNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, "storage_not_configured", "object storage credentials are not configured", nil)
		case errors.As(err, &upstream):
			respond.Error(c, http.StatusBadGateway, "upstream_error", "failed to store document", gin.H{
				"upstream_status": upstream.Status,
				"operation":       upstream.Op,
			})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to analyze document", err.Error())
		}
		return
	}

	c.Set("documentId", result.DocumentID)
	c.Set("analysisStatus", result.Status)
	respond.OK(c, result)
}

func (h *Handler) analyzeAsync(c *gin.Context) {
	content, filename, contentType, ok := h.readUpload(c)
	if !ok {
		return
	}

	documentID, err := h.Svc.EnqueueAnalysis(c.Request.Context(), content, filename, contentType)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to queue document", err.Error())
		return
	}

	c.Set("documentId", documentID)
	respond.OK(c, gin.H{
		"document_id": documentID,
		"status":      jobs.StatusQueued,
		"message":     "Document queued for processing. Check status using document_id.",
	})
}

type statusResponse struct {
	DocumentID   string     `json:"document_id"`
	Status       string     `json:"status"`
	FileName     string     `json:"file_name"`
	PageCount    int        `json:"page_count"`
	Result       any        `json:"result,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (h *Handler) status(c *gin.Context) {
	documentID := c.Param("documentId")

	job, err := h.Svc.JobStatus(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document status", nil)
		return
	}

	resp := statusResponse{
		DocumentID:   job.ID,
		Status:       job.Status,
		FileName:     job.FileName,
		PageCount:    job.PageCount,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.Result != nil {
		resp.Result = job.Result
	}
	c.Set("documentId", job.ID)
	c.Set("analysisStatus", job.Status)
	respond.OK(c, resp)
}

// readUpload pulls the multipart file field into memory, closing the handle on
// every path. Missing file field is a 422 per the API contract.
func (h *Handler) readUpload(c *gin.Context) (content []byte, filename, contentType string, ok bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", "file is required", nil)
		return nil, "", "", false
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return nil, "", "", false
	}
	defer file.Close()

	content, err = io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return nil, "", "", false
	}

	filename = fileHeader.Filename
	if filename == "" {
		filename = "unknown.pdf"
	}
	contentType = fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return content, filename, contentType, true
}
