package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"protocol-backend/internal/shared/telemetry"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 60
	defaultHTTPTimeout  = 300 * time.Second
)

// ErrMissingOperationLocation indicates a 202 submission response without the
// Operation-Location header.
var ErrMissingOperationLocation = errors.New("no Operation-Location header in response")

// Config carries the provider endpoint and polling behavior.
type Config struct {
	Endpoint     string
	Key          string
	APIVersion   string
	AnalyzerName string
	PollInterval time.Duration
	MaxPolls     int
	HTTPTimeout  time.Duration
}

// Client submits documents to the content-understanding provider and polls
// the resulting asynchronous operation until terminal.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a Client. Zero-valued polling knobs fall back to
// provider-friendly defaults.
func NewClient(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = defaultMaxPolls
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		sleep:      sleepCtx,
	}
}

// Configured reports whether all provider settings are present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.Endpoint) != "" &&
		strings.TrimSpace(c.cfg.Key) != "" &&
		strings.TrimSpace(c.cfg.APIVersion) != "" &&
		strings.TrimSpace(c.cfg.AnalyzerName) != ""
}

// Analyze runs submit, poll, and parse for one document URL. It never returns
// an error: failures come back as a Result with status "error", and missing
// configuration short-circuits to "not_configured" without any network call.
func (c *Client) Analyze(ctx context.Context, documentURL string) Result {
	documentID := uuid.NewString()

	if !c.Configured() {
		message := "analysis credentials not fully configured; check ANALYSIS_ENDPOINT, ANALYSIS_KEY, ANALYSIS_API_VERSION, and ANALYSIS_ANALYZER_NAME"
		return Result{
			DocumentID:   documentID,
			Fields:       []ExtractedField{},
			Status:       StatusNotConfigured,
			ErrorMessage: &message,
		}
	}

	operationLocation, err := c.Submit(ctx, documentURL)
	if err != nil {
		return errorResult(documentID, err.Error())
	}

	payload, err := c.Poll(ctx, operationLocation)
	if err != nil {
		return errorResult(documentID, err.Error())
	}

	result := c.Parse(documentID, payload)
	telemetry.Info("analysis.complete", map[string]any{
		"document_id": documentID,
		"fields":      len(result.Fields),
	})
	return result
}

// Submit posts the document URL to the analyzer and returns the operation
// location handle from the 202 response.
func (c *Client) Submit(ctx context.Context, documentURL string) (string, error) {
	analyzeURL := fmt.Sprintf("%s/%s:analyze?api-version=%s", c.cfg.Endpoint, c.cfg.AnalyzerName, c.cfg.APIVersion)

	payload, err := json.Marshal(map[string]any{
		"inputs": []map[string]string{{"url": documentURL}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis submit: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("analysis submit read body: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("analysis submit: upstream status %d: %s", resp.StatusCode, string(body))
	}

	operationLocation := resp.Header.Get("Operation-Location")
	if operationLocation == "" {
		return "", ErrMissingOperationLocation
	}
	return operationLocation, nil
}

// Poll issues authenticated GETs against the operation location until a
// terminal status, sleeping PollInterval between attempts, capped at MaxPolls.
func (c *Client) Poll(ctx context.Context, operationLocation string) (json.RawMessage, error) {
	for attempt := 0; attempt < c.cfg.MaxPolls; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationLocation, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("analysis poll: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("analysis poll read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("analysis poll: upstream status %d: %s", resp.StatusCode, string(body))
		}

		var parsed struct {
			Status string `json:"status"`
			Error  struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("analysis poll response parse: %w", err)
		}

		switch strings.ToLower(parsed.Status) {
		case "succeeded":
			return json.RawMessage(body), nil
		case "failed", "cancelled":
			message := parsed.Error.Message
			if message == "" {
				message = "analysis failed"
			}
			return nil, fmt.Errorf("analysis %s: %s", strings.ToLower(parsed.Status), message)
		case "notstarted", "running":
			if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown status: %q", parsed.Status)
		}
	}

	elapsed := time.Duration(c.cfg.MaxPolls) * c.cfg.PollInterval
	return nil, fmt.Errorf("analysis timed out after %s (%d polls)", elapsed, c.cfg.MaxPolls)
}

// Parse maps a terminal success payload into the normalized field list.
// Fields whose entry is null, or whose resolved value is null, are skipped;
// output order follows the provider's own field ordering.
func (c *Client) Parse(documentID string, payload json.RawMessage) Result {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return errorResult(documentID, fmt.Sprintf("analysis result parse: %v", err))
	}

	fields, err := extractFields(payload)
	if err != nil {
		return errorResult(documentID, fmt.Sprintf("analysis result parse: %v", err))
	}

	return Result{
		DocumentID: documentID,
		Fields:     fields,
		Status:     StatusSuccess,
		RawResult:  raw,
	}
}

// extractFields walks analyzeResult.fields with a token decoder so the
// provider's field order survives the trip through Go.
func extractFields(payload json.RawMessage) ([]ExtractedField, error) {
	var envelope struct {
		AnalyzeResult struct {
			Fields json.RawMessage `json:"fields"`
		} `json:"analyzeResult"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}

	out := []ExtractedField{}
	if len(envelope.AnalyzeResult.Fields) == 0 || string(envelope.AnalyzeResult.Fields) == "null" {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.AnalyzeResult.Fields))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("analyzeResult.fields is not an object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := keyTok.(string)

		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}

		value := entry["value"]
		if value == nil {
			value = entry["content"]
		}
		if value == nil {
			continue
		}

		var confidence *float64
		if conf, ok := entry["confidence"].(float64); ok {
			confidence = &conf
		}

		out = append(out, ExtractedField{
			FieldName:  name,
			Value:      value,
			Confidence: confidence,
		})
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
