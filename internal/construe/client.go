package construe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

// Client forwards extracted fields to the downstream processing API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a downstream processing client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Process posts fields to the /process endpoint. It never returns a Go error:
// any transport or HTTP failure comes back as an error descriptor map.
func (c *Client) Process(ctx context.Context, fields map[string]any) map[string]any {
	if c.endpoint == "" || c.apiKey == "" {
		return map[string]any{
			"status": "not_configured",
			"error":  "downstream processing credentials not configured",
		}
	}

	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return errorDescriptor(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/process", bytes.NewReader(payload))
	if err != nil {
		return errorDescriptor(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errorDescriptor(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorDescriptor(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorDescriptor(fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return errorDescriptor(err)
	}
	return parsed
}

// Validate is an explicit placeholder: it always reports valid and must not
// be relied on for real validation.
func (c *Client) Validate(ctx context.Context, data map[string]any) bool {
	return true
}

func errorDescriptor(err error) map[string]any {
	return map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
}
