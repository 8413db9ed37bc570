package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:     endpoint,
		Key:          "test-key",
		APIVersion:   "2024-01-01",
		AnalyzerName: "protocol-analyzer",
		PollInterval: time.Millisecond,
		MaxPolls:     5,
	}
}

func TestAnalyzeNotConfiguredSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }},
		{name: "missing key", mutate: func(c *Config) { c.Key = "" }},
		{name: "missing api version", mutate: func(c *Config) { c.APIVersion = " " }},
		{name: "missing analyzer name", mutate: func(c *Config) { c.AnalyzerName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(srv.URL)
			tt.mutate(&cfg)
			client := NewClient(cfg)

			result := client.Analyze(context.Background(), "https://example.com/doc.pdf")
			if result.Status != StatusNotConfigured {
				t.Fatalf("expected status %q, got %q", StatusNotConfigured, result.Status)
			}
			if result.DocumentID == "" {
				t.Fatalf("expected document id")
			}
			if result.ErrorMessage == nil {
				t.Fatalf("expected error message")
			}
			if got := calls.Load(); got != 0 {
				t.Fatalf("expected no network calls, got %d", got)
			}
		})
	}
}

func TestAnalyzeMissingOperationLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	result := client.Analyze(context.Background(), "https://example.com/doc.pdf")

	if result.Status != StatusError {
		t.Fatalf("expected status %q, got %q", StatusError, result.Status)
	}
	if result.ErrorMessage == nil || !strings.Contains(*result.ErrorMessage, "Operation-Location") {
		t.Fatalf("expected message naming the missing header, got %v", result.ErrorMessage)
	}
}

func TestSubmitNon202CarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Submit(context.Background(), "https://example.com/doc.pdf")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestSubmitSendsURLBodyAndKeyHeader(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Operation-Location", "https://example.com/operations/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	loc, err := client.Submit(context.Background(), "https://cdn.example.com/doc.pdf")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if loc != "https://example.com/operations/1" {
		t.Fatalf("unexpected operation location %q", loc)
	}
	if gotPath != "/protocol-analyzer:analyze?api-version=2024-01-01" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("unexpected subscription key %q", gotKey)
	}
	inputs, ok := gotBody["inputs"].([]any)
	if !ok || len(inputs) != 1 {
		t.Fatalf("expected one input, got %v", gotBody)
	}
	first, _ := inputs[0].(map[string]any)
	if first["url"] != "https://cdn.example.com/doc.pdf" {
		t.Fatalf("unexpected input url %v", first)
	}
}

func TestPollRunningThenSucceeded(t *testing.T) {
	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch gets.Add(1) {
		case 1, 2:
			fmt.Fprint(w, `{"status":"Running"}`)
		default:
			fmt.Fprint(w, `{"status":"Succeeded","analyzeResult":{"fields":{"Title":{"value":"Protocol X","confidence":0.93}}}}`)
		}
	}))
	defer srv.Close()

	var sleeps int
	client := NewClient(testConfig(srv.URL))
	client.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	payload, err := client.Poll(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := gets.Load(); got != 3 {
		t.Fatalf("expected 3 GETs, got %d", got)
	}
	if sleeps != 2 {
		t.Fatalf("expected 2 sleeps, got %d", sleeps)
	}

	result := client.Parse("doc-1", payload)
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %q", result.Status)
	}
	if len(result.Fields) != 1 || result.Fields[0].FieldName != "Title" {
		t.Fatalf("unexpected fields %v", result.Fields)
	}
}

func TestPollTimesOutAfterMaxPolls(t *testing.T) {
	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		fmt.Fprint(w, `{"status":"running"}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPolls = 2
	client := NewClient(cfg)
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := client.Poll(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := gets.Load(); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
}

func TestPollFailedSurfacesProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Failed","error":{"message":"document too large"}}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Poll(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "document too large") {
		t.Fatalf("expected provider message, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed") {
		t.Fatalf("expected terminal status in error, got %v", err)
	}
}

func TestPollCancelledWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"cancelled"}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Poll(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "analysis failed") {
		t.Fatalf("expected generic failure message, got %v", err)
	}
}

func TestPollUnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"paused"}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Poll(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), `unknown status: "paused"`) {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}

func TestParseSkipsNullEntriesAndValues(t *testing.T) {
	payload := json.RawMessage(`{
		"status": "succeeded",
		"analyzeResult": {
			"fields": {
				"A": {"value": "x", "confidence": 0.9},
				"B": {"value": null},
				"C": null
			}
		}
	}`)

	client := NewClient(testConfig("https://example.com"))
	result := client.Parse("doc-1", payload)

	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %q", result.Status)
	}
	if len(result.Fields) != 1 {
		t.Fatalf("expected exactly 1 field, got %d", len(result.Fields))
	}
	field := result.Fields[0]
	if field.FieldName != "A" || field.Value != "x" {
		t.Fatalf("unexpected field %+v", field)
	}
	if field.Confidence == nil || *field.Confidence != 0.9 {
		t.Fatalf("unexpected confidence %v", field.Confidence)
	}
	if result.RawResult == nil {
		t.Fatalf("expected raw result to be retained")
	}
}

func TestParseFallsBackToContent(t *testing.T) {
	payload := json.RawMessage(`{
		"analyzeResult": {
			"fields": {
				"Sponsor": {"content": "Acme Pharma"}
			}
		}
	}`)

	client := NewClient(testConfig("https://example.com"))
	result := client.Parse("doc-1", payload)
	if len(result.Fields) != 1 || result.Fields[0].Value != "Acme Pharma" {
		t.Fatalf("expected content fallback, got %v", result.Fields)
	}
	if result.Fields[0].Confidence != nil {
		t.Fatalf("expected nil confidence, got %v", result.Fields[0].Confidence)
	}
}

func TestParsePreservesProviderFieldOrder(t *testing.T) {
	payload := json.RawMessage(`{
		"analyzeResult": {
			"fields": {
				"Zeta": {"value": "1"},
				"Alpha": {"value": "2"},
				"Mid": {"value": "3"}
			}
		}
	}`)

	client := NewClient(testConfig("https://example.com"))
	result := client.Parse("doc-1", payload)

	want := []string{"Zeta", "Alpha", "Mid"}
	if len(result.Fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(result.Fields))
	}
	for i, name := range want {
		if result.Fields[i].FieldName != name {
			t.Fatalf("field %d: expected %q, got %q", i, name, result.Fields[i].FieldName)
		}
	}
}

func TestParseEmptyFields(t *testing.T) {
	client := NewClient(testConfig("https://example.com"))
	result := client.Parse("doc-1", json.RawMessage(`{"analyzeResult":{}}`))
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %q", result.Status)
	}
	if result.Fields == nil || len(result.Fields) != 0 {
		t.Fatalf("expected empty field slice, got %v", result.Fields)
	}
}
