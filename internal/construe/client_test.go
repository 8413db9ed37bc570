package construe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProcessSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"status":"accepted","id":"p-1"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	out := client.Process(context.Background(), map[string]any{"protocol_number": "P-42"})

	if out["status"] != "accepted" {
		t.Fatalf("unexpected response %v", out)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPath != "/process" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	fields, ok := gotBody["fields"].(map[string]any)
	if !ok || fields["protocol_number"] != "P-42" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestProcessHTTPErrorDescriptor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "nope")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	out := client.Process(context.Background(), map[string]any{"a": 1})

	if out["status"] != "error" {
		t.Fatalf("expected error descriptor, got %v", out)
	}
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "502") {
		t.Fatalf("expected upstream status in descriptor, got %q", msg)
	}
}

func TestProcessTransportErrorDescriptor(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", "secret")
	out := client.Process(context.Background(), map[string]any{"a": 1})
	if out["status"] != "error" {
		t.Fatalf("expected error descriptor, got %v", out)
	}
}

func TestProcessNotConfigured(t *testing.T) {
	client := NewClient("", "")
	out := client.Process(context.Background(), map[string]any{"a": 1})
	if out["status"] != "not_configured" {
		t.Fatalf("expected not_configured descriptor, got %v", out)
	}
}

func TestValidateAlwaysTrue(t *testing.T) {
	client := NewClient("", "")
	if !client.Validate(context.Background(), nil) {
		t.Fatalf("expected placeholder validation to pass")
	}
}
