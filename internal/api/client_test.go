package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://matrix.example.com", "test-token")

		if c.baseURL != "https://matrix.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://matrix.example.com")
		}
		if c.token != "test-token" {
			t.Errorf("token = %q, want %q", c.token, "test-token")
		}
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.healthPath != "/_matrix/client/versions" {
			t.Errorf("healthPath = %q, want %q", c.healthPath, "/_matrix/client/versions")
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://matrix.example.com", "", WithTimeout(2*time.Second))
		if c.httpClient.Timeout != 2*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 2*time.Second)
		}
	})

	t.Run("with health path option", func(t *testing.T) {
		c := NewClient("https://matrix.example.com", "", WithHealthPath("/health"))
		if c.healthPath != "/health" {
			t.Errorf("healthPath = %q, want %q", c.healthPath, "/health")
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://matrix.example.com", "", WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://matrix.example.com", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{
			StatusCode: 502,
			Message:    "Bad Gateway",
		}
		expected := "api error 502: Bad Gateway"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{429, true},
			{400, false},
			{401, false},
			{404, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if r.Header.Get("Authorization") != "Bearer test-token" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer test-token")
			}
			if r.URL.Query().Get("since") != "s72" {
				t.Errorf("since = %q, want %q", r.URL.Query().Get("since"), "s72")
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		body, err := c.doRequest(context.Background(), http.MethodGet, "/test", url.Values{"since": {"s72"}})
		if err != nil {
			t.Fatalf("doRequest failed: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("no auth header without token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("Authorization header = %q, want empty", got)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("doRequest failed: %v", err)
		}
	})

	t.Run("error status returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"errcode":"M_UNKNOWN"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("error type = %T, want *APIError", err)
		}
		if apiErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusServiceUnavailable)
		}
		if string(apiErr.Body) != `{"errcode":"M_UNKNOWN"}` {
			t.Errorf("Body = %q", apiErr.Body)
		}
	})
}

func TestCheckHealthy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"no content", http.StatusNoContent, true},
		{"server error", http.StatusInternalServerError, false},
		{"bad gateway", http.StatusBadGateway, false},
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				if r.URL.Path != "/_matrix/client/versions" {
					t.Errorf("path = %q, want /_matrix/client/versions", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := NewClient(server.URL, "")
			if got := c.CheckHealthy(context.Background()); got != tt.want {
				t.Errorf("CheckHealthy() = %v, want %v", got, tt.want)
			}
			if n := hits.Load(); n != 1 {
				t.Errorf("requests = %d, want 1 (no retry)", n)
			}
		})
	}
}

func TestCheckHealthy_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if c.CheckHealthy(ctx) {
		t.Error("CheckHealthy() = true, want false on timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("CheckHealthy took %v, want bounded by the context", elapsed)
	}
}

func TestCheckHealthy_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c := NewClient(addr, "")
	if c.CheckHealthy(context.Background()) {
		t.Error("CheckHealthy() = true, want false for a closed server")
	}
}

func TestGetVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"versions":["v1.1","v1.2"],"unstable_features":{"org.example.sync":true}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	resp, err := c.GetVersions(context.Background())
	if err != nil {
		t.Fatalf("GetVersions failed: %v", err)
	}
	if len(resp.Versions) != 2 || resp.Versions[1] != "v1.2" {
		t.Errorf("Versions = %v, want [v1.1 v1.2]", resp.Versions)
	}
	if !resp.UnstableFeatures["org.example.sync"] {
		t.Error("UnstableFeatures missing org.example.sync")
	}
}

func TestGetVersions_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	if _, err := c.GetVersions(context.Background()); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
