package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("", "test-token")

		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.token != "test-token" {
			t.Errorf("token = %q, want %q", c.token, "test-token")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		hc := &http.Client{}
		c := NewClient("https://api.example.com", "token",
			WithHTTPClient(hc),
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
			WithUserAgent("test-agent"),
		)
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v, want 10/500ms", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.userAgent != "test-agent" {
			t.Errorf("userAgent = %q", c.userAgent)
		}
	})
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 401, Message: "Unauthorized"}
	if err.Error() != "api error 401: Unauthorized" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{500, true},
		{502, true},
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
}

func TestDoRequest(t *testing.T) {
	t.Run("authenticated request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q", r.Header.Get("Accept"))
			}
			if r.Header.Get("Authorization") != "Bot test-token" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bot test-token")
			}
			if r.Header.Get("User-Agent") == "" {
				t.Error("User-Agent header should be set")
			}
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		body, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q", string(body))
		}
	})

	t.Run("unauthenticated request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "401: Unauthorized"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "bad")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, true)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 401 {
			t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
		}
		if !strings.Contains(string(apiErr.Body), "Unauthorized") {
			t.Errorf("Body = %q", string(apiErr.Body))
		}
	})

	t.Run("retry after header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "0.25")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewClient(server.URL, "token")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, true)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.RetryAfter != 250*time.Millisecond {
			t.Errorf("RetryAfter = %v, want 250ms", apiErr.RetryAfter)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL, "token")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil, true)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "token", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		c := NewClient(server.URL, "token", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, true); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, "token", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, true)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, "token", WithRetries(5, time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.doWithRetry(ctx, http.MethodGet, "/test", nil, true)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})
}
