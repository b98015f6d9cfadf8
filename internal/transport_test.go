package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/wryfi/snoo/pkg/errors"
)

func newTestTransport(t *testing.T, handler http.HandlerFunc) (*Transport, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	ts := &StaticTokenSource{AccessToken: "tok", HasUser: true}
	cfg := &RateLimitConfig{RequestsPerMinute: 600000, Burst: 1000}
	transport, err := NewTransport(server.Client(), ts, server.URL, "snoo-test/0.1", cfg, nil)
	if err != nil {
		t.Fatalf("NewTransport() error = %v", err)
	}
	return transport, server
}

func TestTransportSetsHeaders(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		if got := r.Header.Get("User-Agent"); got != "snoo-test/0.1" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(`{}`))
	})

	if _, err := transport.Get(context.Background(), "api/info", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestTransportRateHeaders(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "598")
		w.Header().Set("X-Ratelimit-Used", "2")
		w.Header().Set("X-Ratelimit-Reset", "600")
		w.Write([]byte(`{}`))
	})

	if _, err := transport.Get(context.Background(), "api/info", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	snapshot := transport.RateLimit()
	if snapshot.Remaining != 598 || snapshot.Used != 2 {
		t.Errorf("RateLimit() = %+v", snapshot)
	}
	if until := time.Until(snapshot.ResetAt); until < 590*time.Second || until > 610*time.Second {
		t.Errorf("ResetAt %v away, want roughly 600s", until)
	}
}

func TestTransportDefersOnExhaustedWindow(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "0")
		w.Header().Set("X-Ratelimit-Used", "600")
		w.Header().Set("X-Ratelimit-Reset", "30")
		w.Write([]byte(`{}`))
	})

	if _, err := transport.Get(context.Background(), "api/info", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	transport.mu.Lock()
	waitUntil := transport.forceWaitUntil
	transport.mu.Unlock()
	if !waitUntil.After(time.Now()) {
		t.Error("an exhausted window must defer subsequent requests")
	}
}

func TestTransportDefersOnRetryAfter(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "15")
		w.Write([]byte(`{}`))
	})

	if _, err := transport.Get(context.Background(), "api/info", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	transport.mu.Lock()
	waitUntil := transport.forceWaitUntil
	transport.mu.Unlock()
	if until := time.Until(waitUntil); until < 10*time.Second || until > 20*time.Second {
		t.Errorf("forced delay %v away, want roughly 15s", until)
	}
}

func TestTransportStructuredBadRequest(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"json": {"errors": [["SUBREDDIT_NOEXIST", "that subreddit does not exist", "sr"]]}}`))
	})

	_, err := transport.Get(context.Background(), "api/info", nil)
	apiErr, ok := err.(*errors.APIError)
	if !ok {
		t.Fatalf("Get() error = %T (%v), want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if len(apiErr.Items) != 1 || apiErr.Items[0].ErrorType != "SUBREDDIT_NOEXIST" {
		t.Errorf("Items = %+v", apiErr.Items)
	}
}

func TestTransportLegacyBadRequest(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"reason": "INVALID_OPTION", "explanation": "that option is not valid"}`))
	})

	_, err := transport.Get(context.Background(), "api/info", nil)
	apiErr, ok := err.(*errors.APIError)
	if !ok {
		t.Fatalf("Get() error = %T (%v), want *APIError", err, err)
	}
	item := apiErr.Items[0]
	if item.ErrorType != "INVALID_OPTION" || item.Message != "that option is not valid" || item.Field != "" {
		t.Errorf("item = %+v", item)
	}
}

func TestTransportUnstructuredBadRequest(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`nope`))
	})

	_, err := transport.Get(context.Background(), "api/info", nil)
	if _, ok := err.(*errors.StatusError); !ok {
		t.Errorf("Get() error = %T, want *StatusError", err)
	}
}

func TestTransportStatusClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		predicate func(error) bool
	}{
		{"not found", http.StatusNotFound, errors.IsNotFound},
		{"forbidden", http.StatusForbidden, errors.IsForbidden},
		{"too large", http.StatusRequestEntityTooLarge, errors.IsTooLarge},
		{"server error", http.StatusBadGateway, errors.IsServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := transport.Get(context.Background(), "api/info", nil)
			if !tt.predicate(err) {
				t.Errorf("Get() error = %v, predicate rejected it", err)
			}
		})
	}
}

func TestTransportInsufficientScope(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Www-Authenticate", `Bearer realm="reddit", error="insufficient_scope", scope="modposts"`)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := transport.Get(context.Background(), "api/distinguish", nil)
	scopeErr, ok := err.(*errors.ScopeError)
	if !ok {
		t.Fatalf("Get() error = %T, want *ScopeError", err)
	}
	if scopeErr.Scope != "modposts" {
		t.Errorf("Scope = %q, want modposts", scopeErr.Scope)
	}
	if scopeErr.Operation != "/api/distinguish" {
		t.Errorf("Operation = %q, want /api/distinguish", scopeErr.Operation)
	}
}

func TestTransportForbiddenWithoutChallenge(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := transport.Get(context.Background(), "api/info", nil)
	if !errors.IsForbidden(err) {
		t.Errorf("Get() error = %v, want a plain forbidden status", err)
	}
}

func TestTransportRateLimited(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := transport.Get(context.Background(), "api/info", nil)
	rlErr, ok := err.(*errors.RateLimitError)
	if !ok {
		t.Fatalf("Get() error = %T, want *RateLimitError", err)
	}
	if rlErr.RetryAfterSeconds != 42 {
		t.Errorf("RetryAfterSeconds = %v, want 42", rlErr.RetryAfterSeconds)
	}
}

func TestTransportPostForm(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("key"); got != "value" {
			t.Errorf("key = %q, want value", got)
		}
		w.Write([]byte(`{"ok": true}`))
	})

	form := map[string][]string{"key": {"value"}}
	body, err := transport.PostForm(context.Background(), "api/test", form)
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	if string(body) != `{"ok": true}` {
		t.Errorf("body = %s", body)
	}
}

func TestBuildLimiterDefaults(t *testing.T) {
	limiter := buildLimiter(RateLimitConfig{})
	if limiter.Limit() != rate.Limit(1) {
		t.Errorf("Limit() = %v, want 1 req/s", limiter.Limit())
	}
	if limiter.Burst() != DefaultRateLimitBurst {
		t.Errorf("Burst() = %d, want %d", limiter.Burst(), DefaultRateLimitBurst)
	}
}

func TestSwapTokenSource(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	if !transport.UserContext() {
		t.Fatal("expected the initial source to carry a user context")
	}

	transport.SwapTokenSource(&StaticTokenSource{AccessToken: "app", HasUser: false})
	if transport.UserContext() {
		t.Error("UserContext() = true after swapping in an app-only source")
	}
}
