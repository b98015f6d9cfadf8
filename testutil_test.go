package snoo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wryfi/snoo/internal"
)

const testToken = "test-access-token"

// newTestClient spins up a mock API server and a client with a user context
// pointed at it. The token endpoint is handled automatically; every other
// request reaches handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	return newTestClientConfig(t, handler, &Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Username:     "testuser",
		Password:     "testpass",
	})
}

// newReadOnlyTestClient builds a client holding application-only
// credentials.
func newReadOnlyTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	return newTestClientConfig(t, handler, &Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
	})
}

func newTestClientConfig(t *testing.T, handler http.HandlerFunc, config *Config) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "` + testToken + `", "token_type": "bearer", "expires_in": 3600, "scope": "*"}`))
	})
	if handler != nil {
		mux.HandleFunc("/", handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	config.BaseURL = server.URL
	config.AuthURL = server.URL
	config.UserAgent = "snoo-test/0.1"
	// Effectively unthrottled so tests never block on the local limiter.
	config.RateLimit = &internal.RateLimitConfig{RequestsPerMinute: 600000, Burst: 1000}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("failed to write mock response: %v", err)
	}
}

// newOfflineClient builds a client that never talks to a server, for tests
// exercising pure construction and parsing paths.
func newOfflineClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(&Config{ClientID: "test-client"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}
