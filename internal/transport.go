package internal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// RateLimitConfig controls how requests are throttled before reaching the API.
type RateLimitConfig struct {
	// RequestsPerMinute caps steady-state throughput. Defaults to 60 if zero.
	RequestsPerMinute float64
	// Burst allows short spikes above the steady-state rate. Defaults to 10 if zero.
	Burst int
}

const (
	DefaultRequestsPerMinute = 60
	DefaultRateLimitBurst    = 10
	secondsPerMinute         = 60.0
	parseFloatBitSize        = 64
)

// Transport manages authenticated communication with the API host. It owns
// the active token source, throttles outgoing requests, honors forced delays
// from Retry-After and rate-limit headers, and maps response statuses onto
// the error taxonomy.
type Transport struct {
	client    *http.Client
	BaseURL   *url.URL
	UserAgent string
	logger    *slog.Logger

	limiter *rate.Limiter

	mu             sync.Mutex
	tokenSource    TokenSource
	forceWaitUntil time.Time
	rateLimit      types.RateLimitSnapshot
}

// NewTransport returns a transport rooted at baseURL. A nil httpClient falls
// back to http.DefaultClient.
func NewTransport(httpClient *http.Client, ts TokenSource, baseURL, userAgent string, rateCfg *RateLimitConfig, logger *slog.Logger) (*Transport, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, &errors.ClientError{Err: err}
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	if rateCfg == nil {
		rateCfg = &RateLimitConfig{}
	}

	return &Transport{
		client:      httpClient,
		BaseURL:     parsedURL,
		UserAgent:   userAgent,
		logger:      logger,
		limiter:     buildLimiter(*rateCfg),
		tokenSource: ts,
	}, nil
}

func buildLimiter(cfg RateLimitConfig) *rate.Limiter {
	requestsPerMinute := cfg.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}

	limitPerSecond := rate.Limit(requestsPerMinute / secondsPerMinute)
	if limitPerSecond <= 0 {
		limitPerSecond = rate.Limit(1)
	}

	return rate.NewLimiter(limitPerSecond, burst)
}

// SwapTokenSource atomically replaces the active token source. In-flight
// requests complete under the source they started with.
func (t *Transport) SwapTokenSource(ts TokenSource) {
	t.mu.Lock()
	t.tokenSource = ts
	t.mu.Unlock()
}

// ActiveTokenSource returns the token source requests currently authenticate
// with.
func (t *Transport) ActiveTokenSource() TokenSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokenSource
}

// UserContext reports whether the active credential carries a user account.
func (t *Transport) UserContext() bool {
	ts := t.ActiveTokenSource()
	return ts != nil && ts.UserContext()
}

// RateLimit returns the accounting read from the most recent response
// headers. Zero-valued until the first request completes.
func (t *Transport) RateLimit() types.RateLimitSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rateLimit
}

// Get issues a GET with the given query parameters and returns the raw
// response body.
func (t *Transport) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return t.do(ctx, http.MethodGet, path, params, nil, "")
}

// PostForm issues a form-encoded POST and returns the raw response body.
func (t *Transport) PostForm(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	if form == nil {
		form = url.Values{}
	}
	body := strings.NewReader(form.Encode())
	return t.do(ctx, http.MethodPost, path, nil, body, "application/x-www-form-urlencoded")
}

// Post issues a POST with an arbitrary body and content type; used for
// multipart media uploads.
func (t *Transport) Post(ctx context.Context, path string, body io.Reader, contentType string) (json.RawMessage, error) {
	return t.do(ctx, http.MethodPost, path, nil, body, contentType)
}

func (t *Transport) do(ctx context.Context, method, path string, params url.Values, body io.Reader, contentType string) (json.RawMessage, error) {
	if err := t.waitForRateLimit(ctx); err != nil {
		return nil, &errors.ClientError{Err: err}
	}

	u, err := t.BaseURL.Parse(path)
	if err != nil {
		return nil, &errors.ClientError{Err: err}
	}
	if params != nil {
		q := u.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &errors.ClientError{Err: err}
	}

	ts := t.ActiveTokenSource()
	if ts != nil {
		token, err := ts.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", t.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if t.logger != nil {
		t.logger.Debug("issuing API request", "method", method, "url", u.String())
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &errors.ClientError{Err: err}
	}
	defer resp.Body.Close()

	t.applyRateHeaders(resp)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ClientError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, t.statusError(resp, respBody)
	}

	return respBody, nil
}

func (t *Transport) statusError(resp *http.Response, body []byte) error {
	if t.logger != nil {
		preview := body
		if len(preview) > 500 {
			preview = preview[:500]
		}
		t.logger.Debug("API request failed", "status", resp.StatusCode, "body_preview", string(preview))
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if apiErr := unpackErrorBody(resp.StatusCode, body); apiErr != nil {
			return apiErr
		}
	case http.StatusForbidden:
		if challenge := resp.Header.Get("Www-Authenticate"); strings.Contains(challenge, "insufficient_scope") {
			return &errors.ScopeError{
				Scope:     challengeParam(challenge, "scope"),
				Operation: resp.Request.URL.Path,
			}
		}
	case http.StatusTooManyRequests:
		retryAfter, _ := strconv.ParseFloat(resp.Header.Get("Retry-After"), parseFloatBitSize)
		return &errors.RateLimitError{RetryAfterSeconds: retryAfter}
	}

	return &errors.StatusError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Body:       string(body),
	}
}

// challengeParam pulls a quoted parameter value out of a Www-Authenticate
// challenge, returning "" when the parameter is absent.
func challengeParam(challenge, name string) string {
	marker := name + `="`
	idx := strings.Index(challenge, marker)
	if idx < 0 {
		return ""
	}
	rest := challenge[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// unpackErrorBody converts a 400 JSON body into a structured APIError, or
// nil when the body carries no recognizable error structure.
func unpackErrorBody(statusCode int, body []byte) *errors.APIError {
	var wrapped struct {
		JSON struct {
			Errors []types.APIErrorItem `json:"errors"`
		} `json:"json"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.JSON.Errors) > 0 {
		return &errors.APIError{StatusCode: statusCode, Items: wrapped.JSON.Errors}
	}

	var legacy struct {
		Reason      string `json:"reason"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(body, &legacy); err == nil && legacy.Reason != "" {
		return &errors.APIError{StatusCode: statusCode, Items: []types.APIErrorItem{translateLegacyError(legacy.Reason, legacy.Explanation)}}
	}

	return nil
}

// translateLegacyError maps the old two-field {reason, explanation} error
// body onto the three-field item form, with an empty field name.
//
// Deprecated: the two-field body is a legacy response shape; new endpoints
// return the errors array and this translation only exists for the
// endpoints that never migrated.
func translateLegacyError(reason, explanation string) types.APIErrorItem {
	return types.APIErrorItem{ErrorType: reason, Message: explanation, Field: ""}
}

func (t *Transport) waitForRateLimit(ctx context.Context) error {
	if err := t.waitForForcedDelay(ctx); err != nil {
		return err
	}

	if t.limiter == nil {
		return nil
	}

	return t.limiter.Wait(ctx)
}

func (t *Transport) waitForForcedDelay(ctx context.Context) error {
	for {
		t.mu.Lock()
		waitUntil := t.forceWaitUntil
		t.mu.Unlock()

		if waitUntil.IsZero() {
			return nil
		}

		now := time.Now()
		if !now.Before(waitUntil) {
			t.clearForcedDelay(waitUntil)
			return nil
		}

		timer := time.NewTimer(waitUntil.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			t.clearForcedDelay(waitUntil)
		}
	}
}

func (t *Transport) clearForcedDelay(previous time.Time) {
	t.mu.Lock()
	if previous.Equal(t.forceWaitUntil) {
		t.forceWaitUntil = time.Time{}
	}
	t.mu.Unlock()
}

func (t *Transport) applyRateHeaders(resp *http.Response) {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.ParseFloat(retryAfter, parseFloatBitSize); err == nil && seconds > 0 {
			t.deferRequests(time.Duration(seconds * float64(time.Second)))
		}
	}

	remainingHeader := resp.Header.Get("X-Ratelimit-Remaining")
	usedHeader := resp.Header.Get("X-Ratelimit-Used")
	resetHeader := resp.Header.Get("X-Ratelimit-Reset")
	if remainingHeader == "" || resetHeader == "" {
		return
	}

	remaining, errRemaining := strconv.ParseFloat(remainingHeader, parseFloatBitSize)
	resetSeconds, errReset := strconv.ParseFloat(resetHeader, parseFloatBitSize)
	if errRemaining != nil || errReset != nil || resetSeconds <= 0 {
		return
	}
	used, _ := strconv.ParseFloat(usedHeader, parseFloatBitSize)

	t.mu.Lock()
	t.rateLimit = types.RateLimitSnapshot{
		Remaining: remaining,
		Used:      used,
		ResetAt:   time.Now().Add(time.Duration(resetSeconds * float64(time.Second))),
	}
	t.mu.Unlock()

	if remaining <= 1 {
		t.deferRequests(time.Duration(resetSeconds * float64(time.Second)))
	}
}

func (t *Transport) deferRequests(d time.Duration) {
	if d <= 0 {
		return
	}

	until := time.Now().Add(d)

	t.mu.Lock()
	if until.After(t.forceWaitUntil) {
		t.forceWaitUntil = until
	}
	t.mu.Unlock()
}
