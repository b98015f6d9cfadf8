// Package snoo is a typed client runtime for the Reddit HTTP API. It turns
// tagged JSON envelopes into strongly-identified domain objects, defers
// attribute fetches until first access, paginates listings lazily, streams
// new items from finite endpoints, and rebuilds comment trees with bounded
// placeholder expansion.
//
// Basic usage:
//
//	client, err := snoo.NewClient(&snoo.Config{
//		ClientID:     "your-client-id",
//		ClientSecret: "your-client-secret",
//		Username:     "your-username",
//		Password:     "your-password",
//		UserAgent:    "web:myapp:1.0 by /u/myusername",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sub := client.Subreddit("golang")
//	it := sub.Hot(ctx, 25)
//	for it.HasNext() {
//		post, err := it.Next()
//		...
//	}
package snoo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wryfi/snoo/internal"
	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

const (
	// DefaultBaseURL is the default API base URL.
	DefaultBaseURL = "https://oauth.reddit.com/"
	// DefaultAuthURL is the default OAuth base URL.
	DefaultAuthURL = "https://www.reddit.com/"
	// DefaultUserAgent is the default user agent string.
	DefaultUserAgent = "snoo/0.1"
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second
)

// Config holds the configuration for the client.
//
// For application-only (read-only) access, provide ClientID and ClientSecret.
// For script apps additionally provide Username and Password. For the code
// and implicit flows, construct the client app-only and call AuthorizeURL /
// Authorize / SetImplicitAccess afterwards.
type Config struct {
	// Username and Password for the password grant flow.
	// Required only for script apps. Leave empty otherwise.
	Username string
	Password string

	// ClientID and ClientSecret identify the OAuth application.
	// Installed (untrusted) apps leave ClientSecret empty.
	ClientID     string
	ClientSecret string

	// RefreshToken seeds a refresh-token session instead of the flows above.
	RefreshToken string

	// RedirectURI is required for the code and implicit flows.
	RedirectURI string

	// UserAgent identifies your application to the API.
	// Should follow the format "platform:app-name:version by /u/username".
	UserAgent string

	// BaseURL for the API. Defaults to DefaultBaseURL.
	BaseURL string

	// AuthURL for OAuth authentication. Defaults to DefaultAuthURL.
	AuthURL string

	// HTTPClient to use for requests. Defaults to a client with
	// DefaultTimeout.
	HTTPClient *http.Client

	// RateLimit tunes the local request throttle. Nil uses the defaults.
	RateLimit *internal.RateLimitConfig

	// Logger for structured diagnostics. Optional.
	Logger *slog.Logger
}

// Client is the shared context every domain object holds a reference to.
// It owns the transport, the active authorizer, and the objector's kind
// registry. A Client is safe for concurrent use; the lazy domain objects it
// hands out are not, so confine each handle to one goroutine.
type Client struct {
	config   *Config
	http     *internal.Transport
	objector *Objector

	mu       sync.Mutex
	readOnly bool
}

// NewClient validates the configuration, selects the initial authorization
// mode from the provided credential material, and builds the kind registry.
// No I/O is performed; the first request acquires the first token.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, &errors.ConfigError{Message: "config cannot be nil"}
	}
	if config.ClientID == "" {
		return nil, &errors.ConfigError{Field: "ClientID", Message: "required"}
	}

	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.AuthURL == "" {
		config.AuthURL = DefaultAuthURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	authCfg := internal.AuthenticatorConfig{
		HTTPClient:   config.HTTPClient,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		UserAgent:    config.UserAgent,
		AuthBaseURL:  config.AuthURL,
		Logger:       config.Logger,
	}

	var (
		ts       internal.TokenSource
		readOnly bool
		err      error
	)
	switch {
	case config.RefreshToken != "":
		ts, err = internal.NewRefreshTokenAuthenticator(authCfg, config.RefreshToken)
	case config.Username != "" && config.Password != "":
		ts, err = internal.NewPasswordAuthenticator(authCfg, config.Username, config.Password)
	default:
		ts, err = internal.NewAppOnlyAuthenticator(authCfg)
		readOnly = true
	}
	if err != nil {
		return nil, err
	}

	transport, err := internal.NewTransport(config.HTTPClient, ts, config.BaseURL, config.UserAgent, config.RateLimit, config.Logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:   config,
		http:     transport,
		readOnly: readOnly,
	}
	c.objector = newObjector(c)
	return c, nil
}

// ReadOnly reports whether the client holds application-only credentials.
// Operations requiring a user context fail fast in read-only mode.
func (c *Client) ReadOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly
}

// RateLimit returns the accounting populated from the most recent response
// headers. Zero-valued until the first request completes.
func (c *Client) RateLimit() types.RateLimitSnapshot {
	return c.http.RateLimit()
}

// requireUser gates operations that need a user context.
func (c *Client) requireUser(operation string) error {
	if c.ReadOnly() {
		return &errors.ReadOnlyError{Operation: operation}
	}
	return nil
}

// swapTokenSource atomically replaces the active authorizer; no in-flight
// call observes a partially-updated state.
func (c *Client) swapTokenSource(ts internal.TokenSource, readOnly bool) {
	c.mu.Lock()
	c.readOnly = readOnly
	c.mu.Unlock()
	c.http.SwapTokenSource(ts)
}

// get issues a GET and decodes the response body into generic JSON values.
func (c *Client) get(ctx context.Context, path string, params url.Values) (any, error) {
	body, err := c.http.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return decodeBody(body)
}

// postForm issues a form-encoded POST and decodes the response body.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) (any, error) {
	body, err := c.http.PostForm(ctx, path, form)
	if err != nil {
		return nil, err
	}
	return decodeBody(body)
}

func decodeBody(body json.RawMessage) (any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, &errors.ParseError{Message: "response body is not valid JSON", Err: err}
	}
	return value, nil
}

// getObject fetches path and materializes the response through the objector.
func (c *Client) getObject(ctx context.Context, path string, params url.Values) (any, error) {
	value, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return c.objector.Objectify(value)
}

// postObject posts form data and materializes the response through the
// objector. API error envelopes surface as *errors.APIError.
func (c *Client) postObject(ctx context.Context, path string, form url.Values) (any, error) {
	value, err := c.postForm(ctx, path, form)
	if err != nil {
		return nil, err
	}
	return c.objector.Objectify(value)
}

// Me returns the authenticated account. Fails with ReadOnlyError when the
// client holds application-only credentials.
func (c *Client) Me(ctx context.Context) (*Redditor, error) {
	if err := c.requireUser("me"); err != nil {
		return nil, err
	}

	value, err := c.get(ctx, "api/v1/me", nil)
	if err != nil {
		return nil, err
	}

	// /api/v1/me returns bare account data without a kind envelope.
	attrs, ok := value.(map[string]any)
	if !ok {
		return nil, &errors.ParseError{Operation: "me", Message: "unexpected response shape"}
	}
	r := c.Redditor("")
	r.setAttrs(attrs)
	r.markFetched()
	return r, nil
}

// Info materializes arbitrary entities by fullname through /api/info.
func (c *Client) Info(ctx context.Context, fullnames []string) ([]any, error) {
	params := url.Values{}
	params.Set("id", strings.Join(fullnames, ","))
	obj, err := c.getObject(ctx, "api/info", params)
	if err != nil {
		return nil, err
	}
	listing, ok := obj.(*Listing)
	if !ok {
		return nil, &errors.ParseError{Operation: "info", Message: "expected a listing response"}
	}
	return listing.Children, nil
}

// CommentsMultiple fetches the comment forests of several submissions in
// parallel, preserving input order. Each fetch uses the shared transport,
// so the local rate limiter still applies.
func (c *Client) CommentsMultiple(ctx context.Context, submissions []*Submission) ([]*CommentForest, error) {
	results := make([]*CommentForest, len(submissions))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range submissions {
		i, s := i, s
		g.Go(func() error {
			forest, err := s.Comments(ctx)
			if err != nil {
				return err
			}
			results[i] = forest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
