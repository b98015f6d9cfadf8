package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wryfi/snoo/pkg/errors"
)

const defaultTokenEndpointPath = "api/v1/access_token"

// tokenExpiryMargin is subtracted from the server-reported lifetime so a
// token is refreshed before it actually lapses mid-request.
const tokenExpiryMargin = 30 * time.Second

// GrantType selects which OAuth flow an Authenticator performs against the
// token endpoint.
type GrantType string

const (
	GrantPassword          GrantType = "password"
	GrantClientCredentials GrantType = "client_credentials"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

// TokenSource supplies a valid bearer token for authenticated requests.
// Implementations cache tokens and renew them transparently near expiry.
type TokenSource interface {
	// Token returns a valid access token, refreshing it first if needed.
	Token(ctx context.Context) (string, error)
	// UserContext reports whether the credential is bound to a user account.
	// Application-only credentials return false; the client uses this for
	// its read-only gate.
	UserContext() bool
}

// Authenticator retrieves and caches access tokens from the token endpoint.
// It covers the password, client_credentials, authorization_code and
// refresh_token grants; which one runs is fixed at construction, except that
// a code grant that yields a refresh token silently becomes a refresh-token
// grant for subsequent renewals.
type Authenticator struct {
	client       *http.Client
	clientID     string
	clientSecret string
	userAgent    string
	tokenURL     *url.URL
	grant        GrantType
	logger       *slog.Logger

	// grant-specific material
	username, password string
	code, redirectURI  string

	mu           sync.Mutex
	token        string
	scopes       []string
	expiry       time.Time
	refreshToken string
}

// AuthenticatorConfig collects the construction parameters shared by every
// grant type.
type AuthenticatorConfig struct {
	HTTPClient *http.Client
	// ClientID and ClientSecret identify the OAuth application. Installed
	// (untrusted) apps leave ClientSecret empty; basic auth is still sent
	// with an empty password, as the API requires.
	ClientID     string
	ClientSecret string
	UserAgent    string
	// AuthBaseURL is the www host the token endpoint lives under.
	AuthBaseURL string
	// TokenPath overrides the token endpoint path; empty means the default.
	TokenPath string
	Logger    *slog.Logger
}

func newAuthenticator(cfg AuthenticatorConfig, grant GrantType) (*Authenticator, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(cfg.AuthBaseURL)
	if err != nil {
		return nil, &errors.AuthError{Err: fmt.Errorf("failed to parse auth base URL: %w", err)}
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		tokenPath = defaultTokenEndpointPath
	}
	tokenURL, err := parsedURL.Parse(tokenPath)
	if err != nil {
		return nil, &errors.AuthError{Err: fmt.Errorf("failed to parse token endpoint path: %w", err)}
	}

	return &Authenticator{
		client:       httpClient,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		userAgent:    cfg.UserAgent,
		tokenURL:     tokenURL,
		grant:        grant,
		logger:       cfg.Logger,
	}, nil
}

// NewPasswordAuthenticator builds an authenticator for script apps using the
// password grant.
func NewPasswordAuthenticator(cfg AuthenticatorConfig, username, password string) (*Authenticator, error) {
	a, err := newAuthenticator(cfg, GrantPassword)
	if err != nil {
		return nil, err
	}
	a.username = username
	a.password = password
	return a, nil
}

// NewAppOnlyAuthenticator builds an authenticator for application-only
// (read-only) access using the client_credentials grant.
func NewAppOnlyAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	return newAuthenticator(cfg, GrantClientCredentials)
}

// NewCodeAuthenticator builds an authenticator that exchanges an
// authorization code obtained from the code flow. If the exchange yields a
// refresh token (duration=permanent), subsequent renewals use it.
func NewCodeAuthenticator(cfg AuthenticatorConfig, code, redirectURI string) (*Authenticator, error) {
	a, err := newAuthenticator(cfg, GrantAuthorizationCode)
	if err != nil {
		return nil, err
	}
	a.code = code
	a.redirectURI = redirectURI
	return a, nil
}

// NewRefreshTokenAuthenticator builds an authenticator seeded with an
// existing refresh token.
func NewRefreshTokenAuthenticator(cfg AuthenticatorConfig, refreshToken string) (*Authenticator, error) {
	a, err := newAuthenticator(cfg, GrantRefreshToken)
	if err != nil {
		return nil, err
	}
	a.refreshToken = refreshToken
	return a, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
}

// Token returns a cached access token, fetching a fresh one when the cache
// is empty or within the expiry margin.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiry) {
		return a.token, nil
	}
	if err := a.fetchLocked(ctx); err != nil {
		return "", err
	}
	return a.token, nil
}

// UserContext reports whether the active grant carries a user account.
func (a *Authenticator) UserContext() bool {
	switch a.grant {
	case GrantClientCredentials:
		return false
	default:
		return true
	}
}

// RefreshToken returns the refresh token obtained from a permanent-duration
// code exchange, or the seeded one. Empty for grants that never produce one.
func (a *Authenticator) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshToken
}

// Scopes returns the scope set granted with the current token.
func (a *Authenticator) Scopes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.scopes...)
}

func (a *Authenticator) fetchLocked(ctx context.Context) error {
	form := url.Values{}
	switch a.grant {
	case GrantPassword:
		form.Set("grant_type", "password")
		form.Set("username", a.username)
		form.Set("password", a.password)
	case GrantClientCredentials:
		form.Set("grant_type", "client_credentials")
	case GrantAuthorizationCode:
		if a.refreshToken != "" {
			form.Set("grant_type", "refresh_token")
			form.Set("refresh_token", a.refreshToken)
			break
		}
		form.Set("grant_type", "authorization_code")
		form.Set("code", a.code)
		form.Set("redirect_uri", a.redirectURI)
	case GrantRefreshToken:
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", a.refreshToken)
	default:
		return &errors.AuthError{Err: fmt.Errorf("unsupported grant type %q", a.grant)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return &errors.AuthError{Err: fmt.Errorf("failed to create token request: %w", err)}
	}

	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if a.logger != nil {
		a.logger.Debug("requesting access token", "grant_type", form.Get("grant_type"), "token_url", a.tokenURL.String())
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &errors.AuthError{Err: fmt.Errorf("failed to execute token request: %w", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errors.AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return &errors.AuthError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(bodyBytes, &tokenResp); err != nil {
		return &errors.AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			Err:        fmt.Errorf("failed to unmarshal token response: %w", err),
		}
	}
	if tokenResp.AccessToken == "" {
		return &errors.AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			Err:        fmt.Errorf("access token was empty in response"),
		}
	}

	a.token = tokenResp.AccessToken
	if tokenResp.Scope != "" {
		a.scopes = strings.Fields(strings.ReplaceAll(tokenResp.Scope, ",", " "))
	}
	if tokenResp.RefreshToken != "" {
		a.refreshToken = tokenResp.RefreshToken
	}

	lifetime := time.Duration(tokenResp.ExpiresIn) * time.Second
	if lifetime <= tokenExpiryMargin {
		lifetime = time.Hour
	}
	a.expiry = time.Now().Add(lifetime - tokenExpiryMargin)

	if a.logger != nil {
		a.logger.Debug("access token acquired", "expires_in", tokenResp.ExpiresIn, "scopes", tokenResp.Scope)
	}
	return nil
}

// StaticTokenSource wraps an access token obtained out of band, e.g. from
// the implicit flow fragment. It never renews.
type StaticTokenSource struct {
	AccessToken string
	// HasUser marks whether the token carries a user context.
	HasUser bool
	// ExpiresAt ends the token's validity; zero means no known expiry.
	ExpiresAt time.Time
}

// Token returns the wrapped token, or an error once it has expired.
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return "", &errors.AuthError{Message: "implicit access token expired"}
	}
	return s.AccessToken, nil
}

// UserContext reports whether the token is bound to a user account.
func (s *StaticTokenSource) UserContext() bool { return s.HasUser }
