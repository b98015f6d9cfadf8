package snoo

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wryfi/snoo/internal"
	"github.com/wryfi/snoo/pkg/errors"
)

// Duration values accepted by the authorize endpoint.
const (
	DurationPermanent = "permanent"
	DurationTemporary = "temporary"
)

// Trusted reports whether the client is a trusted (confidential) app, i.e.
// one holding a client secret. Web apps are trusted; installed apps are not.
func (c *Client) Trusted() bool {
	return c.config.ClientSecret != ""
}

// AuthorizeURL composes the URL a user must visit to grant access.
//
// The URL carries client_id, duration (permanent or temporary), the
// URL-encoded redirect_uri, response_type (code, or token for the implicit
// flow), the space-joined scope list, and state. An empty state is replaced
// with a generated one; the caller must compare it on the redirect.
//
// The implicit flow is only available to installed (untrusted) apps and
// only with a temporary duration.
func (c *Client) AuthorizeURL(duration string, scopes []string, state string, implicit bool) (string, error) {
	if c.config.RedirectURI == "" {
		return "", &errors.ConfigError{Field: "RedirectURI", Message: "required for the authorize URL"}
	}
	if duration != DurationPermanent && duration != DurationTemporary {
		return "", &errors.ClientError{Operation: "authorize url", Message: "duration must be permanent or temporary"}
	}
	if implicit {
		if c.Trusted() {
			return "", &errors.ImplicitGrantError{Message: "the implicit flow is only available to installed apps"}
		}
		if duration != DurationTemporary {
			return "", &errors.ImplicitGrantError{Message: "the implicit flow requires a temporary duration"}
		}
	}
	if state == "" {
		state = uuid.NewString()
	}

	responseType := "code"
	if implicit {
		responseType = "token"
	}

	params := url.Values{}
	params.Set("client_id", c.config.ClientID)
	params.Set("duration", duration)
	params.Set("redirect_uri", c.config.RedirectURI)
	params.Set("response_type", responseType)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)

	base, err := url.Parse(c.config.AuthURL)
	if err != nil {
		return "", &errors.ClientError{Operation: "authorize url", Err: err}
	}
	authorize, err := base.Parse("api/v1/authorize")
	if err != nil {
		return "", &errors.ClientError{Operation: "authorize url", Err: err}
	}
	authorize.RawQuery = params.Encode()
	return authorize.String(), nil
}

// Authorize exchanges a code obtained from the code flow for a session,
// swaps it in as the active authorizer, and returns the refresh token
// (empty for temporary-duration grants). The swap is atomic; in-flight
// calls finish under the previous session.
func (c *Client) Authorize(ctx context.Context, code string) (string, error) {
	if c.config.RedirectURI == "" {
		return "", &errors.ConfigError{Field: "RedirectURI", Message: "required for the code flow"}
	}

	auth, err := internal.NewCodeAuthenticator(c.authConfig(), code, c.config.RedirectURI)
	if err != nil {
		return "", err
	}

	// Exchange eagerly so a bad code fails here, not on the next request.
	if _, err := auth.Token(ctx); err != nil {
		return "", err
	}

	c.swapTokenSource(auth, false)
	return auth.RefreshToken(), nil
}

// SetImplicitAccess installs an access token obtained from the implicit
// flow fragment. Only installed (untrusted) apps may use it.
func (c *Client) SetImplicitAccess(accessToken string, expiresIn time.Duration) error {
	if c.Trusted() {
		return &errors.ImplicitGrantError{Message: "the implicit flow is only available to installed apps"}
	}
	if accessToken == "" {
		return &errors.ClientError{Operation: "implicit access", Message: "access token is required"}
	}

	ts := &internal.StaticTokenSource{AccessToken: accessToken, HasUser: true}
	if expiresIn > 0 {
		ts.ExpiresAt = time.Now().Add(expiresIn)
	}
	c.swapTokenSource(ts, false)
	return nil
}

// SetRefreshToken swaps in a session backed by an existing refresh token.
func (c *Client) SetRefreshToken(refreshToken string) error {
	auth, err := internal.NewRefreshTokenAuthenticator(c.authConfig(), refreshToken)
	if err != nil {
		return err
	}
	c.swapTokenSource(auth, false)
	return nil
}

// Scopes returns the scope set granted with the current session, empty
// until the first token has been acquired.
func (c *Client) Scopes() []string {
	if auth, ok := c.http.ActiveTokenSource().(*internal.Authenticator); ok {
		return auth.Scopes()
	}
	return nil
}

func (c *Client) authConfig() internal.AuthenticatorConfig {
	return internal.AuthenticatorConfig{
		HTTPClient:   c.config.HTTPClient,
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		UserAgent:    c.config.UserAgent,
		AuthBaseURL:  c.config.AuthURL,
		Logger:       c.config.Logger,
	}
}
