// Package errors defines the error types surfaced by the client: structured
// API rejections, authorization failures, transport status classes, and
// local validity violations.
package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wryfi/snoo/pkg/types"
)

// ConfigError indicates a problem with the client configuration.
type ConfigError struct {
	// Field contains the name of the configuration field that caused the error
	Field string
	// Message contains the detailed error message
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// AuthError indicates an authentication failure.
type AuthError struct {
	// StatusCode is the HTTP status code (if from an HTTP response)
	StatusCode int
	// Message contains the detailed error message
	Message string
	// Body contains the raw response body (if available)
	Body string
	// Err contains the underlying error if available
	Err error
}

func (e *AuthError) Error() string {
	var parts []string
	parts = append(parts, "auth error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status code %d", e.StatusCode))
	}
	if e.Body != "" {
		parts = append(parts, fmt.Sprintf("body: %q", e.Body))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("err: %v", e.Err))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + ": " + strings.Join(parts[1:], ", ")
}

func (e *AuthError) Unwrap() error { return e.Err }

// ReadOnlyError indicates an operation requiring a user context was attempted
// while the client holds application-only credentials.
type ReadOnlyError struct {
	// Operation is the name of the operation that was attempted
	Operation string
}

func (e *ReadOnlyError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("read-only client: %s requires a user context", e.Operation)
	}
	return "read-only client: operation requires a user context"
}

// ScopeError indicates the current OAuth scope set does not include a scope
// required by the requested endpoint.
type ScopeError struct {
	Scope     string
	Operation string
}

func (e *ScopeError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("missing OAuth scope %q for %s", e.Scope, e.Operation)
	}
	return fmt.Sprintf("missing OAuth scope %q", e.Scope)
}

// ImplicitGrantError indicates an implicit-flow operation was attempted on a
// trusted (web) authorizer, or vice versa.
type ImplicitGrantError struct {
	Message string
}

func (e *ImplicitGrantError) Error() string {
	return fmt.Sprintf("invalid implicit grant: %s", e.Message)
}

// APIError carries the structured errors array from a rejected API call.
// A single item renders alone; multiple items surface together.
type APIError struct {
	// StatusCode is the HTTP status of the response, if any.
	StatusCode int
	// Items holds the parsed {type, message, field} entries.
	Items []types.APIErrorItem
}

func (e *APIError) Error() string {
	switch len(e.Items) {
	case 0:
		return fmt.Sprintf("API request failed with status %d", e.StatusCode)
	case 1:
		it := e.Items[0]
		if it.Field != "" {
			return fmt.Sprintf("%s: %s (field %q)", it.ErrorType, it.Message, it.Field)
		}
		return fmt.Sprintf("%s: %s", it.ErrorType, it.Message)
	}

	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s: %s", it.ErrorType, it.Message))
	}
	return fmt.Sprintf("%d API errors: %s", len(e.Items), strings.Join(parts, "; "))
}

// StatusError indicates a non-2xx response that did not carry a structured
// errors array. Use the predicate helpers to classify it.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("API request to %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsForbidden reports whether err is a 403 StatusError.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

// IsTooLarge reports whether err is a 413 StatusError.
func IsTooLarge(err error) bool { return hasStatus(err, http.StatusRequestEntityTooLarge) }

// IsServerError reports whether err is a 5xx StatusError.
func IsServerError(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode >= 500 && se.StatusCode <= 599
}

func hasStatus(err error, code int) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == code
}

// RateLimitError surfaces a 429 after the transport has exhausted its forced
// delays.
type RateLimitError struct {
	RetryAfterSeconds float64
}

func (e *RateLimitError) Error() string {
	if e.RetryAfterSeconds > 0 {
		return fmt.Sprintf("rate limited, retry after %.0fs", e.RetryAfterSeconds)
	}
	return "rate limited"
}

// ClientError indicates a local validity violation: a repeated replace-more
// pass, an unrecognized response shape, an invalid URL, oversized media.
type ClientError struct {
	// Operation describes what the client was trying to do
	Operation string
	// Message contains the detailed error message
	Message string
	// Err contains the underlying error if available
	Err error
}

func (e *ClientError) Error() string {
	if e.Err != nil && e.Operation == "" && e.Message == "" {
		return e.Err.Error()
	}
	if e.Operation != "" && e.Message != "" {
		return fmt.Sprintf("client error during %s: %s", e.Operation, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("client error: %s", e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("client error: %v", e.Err)
	}
	return "client error"
}

func (e *ClientError) Unwrap() error { return e.Err }

// ParseError indicates a malformed payload the objector refused to
// normalize past.
type ParseError struct {
	// Operation is the name of the API operation where parsing failed
	Operation string
	// Message contains the detailed error message
	Message string
	// Err contains the underlying error if available
	Err error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Operation != "" {
		return fmt.Sprintf("parse error during %s: %s", e.Operation, msg)
	}
	return fmt.Sprintf("parse error: %s", msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AttributeError indicates an attribute was still absent after the lazy
// fetch completed.
type AttributeError struct {
	Type      string
	Attribute string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("%s has no attribute %q", e.Type, e.Attribute)
}

// WebSocketError indicates the submission confirmation channel failed or
// timed out.
type WebSocketError struct {
	Message string
	Err     error
}

func (e *WebSocketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("websocket error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("websocket error: %s", e.Message)
}

func (e *WebSocketError) Unwrap() error { return e.Err }
