// Package types defines the wire-level shapes shared between the client
// facade and the internal transport: the Thing envelope, fullname helpers,
// and the mixed-type fields Reddit is known to send.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind tags assigned by Reddit to identify entity types in JSON envelopes.
const (
	KindComment    = "t1"
	KindRedditor   = "t2"
	KindSubmission = "t3"
	KindMessage    = "t4"
	KindSubreddit  = "t5"
	KindAward      = "t6"

	KindListing             = "Listing"
	KindMore                = "more"
	KindLiveUpdateEvent     = "LiveUpdateEvent"
	KindModAction           = "modaction"
	KindModmailConversation = "ModmailConversation"
	KindUserList            = "UserList"
	KindTrophyList          = "TrophyList"
	KindWikiPage            = "wikipage"
)

// MaxListingSize is the page size the API honors when a caller asks for as
// many items as possible in one request. The normal per-page cap is
// DefaultPageSize.
const (
	MaxListingSize  = 1024
	DefaultPageSize = 100
)

// Fullname builds the stable, globally-unique identifier of a server entity,
// e.g. Fullname("t3", "abc123") == "t3_abc123".
func Fullname(kind, id string) string {
	return kind + "_" + id
}

// SplitFullname splits a fullname into its kind tag and base36 id.
func SplitFullname(fullname string) (kind, id string, err error) {
	i := strings.Index(fullname, "_")
	if i <= 0 || i == len(fullname)-1 {
		return "", "", fmt.Errorf("malformed fullname %q", fullname)
	}
	return fullname[:i], fullname[i+1:], nil
}

// Thing is the tagged envelope wrapping every entity the API returns.
// Data is left raw; the objector decides how to materialize it.
type Thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Edited represents a field that can be a boolean or a timestamp.
// If IsEdited is true and Timestamp is 0, it was an old edit marked `true`.
// If IsEdited is true and Timestamp is non-zero, it's a modern edit.
type Edited struct {
	IsEdited  bool
	Timestamp float64
}

// UnmarshalJSON implements json.Unmarshaler to handle the mixed types Reddit
// sends for "edited".
func (e *Edited) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(string(data)) {
	case "false", "null":
		e.IsEdited = false
		e.Timestamp = 0
		return nil
	case "true":
		e.IsEdited = true
		e.Timestamp = 0
		return nil
	}

	var timestamp float64
	if err := json.Unmarshal(data, &timestamp); err == nil {
		e.IsEdited = true
		e.Timestamp = timestamp
		return nil
	}

	return fmt.Errorf("unrecognized type for 'edited' field: %s", string(data))
}

// RateLimitSnapshot reports the most recent rate-limit accounting read from
// response headers. All fields are zero until the first request completes.
type RateLimitSnapshot struct {
	// Remaining is the number of requests left in the current window.
	Remaining float64
	// Used is the number of requests consumed in the current window.
	Used float64
	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// APIErrorItem is one entry of the errors array the API returns on rejected
// mutations: [[type, message, field], ...].
type APIErrorItem struct {
	ErrorType string
	Message   string
	Field     string
}

// UnmarshalJSON accepts the wire form, a three-element string array.
func (it *APIErrorItem) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) > 0 {
		it.ErrorType = parts[0]
	}
	if len(parts) > 1 {
		it.Message = parts[1]
	}
	if len(parts) > 2 {
		it.Field = parts[2]
	}
	return nil
}

// MarshalJSON emits the wire form.
func (it APIErrorItem) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{it.ErrorType, it.Message, it.Field})
}
