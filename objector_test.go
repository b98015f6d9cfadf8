package snoo

import (
	"encoding/json"
	"fmt"
	"testing"

	snooerrors "github.com/wryfi/snoo/pkg/errors"
)

func objectifyJSON(t *testing.T, client *Client, body string) (any, error) {
	t.Helper()
	var value any
	if err := json.Unmarshal([]byte(body), &value); err != nil {
		t.Fatalf("test fixture is not valid JSON: %v", err)
	}
	return client.objector.Objectify(value)
}

func TestObjectifyDispatchesByKind(t *testing.T) {
	client := newOfflineClient(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"comment", `{"kind": "t1", "data": {"id": "abc", "body": "hi"}}`, "*snoo.Comment"},
		{"redditor", `{"kind": "t2", "data": {"name": "spez", "id": "1w72"}}`, "*snoo.Redditor"},
		{"submission", `{"kind": "t3", "data": {"id": "xyz", "title": "Hello"}}`, "*snoo.Submission"},
		{"message", `{"kind": "t4", "data": {"id": "msg1", "subject": "hey"}}`, "*snoo.Message"},
		{"subreddit", `{"kind": "t5", "data": {"display_name": "golang", "id": "2rc7j"}}`, "*snoo.Subreddit"},
		{"more", `{"kind": "more", "data": {"count": 4, "parent_id": "t1_abc", "children": ["d", "e"]}}`, "*snoo.More"},
		{"listing", `{"kind": "Listing", "data": {"after": "", "children": []}}`, "*snoo.Listing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := objectifyJSON(t, client, tt.body)
			if err != nil {
				t.Fatalf("Objectify() error = %v", err)
			}
			if got := fmt.Sprintf("%T", obj); got != tt.want {
				t.Errorf("Objectify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestObjectifyUnknownKindPassesThrough(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{"kind": "t9", "data": {"mystery": true}}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	m, ok := obj.(map[string]any)
	if !ok {
		t.Fatalf("Objectify() = %T, want the raw map", obj)
	}
	if m["kind"] != "t9" {
		t.Errorf("kind = %v, want the envelope untouched", m["kind"])
	}
}

func TestObjectifyIdempotent(t *testing.T) {
	client := newOfflineClient(t)

	original := client.Redditor("spez")
	obj, err := client.objector.Objectify(original)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	if obj != any(original) {
		t.Error("Objectify() of a materialized object must return it unchanged")
	}
}

func TestObjectifyLegacyErrorEnvelope(t *testing.T) {
	client := newOfflineClient(t)

	_, err := objectifyJSON(t, client, `{"json": {"errors": [["BAD_SR_NAME", "that subreddit name is invalid", "sr"]]}}`)
	apiErr, ok := err.(*snooerrors.APIError)
	if !ok {
		t.Fatalf("Objectify() error = %T, want *APIError", err)
	}
	if len(apiErr.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(apiErr.Items))
	}
	item := apiErr.Items[0]
	if item.ErrorType != "BAD_SR_NAME" || item.Message != "that subreddit name is invalid" || item.Field != "sr" {
		t.Errorf("item = %+v, want the parsed triple", item)
	}
}

func TestObjectifyLegacyMultipleErrors(t *testing.T) {
	client := newOfflineClient(t)

	_, err := objectifyJSON(t, client, `{"json": {"errors": [["RATELIMIT", "you are doing that too much", "ratelimit"], ["NO_TEXT", "we need something here", "title"]]}}`)
	apiErr, ok := err.(*snooerrors.APIError)
	if !ok {
		t.Fatalf("Objectify() error = %T, want *APIError", err)
	}
	if len(apiErr.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(apiErr.Items))
	}
}

func TestObjectifyLegacyThings(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{"json": {"errors": [], "data": {"things": [{"kind": "t1", "data": {"id": "abc", "body": "created"}}]}}}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	things, ok := obj.([]any)
	if !ok || len(things) != 1 {
		t.Fatalf("Objectify() = %T (%v), want a one-element slice", obj, obj)
	}
	if _, ok := things[0].(*Comment); !ok {
		t.Errorf("things[0] = %T, want *Comment", things[0])
	}
}

func TestObjectifyLegacySubmissionResult(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{"json": {"errors": [], "data": {"url": "https://example.com/r/golang/comments/xyz/t/", "id": "xyz", "name": "t3_xyz"}}}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	sub, ok := obj.(*Submission)
	if !ok {
		t.Fatalf("Objectify() = %T, want *Submission", obj)
	}
	if sub.ID() != "xyz" {
		t.Errorf("ID() = %q, want %q", sub.ID(), "xyz")
	}
}

func TestObjectifyStructuralModmail(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{"bodyMarkdown": "hello there", "isInternal": false, "id": "m1"}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	msg, ok := obj.(*ModmailMessage)
	if !ok {
		t.Fatalf("Objectify() = %T, want *ModmailMessage", obj)
	}
	// camelCase keys are rewritten to the snake_case attribute surface.
	if body, _ := msg.Snapshot()["body_markdown"].(string); body != "hello there" {
		t.Errorf("body_markdown = %q, want %q", body, "hello there")
	}
}

func TestObjectifyStructuralRedditor(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{"isAdmin": false, "name": "modperson", "id": "abc"}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	r, ok := obj.(*Redditor)
	if !ok {
		t.Fatalf("Objectify() = %T, want *Redditor", obj)
	}
	if r.Name() != "modperson" {
		t.Errorf("Name() = %q, want %q", r.Name(), "modperson")
	}
}

func TestObjectifyNestedReplies(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{
		"kind": "t1",
		"data": {
			"id": "c1",
			"body": "parent",
			"replies": {"kind": "Listing", "data": {"children": [
				{"kind": "t1", "data": {"id": "c2", "parent_id": "t1_c1", "body": "child"}}
			]}}
		}
	}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	comment := obj.(*Comment)
	if len(comment.Replies()) != 1 {
		t.Fatalf("len(Replies()) = %d, want 1", len(comment.Replies()))
	}
	child := comment.Replies()[0].Comment
	if child == nil || child.ID() != "c2" {
		t.Errorf("reply = %v, want comment c2", child)
	}
}

func TestObjectifyEmptyRepliesString(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{"kind": "t1", "data": {"id": "c1", "body": "leaf", "replies": ""}}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	comment := obj.(*Comment)
	if len(comment.Replies()) != 0 {
		t.Errorf("len(Replies()) = %d, want 0 for an empty replies string", len(comment.Replies()))
	}
}

func TestObjectifyListingChildren(t *testing.T) {
	client := newOfflineClient(t)

	obj, err := objectifyJSON(t, client, `{"kind": "Listing", "data": {"after": "t3_xyz", "children": [
		{"kind": "t3", "data": {"id": "xyz", "title": "first"}},
		{"kind": "more", "data": {"count": 2, "parent_id": "t3_xyz", "children": ["a"]}}
	]}}`)
	if err != nil {
		t.Fatalf("Objectify() error = %v", err)
	}
	listing := obj.(*Listing)
	if listing.After != "t3_xyz" {
		t.Errorf("After = %q, want %q", listing.After, "t3_xyz")
	}
	if len(listing.Children) != 2 {
		t.Fatalf("len(Children) = %d, want 2", len(listing.Children))
	}
	if _, ok := listing.Children[0].(*Submission); !ok {
		t.Errorf("Children[0] = %T, want *Submission", listing.Children[0])
	}
	if _, ok := listing.Children[1].(*More); !ok {
		t.Errorf("Children[1] = %T, want *More", listing.Children[1])
	}
}

func TestObjectifyScalars(t *testing.T) {
	client := newOfflineClient(t)

	for _, value := range []any{nil, "plain", 4.0, true} {
		obj, err := client.objector.Objectify(value)
		if err != nil {
			t.Fatalf("Objectify(%v) error = %v", value, err)
		}
		if obj != value {
			t.Errorf("Objectify(%v) = %v, want the value unchanged", value, obj)
		}
	}
}

func TestKindOf(t *testing.T) {
	client := newOfflineClient(t)
	if got := KindOf(client.Comment("abc")); got != "t1" {
		t.Errorf("KindOf(comment) = %q, want t1", got)
	}
	if got := KindOf("not a thing"); got != "" {
		t.Errorf("KindOf(string) = %q, want empty", got)
	}
}

func TestSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"bodyMarkdown", "body_markdown"},
		{"isAdmin", "is_admin"},
		{"already_snake", "already_snake"},
		{"id", "id"},
	}
	for _, tt := range tests {
		if got := snakeCase(tt.in); got != tt.want {
			t.Errorf("snakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
