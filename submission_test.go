package snoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"

	snooerrors "github.com/wryfi/snoo/pkg/errors"
)

func TestSubmissionIDFromURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"permalink", "https://www.reddit.com/r/golang/comments/xyz9/some_title/", "xyz9", false},
		{"comment permalink", "https://www.reddit.com/r/golang/comments/xyz9/some_title/abc1/", "xyz9", false},
		{"bare comments path", "https://www.reddit.com/comments/xyz9", "xyz9", false},
		{"shortlink", "https://redd.it/xyz9", "xyz9", false},
		{"shortlink host is case-insensitive", "https://REDD.IT/xyz9", "xyz9", false},
		{"profile link", "https://www.reddit.com/user/spez/", "", true},
		{"empty shortlink", "https://redd.it/", "", true},
		{"garbage", "://not-a-url", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubmissionIDFromURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SubmissionIDFromURL(%q) expected an error, got %q", tt.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SubmissionIDFromURL(%q) error = %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("SubmissionIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestShortlink(t *testing.T) {
	client := newOfflineClient(t)
	if got := client.Submission("xyz9").Shortlink(); got != "https://redd.it/xyz9" {
		t.Errorf("Shortlink() = %q, want https://redd.it/xyz9", got)
	}
}

func TestSubmissionFetchSharesSnapshotWithForest(t *testing.T) {
	var requests int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writeJSON(t, w, submissionPair)
	})
	ctx := context.Background()

	s := client.Submission("abc")
	title, err := s.Title(ctx)
	if err != nil {
		t.Fatalf("Title() error = %v", err)
	}
	if title != "test post" {
		t.Errorf("Title() = %q, want %q", title, "test post")
	}

	// The same fetch materialized the forest and the score.
	forest, err := s.Comments(ctx)
	if err != nil {
		t.Fatalf("Comments() error = %v", err)
	}
	if len(forest.Comments()) != 1 {
		t.Errorf("len(Comments()) = %d, want 1", len(forest.Comments()))
	}
	score, err := s.Score(ctx)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score != 42 {
		t.Errorf("Score() = %d, want 42", score)
	}

	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("issued %d requests, want 1", got)
	}
}

func TestVoteDirections(t *testing.T) {
	var forms []url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/vote" {
			t.Errorf("unexpected request path %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		forms = append(forms, r.PostForm)
		writeJSON(t, w, `{}`)
	})
	ctx := context.Background()

	s := client.Submission("xyz")
	if err := s.Upvote(ctx); err != nil {
		t.Fatalf("Upvote() error = %v", err)
	}
	if err := s.Downvote(ctx); err != nil {
		t.Fatalf("Downvote() error = %v", err)
	}
	if err := s.ClearVote(ctx); err != nil {
		t.Fatalf("ClearVote() error = %v", err)
	}

	if len(forms) != 3 {
		t.Fatalf("issued %d requests, want 3", len(forms))
	}
	for i, want := range []string{"1", "-1", "0"} {
		if got := forms[i].Get("dir"); got != want {
			t.Errorf("request %d dir = %q, want %q", i, got, want)
		}
		if got := forms[i].Get("id"); got != "t3_xyz" {
			t.Errorf("request %d id = %q, want t3_xyz", i, got)
		}
	}
}

func TestSaveAndUnsavePaths(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeJSON(t, w, `{}`)
	})
	ctx := context.Background()

	s := client.Submission("xyz")
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Unsave(ctx); err != nil {
		t.Fatalf("Unsave() error = %v", err)
	}

	if len(paths) != 2 || paths[0] != "/api/save" || paths[1] != "/api/unsave" {
		t.Errorf("paths = %v, want [/api/save /api/unsave]", paths)
	}
}

func TestSubmissionReply(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/comment" {
			t.Errorf("unexpected request path %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("thing_id"); got != "t3_xyz" {
			t.Errorf("thing_id = %q, want t3_xyz", got)
		}
		if got := r.PostForm.Get("text"); got != "nice post" {
			t.Errorf("text = %q", got)
		}
		writeJSON(t, w, `{"json": {"errors": [], "data": {"things": [
			{"kind": "t1", "data": {"id": "newc", "name": "t1_newc", "parent_id": "t3_xyz", "body": "nice post"}}
		]}}}`)
	})

	created, err := client.Submission("xyz").Reply(context.Background(), "nice post")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if created.ID() != "newc" {
		t.Errorf("ID() = %q, want newc", created.ID())
	}
}

func TestSubmit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/submit" {
			t.Errorf("unexpected request path %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("kind"); got != "self" {
			t.Errorf("kind = %q, want self", got)
		}
		if got := r.PostForm.Get("sr"); got != "golang" {
			t.Errorf("sr = %q, want golang", got)
		}
		if got := r.PostForm.Get("nsfw"); got != "" {
			t.Errorf("nsfw = %q, want unset", got)
		}
		writeJSON(t, w, `{"json": {"errors": [], "data": {"url": "https://www.reddit.com/r/golang/comments/new1/hello/", "id": "new1", "name": "t3_new1"}}}`)
	})

	created, err := client.Submit(context.Background(), SubmitOptions{
		Subreddit: "golang",
		Title:     "hello",
		SelfText:  "first post",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if created.ID() != "new1" {
		t.Errorf("ID() = %q, want new1", created.ID())
	}
}

func TestSubmitRequiresSubredditAndTitle(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("validation failures must not reach the server, got %q", r.URL.Path)
	})

	if _, err := client.Submit(context.Background(), SubmitOptions{Title: "no sub"}); err == nil {
		t.Error("Submit() without a subreddit expected an error")
	}
	if _, err := client.Submit(context.Background(), SubmitOptions{Subreddit: "golang"}); err == nil {
		t.Error("Submit() without a title expected an error")
	}
}

func TestSubmitMediaWithoutWebsocket(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/submit" {
			t.Errorf("unexpected request path %q", r.URL.Path)
		}
		writeJSON(t, w, `{"json": {"errors": [], "data": {"websocket_url": "wss://ws.example/1"}}}`)
	})

	created, err := client.SubmitMedia(context.Background(), MediaSubmitOptions{
		Subreddit:        "golang",
		Title:            "a picture",
		MediaURL:         "https://media.example/asset.png",
		WithoutWebsocket: true,
	})
	if err != nil {
		t.Fatalf("SubmitMedia() error = %v", err)
	}
	if created != nil {
		t.Errorf("SubmitMedia() = %v, want nil in without-websocket mode", created)
	}
}

// newConfirmationServer runs a one-shot websocket endpoint pushing the given
// confirmation frame.
func newConfirmationServer(t *testing.T, frame string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept() error = %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		if err := conn.Write(r.Context(), websocket.MessageText, []byte(frame)); err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSubmitMediaAwaitsConfirmation(t *testing.T) {
	wsURL := newConfirmationServer(t, `{"type": "success", "payload": {"redirect": "https://www.reddit.com/r/golang/comments/new1/hello/"}}`)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, `{"json": {"errors": [], "data": {"websocket_url": "`+wsURL+`"}}}`)
	})

	created, err := client.SubmitMedia(context.Background(), MediaSubmitOptions{
		Subreddit: "golang",
		Title:     "a picture",
		MediaURL:  "https://media.example/asset.png",
	})
	if err != nil {
		t.Fatalf("SubmitMedia() error = %v", err)
	}
	if created.ID() != "new1" {
		t.Errorf("ID() = %q, want new1", created.ID())
	}
}

func TestSubmitMediaConfirmationFailure(t *testing.T) {
	wsURL := newConfirmationServer(t, `{"type": "failed", "payload": {}}`)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, `{"json": {"errors": [], "data": {"websocket_url": "`+wsURL+`"}}}`)
	})

	_, err := client.SubmitMedia(context.Background(), MediaSubmitOptions{
		Subreddit: "golang",
		Title:     "a picture",
		MediaURL:  "https://media.example/asset.png",
	})
	var wsErr *snooerrors.WebSocketError
	if !errors.As(err, &wsErr) {
		t.Fatalf("error = %T (%v), want *WebSocketError", err, err)
	}
	if !strings.Contains(err.Error(), "rejected") {
		t.Errorf("error = %v, want a rejection message", err)
	}
}
