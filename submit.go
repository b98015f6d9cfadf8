package snoo

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/wryfi/snoo/pkg/errors"
)

// DefaultWebsocketTimeout bounds the wait for a media submission
// confirmation.
const DefaultWebsocketTimeout = 30 * time.Second

// SubmitOptions describe a new submission.
type SubmitOptions struct {
	Subreddit string
	Title     string

	// SelfText makes a self post; URL makes a link post. Exactly one should
	// be set for text/link submissions.
	SelfText string
	URL      string

	NSFW        bool
	Spoiler     bool
	SendReplies bool

	// FlairID optionally assigns a flair template.
	FlairID string
}

// Submit creates a self or link post and returns the created submission.
func (c *Client) Submit(ctx context.Context, opts SubmitOptions) (*Submission, error) {
	if err := c.requireUser("submit"); err != nil {
		return nil, err
	}
	if opts.Subreddit == "" || opts.Title == "" {
		return nil, &errors.ClientError{Operation: "submit", Message: "subreddit and title are required"}
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", opts.Subreddit)
	form.Set("title", opts.Title)
	if opts.URL != "" {
		form.Set("kind", "link")
		form.Set("url", opts.URL)
	} else {
		form.Set("kind", "self")
		form.Set("text", opts.SelfText)
	}
	applySubmitFlags(form, opts)

	obj, err := c.postObject(ctx, "api/submit", form)
	if err != nil {
		return nil, err
	}
	created, ok := obj.(*Submission)
	if !ok {
		return nil, &errors.ParseError{Operation: "submit", Message: "no submission in response"}
	}
	return created, nil
}

// MediaSubmitOptions describe an image or video submission whose final URL
// arrives over a confirmation websocket.
type MediaSubmitOptions struct {
	Subreddit string
	Title     string

	// MediaURL is the uploaded asset location returned by the media lease.
	MediaURL string
	// Kind is "image", "video", or "videogif".
	Kind string

	NSFW    bool
	Spoiler bool

	// WithoutWebsocket skips the confirmation wait; the returned submission
	// is nil and the caller polls on its own.
	WithoutWebsocket bool
	// WebsocketTimeout bounds the confirmation wait. Zero uses the default.
	WebsocketTimeout time.Duration
}

// SubmitMedia creates an image or video post. Unless WithoutWebsocket is
// set, it waits on the confirmation websocket the API hands back and
// returns the created submission; in without-websocket mode it returns
// (nil, nil) on acceptance.
func (c *Client) SubmitMedia(ctx context.Context, opts MediaSubmitOptions) (*Submission, error) {
	if err := c.requireUser("submit media"); err != nil {
		return nil, err
	}
	if opts.Subreddit == "" || opts.Title == "" || opts.MediaURL == "" {
		return nil, &errors.ClientError{Operation: "submit media", Message: "subreddit, title and media URL are required"}
	}
	kind := opts.Kind
	if kind == "" {
		kind = "image"
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", opts.Subreddit)
	form.Set("title", opts.Title)
	form.Set("kind", kind)
	form.Set("url", opts.MediaURL)
	applySubmitFlags(form, SubmitOptions{NSFW: opts.NSFW, Spoiler: opts.Spoiler})

	value, err := c.postForm(ctx, "api/submit", form)
	if err != nil {
		return nil, err
	}

	wsURL := websocketURLFrom(value)
	if opts.WithoutWebsocket {
		return nil, nil
	}
	if wsURL == "" {
		return nil, &errors.WebSocketError{Message: "no confirmation websocket in response"}
	}

	timeout := opts.WebsocketTimeout
	if timeout <= 0 {
		timeout = DefaultWebsocketTimeout
	}
	return c.awaitSubmission(ctx, wsURL, timeout)
}

func applySubmitFlags(form url.Values, opts SubmitOptions) {
	if opts.NSFW {
		form.Set("nsfw", "true")
	}
	if opts.Spoiler {
		form.Set("spoiler", "true")
	}
	if opts.SendReplies {
		form.Set("sendreplies", "true")
	}
	if opts.FlairID != "" {
		form.Set("flair_id", opts.FlairID)
	}
}

func websocketURLFrom(value any) string {
	m, ok := value.(map[string]any)
	if !ok {
		return ""
	}
	inner, ok := m["json"].(map[string]any)
	if !ok {
		return ""
	}
	data, ok := inner["data"].(map[string]any)
	if !ok {
		return ""
	}
	wsURL, _ := data["websocket_url"].(string)
	return wsURL
}

// awaitSubmission reads the single confirmation frame the API pushes after
// a media submission and resolves it to the created submission.
func (c *Client) awaitSubmission(ctx context.Context, wsURL string, timeout time.Duration) (*Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The dialer refuses clients carrying a Timeout; the context already
	// bounds the wait.
	httpClient := c.config.HTTPClient
	if httpClient != nil && httpClient.Timeout > 0 {
		clone := *httpClient
		clone.Timeout = 0
		httpClient = &clone
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: httpClient})
	if err != nil {
		return nil, &errors.WebSocketError{Message: "failed to connect", Err: err}
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, payload, err := conn.Read(ctx)
	if err != nil {
		return nil, &errors.WebSocketError{Message: "confirmation read failed", Err: err}
	}

	var frame struct {
		Type    string `json:"type"`
		Payload struct {
			Redirect string `json:"redirect"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, &errors.WebSocketError{Message: "malformed confirmation frame", Err: err}
	}
	if frame.Type == "failed" {
		return nil, &errors.WebSocketError{Message: "the server rejected the media submission"}
	}
	if frame.Payload.Redirect == "" {
		return nil, &errors.WebSocketError{Message: "confirmation frame carried no redirect"}
	}

	return c.SubmissionFromURL(frame.Payload.Redirect)
}
