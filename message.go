package snoo

import (
	"context"
	"net/url"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// Message is a private message. Messages constructed by id fetch through
// /api/info.
type Message struct {
	thing

	replies []any
}

func newMessage(c *Client, id string) *Message {
	return &Message{thing: newThing(c, types.KindMessage, "Message", id)}
}

// Message returns a lazy message handle for the given base36 id.
func (c *Client) Message(id string) *Message {
	return newMessage(c, id)
}

// Replies returns the reply messages parsed with this message.
func (m *Message) Replies() []any { return m.replies }

// Subject returns the message subject line.
func (m *Message) Subject(ctx context.Context) (string, error) {
	return m.GetString(ctx, "subject")
}

// Body returns the message body markdown.
func (m *Message) Body(ctx context.Context) (string, error) {
	return m.GetString(ctx, "body")
}

// Author returns the sender, or nil for system messages.
func (m *Message) Author(ctx context.Context) (*Redditor, error) {
	v, err := m.Get(ctx, "author")
	if err != nil {
		return nil, err
	}
	r, _ := v.(*Redditor)
	return r, nil
}

// Reply answers the message. Requires a user context.
func (m *Message) Reply(ctx context.Context, body string) (*Comment, error) {
	return m.client.reply(ctx, m.Fullname(), body)
}

// MarkRead marks the message read. Requires a user context.
func (m *Message) MarkRead(ctx context.Context) error {
	return m.client.markMessages(ctx, "api/read_message", m.Fullname())
}

// MarkUnread marks the message unread. Requires a user context.
func (m *Message) MarkUnread(ctx context.Context) error {
	return m.client.markMessages(ctx, "api/unread_message", m.Fullname())
}

func (c *Client) markMessages(ctx context.Context, path, fullname string) error {
	if err := c.requireUser("mark message"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("id", fullname)
	_, err := c.postObject(ctx, path, form)
	return err
}

// Inbox iterates the authenticated user's inbox.
func (c *Client) Inbox(ctx context.Context, limit int) (*ListingIterator, error) {
	if err := c.requireUser("inbox"); err != nil {
		return nil, err
	}
	return c.newListingIterator(ctx, "message/inbox", nil, limit), nil
}

// Unread iterates the authenticated user's unread messages.
func (c *Client) Unread(ctx context.Context, limit int) (*ListingIterator, error) {
	if err := c.requireUser("unread"); err != nil {
		return nil, err
	}
	return c.newListingIterator(ctx, "message/unread", nil, limit), nil
}

// Sent iterates the authenticated user's sent messages.
func (c *Client) Sent(ctx context.Context, limit int) (*ListingIterator, error) {
	if err := c.requireUser("sent"); err != nil {
		return nil, err
	}
	return c.newListingIterator(ctx, "message/sent", nil, limit), nil
}

// StreamInbox yields new inbox items indefinitely. The factory fails fast
// in read-only mode.
func (c *Client) StreamInbox(opts StreamOptions) *Stream {
	factory := func(ctx context.Context, limit int, before string) ([]any, error) {
		if err := c.requireUser("inbox stream"); err != nil {
			return nil, err
		}
		params := url.Values{}
		if before != "" {
			params.Set("before", before)
		}
		return c.newListingIterator(ctx, "message/inbox", params, limit).All()
	}
	return newStream(factory, opts)
}

// Compose sends a private message to a user. Requires a user context.
func (c *Client) Compose(ctx context.Context, to, subject, body string) error {
	return c.compose(ctx, to, subject, body)
}

func (c *Client) compose(ctx context.Context, to, subject, body string) error {
	if err := c.requireUser("compose"); err != nil {
		return err
	}
	if to == "" {
		return &errors.ClientError{Operation: "compose", Message: "recipient is required"}
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("to", to)
	form.Set("subject", subject)
	form.Set("text", body)
	_, err := c.postObject(ctx, "api/compose", form)
	return err
}
