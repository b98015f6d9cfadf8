package snoo

import (
	"context"
	"net/url"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// Award is a trophy or gilding record.
type Award struct {
	thing
}

func newAward(c *Client) *Award {
	return &Award{thing: newThing(c, types.KindAward, "Award", "")}
}

// Relationship is a moderator, contributor, or ban record tying a user to a
// subreddit. It is identified by the rel_id the server assigns.
type Relationship struct {
	thing
}

func newRelationship(c *Client) *Relationship {
	r := &Relationship{thing: newThing(c, "rel", "Relationship", "")}
	return r
}

// Fullname returns the relationship id assigned by the server.
func (r *Relationship) Fullname() string {
	if id, ok := r.attrs["rel_id"].(string); ok {
		return id
	}
	return r.thing.Fullname()
}

// User returns the related account.
func (r *Relationship) User(ctx context.Context) (*Redditor, error) {
	name, err := r.GetString(ctx, "name")
	if err != nil {
		return nil, err
	}
	return r.client.Redditor(name), nil
}

// ModAction is one moderation-log entry.
type ModAction struct {
	thing
}

func newModAction(c *Client) *ModAction {
	return &ModAction{thing: newThing(c, types.KindModAction, "ModAction", "")}
}

// Action returns the action name, e.g. "removelink".
func (a *ModAction) Action(ctx context.Context) (string, error) {
	return a.GetString(ctx, "action")
}

// Moderator returns the acting moderator.
func (a *ModAction) Moderator(ctx context.Context) (*Redditor, error) {
	v, err := a.Get(ctx, "mod")
	if err != nil {
		return nil, err
	}
	r, _ := v.(*Redditor)
	return r, nil
}

// WikiPage is a page of a subreddit wiki.
type WikiPage struct {
	thing

	subreddit string
	page      string
}

func newWikiPage(c *Client) *WikiPage {
	w := &WikiPage{thing: newThing(c, types.KindWikiPage, "WikiPage", "")}
	w.fetchFunc = w.fetchPage
	return w
}

func (w *WikiPage) fetchPage(ctx context.Context) (map[string]any, error) {
	obj, err := w.client.getObject(ctx, "r/"+w.subreddit+"/wiki/"+w.page, nil)
	if err != nil {
		return nil, err
	}
	src, ok := obj.(attrSource)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch wiki page", Message: "unexpected response shape"}
	}
	return src.Snapshot(), nil
}

// Content returns the page's markdown content.
func (w *WikiPage) Content(ctx context.Context) (string, error) {
	return w.GetString(ctx, "content_md")
}

// Edit replaces the page content. Requires a user context.
func (w *WikiPage) Edit(ctx context.Context, content, reason string) error {
	if err := w.client.requireUser("wiki edit"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("page", w.page)
	form.Set("content", content)
	if reason != "" {
		form.Set("reason", reason)
	}
	_, err := w.client.postObject(ctx, "r/"+w.subreddit+"/api/wiki/edit", form)
	return err
}

// LiveThread is a live event thread. Live-thread ids are case-sensitive, so
// no case normalization applies.
type LiveThread struct {
	thing
}

// LiveThread returns a lazy live-thread handle.
func (c *Client) LiveThread(id string) *LiveThread {
	lt := &LiveThread{thing: newThing(c, types.KindLiveUpdateEvent, "LiveThread", id)}
	lt.fetchFunc = lt.fetchAbout
	return lt
}

func (lt *LiveThread) fetchAbout(ctx context.Context) (map[string]any, error) {
	obj, err := lt.client.getObject(ctx, "live/"+lt.ID()+"/about", nil)
	if err != nil {
		return nil, err
	}
	src, ok := obj.(attrSource)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch live thread", Message: "unexpected response shape"}
	}
	return src.Snapshot(), nil
}

// Updates iterates the thread's updates, newest first.
func (lt *LiveThread) Updates(ctx context.Context, limit int) *ListingIterator {
	return lt.client.newListingIterator(ctx, "live/"+lt.ID(), nil, limit)
}

// ModmailMessage is a single message of a modmail conversation. The server
// sends these as untagged camelCase dicts; the objector normalizes the keys.
type ModmailMessage struct {
	thing
}

func newModmailMessage(c *Client) *ModmailMessage {
	return &ModmailMessage{thing: newThing(c, "modmail_message", "ModmailMessage", "")}
}

// ModmailAction is a moderation action inside a modmail conversation.
type ModmailAction struct {
	thing
}

func newModmailAction(c *Client) *ModmailAction {
	return &ModmailAction{thing: newThing(c, "modmail_action", "ModmailAction", "")}
}

// ModmailConversation is a new-modmail conversation. Conversation ids are
// case-sensitive.
type ModmailConversation struct {
	thing
}

func newModmailConversation(c *Client, id string) *ModmailConversation {
	conv := &ModmailConversation{thing: newThing(c, types.KindModmailConversation, "ModmailConversation", id)}
	conv.fetchFunc = conv.fetchConversation
	return conv
}

// ModmailConversation returns a lazy conversation handle.
func (c *Client) ModmailConversation(id string) *ModmailConversation {
	return newModmailConversation(c, id)
}

func (conv *ModmailConversation) fetchConversation(ctx context.Context) (map[string]any, error) {
	value, err := conv.client.get(ctx, "api/mod/conversations/"+conv.ID(), nil)
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch modmail conversation", Message: "unexpected response shape"}
	}
	if inner, ok := m["conversation"].(map[string]any); ok {
		m = inner
	}
	return snakeCaseKeys(m), nil
}

// Reply appends a message to the conversation. Requires a user context.
func (conv *ModmailConversation) Reply(ctx context.Context, body string, internal bool) error {
	if err := conv.client.requireUser("modmail reply"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("body", body)
	if internal {
		form.Set("isInternal", "true")
	}
	_, err := conv.client.postObject(ctx, "api/mod/conversations/"+conv.ID(), form)
	return err
}
