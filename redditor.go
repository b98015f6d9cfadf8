package snoo

import (
	"context"
	"net/url"
	"strings"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// Redditor is a user account, addressed by username. Usernames are
// case-insensitive for equality.
type Redditor struct {
	thing
}

// Redditor returns a lazy redditor handle. No I/O is performed; accessing
// the name returns the seed immediately, anything else fetches the about
// endpoint once.
func (c *Client) Redditor(name string) *Redditor {
	r := &Redditor{thing: newThing(c, types.KindRedditor, "Redditor", "")}
	if name != "" {
		r.attrs["name"] = name
	}
	r.fetchFunc = r.fetchAbout
	r.normalizeID = strings.ToLower
	r.identityFunc = r.Name
	return r
}

// Name returns the username.
func (r *Redditor) Name() string {
	name, _ := r.attrs["name"].(string)
	return name
}

// String returns the username.
func (r *Redditor) String() string { return r.Name() }

func (r *Redditor) fetchAbout(ctx context.Context) (map[string]any, error) {
	obj, err := r.client.getObject(ctx, "user/"+r.Name()+"/about", nil)
	if err != nil {
		return nil, err
	}
	src, ok := obj.(attrSource)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch redditor", Message: "unexpected response shape"}
	}
	return src.Snapshot(), nil
}

// CreatedUTC returns the account creation time as a unix timestamp.
func (r *Redditor) CreatedUTC(ctx context.Context) (float64, error) {
	return r.GetFloat(ctx, "created_utc")
}

// LinkKarma returns the account's link karma.
func (r *Redditor) LinkKarma(ctx context.Context) (int, error) {
	return r.GetInt(ctx, "link_karma")
}

// CommentKarma returns the account's comment karma.
func (r *Redditor) CommentKarma(ctx context.Context) (int, error) {
	return r.GetInt(ctx, "comment_karma")
}

// Overview iterates the user's combined submission and comment history.
func (r *Redditor) Overview(ctx context.Context, limit int) *ListingIterator {
	return r.client.newListingIterator(ctx, "user/"+r.Name()+"/overview", nil, limit)
}

// Submitted iterates the user's submissions.
func (r *Redditor) Submitted(ctx context.Context, limit int) *ListingIterator {
	return r.client.newListingIterator(ctx, "user/"+r.Name()+"/submitted", nil, limit)
}

// CommentsListing iterates the user's comments.
func (r *Redditor) CommentsListing(ctx context.Context, limit int) *ListingIterator {
	return r.client.newListingIterator(ctx, "user/"+r.Name()+"/comments", nil, limit)
}

// Message sends a private message to the user. Requires a user context.
func (r *Redditor) Message(ctx context.Context, subject, body string) error {
	return r.client.compose(ctx, r.Name(), subject, body)
}

// Block blocks the user. Requires a user context.
func (r *Redditor) Block(ctx context.Context) error {
	if err := r.client.requireUser("block"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("name", r.Name())
	_, err := r.client.postObject(ctx, "api/block_user", form)
	return err
}

// Trophies lists the user's trophy case.
func (r *Redditor) Trophies(ctx context.Context) ([]*Award, error) {
	obj, err := r.client.getObject(ctx, "api/v1/user/"+r.Name()+"/trophies", nil)
	if err != nil {
		return nil, err
	}
	list, ok := obj.([]any)
	if !ok {
		return nil, &errors.ParseError{Operation: "trophies", Message: "unexpected response shape"}
	}
	out := make([]*Award, 0, len(list))
	for _, item := range list {
		if a, ok := item.(*Award); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// StreamSubmissions yields the user's new submissions indefinitely.
func (r *Redditor) StreamSubmissions(opts StreamOptions) *Stream {
	return r.client.streamListing("user/"+r.Name()+"/submitted", nil, opts)
}

// Karma returns the authenticated user's per-subreddit karma breakdown.
func (c *Client) Karma(ctx context.Context) ([]any, error) {
	if err := c.requireUser("karma"); err != nil {
		return nil, err
	}
	obj, err := c.getObject(ctx, "api/v1/me/karma", nil)
	if err != nil {
		return nil, err
	}
	if m, ok := obj.(map[string]any); ok {
		if data, ok := m["data"].([]any); ok {
			return data, nil
		}
	}
	if list, ok := obj.([]any); ok {
		return list, nil
	}
	return nil, &errors.ParseError{Operation: "karma", Message: "unexpected response shape"}
}

// Blocked iterates the accounts the authenticated user has blocked.
func (c *Client) Blocked(ctx context.Context) *ListingIterator {
	return c.newListingIterator(ctx, "prefs/blocked", nil, 0)
}
