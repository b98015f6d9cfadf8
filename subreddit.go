package snoo

import (
	"context"
	"net/url"
	"strings"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// Subreddit is a community, addressed by display name. Display names are
// case-preserving but case-insensitive for equality.
type Subreddit struct {
	thing
}

// Subreddit returns a lazy subreddit handle. No I/O is performed.
func (c *Client) Subreddit(name string) *Subreddit {
	s := &Subreddit{thing: newThing(c, types.KindSubreddit, "Subreddit", "")}
	if name != "" {
		s.attrs["display_name"] = name
	}
	s.fetchFunc = s.fetchAbout
	s.normalizeID = strings.ToLower
	s.identityFunc = s.DisplayName
	return s
}

// DisplayName returns the display name the subreddit was constructed with
// or fetched as.
func (s *Subreddit) DisplayName() string {
	name, _ := s.attrs["display_name"].(string)
	return name
}

// String returns the display name.
func (s *Subreddit) String() string { return s.DisplayName() }

func (s *Subreddit) fetchAbout(ctx context.Context) (map[string]any, error) {
	obj, err := s.client.getObject(ctx, "r/"+s.DisplayName()+"/about", nil)
	if err != nil {
		return nil, err
	}
	src, ok := obj.(attrSource)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch subreddit", Message: "unexpected response shape"}
	}
	return src.Snapshot(), nil
}

// Subscribers returns the subscriber count.
func (s *Subreddit) Subscribers(ctx context.Context) (int, error) {
	return s.GetInt(ctx, "subscribers")
}

// Description returns the sidebar description markdown.
func (s *Subreddit) Description(ctx context.Context) (string, error) {
	return s.GetString(ctx, "description")
}

func (s *Subreddit) listing(ctx context.Context, sort string, limit int) *ListingIterator {
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/"+sort, nil, limit)
}

// Hot iterates the subreddit's hot listing.
func (s *Subreddit) Hot(ctx context.Context, limit int) *ListingIterator {
	return s.listing(ctx, "hot", limit)
}

// New iterates the subreddit's new listing, newest first.
func (s *Subreddit) New(ctx context.Context, limit int) *ListingIterator {
	return s.listing(ctx, "new", limit)
}

// Rising iterates the subreddit's rising listing.
func (s *Subreddit) Rising(ctx context.Context, limit int) *ListingIterator {
	return s.listing(ctx, "rising", limit)
}

// Top iterates the subreddit's top listing for a time filter
// (hour, day, week, month, year, all).
func (s *Subreddit) Top(ctx context.Context, timeFilter string, limit int) *ListingIterator {
	params := url.Values{}
	if timeFilter != "" {
		params.Set("t", timeFilter)
	}
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/top", params, limit)
}

// Controversial iterates the subreddit's controversial listing.
func (s *Subreddit) Controversial(ctx context.Context, timeFilter string, limit int) *ListingIterator {
	params := url.Values{}
	if timeFilter != "" {
		params.Set("t", timeFilter)
	}
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/controversial", params, limit)
}

// CommentsListing iterates the subreddit's newest comments.
func (s *Subreddit) CommentsListing(ctx context.Context, limit int) *ListingIterator {
	return s.listing(ctx, "comments", limit)
}

// Search iterates submissions matching the query, restricted to this
// subreddit.
func (s *Subreddit) Search(ctx context.Context, query, sort string, limit int) *ListingIterator {
	params := url.Values{}
	params.Set("q", query)
	params.Set("restrict_sr", "true")
	if sort != "" {
		params.Set("sort", sort)
	}
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/search", params, limit)
}

// Sticky returns the pinned submission at the given slot (1 or 2).
func (s *Subreddit) Sticky(ctx context.Context, number int) (*Submission, error) {
	params := url.Values{}
	if number > 1 {
		params.Set("num", "2")
	}
	obj, err := s.client.getObject(ctx, "r/"+s.DisplayName()+"/about/sticky", params)
	if err != nil {
		return nil, err
	}
	pair, ok := obj.([]any)
	if !ok || len(pair) == 0 {
		return nil, &errors.ParseError{Operation: "sticky", Message: "unexpected response shape"}
	}
	listing, ok := pair[0].(*Listing)
	if !ok || len(listing.Children) == 0 {
		return nil, &errors.ParseError{Operation: "sticky", Message: "no submission in response"}
	}
	sub, ok := listing.Children[0].(*Submission)
	if !ok {
		return nil, &errors.ParseError{Operation: "sticky", Message: "no submission in response"}
	}
	return sub, nil
}

// Random returns a random submission from the subreddit.
func (s *Subreddit) Random(ctx context.Context) (*Submission, error) {
	obj, err := s.client.getObject(ctx, "r/"+s.DisplayName()+"/random", nil)
	if err != nil {
		return nil, err
	}
	pair, ok := obj.([]any)
	if !ok || len(pair) == 0 {
		return nil, &errors.ParseError{Operation: "random", Message: "unexpected response shape"}
	}
	listing, ok := pair[0].(*Listing)
	if !ok || len(listing.Children) == 0 {
		return nil, &errors.ParseError{Operation: "random", Message: "no submission in response"}
	}
	sub, _ := listing.Children[0].(*Submission)
	if sub == nil {
		return nil, &errors.ParseError{Operation: "random", Message: "no submission in response"}
	}
	return sub, nil
}

// Subscribe subscribes the authenticated user to the subreddit.
func (s *Subreddit) Subscribe(ctx context.Context) error {
	return s.subscribeAction(ctx, "sub")
}

// Unsubscribe removes the authenticated user's subscription.
func (s *Subreddit) Unsubscribe(ctx context.Context) error {
	return s.subscribeAction(ctx, "unsub")
}

func (s *Subreddit) subscribeAction(ctx context.Context, action string) error {
	if err := s.client.requireUser("subscribe"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("action", action)
	form.Set("sr_name", s.DisplayName())
	_, err := s.client.postObject(ctx, "api/subscribe", form)
	return err
}

// Moderators iterates the subreddit's moderator relationships.
func (s *Subreddit) Moderators(ctx context.Context) *ListingIterator {
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/about/moderators", nil, 0)
}

// Banned iterates the subreddit's ban relationships.
func (s *Subreddit) Banned(ctx context.Context, limit int) *ListingIterator {
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/about/banned", nil, limit)
}

// Contributors iterates the subreddit's approved-submitter relationships.
func (s *Subreddit) Contributors(ctx context.Context, limit int) *ListingIterator {
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/about/contributors", nil, limit)
}

// ModLog iterates the subreddit's moderation log as ModAction entries.
func (s *Subreddit) ModLog(ctx context.Context, action string, limit int) *ListingIterator {
	params := url.Values{}
	if action != "" {
		params.Set("type", action)
	}
	return s.client.newListingIterator(ctx, "r/"+s.DisplayName()+"/about/log", params, limit)
}

// Wiki returns a lazy handle on a wiki page of this subreddit.
func (s *Subreddit) Wiki(page string) *WikiPage {
	w := newWikiPage(s.client)
	w.subreddit = s.DisplayName()
	w.page = page
	return w
}

// StreamSubmissions yields new submissions indefinitely, oldest first.
func (s *Subreddit) StreamSubmissions(opts StreamOptions) *Stream {
	return s.client.streamListing("r/"+s.DisplayName()+"/new", nil, opts)
}

// StreamComments yields new comments indefinitely, oldest first.
func (s *Subreddit) StreamComments(opts StreamOptions) *Stream {
	return s.client.streamListing("r/"+s.DisplayName()+"/comments", nil, opts)
}

// Front-page listings on the shared client.

// Hot iterates the front page's hot listing.
func (c *Client) Hot(ctx context.Context, limit int) *ListingIterator {
	return c.newListingIterator(ctx, "hot", nil, limit)
}

// New iterates the front page's new listing.
func (c *Client) New(ctx context.Context, limit int) *ListingIterator {
	return c.newListingIterator(ctx, "new", nil, limit)
}

// Best iterates the front page's best listing.
func (c *Client) Best(ctx context.Context, limit int) *ListingIterator {
	return c.newListingIterator(ctx, "best", nil, limit)
}

// Top iterates the front page's top listing.
func (c *Client) Top(ctx context.Context, timeFilter string, limit int) *ListingIterator {
	params := url.Values{}
	if timeFilter != "" {
		params.Set("t", timeFilter)
	}
	return c.newListingIterator(ctx, "top", params, limit)
}
