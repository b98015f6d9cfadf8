package snoo

import (
	"context"
	"net/url"
	"strings"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// ShortlinkBase is the host submissions shortlink through.
const ShortlinkBase = "https://redd.it/"

// Submission is a post, lazily fetched through its comments endpoint. The
// fetch also materializes the comment forest.
type Submission struct {
	thing

	forest *CommentForest
}

// Submission returns a lazy submission handle for the given base36 id.
func (c *Client) Submission(id string) *Submission {
	s := &Submission{thing: newThing(c, types.KindSubmission, "Submission", id)}
	s.fetchFunc = s.fetchWithComments
	return s
}

// SubmissionFromURL returns a lazy handle on the submission a permalink or
// shortlink points at.
func (c *Client) SubmissionFromURL(rawURL string) (*Submission, error) {
	id, err := SubmissionIDFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	return c.Submission(id), nil
}

// SubmissionIDFromURL extracts the base36 submission id from a permalink
// ("/r/<sub>/comments/<id>/...", "/comments/<id>") or a shortlink
// ("https://redd.it/<id>").
func SubmissionIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &errors.ClientError{Operation: "id from url", Err: err}
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	if strings.EqualFold(u.Host, "redd.it") {
		if len(parts) == 1 && parts[0] != "" {
			return parts[0], nil
		}
		return "", invalidSubmissionURL(rawURL)
	}

	for i, part := range parts {
		if part == "comments" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", invalidSubmissionURL(rawURL)
}

func invalidSubmissionURL(rawURL string) error {
	return &errors.ClientError{Operation: "id from url", Message: "cannot extract a submission id from " + rawURL}
}

// Shortlink returns the submission's canonical short URL.
func (s *Submission) Shortlink() string {
	return ShortlinkBase + s.ID()
}

// fetchWithComments loads the [submission, comments] pair, keeps the
// submission snapshot, and builds the comment forest.
func (s *Submission) fetchWithComments(ctx context.Context) (map[string]any, error) {
	obj, err := s.client.getObject(ctx, "comments/"+s.ID(), nil)
	if err != nil {
		return nil, err
	}

	pair, ok := obj.([]any)
	if !ok || len(pair) < 2 {
		return nil, &errors.ParseError{Operation: "fetch submission", Message: "expected a [submission, comments] pair"}
	}

	postListing, ok := pair[0].(*Listing)
	if !ok || len(postListing.Children) == 0 {
		return nil, &errors.ParseError{Operation: "fetch submission", Message: "missing submission listing"}
	}
	post, ok := postListing.Children[0].(*Submission)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch submission", Message: "first listing holds no submission"}
	}

	commentListing, ok := pair[1].(*Listing)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch submission", Message: "missing comment listing"}
	}
	s.forest = newCommentForest(s.client, s, forestNodes(commentListing.Children))

	return post.Snapshot(), nil
}

// Comments returns the submission's comment forest, fetching it on first
// access.
func (s *Submission) Comments(ctx context.Context) (*CommentForest, error) {
	if s.forest == nil {
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return s.forest, nil
}

// Title returns the submission title.
func (s *Submission) Title(ctx context.Context) (string, error) {
	return s.GetString(ctx, "title")
}

// Author returns the submission author, or nil for deleted accounts.
func (s *Submission) Author(ctx context.Context) (*Redditor, error) {
	v, err := s.Get(ctx, "author")
	if err != nil {
		return nil, err
	}
	r, _ := v.(*Redditor)
	return r, nil
}

// Subreddit returns the subreddit the submission was posted to.
func (s *Submission) Subreddit(ctx context.Context) (*Subreddit, error) {
	v, err := s.Get(ctx, "subreddit")
	if err != nil {
		return nil, err
	}
	sub, _ := v.(*Subreddit)
	return sub, nil
}

// Score returns the submission score.
func (s *Submission) Score(ctx context.Context) (int, error) {
	return s.GetInt(ctx, "score")
}

// URL returns the link URL, or the permalink for self posts.
func (s *Submission) URL(ctx context.Context) (string, error) {
	return s.GetString(ctx, "url")
}

// Reply posts a top-level comment on the submission.
func (s *Submission) Reply(ctx context.Context, body string) (*Comment, error) {
	return s.client.reply(ctx, s.Fullname(), body)
}

// Edit replaces the self-text. Requires a user context.
func (s *Submission) Edit(ctx context.Context, body string) error {
	return s.client.editThing(ctx, s.Fullname(), body)
}

// Delete removes the submission. Requires a user context.
func (s *Submission) Delete(ctx context.Context) error {
	return s.client.deleteThing(ctx, s.Fullname())
}

// Upvote casts an upvote on the submission.
func (s *Submission) Upvote(ctx context.Context) error {
	return s.client.vote(ctx, s.Fullname(), 1)
}

// Downvote casts a downvote on the submission.
func (s *Submission) Downvote(ctx context.Context) error {
	return s.client.vote(ctx, s.Fullname(), -1)
}

// ClearVote clears the user's vote on the submission.
func (s *Submission) ClearVote(ctx context.Context) error {
	return s.client.vote(ctx, s.Fullname(), 0)
}

// Save adds the submission to the user's saved items.
func (s *Submission) Save(ctx context.Context) error {
	return s.client.saveThing(ctx, s.Fullname(), true)
}

// Unsave removes the submission from the user's saved items.
func (s *Submission) Unsave(ctx context.Context) error {
	return s.client.saveThing(ctx, s.Fullname(), false)
}

// Hide hides the submission from the user's listings.
func (s *Submission) Hide(ctx context.Context) error {
	if err := s.client.requireUser("hide"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("id", s.Fullname())
	_, err := s.client.postObject(ctx, "api/hide", form)
	return err
}

// Duplicates iterates submissions linking to the same URL. The listing sits
// at index 1 of a two-element outer array.
func (s *Submission) Duplicates(ctx context.Context, limit int) *ListingIterator {
	return s.client.newListingIterator(ctx, "duplicates/"+s.ID(), nil, limit).withExtractIndex(1)
}

// Crosspost submits the post to another subreddit.
func (s *Submission) Crosspost(ctx context.Context, subreddit, title string) (*Submission, error) {
	if err := s.client.requireUser("crosspost"); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", subreddit)
	form.Set("kind", "crosspost")
	form.Set("crosspost_fullname", s.Fullname())
	if title != "" {
		form.Set("title", title)
	}

	obj, err := s.client.postObject(ctx, "api/submit", form)
	if err != nil {
		return nil, err
	}
	created, ok := obj.(*Submission)
	if !ok {
		return nil, &errors.ParseError{Operation: "crosspost", Message: "no submission in response"}
	}
	return created, nil
}

func (c *Client) saveThing(ctx context.Context, fullname string, save bool) error {
	if err := c.requireUser("save"); err != nil {
		return err
	}
	path := "api/unsave"
	if save {
		path = "api/save"
	}
	form := url.Values{}
	form.Set("id", fullname)
	_, err := c.postObject(ctx, path, form)
	return err
}
