package snoo

import (
	"context"
	"net/url"
	"strings"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// Comment is a single comment, lazily fetched through /api/info when
// constructed from an id alone.
type Comment struct {
	thing

	replies []*ForestNode
}

// Comment returns a lazy comment handle for the given base36 id. No I/O is
// performed; attributes materialize on first access.
func (c *Client) Comment(id string) *Comment {
	cm := &Comment{thing: newThing(c, types.KindComment, "Comment", id)}
	return cm
}

// Replies returns the reply nodes parsed with this comment. Expanding
// placeholders below a comment goes through its submission's forest.
func (cm *Comment) Replies() []*ForestNode { return cm.replies }

// Body returns the comment's markdown body, fetching on first access.
func (cm *Comment) Body(ctx context.Context) (string, error) {
	return cm.GetString(ctx, "body")
}

// Author returns the comment author, or nil for deleted accounts.
func (cm *Comment) Author(ctx context.Context) (*Redditor, error) {
	v, err := cm.Get(ctx, "author")
	if err != nil {
		return nil, err
	}
	r, _ := v.(*Redditor)
	return r, nil
}

// Score returns the comment score.
func (cm *Comment) Score(ctx context.Context) (int, error) {
	return cm.GetInt(ctx, "score")
}

// ParentFullname returns the fullname of the parent comment or submission.
func (cm *Comment) ParentFullname(ctx context.Context) (string, error) {
	return cm.GetString(ctx, "parent_id")
}

// IsRoot reports whether the comment replies directly to its submission.
func (cm *Comment) IsRoot(ctx context.Context) (bool, error) {
	parent, err := cm.ParentFullname(ctx)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(parent, types.KindSubmission+"_"), nil
}

// Parent returns a lazy handle on the parent: a *Comment or a *Submission.
func (cm *Comment) Parent(ctx context.Context) (any, error) {
	parent, err := cm.ParentFullname(ctx)
	if err != nil {
		return nil, err
	}
	kind, id, err := types.SplitFullname(parent)
	if err != nil {
		return nil, &errors.ClientError{Operation: "comment parent", Err: err}
	}
	switch kind {
	case types.KindComment:
		return cm.client.Comment(id), nil
	case types.KindSubmission:
		return cm.client.Submission(id), nil
	}
	return nil, &errors.ClientError{Operation: "comment parent", Message: "unexpected parent kind " + kind}
}

// Submission returns a lazy handle on the comment's submission.
func (cm *Comment) Submission(ctx context.Context) (*Submission, error) {
	link, err := cm.GetString(ctx, "link_id")
	if err != nil {
		return nil, err
	}
	_, id, err := types.SplitFullname(link)
	if err != nil {
		return nil, &errors.ClientError{Operation: "comment submission", Err: err}
	}
	return cm.client.Submission(id), nil
}

// Reply posts a reply and returns the created comment.
func (cm *Comment) Reply(ctx context.Context, body string) (*Comment, error) {
	return cm.client.reply(ctx, cm.Fullname(), body)
}

// Edit replaces the comment body. Requires a user context.
func (cm *Comment) Edit(ctx context.Context, body string) error {
	return cm.client.editThing(ctx, cm.Fullname(), body)
}

// Delete removes the comment. Requires a user context.
func (cm *Comment) Delete(ctx context.Context) error {
	return cm.client.deleteThing(ctx, cm.Fullname())
}

// Upvote casts an upvote on the comment.
func (cm *Comment) Upvote(ctx context.Context) error {
	return cm.client.vote(ctx, cm.Fullname(), 1)
}

// Downvote casts a downvote on the comment.
func (cm *Comment) Downvote(ctx context.Context) error {
	return cm.client.vote(ctx, cm.Fullname(), -1)
}

// ClearVote clears the user's vote on the comment.
func (cm *Comment) ClearVote(ctx context.Context) error {
	return cm.client.vote(ctx, cm.Fullname(), 0)
}

// reply posts to the comment endpoint against any parent fullname and
// materializes the created comment from the legacy envelope.
func (c *Client) reply(ctx context.Context, parentFullname, body string) (*Comment, error) {
	if err := c.requireUser("reply"); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", parentFullname)
	form.Set("text", body)

	obj, err := c.postObject(ctx, "api/comment", form)
	if err != nil {
		return nil, err
	}
	things, ok := obj.([]any)
	if !ok || len(things) == 0 {
		return nil, &errors.ParseError{Operation: "reply", Message: "no comment in response"}
	}
	created, ok := things[0].(*Comment)
	if !ok {
		return nil, &errors.ParseError{Operation: "reply", Message: "unexpected thing in response"}
	}
	return created, nil
}

func (c *Client) editThing(ctx context.Context, fullname, body string) error {
	if err := c.requireUser("edit"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", fullname)
	form.Set("text", body)
	_, err := c.postObject(ctx, "api/editusertext", form)
	return err
}

func (c *Client) deleteThing(ctx context.Context, fullname string) error {
	if err := c.requireUser("delete"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("id", fullname)
	_, err := c.postObject(ctx, "api/del", form)
	return err
}

func (c *Client) vote(ctx context.Context, fullname string, direction int) error {
	if err := c.requireUser("vote"); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("id", fullname)
	switch {
	case direction > 0:
		form.Set("dir", "1")
	case direction < 0:
		form.Set("dir", "-1")
	default:
		form.Set("dir", "0")
	}
	_, err := c.postObject(ctx, "api/vote", form)
	return err
}
