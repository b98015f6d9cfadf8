package snoo

import (
	"container/heap"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// More is the placeholder standing in for comments hidden from the initial
// tree. It carries the count of hidden children, the parent fullname, and up
// to a server-chosen number of child ids.
type More struct {
	client *Client

	Count    int
	ParentID string
	ChildIDs []string

	name, id string
}

func newMore(client *Client) *More {
	return &More{client: client}
}

// Kind returns the placeholder kind tag.
func (m *More) Kind() string { return types.KindMore }

// Fullname returns the placeholder's server name.
func (m *More) Fullname() string {
	if m.name != "" {
		return m.name
	}
	return types.Fullname(types.KindMore, m.id)
}

// IsContinueThread reports whether this placeholder is a "continue this
// thread" sentinel: zero count and no child ids, expanded through a
// thread-continuation URL instead of the batch endpoint.
func (m *More) IsContinueThread() bool {
	return m.Count == 0 && len(m.ChildIDs) == 0
}

// ForestNode is the tagged variant held by a comment forest: exactly one of
// Comment or More is set.
type ForestNode struct {
	Comment *Comment
	More    *More

	parent *ForestNode
}

// forestNodes wraps objectified listing children into nodes, dropping
// anything that is neither a comment nor a placeholder.
func forestNodes(children []any) []*ForestNode {
	nodes := make([]*ForestNode, 0, len(children))
	for _, child := range children {
		switch v := child.(type) {
		case *Comment:
			nodes = append(nodes, &ForestNode{Comment: v})
		case *More:
			nodes = append(nodes, &ForestNode{More: v})
		}
	}
	return nodes
}

// ContinueThreadPath builds the expansion path for a continue-thread
// placeholder; the exact URL is endpoint-specific so forests carry it as
// configuration.
type ContinueThreadPath func(submissionID, parentCommentID string) string

func defaultContinueThreadPath(submissionID, parentCommentID string) string {
	return fmt.Sprintf("comments/%s/_/%s", submissionID, parentCommentID)
}

// CommentForest is the rooted forest of a submission's comments, indexed by
// fullname, with an orphan bucket for comments seen before their parent.
// The set of materialized comments only ever grows.
type CommentForest struct {
	client     *Client
	submission *Submission

	roots   []*ForestNode
	index   map[string]*ForestNode
	orphans map[string][]*ForestNode

	// ContinuePath overrides the continue-thread expansion URL.
	ContinuePath ContinueThreadPath

	replacing bool
}

func newCommentForest(client *Client, submission *Submission, roots []*ForestNode) *CommentForest {
	f := &CommentForest{
		client:       client,
		submission:   submission,
		roots:        roots,
		index:        make(map[string]*ForestNode),
		orphans:      make(map[string][]*ForestNode),
		ContinuePath: defaultContinueThreadPath,
	}
	f.indexNodes(roots, nil)
	return f
}

func (f *CommentForest) indexNodes(nodes []*ForestNode, parent *ForestNode) {
	for _, node := range nodes {
		node.parent = parent
		if node.Comment != nil {
			f.index[node.Comment.Fullname()] = node
			f.indexNodes(node.Comment.replies, node)
		}
	}
}

// Roots returns the top-level nodes.
func (f *CommentForest) Roots() []*ForestNode { return f.roots }

// List returns a flattened depth-first traversal including placeholders.
func (f *CommentForest) List() []*ForestNode {
	var out []*ForestNode
	var walk func(nodes []*ForestNode)
	walk = func(nodes []*ForestNode) {
		for _, node := range nodes {
			out = append(out, node)
			if node.Comment != nil {
				walk(node.Comment.replies)
			}
		}
	}
	walk(f.roots)
	return out
}

// Comments returns every materialized comment in depth-first order.
func (f *CommentForest) Comments() []*Comment {
	var out []*Comment
	for _, node := range f.List() {
		if node.Comment != nil {
			out = append(out, node.Comment)
		}
	}
	return out
}

// moreHeap orders placeholders largest-count-first.
type moreHeap []*ForestNode

func (h moreHeap) Len() int            { return len(h) }
func (h moreHeap) Less(i, j int) bool  { return h[i].More.Count > h[j].More.Count }
func (h moreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *moreHeap) Push(x any)         { *h = append(*h, x.(*ForestNode)) }
func (h *moreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ReplaceMore expands placeholders, largest first, spending at most limit
// requests and skipping placeholders hiding fewer than threshold children.
// A negative limit is unbounded. Skipped placeholders are removed from the
// tree and returned. Once the forest holds no placeholders, further calls
// are no-ops. An error aborts the pass, leaving the forest consistently
// (though partially) expanded.
func (f *CommentForest) ReplaceMore(ctx context.Context, limit, threshold int) ([]*More, error) {
	if f.replacing {
		return nil, &errors.ClientError{Operation: "replace more", Message: "an expansion is already in flight on this forest"}
	}
	f.replacing = true
	defer func() { f.replacing = false }()

	h := &moreHeap{}
	for _, node := range f.List() {
		if node.More != nil {
			*h = append(*h, node)
		}
	}
	heap.Init(h)

	var skipped []*More
	remaining := limit

	for h.Len() > 0 {
		node := heap.Pop(h).(*ForestNode)
		more := node.More

		if remaining == 0 {
			f.removeNode(node)
			skipped = append(skipped, more)
			continue
		}
		if more.Count < threshold {
			f.removeNode(node)
			skipped = append(skipped, more)
			continue
		}

		if more.IsContinueThread() {
			if err := f.expandContinueThread(ctx, node, h); err != nil {
				return skipped, err
			}
			remaining--
			continue
		}

		if len(more.ChildIDs) == 0 {
			f.removeNode(node)
			skipped = append(skipped, more)
			continue
		}

		fresh, err := f.fetchChildren(ctx, more)
		if err != nil {
			return skipped, err
		}
		remaining--
		f.removeNode(node)

		for _, item := range fresh {
			switch v := item.(type) {
			case *Comment:
				f.insertComment(v)
			case *More:
				newNode := f.attach(&ForestNode{More: v}, v.ParentID)
				heap.Push(h, newNode)
			}
		}
	}

	return skipped, nil
}

// fetchChildren batches the placeholder's child ids through the expansion
// endpoint and materializes the result.
func (f *CommentForest) fetchChildren(ctx context.Context, more *More) ([]any, error) {
	form := url.Values{}
	form.Set("link_id", f.submission.Fullname())
	form.Set("children", strings.Join(more.ChildIDs, ","))
	form.Set("api_type", "json")

	obj, err := f.client.postObject(ctx, "api/morechildren", form)
	if err != nil {
		return nil, err
	}
	items, ok := obj.([]any)
	if !ok {
		return nil, &errors.ParseError{Operation: "morechildren", Message: "expected a things list"}
	}
	return items, nil
}

// expandContinueThread fetches the placeholder's thread continuation and
// grafts the results in as replies of the placeholder's parent. Placeholders
// hiding inside the continuation go back onto the heap so the pass can spend
// its remaining budget on them.
func (f *CommentForest) expandContinueThread(ctx context.Context, node *ForestNode, h *moreHeap) error {
	_, parentShortID, err := types.SplitFullname(node.More.ParentID)
	if err != nil {
		return &errors.ClientError{Operation: "continue thread", Err: err}
	}

	path := f.ContinuePath(f.submission.ID(), parentShortID)
	it := f.client.newListingIterator(ctx, path, nil, 0).withExtractIndex(1)
	children, err := it.All()
	if err != nil {
		return err
	}

	f.removeNode(node)
	comments, mores := flattenThings(children)
	for _, comment := range comments {
		f.insertComment(comment)
	}
	for _, m := range mores {
		fresh := f.attach(&ForestNode{More: m}, m.ParentID)
		heap.Push(h, fresh)
	}
	return nil
}

// flattenThings unnests a comment subtree into individual comments and
// placeholders, clearing reply links so insertion re-threads them against
// the forest.
func flattenThings(children []any) ([]*Comment, []*More) {
	var comments []*Comment
	var mores []*More
	var walk func(nodes []*ForestNode)
	walk = func(nodes []*ForestNode) {
		for _, n := range nodes {
			if n.More != nil {
				mores = append(mores, n.More)
				continue
			}
			if n.Comment == nil {
				continue
			}
			replies := n.Comment.replies
			n.Comment.replies = nil
			comments = append(comments, n.Comment)
			walk(replies)
		}
	}
	for _, child := range children {
		switch v := child.(type) {
		case *Comment:
			replies := v.replies
			v.replies = nil
			comments = append(comments, v)
			walk(replies)
		case *More:
			mores = append(mores, v)
		}
	}
	return comments, mores
}

// insertComment threads a comment into the forest: duplicates are skipped,
// top-level replies append to the roots, known parents adopt, and everything
// else waits in the orphan bucket until its parent shows up.
func (f *CommentForest) insertComment(c *Comment) {
	fullname := c.Fullname()
	if _, ok := f.index[fullname]; ok {
		return
	}

	parentID, _ := c.attrs["parent_id"].(string)
	node := f.attach(&ForestNode{Comment: c}, parentID)
	f.index[fullname] = node

	// Reunite any orphans that were waiting for this comment.
	for _, orphan := range f.orphans[fullname] {
		orphan.parent = node
		c.replies = append(c.replies, orphan)
		if orphan.Comment != nil {
			f.index[orphan.Comment.Fullname()] = orphan
		}
	}
	delete(f.orphans, fullname)
}

// attach places a node under its parent, at the root, or in the orphan
// bucket, and returns it.
func (f *CommentForest) attach(node *ForestNode, parentID string) *ForestNode {
	if parentID == "" || parentID == f.submission.Fullname() {
		f.roots = append(f.roots, node)
		return node
	}
	if parentNode, ok := f.index[parentID]; ok && parentNode.Comment != nil {
		node.parent = parentNode
		parentNode.Comment.replies = append(parentNode.Comment.replies, node)
		return node
	}
	f.orphans[parentID] = append(f.orphans[parentID], node)
	return node
}

// removeNode unlinks a node from its parent's replies or the roots.
func (f *CommentForest) removeNode(node *ForestNode) {
	var siblings *[]*ForestNode
	if node.parent != nil && node.parent.Comment != nil {
		siblings = &node.parent.Comment.replies
	} else {
		siblings = &f.roots
	}
	for i, sibling := range *siblings {
		if sibling == node {
			*siblings = append((*siblings)[:i], (*siblings)[i+1:]...)
			break
		}
	}
	if node.Comment != nil {
		delete(f.index, node.Comment.Fullname())
	}
}
