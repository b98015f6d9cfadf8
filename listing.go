package snoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// Listing is a materialized page of a paginated endpoint: children plus the
// opaque cursors needed to continue. Listings are not restartable from the
// middle without the cursor.
type Listing struct {
	After    string
	Before   string
	Children []any
}

// Kind returns the listing kind tag.
func (l *Listing) Kind() string { return types.KindListing }

// ListingIterator is a finite lazy sequence over a listing endpoint. It
// issues one page request at a time, carries the after cursor forward, and
// stops when the cursor disappears, a page comes back empty, or the
// requested limit has been yielded.
type ListingIterator struct {
	client *Client
	ctx    context.Context
	path   string
	params url.Values

	// limit is the total number of items to yield; <= 0 means unbounded.
	limit int
	// pageCap is the per-request ceiling, normally 100.
	pageCap int
	// extractIndex selects a listing from an outer array response; -1 reads
	// the listing at the root.
	extractIndex int

	buffer    []any
	bufferIdx int
	after     string
	yielded   int
	hasMore   bool
	err       error
}

// newListingIterator builds an iterator over path. The caller's params are
// copied; the original values are never mutated.
func (c *Client) newListingIterator(ctx context.Context, path string, params url.Values, limit int) *ListingIterator {
	copied := url.Values{}
	for key, values := range params {
		for _, v := range values {
			copied.Add(key, v)
		}
	}
	return &ListingIterator{
		client:       c,
		ctx:          ctx,
		path:         path,
		params:       copied,
		limit:        limit,
		pageCap:      types.DefaultPageSize,
		extractIndex: -1,
		hasMore:      true,
	}
}

// WithMaximumBatch raises the per-request page size to the server's absolute
// cap, for callers that asked for as many items as possible.
func (it *ListingIterator) WithMaximumBatch() *ListingIterator {
	it.pageCap = types.MaxListingSize
	return it
}

// withExtractIndex reads the listing at the given index of an outer array
// response, e.g. index 1 of a [submission, comments] pair.
func (it *ListingIterator) withExtractIndex(index int) *ListingIterator {
	it.extractIndex = index
	return it
}

// Params returns a copy of the query parameters the next page request will
// carry.
func (it *ListingIterator) Params() url.Values {
	out := url.Values{}
	for key, values := range it.params {
		for _, v := range values {
			out.Add(key, v)
		}
	}
	out.Set("limit", strconv.Itoa(it.nextPageSize()))
	return out
}

// HasNext reports whether another item may be available. A true result may
// still be followed by an exhausted Next when the server's final page is
// empty.
func (it *ListingIterator) HasNext() bool {
	if it.err != nil {
		return false
	}
	if it.limit > 0 && it.yielded >= it.limit {
		return false
	}
	return it.bufferIdx < len(it.buffer) || it.hasMore
}

// ErrIteratorExhausted is returned by Next once the listing has no more
// items.
var ErrIteratorExhausted = fmt.Errorf("listing exhausted")

// Next returns the next materialized item in server order.
func (it *ListingIterator) Next() (any, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.limit > 0 && it.yielded >= it.limit {
		return nil, ErrIteratorExhausted
	}

	if it.bufferIdx >= len(it.buffer) {
		if !it.hasMore {
			return nil, ErrIteratorExhausted
		}
		if err := it.fetchPage(); err != nil {
			it.err = err
			return nil, err
		}
		if len(it.buffer) == 0 {
			it.hasMore = false
			return nil, ErrIteratorExhausted
		}
	}

	item := it.buffer[it.bufferIdx]
	it.bufferIdx++
	it.yielded++
	return item, nil
}

// All drains the iterator and returns every remaining item.
func (it *ListingIterator) All() ([]any, error) {
	var out []any
	for it.HasNext() {
		item, err := it.Next()
		if err == ErrIteratorExhausted {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (it *ListingIterator) nextPageSize() int {
	size := it.pageCap
	if it.limit > 0 {
		if remaining := it.limit - it.yielded; remaining < size {
			size = remaining
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}

func (it *ListingIterator) fetchPage() error {
	params := it.Params()
	if it.after != "" {
		params.Set("after", it.after)
	}

	value, err := it.client.get(it.ctx, it.path, params)
	if err != nil {
		return err
	}

	listing, err := it.extractListing(value)
	if err != nil {
		return err
	}

	it.buffer = listing.Children
	it.bufferIdx = 0
	it.after = listing.After
	it.hasMore = listing.After != "" && len(listing.Children) > 0
	return nil
}

// extractListing locates the listing in the response: at the root, at a
// configured index of an outer array, or nested under a bare data.children
// wrapper.
func (it *ListingIterator) extractListing(value any) (*Listing, error) {
	if it.extractIndex >= 0 {
		outer, ok := value.([]any)
		if !ok || it.extractIndex >= len(outer) {
			return nil, it.shapeError(value)
		}
		value = outer[it.extractIndex]
	}

	// Some endpoints return {data: {children: [...]}} without a kind tag.
	if m, ok := value.(map[string]any); ok {
		if _, hasKind := m["kind"]; !hasKind {
			if data, ok := m["data"].(map[string]any); ok {
				if _, ok := data["children"]; ok {
					value = map[string]any{"kind": types.KindListing, "data": data}
				}
			}
		}
	}

	obj, err := it.client.objector.Objectify(value)
	if err != nil {
		return nil, err
	}
	listing, ok := obj.(*Listing)
	if !ok {
		return nil, it.shapeError(value)
	}
	return listing, nil
}

func (it *ListingIterator) shapeError(value any) error {
	return &errors.ClientError{
		Operation: "paginate " + it.path,
		Message:   fmt.Sprintf("unexpected listing structure %T; please file a bug report with the offending response", value),
	}
}
