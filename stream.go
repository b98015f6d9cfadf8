package snoo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// seenCapacity bounds the per-stream duplicate history. It must stay above
// the largest page the factory can return plus slack for reordering.
const seenCapacity = 301

// ErrStreamDone is returned by Next once a stream with a negative
// pause-after has yielded its final pause event.
var ErrStreamDone = fmt.Errorf("stream finished")

// StreamItem is one result of a stream: either a materialized thing or a
// pause event signalling that the feed is currently idle.
type StreamItem struct {
	Thing any
	Pause bool
}

// StreamOptions tune a stream's idle behavior.
type StreamOptions struct {
	// PauseAfter yields a pause event after that many consecutive empty
	// responses. Zero pauses on every empty response; a negative value
	// yields a single pause event and ends the stream. Nil never pauses and
	// sleeps with back-off instead.
	PauseAfter *int
	// SkipExisting discards the initial sweep, seeding the duplicate
	// history without yielding the items already present.
	SkipExisting bool
}

// listingFactory produces one finite batch in server order (newest first),
// optionally bounded below by a before cursor.
type listingFactory func(ctx context.Context, limit int, before string) ([]any, error)

// Stream converts a finite listing endpoint into an effectively infinite
// deduplicated feed. Items are yielded strictly oldest-first within a batch;
// no fullname is yielded twice within the bounded history.
type Stream struct {
	factory listingFactory
	opts    StreamOptions

	seen    *boundedSet
	before  string
	backoff backoff.BackOff

	buffer      []any
	bufferIdx   int
	firstSweep  bool
	emptyStreak int
	done        bool
}

func newStream(factory listingFactory, opts StreamOptions) *Stream {
	return &Stream{
		factory:    factory,
		opts:       opts,
		seen:       newBoundedSet(seenCapacity),
		backoff:    newStreamBackoff(),
		firstSweep: true,
	}
}

func newStreamBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 16 * time.Second
	b.RandomizationFactor = 0.0625
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Next blocks until the feed produces a new item or a pause event. The
// engine performs no I/O between its sleeps; cancel by cancelling ctx or by
// simply not calling Next again.
func (s *Stream) Next(ctx context.Context) (StreamItem, error) {
	if s.done {
		return StreamItem{}, ErrStreamDone
	}

	for {
		if s.bufferIdx < len(s.buffer) {
			item := s.buffer[s.bufferIdx]
			s.bufferIdx++
			return StreamItem{Thing: item}, nil
		}

		fresh, err := s.poll(ctx)
		if err != nil {
			return StreamItem{}, err
		}

		if len(fresh) > 0 {
			s.backoff.Reset()
			s.emptyStreak = 0
			s.buffer = fresh
			s.bufferIdx = 0
			continue
		}

		s.emptyStreak++
		if s.opts.PauseAfter != nil {
			pauseAfter := *s.opts.PauseAfter
			if pauseAfter < 0 {
				s.done = true
				return StreamItem{Pause: true}, nil
			}
			if s.emptyStreak > pauseAfter {
				s.emptyStreak = 0
				return StreamItem{Pause: true}, nil
			}
		}

		if err := s.sleep(ctx); err != nil {
			return StreamItem{}, err
		}
	}
}

// poll fetches one batch and returns the previously unseen items in
// oldest-first order.
func (s *Stream) poll(ctx context.Context) ([]any, error) {
	limit, before := s.seen.Len(), s.before
	if s.firstSweep {
		// The initial sweep runs without a cursor so the newest page seeds
		// the history.
		limit, before = seenCapacity-1, ""
	}
	if limit < 1 {
		limit = 100
	}

	batch, err := s.factory(ctx, limit, before)
	if err != nil {
		return nil, err
	}

	// Server order is newest first; collect unseen items and reverse so
	// consumers observe oldest first.
	var fresh []any
	for i := len(batch) - 1; i >= 0; i-- {
		item := batch[i]
		id, ok := item.(Identified)
		if !ok {
			continue
		}
		if s.seen.Add(id.Fullname()) {
			fresh = append(fresh, item)
			s.before = id.Fullname()
		}
	}

	if s.firstSweep {
		s.firstSweep = false
		if s.opts.SkipExisting {
			return nil, nil
		}
	}
	return fresh, nil
}

func (s *Stream) sleep(ctx context.Context) error {
	d := s.backoff.NextBackOff()
	if d == backoff.Stop {
		d = 16 * time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// streamListing builds a stream over a listing path sorted newest-first.
func (c *Client) streamListing(path string, params url.Values, opts StreamOptions) *Stream {
	base := url.Values{}
	for key, values := range params {
		for _, v := range values {
			base.Add(key, v)
		}
	}
	factory := func(ctx context.Context, limit int, before string) ([]any, error) {
		p := url.Values{}
		for key, values := range base {
			for _, v := range values {
				p.Add(key, v)
			}
		}
		if before != "" {
			p.Set("before", before)
		}
		return c.newListingIterator(ctx, path, p, limit).All()
	}
	return newStream(factory, opts)
}

// boundedSet is a fixed-capacity set with FIFO eviction; recent ids
// dominate the history.
type boundedSet struct {
	capacity int
	order    []string
	head     int
	members  map[string]struct{}
}

func newBoundedSet(capacity int) *boundedSet {
	return &boundedSet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		members:  make(map[string]struct{}, capacity),
	}
}

// Add inserts the key and reports whether it was previously absent.
func (b *boundedSet) Add(key string) bool {
	if _, ok := b.members[key]; ok {
		return false
	}
	if len(b.order) < b.capacity {
		b.order = append(b.order, key)
	} else {
		delete(b.members, b.order[b.head])
		b.order[b.head] = key
		b.head = (b.head + 1) % b.capacity
	}
	b.members[key] = struct{}{}
	return true
}

// Contains reports membership.
func (b *boundedSet) Contains(key string) bool {
	_, ok := b.members[key]
	return ok
}

// Len returns the current number of members.
func (b *boundedSet) Len() int { return len(b.members) }
