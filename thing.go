package snoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// Identified is implemented by every domain object: a kind tag plus a
// fullname that uniquely identifies the entity server-side.
type Identified interface {
	Kind() string
	Fullname() string
}

// attrSource is implemented by objects that can surface their attribute
// snapshot without I/O.
type attrSource interface {
	Snapshot() map[string]any
}

// relationAttrs are attribute names whose string values refer to other
// entities and are coerced to domain objects when set.
var relationAttrs = map[string]string{
	"author":      types.KindRedditor,
	"approved_by": types.KindRedditor,
	"banned_by":   types.KindRedditor,
	"mod":         types.KindRedditor,
	"subreddit":   types.KindSubreddit,
}

// deletedSentinel is the author string the server substitutes for removed
// accounts; it normalizes to nil.
const deletedSentinel = "[deleted]"

// thing is the lazy base embedded in every domain object. It may be
// constructed from an identifier alone; attributes materialize on first
// access through a class-specific fetch. Equality depends only on the
// fullname, never on fetched state.
type thing struct {
	client   *Client
	kind     string
	typeName string

	attrs   map[string]any
	fetched bool

	// seedID is the identifier the object was constructed with, used until
	// a server snapshot provides the canonical id.
	seedID string

	// fetchFunc loads the server snapshot for this object. Nil falls back
	// to a GET /api/info by fullname.
	fetchFunc func(ctx context.Context) (map[string]any, error)

	// normalizeID applies the per-kind case policy before identity
	// comparison. Nil means case-sensitive.
	normalizeID func(string) string

	// identityFunc overrides the identity component of the hash key for
	// kinds addressed by name rather than by base36 id.
	identityFunc func() string
}

func newThing(client *Client, kind, typeName, seedID string) thing {
	return thing{
		client:   client,
		kind:     kind,
		typeName: typeName,
		seedID:   seedID,
		attrs:    make(map[string]any),
	}
}

// Kind returns the server kind tag for this object.
func (t *thing) Kind() string { return t.kind }

// Fetched reports whether the attribute bag reflects a server snapshot.
func (t *thing) Fetched() bool { return t.fetched }

// ID returns the base36 id. Prefers the server-provided id over the seed.
func (t *thing) ID() string {
	if v, ok := t.attrs["id"].(string); ok && v != "" {
		return v
	}
	return t.seedID
}

// Fullname returns the globally-unique "<kind>_<id>" identifier. A
// server-provided name attribute wins over the derived form.
func (t *thing) Fullname() string {
	if v, ok := t.attrs["name"].(string); ok && strings.HasPrefix(v, t.kind+"_") {
		return v
	}
	return types.Fullname(t.kind, t.ID())
}

// HashKey returns the identity normalized by the per-kind case policy.
// Objects are equal iff their hash keys are equal.
func (t *thing) HashKey() string {
	if t.identityFunc != nil {
		id := t.identityFunc()
		if t.normalizeID != nil {
			id = t.normalizeID(id)
		}
		return types.Fullname(t.kind, id)
	}
	fn := t.Fullname()
	if t.normalizeID == nil {
		return fn
	}
	kind, id, err := types.SplitFullname(fn)
	if err != nil {
		return fn
	}
	return types.Fullname(kind, t.normalizeID(id))
}

// EqualTo reports identity equality with another domain object.
func (t *thing) EqualTo(other Identified) bool {
	if other == nil {
		return false
	}
	o, ok := other.(interface{ HashKey() string })
	if !ok {
		return t.Fullname() == other.Fullname()
	}
	return t.HashKey() == o.HashKey()
}

// String returns the id; the debug form comes from Describe.
func (t *thing) String() string { return t.ID() }

// Describe returns the debug representation, class name plus id.
func (t *thing) Describe() string {
	return fmt.Sprintf("%s(id=%s)", t.typeName, t.ID())
}

// Snapshot returns a copy of the attribute bag without performing I/O.
func (t *thing) Snapshot() map[string]any {
	out := make(map[string]any, len(t.attrs))
	for k, v := range t.attrs {
		out[k] = v
	}
	return out
}

// MarshalJSON serializes the envelope form without triggering a fetch, so
// persisted objects round-trip through the objector to equal objects.
func (t *thing) MarshalJSON() ([]byte, error) {
	data := make(map[string]any, len(t.attrs)+1)
	for k, v := range t.attrs {
		data[k] = v
	}
	if _, ok := data["id"]; !ok && t.ID() != "" {
		data["id"] = t.ID()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(types.Thing{Kind: t.kind, Data: raw})
}

// Edited reports whether the entity was edited, carrying the edit timestamp
// when the server knows it. The wire value is false, true, or a number, so
// it funnels through the mixed-type decoder.
func (t *thing) Edited(ctx context.Context) (types.Edited, error) {
	v, err := t.Get(ctx, "edited")
	if err != nil {
		return types.Edited{}, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return types.Edited{}, err
	}
	var e types.Edited
	if err := json.Unmarshal(raw, &e); err != nil {
		return types.Edited{}, err
	}
	return e, nil
}

// probeName reports whether name is a metadata probe (the double-underscore
// convention used by debuggers) that must never trigger a fetch.
func probeName(name string) bool {
	return strings.HasPrefix(name, "__") || strings.HasSuffix(name, "__")
}

// Get returns the named attribute, fetching the server snapshot at most
// once if the attribute is absent on a not-yet-fetched object.
func (t *thing) Get(ctx context.Context, name string) (any, error) {
	if probeName(name) {
		return nil, &errors.AttributeError{Type: t.typeName, Attribute: name}
	}

	if v, ok := t.attrs[name]; ok {
		return v, nil
	}

	if !t.fetched {
		if err := t.fetch(ctx); err != nil {
			return nil, err
		}
		if v, ok := t.attrs[name]; ok {
			return v, nil
		}
	}

	return nil, &errors.AttributeError{Type: t.typeName, Attribute: name}
}

// GetString is Get with a string assertion; non-strings return empty.
func (t *thing) GetString(ctx context.Context, name string) (string, error) {
	v, err := t.Get(ctx, name)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// GetFloat is Get with a numeric assertion.
func (t *thing) GetFloat(ctx context.Context, name string) (float64, error) {
	v, err := t.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	f, _ := v.(float64)
	return f, nil
}

// GetInt is Get truncated to int; JSON numbers decode as float64.
func (t *thing) GetInt(ctx context.Context, name string) (int, error) {
	f, err := t.GetFloat(ctx, name)
	return int(f), err
}

// GetBool is Get with a boolean assertion.
func (t *thing) GetBool(ctx context.Context, name string) (bool, error) {
	v, err := t.Get(ctx, name)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// Refresh forces a fetch, replacing the attribute bag with a fresh server
// snapshot. On failure the previous snapshot stays intact.
func (t *thing) Refresh(ctx context.Context) error {
	return t.fetch(ctx)
}

func (t *thing) fetch(ctx context.Context) error {
	attrs, err := t.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	t.setAttrs(attrs)
	t.fetched = true
	return nil
}

func (t *thing) loadSnapshot(ctx context.Context) (map[string]any, error) {
	if t.fetchFunc != nil {
		return t.fetchFunc(ctx)
	}
	return t.fetchViaInfo(ctx)
}

// fetchViaInfo composes a GET /api/info call for classes with no dedicated
// about endpoint.
func (t *thing) fetchViaInfo(ctx context.Context) (map[string]any, error) {
	params := url.Values{}
	params.Set("id", t.Fullname())
	obj, err := t.client.getObject(ctx, "api/info", params)
	if err != nil {
		return nil, err
	}
	listing, ok := obj.(*Listing)
	if !ok || len(listing.Children) == 0 {
		return nil, &errors.StatusError{StatusCode: 404, URL: "api/info?id=" + t.Fullname()}
	}
	src, ok := listing.Children[0].(attrSource)
	if !ok {
		return nil, &errors.ParseError{Operation: "fetch " + t.typeName, Message: "unexpected child shape in info listing"}
	}
	return src.Snapshot(), nil
}

// setAttrs replaces the attribute bag, routing values through the relation
// normalizer: strings naming other entities become domain objects and the
// deleted sentinel becomes nil.
func (t *thing) setAttrs(attrs map[string]any) {
	bag := make(map[string]any, len(attrs))
	for k, v := range attrs {
		bag[k] = t.normalizeAttr(k, v)
	}
	t.attrs = bag
}

// setAttr assigns a single attribute through the normalizer.
func (t *thing) setAttr(name string, value any) {
	t.attrs[name] = t.normalizeAttr(name, value)
}

func (t *thing) normalizeAttr(name string, value any) any {
	s, isString := value.(string)
	if !isString {
		return value
	}
	kind, isRelation := relationAttrs[name]
	if !isRelation {
		return value
	}
	if s == deletedSentinel || s == "" {
		return nil
	}
	if t.client == nil {
		return value
	}
	switch kind {
	case types.KindRedditor:
		return t.client.Redditor(s)
	case types.KindSubreddit:
		return t.client.Subreddit(s)
	}
	return value
}

// markFetched flags the bag as a complete server snapshot.
func (t *thing) markFetched() { t.fetched = true }
