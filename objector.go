package snoo

import (
	"strings"

	"github.com/wryfi/snoo/pkg/errors"
	"github.com/wryfi/snoo/pkg/types"
)

// parseFunc materializes the data payload of one kind tag.
type parseFunc func(data map[string]any) (any, error)

// Objector walks decoded JSON and dispatches tagged envelopes to the kind
// registry, yielding domain objects for recognized kinds and raw data for
// everything else. The registry is populated at client construction and
// read-only afterwards.
type Objector struct {
	client   *Client
	registry map[string]parseFunc
}

func newObjector(c *Client) *Objector {
	o := &Objector{client: c, registry: make(map[string]parseFunc)}

	o.register(types.KindComment, o.parseComment)
	o.register(types.KindRedditor, o.parseRedditor)
	o.register(types.KindSubmission, o.parseSubmission)
	o.register(types.KindMessage, o.parseMessage)
	o.register(types.KindSubreddit, o.parseSubreddit)
	o.register(types.KindAward, o.parseAward)
	o.register(types.KindListing, o.parseListing)
	o.register(types.KindMore, o.parseMore)
	o.register(types.KindModAction, o.parseModAction)
	o.register(types.KindLiveUpdateEvent, o.parseLiveThread)
	o.register(types.KindModmailConversation, o.parseModmailConversation)
	o.register(types.KindUserList, o.parseUserList)
	o.register(types.KindTrophyList, o.parseTrophyList)
	o.register(types.KindWikiPage, o.parseWikiPage)

	return o
}

// register binds a kind tag to its parser. Each tag maps to exactly one
// parser; a duplicate registration replaces the previous binding.
func (o *Objector) register(kind string, fn parseFunc) {
	o.registry[kind] = fn
}

// lookup returns the parser bound to a kind tag.
func (o *Objector) lookup(kind string) (parseFunc, bool) {
	fn, ok := o.registry[kind]
	return fn, ok
}

// KindOf returns the kind tag of a materialized domain object, or empty for
// values the registry does not produce.
func KindOf(v any) string {
	if id, ok := v.(Identified); ok {
		return id.Kind()
	}
	return ""
}

// Objectify converts decoded JSON into domain objects. It is idempotent on
// already-materialized objects, recurses into sequences, resolves tagged and
// legacy envelopes, and returns raw data unchanged for unknown shapes.
func (o *Objector) Objectify(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case Identified:
		return v, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			parsed, err := o.Objectify(item)
			if err != nil {
				return nil, err
			}
			out[i] = parsed
		}
		return out, nil
	case map[string]any:
		return o.objectifyMap(v)
	default:
		return value, nil
	}
}

func (o *Objector) objectifyMap(m map[string]any) (any, error) {
	// Tagged envelope {kind, data}.
	if kind, ok := m["kind"].(string); ok {
		if data, ok := m["data"].(map[string]any); ok {
			if fn, ok := o.lookup(kind); ok {
				return fn(data)
			}
			// Unknown kinds pass through untouched rather than failing.
			return m, nil
		}
	}

	// Legacy action envelope {json: {...}}.
	if inner, ok := m["json"].(map[string]any); ok {
		return o.objectifyLegacy(inner)
	}

	if out, ok, err := o.objectifyStructural(m); ok || err != nil {
		return out, err
	}

	return m, nil
}

// objectifyLegacy resolves the {json: {errors, data}} envelope used by the
// older action endpoints.
func (o *Objector) objectifyLegacy(inner map[string]any) (any, error) {
	if rawErrors, ok := inner["errors"].([]any); ok && len(rawErrors) > 0 {
		apiErr := &errors.APIError{}
		for _, rawItem := range rawErrors {
			parts, _ := rawItem.([]any)
			item := types.APIErrorItem{}
			if len(parts) > 0 {
				item.ErrorType, _ = parts[0].(string)
			}
			if len(parts) > 1 {
				item.Message, _ = parts[1].(string)
			}
			if len(parts) > 2 {
				item.Field, _ = parts[2].(string)
			}
			apiErr.Items = append(apiErr.Items, item)
		}
		return nil, apiErr
	}

	data, ok := inner["data"].(map[string]any)
	if !ok {
		// Empty errors array with no payload is a bare success.
		return nil, nil
	}

	// A list of things: materialize each.
	if things, ok := data["things"].([]any); ok {
		return o.Objectify(things)
	}

	// URL plus identity is a submission result.
	if _, hasURL := data["url"]; hasURL {
		if _, hasID := data["id"]; hasID {
			return o.parseSubmission(data)
		}
	}

	return data, nil
}

// objectifyStructural dispatches plain dicts by the set of keys present:
// modmail payloads (camelCase), relationship and ban records.
func (o *Objector) objectifyStructural(m map[string]any) (any, bool, error) {
	if _, ok := m["bodyMarkdown"]; ok {
		msg := newModmailMessage(o.client)
		msg.setAttrs(snakeCaseKeys(m))
		return msg, true, nil
	}
	if _, ok := m["actionTypeId"]; ok {
		act := newModmailAction(o.client)
		act.setAttrs(snakeCaseKeys(m))
		return act, true, nil
	}
	if _, ok := m["isAdmin"]; ok {
		if name, ok := m["name"].(string); ok {
			r := o.client.Redditor(name)
			r.setAttrs(snakeCaseKeys(m))
			return r, true, nil
		}
	}
	if _, ok := m["displayName"]; ok {
		if _, ok := m["subscribers"]; ok {
			name, _ := m["displayName"].(string)
			s := o.client.Subreddit(name)
			s.setAttrs(snakeCaseKeys(m))
			return s, true, nil
		}
	}

	// Moderator/contributor/ban relationship records carry rel_id + date.
	if _, ok := m["rel_id"]; ok {
		if _, ok := m["date"]; ok {
			rel := newRelationship(o.client)
			rel.setAttrs(m)
			return rel, true, nil
		}
	}

	return nil, false, nil
}

func (o *Objector) parseComment(data map[string]any) (any, error) {
	id, _ := data["id"].(string)
	c := o.client.Comment(id)

	// The replies field is either an empty string or a nested listing.
	if raw, ok := data["replies"]; ok {
		delete(data, "replies")
		if sub, ok := raw.(map[string]any); ok {
			parsed, err := o.Objectify(sub)
			if err != nil {
				return nil, err
			}
			if listing, ok := parsed.(*Listing); ok {
				c.replies = forestNodes(listing.Children)
			}
		}
	}

	c.setAttrs(data)
	return c, nil
}

func (o *Objector) parseRedditor(data map[string]any) (any, error) {
	name, _ := data["name"].(string)
	r := o.client.Redditor(name)
	r.setAttrs(data)
	return r, nil
}

func (o *Objector) parseSubmission(data map[string]any) (any, error) {
	id, _ := data["id"].(string)
	s := o.client.Submission(id)
	s.setAttrs(data)
	return s, nil
}

func (o *Objector) parseMessage(data map[string]any) (any, error) {
	id, _ := data["id"].(string)
	m := newMessage(o.client, id)

	// Message replies nest a listing of further messages.
	if raw, ok := data["replies"]; ok {
		delete(data, "replies")
		if sub, ok := raw.(map[string]any); ok {
			parsed, err := o.Objectify(sub)
			if err != nil {
				return nil, err
			}
			if listing, ok := parsed.(*Listing); ok {
				m.replies = listing.Children
			}
		}
	}

	m.setAttrs(data)
	return m, nil
}

func (o *Objector) parseSubreddit(data map[string]any) (any, error) {
	name, _ := data["display_name"].(string)
	s := o.client.Subreddit(name)
	s.setAttrs(data)
	return s, nil
}

func (o *Objector) parseAward(data map[string]any) (any, error) {
	a := newAward(o.client)
	a.setAttrs(data)
	return a, nil
}

func (o *Objector) parseListing(data map[string]any) (any, error) {
	listing := &Listing{}
	listing.After, _ = data["after"].(string)
	listing.Before, _ = data["before"].(string)

	children, _ := data["children"].([]any)
	listing.Children = make([]any, 0, len(children))
	for _, child := range children {
		parsed, err := o.Objectify(child)
		if err != nil {
			return nil, err
		}
		listing.Children = append(listing.Children, parsed)
	}
	return listing, nil
}

func (o *Objector) parseMore(data map[string]any) (any, error) {
	more := newMore(o.client)
	if count, ok := data["count"].(float64); ok {
		more.Count = int(count)
	}
	more.ParentID, _ = data["parent_id"].(string)
	more.name, _ = data["name"].(string)
	more.id, _ = data["id"].(string)

	if children, ok := data["children"].([]any); ok {
		more.ChildIDs = make([]string, 0, len(children))
		for _, child := range children {
			if s, ok := child.(string); ok {
				more.ChildIDs = append(more.ChildIDs, s)
			}
		}
	}
	return more, nil
}

func (o *Objector) parseModAction(data map[string]any) (any, error) {
	a := newModAction(o.client)
	a.setAttrs(data)
	return a, nil
}

func (o *Objector) parseLiveThread(data map[string]any) (any, error) {
	id, _ := data["id"].(string)
	lt := o.client.LiveThread(id)
	lt.setAttrs(data)
	return lt, nil
}

func (o *Objector) parseModmailConversation(data map[string]any) (any, error) {
	id, _ := data["id"].(string)
	conv := newModmailConversation(o.client, id)
	conv.setAttrs(snakeCaseKeys(data))
	return conv, nil
}

func (o *Objector) parseUserList(data map[string]any) (any, error) {
	children, _ := data["children"].([]any)
	return o.Objectify(children)
}

func (o *Objector) parseTrophyList(data map[string]any) (any, error) {
	trophies, _ := data["trophies"].([]any)
	return o.Objectify(trophies)
}

func (o *Objector) parseWikiPage(data map[string]any) (any, error) {
	w := newWikiPage(o.client)
	w.setAttrs(data)
	return w, nil
}

// snakeCaseKeys rewrites the camelCase keys of modmail payloads into the
// snake_case form the rest of the attribute surface uses.
func snakeCaseKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[snakeCase(k)] = v
	}
	return out
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
