package store

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"
)

type serverValue string

// ServerTimestamp is replaced by the store's monotonic clock in epoch milliseconds
// when it is written as part of a Set, Update or Transact value.
const ServerTimestamp = serverValue("timestamp")

// FieldPath joins segments into a nested field name for Update. Segments are escaped
// so they may contain "/".
func FieldPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return strings.Join(escaped, "/")
}

func splitFieldPath(field string) ([]string, error) {
	parts := strings.Split(field, "/")
	for i, part := range parts {
		segment, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("invalid field path %q: %w", field, err)
		}
		if segment == "" {
			return nil, fmt.Errorf("invalid field path %q: empty segment", field)
		}
		parts[i] = segment
	}
	return parts, nil
}

// ToDoc converts value into a document. Maps are deep copied, everything else goes
// through its JSON representation.
func ToDoc(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("value must not be nil")
	case map[string]any:
		return Clone(v), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}

	var doc map[string]any
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("value is not an object: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("value must not be null")
	}
	return doc, nil
}

// Prepare converts value into a document and resolves server values.
func Prepare(value any, now int64) (map[string]any, error) {
	doc, err := ToDoc(value)
	if err != nil {
		return nil, err
	}
	return Resolve(doc, now), nil
}

// Clone deep copies a document.
func Clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return Clone(vv)
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Resolve replaces every ServerTimestamp in doc with now.
func Resolve(doc map[string]any, now int64) map[string]any {
	for k, v := range doc {
		doc[k] = resolveValue(v, now)
	}
	return doc
}

func resolveValue(v any, now int64) any {
	switch vv := v.(type) {
	case serverValue:
		if vv == ServerTimestamp {
			return now
		}
		return string(vv)
	case map[string]any:
		return Resolve(vv, now)
	case []any:
		for i, item := range vv {
			vv[i] = resolveValue(item, now)
		}
		return vv
	default:
		return v
	}
}

// Merge applies Update fields to a copy of doc and returns it.
func Merge(doc map[string]any, fields map[string]any, now int64) (map[string]any, error) {
	out := Clone(doc)
	if out == nil {
		out = map[string]any{}
	}

	for field, value := range fields {
		segments, err := splitFieldPath(field)
		if err != nil {
			return nil, err
		}

		parent := out
		for _, segment := range segments[:len(segments)-1] {
			child, ok := parent[segment].(map[string]any)
			if !ok {
				if value == nil {
					parent = nil
					break
				}
				child = map[string]any{}
				parent[segment] = child
			}
			parent = child
		}
		if parent == nil {
			continue
		}

		last := segments[len(segments)-1]
		if value == nil {
			delete(parent, last)
			continue
		}
		if m, ok := value.(map[string]any); ok {
			parent[last] = Resolve(Clone(m), now)
			continue
		}
		parent[last] = resolveValue(cloneValue(value), now)
	}

	return out, nil
}

// Int reads a numeric field, returning 0 if it is missing or not a number.
func Int(doc map[string]any, field string) int {
	n, _ := IntOK(doc, field)
	return n
}

// IntOK is like Int but also reports whether the field holds a whole number.
func IntOK(doc map[string]any, field string) (int, bool) {
	f, ok := toFloat(doc[field])
	if !ok || f != math.Trunc(f) {
		return int(f), false
	}
	return int(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// NewClock returns a clock handing out strictly increasing epoch milliseconds.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return ms
}
