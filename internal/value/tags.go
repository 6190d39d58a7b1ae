package value

import (
	"sort"
	"strconv"
	"strings"
)

// TagValue is the restricted value type permitted for a tag: String, I64,
// or Bool.
type TagValue struct {
	kind Kind
	s    string
	i    int64
	b    bool
}

func TagString(s string) TagValue { return TagValue{kind: KindString, s: s} }
func TagI64(i int64) TagValue     { return TagValue{kind: KindI64, i: i} }
func TagBool(b bool) TagValue     { return TagValue{kind: KindBool, b: b} }

func (t TagValue) String() string {
	switch t.kind {
	case KindString:
		return t.s
	case KindI64:
		return strconv.FormatInt(t.i, 10)
	case KindBool:
		return strconv.FormatBool(t.b)
	default:
		return ""
	}
}

// Tags is a small unordered map of String -> TagValue. Tag equality ignores
// insertion order; use Signature() for the canonical sorted form used to key
// tagged series.
type Tags struct {
	m map[string]TagValue
}

// NewTags builds a Tags set from an insertion order that is deliberately not
// preserved, since canonical identity is always the sorted signature.
func NewTags() Tags {
	return Tags{m: make(map[string]TagValue)}
}

// With returns a new Tags with key=val set, never mutating the receiver.
func (t Tags) With(key string, val TagValue) Tags {
	next := Tags{m: make(map[string]TagValue, len(t.m)+1)}
	for k, v := range t.m {
		next.m[k] = v
	}
	next.m[key] = val
	return next
}

// WithIfAbsent sets key=val only if key is not already present, implementing
// the "reserved tag names, user value applies only when absent" rule for
// the group tag.
func (t Tags) WithIfAbsent(key string, val TagValue) Tags {
	if _, ok := t.m[key]; ok {
		return t
	}
	return t.With(key, val)
}

func (t Tags) Get(key string) (TagValue, bool) {
	v, ok := t.m[key]
	return v, ok
}

func (t Tags) Len() int { return len(t.m) }

// Signature returns the canonical sorted "(key=value,...)" string identity
// used to key MetricSeries, and for Superset matching in threshold
// selectors.
func (t Tags) Signature() string {
	if len(t.m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(t.m))
	for k := range t.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(t.m[k].String())
	}
	return sb.String()
}

// Superset reports whether t contains every key=value pair in sel — the
// matching rule for threshold selectors (spec §4.7) and tag-scoped series
// resolution.
func (t Tags) Superset(sel Tags) bool {
	for k, v := range sel.m {
		got, ok := t.m[k]
		if !ok || got.String() != v.String() {
			return false
		}
	}
	return true
}

// Merge returns a new Tags combining t with other; other's values win on
// key collision, matching "reserved tag names ... set by the engine" when
// other holds the engine-reserved tags.
func (t Tags) Merge(other Tags) Tags {
	next := Tags{m: make(map[string]TagValue, len(t.m)+len(other.m))}
	for k, v := range t.m {
		next.m[k] = v
	}
	for k, v := range other.m {
		next.m[k] = v
	}
	return next
}

// Each calls fn for every key/value pair in an unspecified order.
func (t Tags) Each(fn func(key string, val TagValue)) {
	for k, v := range t.m {
		fn(k, v)
	}
}
