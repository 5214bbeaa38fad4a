package query

import (
	"sort"
	"strings"
	"time"
)

// Matches evaluates every compiled condition against a public-shaped
// document. The tenant/category/owner predicates are not part of the
// condition list; stores enforce those on their own envelope fields.
func (q BoundQuery) Matches(doc map[string]any) bool {
	for _, c := range q.Conds {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

func (c Cond) matches(doc map[string]any) bool {
	v, ok := doc[c.Key]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		if c.IsBool {
			b, ok := v.(bool)
			return ok && b == c.Bool
		}
		s, ok := v.(string)
		return ok && s == c.Str
	case OpIn:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, candidate := range c.Values {
			if s == candidate {
				return true
			}
		}
		return false
	case OpRange:
		return matchRange(v, c.Min, c.Max)
	case OpMatch:
		s, ok := v.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(c.Pattern))
	default:
		return false
	}
}

func matchRange(v any, min, max *Bound) bool {
	if min != nil && !matchBound(v, min, false) {
		return false
	}
	if max != nil && !matchBound(v, max, true) {
		return false
	}
	return true
}

// matchBound checks one side of a range. Numeric bounds only match numeric
// document values, date bounds only match date-shaped strings; a type
// mismatch excludes the document rather than erroring, mirroring how a
// schema-less store skips rows of the wrong shape.
func matchBound(v any, b *Bound, upper bool) bool {
	if b.IsTime {
		s, ok := v.(string)
		if !ok {
			return false
		}
		ts, ok := parseDocTime(s)
		if !ok {
			return false
		}
		if upper {
			return !ts.After(b.Time)
		}
		return !ts.Before(b.Time)
	}
	num, ok := asFloat(v)
	if !ok {
		return false
	}
	if upper {
		return num <= b.Num
	}
	return num >= b.Num
}

// asFloat widens any numeric JSON value. Decoded JSON yields float64, but
// server-set fields such as the public id are int64 in memory.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func parseDocTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// SortDocs orders documents in place by the query's sort key. Values of
// different JSON types group by a fixed type precedence so the order is
// total; the sort is stable so store order is preserved within ties.
func (q BoundQuery) SortDocs(docs []map[string]any) {
	if q.SortKey == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if q.Desc {
			return docLess(docs[j][q.SortKey], docs[i][q.SortKey])
		}
		return docLess(docs[i][q.SortKey], docs[j][q.SortKey])
	})
}

// Less reports whether doc a sorts before doc b under the query's sort key
// and direction. Stores that keep their own record representation can sort
// with this instead of SortDocs.
func (q BoundQuery) Less(a, b map[string]any) bool {
	if q.SortKey == "" {
		return false
	}
	if q.Desc {
		return docLess(b[q.SortKey], a[q.SortKey])
	}
	return docLess(a[q.SortKey], b[q.SortKey])
}

// docLess compares two dynamic JSON values: missing < bool < number < string.
func docLess(a, b any) bool {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra < rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		return !av && bv
	case float64, int64, int:
		fa, _ := asFloat(av)
		fb, _ := asFloat(b)
		return fa < fb
	case string:
		return av < b.(string)
	default:
		return false
	}
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int64, int:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// Window applies the query's skip/limit to an already sorted slice.
func (q BoundQuery) Window(docs []map[string]any) []map[string]any {
	if q.Unbounded() {
		return docs
	}
	if q.Skip >= len(docs) {
		return nil
	}
	end := q.Skip + q.Limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[q.Skip:end]
}
