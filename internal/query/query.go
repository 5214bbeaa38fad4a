package query

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"recordbase.org/internal/policy"
)

// ErrInvalidParams wraps every client-caused compilation failure so the
// operation layer can map the whole family to one validation outcome.
var ErrInvalidParams = errors.New("invalid query parameters")

// reservedKeys are document fields the compiler injects itself; a client
// filter, search or sort on them is rejected instead of silently merged,
// so tenant or owner predicates can never be overridden from the outside.
var reservedKeys = map[string]struct{}{
	"application_key": {},
	"category":        {},
	"owner_id":        {},
	"type":            {},
	"_row":            {},
}

// Params is the raw, still untrusted query surface a caller may supply.
type Params struct {
	SortBy       string
	Order        string
	Page         string
	Limit        string
	FilterKey    string
	FilterValues []string
	FilterMin    string
	FilterMax    string
	SearchKey    string
	SearchValue  string
}

// FromValues extracts the recognized parameters from a URL query.
// Unrecognized parameters are ignored.
func FromValues(v url.Values) Params {
	return Params{
		SortBy:       v.Get("sortBy"),
		Order:        v.Get("order"),
		Page:         v.Get("page"),
		Limit:        v.Get("limit"),
		FilterKey:    v.Get("filterKey"),
		FilterValues: v["filterValue"],
		FilterMin:    v.Get("filterMin"),
		FilterMax:    v.Get("filterMax"),
		SearchKey:    v.Get("searchKey"),
		SearchValue:  v.Get("searchValue"),
	}
}

// Op enumerates the predicate kinds a compiled condition can carry.
type Op int

const (
	OpEq Op = iota // exact equality on a string or boolean value
	OpIn           // set membership over string values
	OpRange        // half or fully bounded numeric/date range
	OpMatch        // case-insensitive substring match
)

// Bound is one end of a range condition. Each bound is classified
// independently, so a date min may be combined with a numeric max.
type Bound struct {
	IsTime bool
	Time   time.Time
	Num    float64
	Raw    string
}

// Cond is a single compiled predicate on one document key.
type Cond struct {
	Op  Op
	Key string

	// OpEq
	Str    string
	Bool   bool
	IsBool bool

	// OpIn
	Values []string

	// OpRange; nil bound means that side is open
	Min *Bound
	Max *Bound

	// OpMatch, original casing; evaluation is case-insensitive
	Pattern string
}

// BoundQuery is a validated, store-ready query. Tenant, Category and Owner
// are always compiler-injected and never come from client parameters.
type BoundQuery struct {
	Tenant   string
	Category string
	Owner    int64 // 0 means unrestricted

	Conds []Cond

	SortKey string
	Desc    bool

	// Skip/Limit bound the fetch; Limit < 0 means unbounded.
	Skip  int
	Limit int
	Page  int
}

// Unbounded reports whether pagination was requested.
func (q BoundQuery) Unbounded() bool { return q.Limit < 0 }

var (
	isoDatePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoDateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?$`)
)

// Compile turns raw client parameters into a bounded query scoped to the
// tenant, category and (when restricted) owner. Malformed numeric bounds
// and reserved keys fail compilation; unknown filter keys pass through as
// opaque predicates since the store is schema-less.
func Compile(tenant, category string, scope policy.Scope, p Params) (BoundQuery, error) {
	q := BoundQuery{
		Tenant:   tenant,
		Category: policy.NormalizeCategory(category),
		Limit:    -1,
		Page:     1,
	}
	if scope.Restricted() {
		q.Owner = scope.Owner()
	}

	for _, key := range []string{p.FilterKey, p.SearchKey, p.SortBy} {
		if _, reserved := reservedKeys[key]; reserved {
			return BoundQuery{}, fmt.Errorf("%w: %q is a reserved field", ErrInvalidParams, key)
		}
	}

	if cond, ok, err := compileFilter(p); err != nil {
		return BoundQuery{}, err
	} else if ok {
		q.Conds = append(q.Conds, cond)
	}

	if p.SearchKey != "" && p.SearchValue != "" {
		q.Conds = append(q.Conds, Cond{Op: OpMatch, Key: p.SearchKey, Pattern: p.SearchValue})
	}

	if p.SortBy != "" {
		q.SortKey = p.SortBy
		q.Desc = strings.EqualFold(p.Order, "desc")
	}

	if err := compilePagination(p, &q); err != nil {
		return BoundQuery{}, err
	}
	return q, nil
}

func compileFilter(p Params) (Cond, bool, error) {
	if p.FilterKey == "" {
		if p.FilterMin != "" || p.FilterMax != "" {
			return Cond{}, false, fmt.Errorf("%w: filterMin/filterMax require filterKey", ErrInvalidParams)
		}
		return Cond{}, false, nil
	}

	if p.FilterMin != "" || p.FilterMax != "" {
		cond := Cond{Op: OpRange, Key: p.FilterKey}
		if p.FilterMin != "" {
			b, err := classifyBound("filterMin", p.FilterMin)
			if err != nil {
				return Cond{}, false, err
			}
			cond.Min = b
		}
		if p.FilterMax != "" {
			b, err := classifyBound("filterMax", p.FilterMax)
			if err != nil {
				return Cond{}, false, err
			}
			cond.Max = b
		}
		return cond, true, nil
	}

	values := splitFilterValues(p.FilterValues)
	switch {
	case len(values) == 0:
		return Cond{}, false, nil
	case len(values) == 1:
		v := values[0]
		if strings.EqualFold(v, "true") || strings.EqualFold(v, "false") {
			return Cond{Op: OpEq, Key: p.FilterKey, Bool: strings.EqualFold(v, "true"), IsBool: true}, true, nil
		}
		return Cond{Op: OpEq, Key: p.FilterKey, Str: v}, true, nil
	default:
		return Cond{Op: OpIn, Key: p.FilterKey, Values: values}, true, nil
	}
}

// splitFilterValues flattens repeated and comma-separated filter values
// into one list.
func splitFilterValues(raw []string) []string {
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// classifyBound decides whether a range bound is date-valued or numeric.
// Date-looking strings win; everything else must parse as a number.
func classifyBound(name, raw string) (*Bound, error) {
	if isoDatePattern.MatchString(raw) {
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not a valid date", ErrInvalidParams, name, raw)
		}
		return &Bound{IsTime: true, Time: ts.UTC(), Raw: raw}, nil
	}
	if isoDateTimePattern.MatchString(raw) {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return &Bound{IsTime: true, Time: ts.UTC(), Raw: raw}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s %q is not a valid timestamp", ErrInvalidParams, name, raw)
	}
	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is neither a number nor a date", ErrInvalidParams, name, raw)
	}
	return &Bound{Num: num, Raw: raw}, nil
}

func compilePagination(p Params, q *BoundQuery) error {
	if strings.TrimSpace(p.Limit) == "" {
		if strings.TrimSpace(p.Page) != "" {
			// A page without a page size has nothing to paginate; keep the
			// single logical page the caller would get anyway.
			if _, err := strconv.Atoi(p.Page); err != nil {
				return fmt.Errorf("%w: page must be an integer", ErrInvalidParams)
			}
		}
		return nil
	}

	limit, err := strconv.Atoi(p.Limit)
	if err != nil {
		return fmt.Errorf("%w: limit must be an integer", ErrInvalidParams)
	}
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be greater than zero", ErrInvalidParams)
	}

	page := 1
	if strings.TrimSpace(p.Page) != "" {
		page, err = strconv.Atoi(p.Page)
		if err != nil {
			return fmt.Errorf("%w: page must be an integer", ErrInvalidParams)
		}
	}
	if page < 1 {
		page = 1
	}

	q.Limit = limit
	q.Page = page
	q.Skip = (page - 1) * limit
	return nil
}

// TotalPages computes the page count reported alongside list results.
func (q BoundQuery) TotalPages(total int64) int64 {
	if q.Unbounded() {
		return 1
	}
	pages := total / int64(q.Limit)
	if total%int64(q.Limit) != 0 {
		pages++
	}
	return pages
}
