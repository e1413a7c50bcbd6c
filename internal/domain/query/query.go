package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
)

// Query parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in bytes.
	MaxQueryLength = 4096
	DefaultTopK    = 50
	MaxTopK        = 500
	DefaultPage    = 20
	MaxPage        = 100
)

// Filters narrows candidates by content metadata before scoring.
type Filters struct {
	Category string
	Tags     []string
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool { return f.Category == "" && len(f.Tags) == 0 }

// Canonical returns a stable string form used in cache keys.
func (f Filters) Canonical() string {
	tags := append([]string(nil), f.Tags...)
	sort.Strings(tags)
	return "cat=" + f.Category + ";tags=" + strings.Join(tags, ",")
}

// Page bounds the slice of ranked results returned to the caller.
type Page struct {
	Offset int
	Size   int
}

// Query is a validated, normalized retrieval request. Ephemeral: built
// per request and never persisted.
type Query struct {
	raw        string
	normalized string
	class      Class
	filters    Filters
	page       Page
	topK       int
	asOf       *time.Time
}

// Limits carries deployment-configured result sizes. Zero fields fall
// back to the package constants, so the zero value is usable.
type Limits struct {
	TopK        int
	PageSize    int
	MaxPageSize int
}

// New normalizes, validates and classifies a query with the package
// default limits. Page size is clamped to topK.
func New(raw string, filters Filters, page Page, topK int, asOf *time.Time) (Query, error) {
	return NewWithLimits(raw, filters, page, topK, asOf, Limits{})
}

// NewWithLimits is New with configured defaults and caps for topK and
// the page window. MaxTopK stays a hard ceiling regardless of lim.
func NewWithLimits(raw string, filters Filters, page Page, topK int, asOf *time.Time, lim Limits) (Query, error) {
	if len(raw) > MaxQueryLength {
		return Query{}, fmt.Errorf("%w: query exceeds %d bytes", domain.ErrInvalidQuery, MaxQueryLength)
	}

	normalized := Normalize(raw)
	if normalized == "" {
		return Query{}, fmt.Errorf("%w: empty query", domain.ErrInvalidQuery)
	}

	if lim.TopK <= 0 {
		lim.TopK = DefaultTopK
	}
	if lim.PageSize <= 0 {
		lim.PageSize = DefaultPage
	}
	if lim.MaxPageSize <= 0 {
		lim.MaxPageSize = MaxPage
	}

	if topK <= 0 {
		topK = lim.TopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if page.Size <= 0 {
		page.Size = lim.PageSize
	}
	if page.Size > lim.MaxPageSize {
		page.Size = lim.MaxPageSize
	}
	if page.Size > topK {
		page.Size = topK
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	return Query{
		raw:        raw,
		normalized: normalized,
		class:      Classify(raw),
		filters:    filters,
		page:       page,
		topK:       topK,
		asOf:       asOf,
	}, nil
}

// Raw returns the query text as received.
func (q *Query) Raw() string { return q.raw }

// Normalized returns the trimmed, case-folded query text.
func (q *Query) Normalized() string { return q.normalized }

// Class returns the advisory query classification.
func (q *Query) Class() Class { return q.class }

// Filters returns the metadata pre-filters.
func (q *Query) Filters() Filters { return q.filters }

// Page returns the requested result window.
func (q *Query) Page() Page { return q.page }

// TopK returns the per-upstream candidate budget.
func (q *Query) TopK() int { return q.topK }

// AsOf returns the explicit as-of time, or nil for "now".
func (q *Query) AsOf() *time.Time { return q.asOf }

// AsOfOr resolves the effective as-of time against a fallback.
func (q *Query) AsOfOr(now time.Time) time.Time {
	if q.asOf != nil {
		return *q.asOf
	}
	return now
}

// Normalize trims, case-folds, strips control characters and collapses
// internal whitespace. Two queries with equal normalized forms share
// frequency counters and cache keys.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r < 0x20 || r == 0x7f:
			// control characters become word boundaries
			space = true
		case r == ' ' || r == '\t':
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
