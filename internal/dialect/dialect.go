// Package dialect bridges SQL-shaped query text and backends that only
// expose a restricted declarative data-access surface. It classifies a
// query as aggregating or simple, extracts the clauses the supported
// subset covers, and can rebuild a canonical query string from the
// extracted description.
//
// Supported subset: one aggregate expression (first match wins), one or
// two GROUP BY columns, a single `WHERE col IS NOT NULL` predicate,
// single-column ORDER BY, LIMIT. Anything outside that is rejected with
// ErrUnsupportedQuery instead of being mis-parsed.
package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnsupportedQuery marks query text outside the supported subset.
var ErrUnsupportedQuery = errors.New("query shape not supported by dialect translator")

// Kind classifies a query.
type Kind string

const (
	KindSimple      Kind = "simple"
	KindAggregating Kind = "aggregating"
)

// DefaultLimit caps simple fetches when the query carries no LIMIT.
const DefaultLimit = 1000

var (
	reClassify  = regexp.MustCompile(`(?i)\b(GROUP\s+BY|SUM|COUNT|AVG|MAX|MIN)\b`)
	reTable     = regexp.MustCompile(`(?i)\bFROM\s+["'\x60]?(\w+)["'\x60]?`)
	reLimit     = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	reGroupBy   = regexp.MustCompile(`(?i)\bGROUP\s+BY\s+["'\x60]?(\w+)["'\x60]?(?:\s*,\s*["'\x60]?(\w+)["'\x60]?)?`)
	reAggregate = regexp.MustCompile(`(?i)\b(SUM|COUNT|AVG|MAX|MIN)\s*\(\s*["'\x60]?([\w*]+)["'\x60]?\s*\)\s+AS\s+["'\x60]?(\w+)["'\x60]?`)
	reNotNull   = regexp.MustCompile(`(?i)\bWHERE\s+["'\x60]?(\w+)["'\x60]?\s+IS\s+NOT\s+NULL`)
	reOrderBy   = regexp.MustCompile(`(?i)\bORDER\s+BY\s+["'\x60]?(\w+)["'\x60]?(?:\s+(ASC|DESC))?`)
	reMoreCols  = regexp.MustCompile(`^\s*,`)
)

// Description is the declarative form of a parsed query.
type Description struct {
	Raw      string
	Kind     Kind
	Table    string
	Limit    int  // row bound when HasLimit is set; LIMIT 0 is a valid bound
	HasLimit bool // false means no LIMIT clause present

	// Aggregating queries only.
	GroupBy       []string
	AggFunc       string // upper-case SUM/COUNT/AVG/MAX/MIN
	AggColumn     string // "*" allowed for COUNT
	AggAlias      string
	NotNullColumn string
	OrderBy       string
	OrderDesc     bool

	// ExtraAggregates flags that the query contained more than one
	// aggregate expression; only the first is honored.
	ExtraAggregates bool
}

// IsAggregating reports whether the query text contains any aggregation
// construct (GROUP BY or an aggregate function), case-insensitive.
func IsAggregating(sql string) bool {
	return reClassify.MatchString(sql)
}

// Parse extracts a Description from raw query text. Aggregating queries
// missing a parsable aggregate expression or target table return
// ErrUnsupportedQuery.
func Parse(sql string) (*Description, error) {
	d := &Description{Raw: sql, Kind: KindSimple}

	if m := reTable.FindStringSubmatch(sql); m != nil {
		d.Table = m[1]
	}
	if m := reLimit.FindStringSubmatch(sql); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.Limit = n
			d.HasLimit = true
		}
	}

	if !IsAggregating(sql) {
		if d.Table == "" {
			return nil, fmt.Errorf("%w: no FROM table in %q", ErrUnsupportedQuery, truncate(sql))
		}
		return d, nil
	}

	d.Kind = KindAggregating
	if d.Table == "" {
		return nil, fmt.Errorf("%w: no FROM table in aggregating query %q", ErrUnsupportedQuery, truncate(sql))
	}

	aggs := reAggregate.FindAllStringSubmatch(sql, -1)
	if len(aggs) == 0 {
		return nil, fmt.Errorf("%w: no aggregate expression in %q", ErrUnsupportedQuery, truncate(sql))
	}
	d.AggFunc = strings.ToUpper(aggs[0][1])
	d.AggColumn = aggs[0][2]
	d.AggAlias = aggs[0][3]
	d.ExtraAggregates = len(aggs) > 1

	if loc := reGroupBy.FindStringSubmatchIndex(sql); loc != nil {
		m := reGroupBy.FindStringSubmatch(sql)
		d.GroupBy = append(d.GroupBy, m[1])
		if m[2] != "" {
			d.GroupBy = append(d.GroupBy, m[2])
		}
		// a third group column would be dropped silently; reject instead
		if reMoreCols.MatchString(sql[loc[1]:]) {
			return nil, fmt.Errorf("%w: more than two GROUP BY columns in %q", ErrUnsupportedQuery, truncate(sql))
		}
	}
	if m := reNotNull.FindStringSubmatch(sql); m != nil {
		d.NotNullColumn = m[1]
	}
	if m := reOrderBy.FindStringSubmatch(sql); m != nil {
		d.OrderBy = m[1]
		d.OrderDesc = strings.EqualFold(m[2], "DESC")
	}
	return d, nil
}

// BuildSQL reconstructs a canonical query string from the description.
// Identifiers come from the parsed subset (word characters only), so
// plain interpolation is safe here.
func (d *Description) BuildSQL() string {
	var sb strings.Builder
	if d.Kind == KindAggregating {
		sb.WriteString("SELECT ")
		if len(d.GroupBy) > 0 {
			sb.WriteString(strings.Join(d.GroupBy, ", "))
			sb.WriteString(", ")
		}
		alias := d.AggAlias
		if alias == "" {
			alias = strings.ToLower(d.AggFunc) + "_" + d.AggColumn
		}
		fmt.Fprintf(&sb, "%s(%s) AS %s FROM %s", d.AggFunc, d.AggColumn, alias, d.Table)
		if d.NotNullColumn != "" {
			fmt.Fprintf(&sb, " WHERE %s IS NOT NULL", d.NotNullColumn)
		}
		if len(d.GroupBy) > 0 {
			fmt.Fprintf(&sb, " GROUP BY %s", strings.Join(d.GroupBy, ", "))
		}
		if d.OrderBy != "" {
			dir := "ASC"
			if d.OrderDesc {
				dir = "DESC"
			}
			fmt.Fprintf(&sb, " ORDER BY %s %s", d.OrderBy, dir)
		}
	} else {
		fmt.Fprintf(&sb, "SELECT * FROM %s", d.Table)
	}
	limit := d.Limit
	if !d.HasLimit {
		limit = DefaultLimit
	}
	fmt.Fprintf(&sb, " LIMIT %d", limit)
	return sb.String()
}

func truncate(s string) string {
	if len(s) <= 80 {
		return s
	}
	return s[:80] + "..."
}
