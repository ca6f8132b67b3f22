package executor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"report_agent/internal/common"
	"report_agent/internal/dialect"
)

// AggregateRows reproduces an aggregating query over raw rows in
// process: WHERE IS NOT NULL filter, GROUP BY, the single aggregate
// expression, ORDER BY and LIMIT, guided by the parsed description.
// Used when the backend cannot aggregate server-side.
func AggregateRows(rows []common.Row, d *dialect.Description) ([]common.Row, error) {
	if d.AggFunc == "" {
		return nil, fmt.Errorf("description has no aggregate expression")
	}

	if d.NotNullColumn != "" {
		filtered := rows[:0:0]
		for _, r := range rows {
			if r[d.NotNullColumn] != nil {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	alias := d.AggAlias
	if alias == "" {
		alias = strings.ToLower(d.AggFunc) + "_" + d.AggColumn
	}

	type bucket struct {
		keys  []any
		sum   float64
		count int64
		min   float64
		max   float64
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, r := range rows {
		var keyParts []string
		var keys []any
		for _, g := range d.GroupBy {
			v := r[g]
			keyParts = append(keyParts, fmt.Sprintf("%v", v))
			keys = append(keys, v)
		}
		key := strings.Join(keyParts, "\x00")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{keys: keys}
			buckets[key] = b
			order = append(order, key)
		}

		if d.AggColumn == "*" {
			b.count++
			continue
		}
		v, ok := toFloat(r[d.AggColumn])
		if !ok {
			continue
		}
		if b.count == 0 {
			b.min, b.max = v, v
		} else {
			if v < b.min {
				b.min = v
			}
			if v > b.max {
				b.max = v
			}
		}
		b.sum += v
		b.count++
	}

	out := make([]common.Row, 0, len(buckets))
	for _, key := range order {
		b := buckets[key]
		row := make(common.Row, len(d.GroupBy)+1)
		for i, g := range d.GroupBy {
			row[g] = b.keys[i]
		}
		var val any
		switch d.AggFunc {
		case "SUM":
			val = b.sum
		case "COUNT":
			val = b.count
		case "AVG":
			if b.count > 0 {
				val = b.sum / float64(b.count)
			} else {
				val = 0.0
			}
		case "MIN":
			val = b.min
		case "MAX":
			val = b.max
		default:
			return nil, fmt.Errorf("unsupported aggregate function %q", d.AggFunc)
		}
		row[alias] = val
		out = append(out, row)
	}

	if d.OrderBy != "" {
		sortRows(out, d.OrderBy, d.OrderDesc)
	}
	if d.HasLimit && len(out) > d.Limit {
		out = out[:d.Limit]
	}
	return out, nil
}

// sortRows orders rows by one column, numerically when both values
// coerce to float, lexically otherwise.
func sortRows(rows []common.Row, col string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, aok := toFloat(rows[i][col])
		b, bok := toFloat(rows[j][col])
		var less bool
		if aok && bok {
			less = a < b
		} else {
			less = fmt.Sprintf("%v", rows[i][col]) < fmt.Sprintf("%v", rows[j][col])
		}
		if desc {
			return !less && !equalValues(rows[i][col], rows[j][col])
		}
		return less
	})
}

func equalValues(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
