package narrative

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkoukk/tiktoken-go"

	"report_agent/internal/analyzer"
	"report_agent/internal/common"
	"report_agent/pkg/logger"
)

// BuildContext renders the data-context block shared by every narrative
// prompt: per-dataset shapes, per-numeric-column summary statistics and
// every computed metric's label and formatted value.
func BuildContext(results map[string]common.QueryResult, metrics map[string]common.MetricResult) string {
	var sb strings.Builder

	sb.WriteString("## Datasets\n\n")
	for _, id := range sortedKeys(results) {
		res := results[id]
		if !res.Success {
			fmt.Fprintf(&sb, "- %s: failed (%s)\n", id, res.Error)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %d rows, %d columns (%s)\n",
			id, len(res.Rows), len(res.Columns), strings.Join(res.Columns, ", "))
		for _, col := range analyzer.NumericColumns(res) {
			vals := analyzer.ColumnValues(res.Rows, col)
			if len(vals) == 0 {
				continue
			}
			var sum, lo, hi float64
			lo, hi = vals[0], vals[0]
			for _, v := range vals {
				sum += v
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			fmt.Fprintf(&sb, "  - %s: min %s, max %s, mean %s\n",
				col,
				humanize.FormatFloat("#,###.##", lo),
				humanize.FormatFloat("#,###.##", hi),
				humanize.FormatFloat("#,###.##", sum/float64(len(vals))))
		}
	}

	sb.WriteString("\n## Computed metrics\n\n")
	if len(metrics) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, id := range sortedKeys(metrics) {
		m := metrics[id]
		display := m.Formatted
		if display == "" {
			display = fmt.Sprintf("%v", m.Value)
		}
		fmt.Fprintf(&sb, "- %s: %s\n", m.Metric, display)
	}

	return sb.String()
}

// TrimToBudget cuts text to roughly maxTokens using the cl100k_base
// encoding. When the encoding cannot be loaded it falls back to a
// 4-characters-per-token estimate.
func TrimToBudget(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	tkt, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warnf("[Narrative] token encoding unavailable, trimming by characters: %v", err)
		limit := maxTokens * 4
		if len(text) > limit {
			return text[:limit] + "\n(truncated)"
		}
		return text
	}
	tokens := tkt.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tkt.Decode(tokens[:maxTokens]) + "\n(truncated)"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
