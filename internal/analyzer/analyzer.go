// Package analyzer derives concrete metrics from query results. Every
// task failure is contained to that task; when no task produces
// anything the fallback KPI extractor scans the datasets directly so
// the narrative stage always receives numbers when any data exists.
package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"report_agent/internal/common"
	"report_agent/internal/events"
	"report_agent/pkg/logger"
)

// Identifier-like columns carry no business meaning and are excluded
// from aggregation metrics.
var idColumns = map[string]bool{
	"id":          true,
	"ordernumber": true,
	"qtr_id":      true,
	"month_id":    true,
	"year_id":     true,
}

var currencyHint = []string{"sales", "price", "revenue"}

var firstNumberRe = regexp.MustCompile(`\d+`)

// Summarizer turns query results and analysis tasks into MetricResults.
type Summarizer struct {
	emitter events.Emitter
	metrics *logger.Metrics
}

func NewSummarizer(emitter events.Emitter, metrics *logger.Metrics) *Summarizer {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Summarizer{emitter: emitter, metrics: metrics}
}

// Summarize runs every task whose dataset resolves to a successful
// result. A failing task contributes nothing; an empty outcome triggers
// the fallback KPI extractor over all successful datasets.
func (s *Summarizer) Summarize(results map[string]common.QueryResult, tasks []common.AnalysisTask) map[string]common.MetricResult {
	out := make(map[string]common.MetricResult)

	for _, task := range tasks {
		res, ok := results[task.DatasetRef]
		if !ok || !res.Success || len(res.Rows) == 0 {
			logger.Warnf("[Analyzer] %s: dataset %s not available", task.AnalysisID, task.DatasetRef)
			s.metrics.Emit(logger.MetricsEvent{
				LogType: logger.LTAnalysisSkipped,
				Phase:   logger.PhaseAnalyzer,
				Detail:  task.AnalysisID,
			})
			continue
		}
		s.runTask(out, task, res)
	}

	if len(out) == 0 {
		logger.Infof("[Analyzer] no task metrics, extracting general KPIs")
		s.fallbackKPIs(out, results)
		s.metrics.Emit(logger.MetricsEvent{
			LogType: logger.LTAnalysisFallback,
			Phase:   logger.PhaseAnalyzer,
			Detail:  len(out),
		})
	}

	s.emitter.Emit(events.NewEvent(events.TypeAnalysisCompleted, "", events.AnalysisCompletedData{
		TaskCount:   len(tasks),
		MetricCount: len(out),
	}))
	s.metrics.Emit(logger.MetricsEvent{
		LogType: logger.LTAnalysisCompleted,
		Phase:   logger.PhaseAnalyzer,
		Detail:  len(out),
	})
	return out
}

func (s *Summarizer) runTask(out map[string]common.MetricResult, task common.AnalysisTask, res common.QueryResult) {
	logger.Infof("[Analyzer] %s: %s - %s", task.AnalysisID, task.Method, task.Operation)

	switch task.Method {
	case common.MethodAggregation:
		s.aggregationTask(out, task, res)
	case common.MethodComparison:
		s.comparisonTask(out, task, res)
	case common.MethodCorrelation:
		s.correlationTask(out, task, res)
	case common.MethodDistribution:
		s.distributionTask(out, task, res)
	default:
		// trend and unknown methods are not computed; the task simply
		// contributes no metric
		logger.Warnf("[Analyzer] %s: method %q not computed", task.AnalysisID, task.Method)
	}
}

func (s *Summarizer) aggregationTask(out map[string]common.MetricResult, task common.AnalysisTask, res common.QueryResult) {
	for _, col := range NumericColumns(res) {
		if idColumns[strings.ToLower(col)] {
			continue
		}
		vals := ColumnValues(res.Rows, col)
		if len(vals) == 0 {
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		avg := sum / float64(len(vals))

		out[task.AnalysisID+"_"+col+"_total"] = common.MetricResult{
			Method:    common.MethodAggregation,
			Metric:    "Total " + titleCase(col),
			Value:     sum,
			Formatted: formatValue(col, sum, 0),
		}
		out[task.AnalysisID+"_"+col+"_avg"] = common.MetricResult{
			Method:    common.MethodAggregation,
			Metric:    "Average " + titleCase(col),
			Value:     avg,
			Formatted: formatValue(col, avg, 2),
		}
	}
	out[task.AnalysisID+"_count"] = common.MetricResult{
		Method:    common.MethodAggregation,
		Metric:    "Total Records",
		Value:     float64(len(res.Rows)),
		Formatted: humanize.Comma(int64(len(res.Rows))),
	}
}

// comparisonTask selects the N rows with the largest value in the first
// numeric column, N parsed from the task operation text.
func (s *Summarizer) comparisonTask(out map[string]common.MetricResult, task common.AnalysisTask, res common.QueryResult) {
	numCols := NumericColumns(res)
	if len(numCols) == 0 {
		return
	}
	n := 5
	if m := firstNumberRe.FindString(task.Operation); m != "" {
		if parsed, err := strconv.Atoi(m); err == nil && parsed > 0 {
			n = parsed
		}
	}
	sortCol := numCols[0]
	rows := append([]common.Row(nil), res.Rows...)
	sortRowsDesc(rows, sortCol)
	if len(rows) > n {
		rows = rows[:n]
	}
	out[task.AnalysisID] = common.MetricResult{
		Method: common.MethodComparison,
		Metric: task.MetricName,
		Value:  rows,
		Formatted: fmt.Sprintf("top %d rows by %s", len(rows), sortCol),
	}
}

func (s *Summarizer) correlationTask(out map[string]common.MetricResult, task common.AnalysisTask, res common.QueryResult) {
	numCols := NumericColumns(res)
	if len(numCols) < 2 {
		return
	}
	series := make(map[string][]float64, len(numCols))
	for _, col := range numCols {
		series[col] = alignedColumnValues(res.Rows, col)
	}
	matrix := make(map[string]map[string]float64, len(numCols))
	for _, a := range numCols {
		matrix[a] = make(map[string]float64, len(numCols))
		for _, b := range numCols {
			matrix[a][b] = pearson(series[a], series[b])
		}
	}
	out[task.AnalysisID] = common.MetricResult{
		Method:    common.MethodCorrelation,
		Metric:    task.MetricName,
		Value:     matrix,
		Formatted: fmt.Sprintf("%dx%d correlation matrix", len(numCols), len(numCols)),
	}
}

func (s *Summarizer) distributionTask(out map[string]common.MetricResult, task common.AnalysisTask, res common.QueryResult) {
	numCols := NumericColumns(res)
	if len(numCols) == 0 {
		return
	}
	vals := ColumnValues(res.Rows, numCols[0])
	if len(vals) == 0 {
		return
	}
	lo, hi := minMax(vals)
	stats := map[string]float64{
		"mean":   mean(vals),
		"median": median(vals),
		"std":    stddev(vals),
		"min":    lo,
		"max":    hi,
	}
	out[task.AnalysisID] = common.MetricResult{
		Method:    common.MethodDistribution,
		Metric:    task.MetricName,
		Value:     stats,
		Formatted: fmt.Sprintf("mean %s, median %s", humanize.FormatFloat("#,###.##", stats["mean"]), humanize.FormatFloat("#,###.##", stats["median"])),
	}
}

// fallbackKPIs scans every successful dataset for revenue-like numeric
// columns and well-known categorical dimensions.
func (s *Summarizer) fallbackKPIs(out map[string]common.MetricResult, results map[string]common.QueryResult) {
	for _, res := range results {
		if !res.Success || len(res.Rows) == 0 {
			continue
		}
		numeric := make(map[string]bool)
		for _, col := range NumericColumns(res) {
			numeric[col] = true
		}
		for _, col := range res.Columns {
			lower := strings.ToLower(col)
			if numeric[col] && (strings.Contains(lower, "sales") || strings.Contains(lower, "revenue") || strings.Contains(lower, "amount")) {
				vals := ColumnValues(res.Rows, col)
				if len(vals) == 0 {
					continue
				}
				var sum float64
				for _, v := range vals {
					sum += v
				}
				avg := sum / float64(len(vals))
				out["total_"+col] = common.MetricResult{
					Method:    common.MethodAggregation,
					Metric:    "Total " + titleCase(col),
					Value:     sum,
					Formatted: formatValue(col, sum, 2),
				}
				out["average_"+col] = common.MetricResult{
					Method:    common.MethodAggregation,
					Metric:    "Average " + titleCase(col),
					Value:     avg,
					Formatted: formatValue(col, avg, 2),
				}
			}

			switch lower {
			case "country", "product", "category", "customer", "region":
				if numeric[col] {
					continue
				}
				distinct := make(map[string]struct{})
				for _, r := range res.Rows {
					if v := r[col]; v != nil {
						distinct[fmt.Sprintf("%v", v)] = struct{}{}
					}
				}
				out["unique_"+col] = common.MetricResult{
					Method:    common.MethodAggregation,
					Metric:    fmt.Sprintf("Number of %ss", titleCase(col)),
					Value:     float64(len(distinct)),
					Formatted: humanize.Comma(int64(len(distinct))),
				}
			}
		}
	}
}

// formatValue renders a number, currency-styled when the column name
// suggests a monetary quantity. Currency always carries two decimals.
func formatValue(col string, v float64, digits int) string {
	lower := strings.ToLower(col)
	for _, hint := range currencyHint {
		if strings.Contains(lower, hint) {
			return "$" + humanize.FormatFloat("#,###.##", v)
		}
	}
	if digits <= 0 {
		return humanize.FormatFloat("#,###.", v)
	}
	return humanize.FormatFloat("#,###."+strings.Repeat("#", digits), v)
}

func titleCase(col string) string {
	words := strings.FieldsFunc(col, func(r rune) bool { return r == '_' || r == ' ' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// NumericColumns returns the result columns whose first non-nil value
// is numeric, in the result's column order.
func NumericColumns(res common.QueryResult) []string {
	var out []string
	for _, col := range res.Columns {
		for _, r := range res.Rows {
			v := r[col]
			if v == nil {
				continue
			}
			if _, ok := asFloat(v); ok {
				out = append(out, col)
			}
			break
		}
	}
	return out
}

// ColumnValues collects the numeric values of one column, skipping
// nulls and non-numeric cells.
func ColumnValues(rows []common.Row, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := asFloat(r[col]); ok {
			out = append(out, v)
		}
	}
	return out
}

// alignedColumnValues substitutes 0 for missing cells so correlation
// series stay index-aligned across columns.
func alignedColumnValues(rows []common.Row, col string) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		if v, ok := asFloat(r[col]); ok {
			out[i] = v
		}
	}
	return out
}

func sortRowsDesc(rows []common.Row, col string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := asFloat(rows[i][col])
		b, _ := asFloat(rows[j][col])
		return a > b
	})
}

func asFloat(v any) (float64, bool) {
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
	default:
		return 0, false
	}
}
