package common

import (
	"encoding/json"
	"strings"
)

// Complexity is the planner's estimate of how involved the analysis is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Valid reports whether c is one of the known complexity levels.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// QuerySpec is a single planned SQL query.
type QuerySpec struct {
	QueryID         string      `json:"query_id"`
	SQL             string      `json:"sql"`
	Purpose         string      `json:"purpose"`
	ExpectedColumns FlexStrings `json:"expected_columns"`
}

// AnalysisMethod enumerates the statistical methods the summarizer supports.
type AnalysisMethod string

const (
	MethodAggregation  AnalysisMethod = "aggregation"
	MethodComparison   AnalysisMethod = "comparison"
	MethodCorrelation  AnalysisMethod = "correlation"
	MethodTrend        AnalysisMethod = "trend"
	MethodDistribution AnalysisMethod = "distribution"
)

// AnalysisTask is a single planned statistical analysis over a dataset.
type AnalysisTask struct {
	AnalysisID string         `json:"analysis_id"`
	Method     AnalysisMethod `json:"method"`
	DatasetRef string         `json:"dataset"`
	Operation  string         `json:"operation"`
	MetricName string         `json:"metric_name"`
}

// ChartType enumerates the chart shapes the renderer understands.
type ChartType string

const (
	ChartBar     ChartType = "bar"
	ChartPie     ChartType = "pie"
	ChartLine    ChartType = "line"
	ChartScatter ChartType = "scatter"
	ChartBox     ChartType = "box"
	ChartHeatmap ChartType = "heatmap"
)

// VizSpec is a single planned visualization.
type VizSpec struct {
	VizID       string    `json:"viz_id"`
	ChartType   ChartType `json:"chart_type"`
	DatasetRef  string    `json:"dataset"`
	XAxis       string    `json:"x_axis"`
	YAxis       string    `json:"y_axis"`
	Title       string    `json:"title"`
	Aggregation string    `json:"aggregation"`
}

// SectionSpec is a single planned report section. Content entries are typed
// references of the form "visualization:<viz_id>", "analysis:<analysis_id>"
// or "narrative:<topic>".
type SectionSpec struct {
	SectionID  string      `json:"section_id"`
	Title      string      `json:"title"`
	Content    FlexStrings `json:"content"`
	KeyInsight string      `json:"key_insight"`
}

// ExecutionPlan is the top-level structure returned by the planner LLM.
// A plan with no sql_queries never reaches the executor; the planner
// substitutes the deterministic fallback plan instead.
type ExecutionPlan struct {
	ReportTitle         string         `json:"report_title"`
	AnalysisStrategy    string         `json:"analysis_strategy"`
	EstimatedComplexity Complexity     `json:"estimated_complexity"`
	SQLQueries          []QuerySpec    `json:"sql_queries"`
	AnalysisTasks       []AnalysisTask `json:"analysis_tasks"`
	Visualizations      []VizSpec      `json:"visualizations"`
	ReportSections      []SectionSpec  `json:"report_sections"`
}

// Row is one result record, column name to value.
type Row map[string]any

// QueryResult is the outcome of executing one QuerySpec. A failed result
// carries no rows; Columns is derived from the query when possible.
type QueryResult struct {
	QueryID string
	Success bool
	Rows    []Row
	Columns []string
	Error   string
}

// MetricResult is one named, formatted finding derived from query results.
// Value holds a float64 for scalar metrics, []Row for grouped comparisons
// and map[string]map[string]float64 for correlation matrices.
type MetricResult struct {
	Method    AnalysisMethod
	Metric    string
	Value     any
	Formatted string
}

// Fixed narrative topic keys. Report sections use their section id as the
// topic key alongside these.
const (
	TopicExecutiveSummary = "executive_summary"
	TopicDataOverview     = "data_overview"
	TopicProblems         = "problems"
	TopicNextSteps        = "next_steps"
)

// NarrativeBundle maps a topic or section id to generated prose.
type NarrativeBundle map[string]string

// FlexString handles LLM returning either a string or []string, unifying to string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = FlexString(strings.Join(arr, "\n"))
		return nil
	}
	*f = FlexString(string(data))
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// FlexStrings handles LLM returning either a JSON array of strings or a
// single comma-separated string.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*f = out
		return nil
	}
	*f = nil
	return nil
}
