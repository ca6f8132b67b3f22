package planner

import (
	"fmt"
	"strings"

	"report_agent/internal/common"
	dbschema "report_agent/internal/schema"
)

// FallbackPlan builds a deterministic plan from schema metadata alone.
// It guarantees non-empty sql_queries, at least one visualization and
// at least one report section, so the rest of the pipeline always has
// actionable items even when the oracle is unavailable.
func FallbackPlan(userRequest string, snap *dbschema.Snapshot) common.ExecutionPlan {
	table, numericCols, textCols := firstTableColumns(snap)

	if wantsCountry(userRequest) && contains(textCols, "country") && len(numericCols) > 0 {
		return countryPlan(table, numericCols[0])
	}
	return genericPlan(table, numericCols, textCols)
}

func wantsCountry(userRequest string) bool {
	lower := strings.ToLower(userRequest)
	return strings.Contains(lower, "country") || strings.Contains(lower, "countries")
}

// countryPlan aggregates the first numeric column by country. The value
// sum and the order count are split into two queries so each stays
// within the single-aggregate dialect subset.
func countryPlan(table, valueCol string) common.ExecutionPlan {
	totalCol := "total_" + valueCol
	return common.ExecutionPlan{
		ReportTitle:         "Sales Analysis by Country",
		AnalysisStrategy:    "Aggregate the primary value column by country and rank the results.",
		EstimatedComplexity: common.ComplexityLow,
		SQLQueries: []common.QuerySpec{
			{
				QueryID: "q1",
				SQL: fmt.Sprintf(
					"SELECT country, SUM(%s) AS %s FROM %s WHERE country IS NOT NULL GROUP BY country ORDER BY %s DESC LIMIT 1000",
					valueCol, totalCol, table, totalCol),
				Purpose:         "Aggregate " + valueCol + " by country",
				ExpectedColumns: common.FlexStrings{"country", totalCol},
			},
			{
				QueryID: "q2",
				SQL: fmt.Sprintf(
					"SELECT country, COUNT(*) AS order_count FROM %s WHERE country IS NOT NULL GROUP BY country ORDER BY order_count DESC LIMIT 1000",
					table),
				Purpose:         "Count records by country",
				ExpectedColumns: common.FlexStrings{"country", "order_count"},
			},
		},
		AnalysisTasks: []common.AnalysisTask{
			{
				AnalysisID: "a1",
				Method:     common.MethodAggregation,
				DatasetRef: "q1",
				Operation:  "sum " + totalCol,
				MetricName: "total_revenue",
			},
			{
				AnalysisID: "a2",
				Method:     common.MethodComparison,
				DatasetRef: "q1",
				Operation:  "top 5 countries by revenue",
				MetricName: "top_5_countries",
			},
		},
		Visualizations: []common.VizSpec{
			{VizID: "v1", ChartType: common.ChartBar, DatasetRef: "q1", XAxis: "country", YAxis: totalCol, Title: "Revenue by Country"},
			{VizID: "v2", ChartType: common.ChartPie, DatasetRef: "q1", XAxis: "country", YAxis: totalCol, Title: "Revenue Distribution by Country"},
			{VizID: "v3", ChartType: common.ChartBar, DatasetRef: "q2", XAxis: "country", YAxis: "order_count", Title: "Order Count by Country"},
		},
		ReportSections: []common.SectionSpec{
			{
				SectionID:  "s1",
				Title:      "Executive Summary",
				Content:    common.FlexStrings{"narrative:" + common.TopicExecutiveSummary},
				KeyInsight: "Overall geographic performance",
			},
			{
				SectionID:  "s2",
				Title:      "Country Performance Analysis",
				Content:    common.FlexStrings{"visualization:v1", "visualization:v2", "visualization:v3", "analysis:a1", "analysis:a2"},
				KeyInsight: "Which countries drive revenue",
			},
		},
	}
}

func genericPlan(table string, numericCols, textCols []string) common.ExecutionPlan {
	xAxis := "category"
	if len(textCols) > 0 {
		xAxis = textCols[0]
	}
	yAxis := "value"
	if len(numericCols) > 0 {
		yAxis = numericCols[0]
	}
	return common.ExecutionPlan{
		ReportTitle:         "Data Analysis Report",
		AnalysisStrategy:    "Fetch the primary dataset and summarize its key figures.",
		EstimatedComplexity: common.ComplexityLow,
		SQLQueries: []common.QuerySpec{
			{
				QueryID:         "q1",
				SQL:             fmt.Sprintf("SELECT * FROM %s LIMIT 1000", table),
				Purpose:         "Get dataset",
				ExpectedColumns: append(common.FlexStrings{}, append(textCols, numericCols...)...),
			},
		},
		Visualizations: []common.VizSpec{
			{VizID: "v1", ChartType: common.ChartBar, DatasetRef: "q1", XAxis: xAxis, YAxis: yAxis, Title: "Data Overview"},
		},
		ReportSections: []common.SectionSpec{
			{
				SectionID:  "s1",
				Title:      "Data Overview",
				Content:    common.FlexStrings{"narrative:" + common.TopicDataOverview, "visualization:v1"},
				KeyInsight: "Shape of the available data",
			},
		},
	}
}

// firstTableColumns picks the first snapshot table and splits its columns
// by type. With an empty snapshot the plan still references a nominal
// table; the runner turns the inevitable failure into an error-tagged
// result rather than crashing.
func firstTableColumns(snap *dbschema.Snapshot) (table string, numericCols, textCols []string) {
	if snap.Empty() {
		return "data", nil, nil
	}
	t := snap.Tables[0]
	for _, c := range t.Columns {
		switch c.Type {
		case dbschema.TypeNumeric:
			numericCols = append(numericCols, c.Name)
		case dbschema.TypeText:
			textCols = append(textCols, c.Name)
		}
	}
	return t.Name, numericCols, textCols
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
