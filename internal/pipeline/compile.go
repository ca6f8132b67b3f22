package pipeline

import (
	"fmt"
	"strings"

	"report_agent/internal/common"
	"report_agent/internal/narrative"
	"report_agent/internal/report"
)

// fixedHeadings are the block titles compileResponse always emits on
// its own; plan sections with a matching title are skipped.
var fixedHeadings = map[string]bool{
	"executive summary": true,
	"data overview":     true,
	"key metrics":       true,
	"next steps":        true,
}

// compileResponse turns the accumulated state into the final markdown
// answer. It never returns an empty string: a run that produced nothing
// still gets an explicit explanation of what went wrong.
func compileResponse(st *State) string {
	title := st.Plan.ReportTitle
	if title == "" {
		title = "Data Analysis Report"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	if signal, ok := terminalSignal(st); ok {
		b.WriteString(signal)
		b.WriteString("\n")
		writeCaveats(&b, st)
		return b.String()
	}

	if st.Plan.AnalysisStrategy != "" {
		fmt.Fprintf(&b, "*Analysis strategy: %s*\n\n", st.Plan.AnalysisStrategy)
	}
	if st.FallbackPlan {
		b.WriteString("*The question could not be planned automatically, so a standard analysis of the available data is shown instead.*\n\n")
	}

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(narrativeOr(st, common.TopicExecutiveSummary))
	b.WriteString("\n\n")

	b.WriteString("## Data Overview\n\n")
	b.WriteString(narrativeOr(st, common.TopicDataOverview))
	b.WriteString("\n\n")
	for _, q := range st.Plan.SQLQueries {
		res, ok := st.Results[q.QueryID]
		if !ok {
			res = common.QueryResult{QueryID: q.QueryID, Error: "not executed"}
		}
		fmt.Fprintf(&b, "- %s\n", report.ExplainQuery(q, res))
	}
	b.WriteString("\n")

	if len(st.Metrics) > 0 {
		b.WriteString("## Key Metrics\n\n")
		for _, key := range report.SortedMetricKeys(st.Metrics) {
			m := st.Metrics[key]
			fmt.Fprintf(&b, "- %s: %s\n", m.Metric, m.Formatted)
		}
		b.WriteString("\n")
	}

	for _, sec := range st.Plan.ReportSections {
		// a plan section reusing a fixed heading would render it twice;
		// keep its charts, drop the duplicate heading and prose
		if !fixedHeadings[strings.ToLower(strings.TrimSpace(sec.Title))] {
			fmt.Fprintf(&b, "## %s\n\n", sec.Title)
			b.WriteString(narrativeOr(st, sec.SectionID))
			b.WriteString("\n")
		}
		for _, artTitle := range sectionArtifacts(st, sec) {
			fmt.Fprintf(&b, "\n[Chart: %s]\n", artTitle)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Next Steps\n\n")
	b.WriteString(narrativeOr(st, common.TopicNextSteps))
	b.WriteString("\n")

	writeCaveats(&b, st)
	return b.String()
}

// terminalSignal reports the short-circuit message for runs where no
// answer is possible: the backend was unreachable or the store holds no
// usable data.
func terminalSignal(st *State) (string, bool) {
	for _, se := range st.StageErrors {
		if se.Stage == StageSchemaDiscovery {
			return fmt.Sprintf("The data backend could not be reached (%s), so no analysis was performed. Verify the data source and try again.", se.Message), true
		}
	}
	if st.Schema.Empty() && !anySuccess(st.Results) {
		return "No data is available to answer this question. Load data into the backend and run the request again.", true
	}
	return "", false
}

func anySuccess(results map[string]common.QueryResult) bool {
	for _, res := range results {
		if res.Success && len(res.Rows) > 0 {
			return true
		}
	}
	return false
}

// narrativeOr returns the generated prose for a topic, or the standard
// placeholder when the synthesis stage never reached it.
func narrativeOr(st *State, topic string) string {
	if text, ok := st.Narratives[topic]; ok && text != "" {
		return text
	}
	return narrative.Placeholder(topic)
}

// sectionArtifacts resolves a section's visualization references to the
// artifact titles that were actually produced.
func sectionArtifacts(st *State, sec common.SectionSpec) []string {
	if st.Payload == nil {
		return nil
	}
	var titles []string
	for _, item := range sec.Content {
		vizID, ok := strings.CutPrefix(string(item), "visualization:")
		if !ok {
			continue
		}
		if art, ok := st.Payload.Artifacts[vizID]; ok {
			titles = append(titles, art.Title)
		}
	}
	return titles
}

// writeCaveats appends the degradations a reader should know about.
func writeCaveats(b *strings.Builder, st *State) {
	var lines []string
	for _, se := range st.StageErrors {
		lines = append(lines, fmt.Sprintf("the %s stage failed (%s)", se.Stage, se.Message))
	}
	for _, q := range st.Plan.SQLQueries {
		if reason, ok := st.Translations[q.QueryID]; ok {
			lines = append(lines, fmt.Sprintf("query %s could not be translated (%s)", q.QueryID, reason))
		}
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n---\n*Caveats: ")
	b.WriteString(strings.Join(lines, "; "))
	b.WriteString(".*\n")
}
