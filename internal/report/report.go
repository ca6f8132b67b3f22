// Package report assembles the aggregate object handed to a renderer:
// plan, datasets with text previews, metrics, visualization artifact
// handles and the narrative bundle. Every handle it emits resolves to a
// produced dataset, so a renderer never sees a dangling reference.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"report_agent/internal/common"
)

// previewRows caps the rows rendered into a dataset preview.
const previewRows = 10

// VizArtifact is the opaque handle produced for a resolvable VizSpec.
// Rendering itself happens downstream.
type VizArtifact struct {
	VizID      string
	ChartType  common.ChartType
	Title      string
	DatasetRef string
	XAxis      string
	YAxis      string
	Rows       []common.Row
}

// Dataset pairs a query result with its rendered text preview.
type Dataset struct {
	QueryID string
	Rows    []common.Row
	Columns []string
	Preview string
}

// Payload is the renderer-facing aggregate.
type Payload struct {
	Title      string
	Plan       common.ExecutionPlan
	Datasets   map[string]Dataset
	Metrics    map[string]common.MetricResult
	Artifacts  map[string]VizArtifact
	Narratives common.NarrativeBundle
}

// Build assembles the payload. Failed queries contribute no dataset and
// visualizations referencing them contribute no artifact.
func Build(plan common.ExecutionPlan, results map[string]common.QueryResult,
	metrics map[string]common.MetricResult, narratives common.NarrativeBundle) *Payload {

	p := &Payload{
		Title:      plan.ReportTitle,
		Plan:       plan,
		Datasets:   make(map[string]Dataset, len(results)),
		Metrics:    metrics,
		Artifacts:  make(map[string]VizArtifact, len(plan.Visualizations)),
		Narratives: narratives,
	}

	for id, res := range results {
		if !res.Success {
			continue
		}
		p.Datasets[id] = Dataset{
			QueryID: id,
			Rows:    res.Rows,
			Columns: res.Columns,
			Preview: renderPreview(res),
		}
	}

	for _, viz := range plan.Visualizations {
		ds, ok := p.Datasets[viz.DatasetRef]
		if !ok {
			continue
		}
		p.Artifacts[viz.VizID] = VizArtifact{
			VizID:      viz.VizID,
			ChartType:  viz.ChartType,
			Title:      viz.Title,
			DatasetRef: viz.DatasetRef,
			XAxis:      viz.XAxis,
			YAxis:      viz.YAxis,
			Rows:       ds.Rows,
		}
	}
	return p
}

// renderPreview draws up to previewRows rows as a text table.
func renderPreview(res common.QueryResult) string {
	if len(res.Rows) == 0 {
		return "(no rows)"
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	limit := len(res.Rows)
	if limit > previewRows {
		limit = previewRows
	}
	for _, r := range res.Rows[:limit] {
		row := make(table.Row, len(res.Columns))
		for i, c := range res.Columns {
			row[i] = r[c]
		}
		t.AppendRow(row)
	}
	if len(res.Rows) > previewRows {
		t.AppendFooter(table.Row{fmt.Sprintf("%d more rows", len(res.Rows)-previewRows)})
	}
	return t.Render()
}

// ExplainQuery produces the deterministic one-line profile of a query
// result used in the compiled summary.
func ExplainQuery(q common.QuerySpec, res common.QueryResult) string {
	if !res.Success {
		return fmt.Sprintf("%s (%s): failed - %s", q.QueryID, q.Purpose, res.Error)
	}
	return fmt.Sprintf("%s (%s): %d rows, columns [%s]",
		q.QueryID, q.Purpose, len(res.Rows), strings.Join(res.Columns, ", "))
}

// SortedMetricKeys returns metric ids in stable order for rendering.
func SortedMetricKeys(metrics map[string]common.MetricResult) []string {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
