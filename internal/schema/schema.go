// Package schema builds a read-only snapshot of the backend's tables,
// columns and inferred column types. The snapshot is built once per
// pipeline run and feeds both the planner prompt and the fallback plan.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"report_agent/internal/backend"
	"report_agent/internal/common"
	"report_agent/pkg/logger"
)

// ColumnType is the coarse type class inferred from sampled values.
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeText    ColumnType = "text"
	TypeBoolean ColumnType = "boolean"
	TypeOther   ColumnType = "other"
)

// Column describes one column of a sampled table.
type Column struct {
	Name   string
	Type   ColumnType
	Sample any
}

// Table describes one sampled table.
type Table struct {
	Name     string
	Columns  []Column
	RowCount int64
}

// Snapshot holds every table the provider could sample. Tables the
// backend failed on are simply absent.
type Snapshot struct {
	Tables []Table
}

// Table returns the named table, or nil when it is not in the snapshot.
func (s *Snapshot) Table(name string) *Table {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i]
		}
	}
	return nil
}

// Empty reports whether no table could be sampled.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Tables) == 0
}

// NumericColumns returns the numeric column names of the named table.
func (s *Snapshot) NumericColumns(table string) []string {
	t := s.Table(table)
	if t == nil {
		return nil
	}
	var out []string
	for _, c := range t.Columns {
		if c.Type == TypeNumeric {
			out = append(out, c.Name)
		}
	}
	return out
}

// Describe renders the snapshot as the textual schema block fed to the
// planner prompt.
func (s *Snapshot) Describe() string {
	if s.Empty() {
		return "(no tables available)"
	}
	var sb strings.Builder
	for _, t := range s.Tables {
		fmt.Fprintf(&sb, "Table %s (%d rows):\n", t.Name, t.RowCount)
		for _, c := range t.Columns {
			fmt.Fprintf(&sb, "  - %s (%s), e.g. %v\n", c.Name, c.Type, common.TruncateStr(fmt.Sprintf("%v", c.Sample), 40))
		}
	}
	return sb.String()
}

// Provider samples the backend to build snapshots.
type Provider struct {
	backend     backend.Backend
	sampleLimit int
}

func NewProvider(b backend.Backend, sampleLimit int) *Provider {
	if sampleLimit <= 0 {
		sampleLimit = 5
	}
	return &Provider{backend: b, sampleLimit: sampleLimit}
}

// Snapshot samples every table the backend lists. A per-table failure
// is logged and the table omitted; only a ListTables failure is
// returned to the caller, since it means the backend is unreachable.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	tables, err := p.backend.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot reach data backend: %w", err)
	}

	snap := &Snapshot{}
	for _, name := range tables {
		rows, err := p.backend.Sample(ctx, name, p.sampleLimit)
		if err != nil {
			logger.Warnf("schema: sampling %s failed, table omitted: %v", name, err)
			continue
		}
		t := Table{Name: name, Columns: inferColumns(rows)}
		if st, err := p.backend.Stats(ctx, name); err == nil {
			t.RowCount = st.RowCount
		}
		snap.Tables = append(snap.Tables, t)
	}
	return snap, nil
}

// inferColumns derives the column list from sampled rows. Column order
// is name-sorted so snapshots are deterministic across runs.
func inferColumns(rows []common.Row) []Column {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]Column, 0, len(names))
	for _, name := range names {
		var sample any
		for _, r := range rows {
			if v := r[name]; v != nil {
				sample = v
				break
			}
		}
		cols = append(cols, Column{Name: name, Type: inferType(sample), Sample: sample})
	}
	return cols
}

func inferType(v any) ColumnType {
	switch v.(type) {
	case nil:
		return TypeOther
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return TypeNumeric
	case string:
		return TypeText
	case bool:
		return TypeBoolean
	default:
		return TypeOther
	}
}
