package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report_agent/internal/backend"
	"report_agent/internal/common"
	"report_agent/internal/dialect"
)

// fakeBackend serves canned samples and can fail per table.
type fakeBackend struct {
	tables    []string
	samples   map[string][]common.Row
	failTable string
	listErr   error
}

func (f *fakeBackend) ListTables(context.Context) ([]string, error) {
	return f.tables, f.listErr
}

func (f *fakeBackend) Sample(_ context.Context, table string, _ int) ([]common.Row, error) {
	if table == f.failTable {
		return nil, errors.New("boom")
	}
	return f.samples[table], nil
}

func (f *fakeBackend) Execute(context.Context, *dialect.Description) ([]common.Row, error) {
	return nil, errors.New("not used")
}

func (f *fakeBackend) Stats(_ context.Context, table string) (backend.TableStats, error) {
	return backend.TableStats{RowCount: int64(len(f.samples[table]))}, nil
}

func (f *fakeBackend) EnsureData(context.Context) error { return nil }

func TestSnapshotInfersTypes(t *testing.T) {
	fb := &fakeBackend{
		tables: []string{"sales_data"},
		samples: map[string][]common.Row{
			"sales_data": {
				{"country": "US", "total": 100.0, "active": true, "note": nil},
				{"country": "CA", "total": 50.0, "active": false, "note": "x"},
			},
		},
	}
	snap, err := NewProvider(fb, 5).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tables, 1)

	tbl := snap.Table("SALES_DATA")
	require.NotNil(t, tbl)
	byName := map[string]ColumnType{}
	for _, c := range tbl.Columns {
		byName[c.Name] = c.Type
	}
	assert.Equal(t, TypeText, byName["country"])
	assert.Equal(t, TypeNumeric, byName["total"])
	assert.Equal(t, TypeBoolean, byName["active"])
	// nil in the first row falls back to a later sampled value
	assert.Equal(t, TypeText, byName["note"])

	assert.Equal(t, []string{"total"}, snap.NumericColumns("sales_data"))
	assert.EqualValues(t, 2, tbl.RowCount)
}

func TestSnapshotOmitsFailingTable(t *testing.T) {
	fb := &fakeBackend{
		tables:    []string{"good", "bad"},
		failTable: "bad",
		samples: map[string][]common.Row{
			"good": {{"a": int64(1)}},
		},
	}
	snap, err := NewProvider(fb, 5).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tables, 1)
	assert.Equal(t, "good", snap.Tables[0].Name)
}

func TestSnapshotBackendUnreachable(t *testing.T) {
	fb := &fakeBackend{listErr: errors.New("connection refused")}
	_, err := NewProvider(fb, 5).Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach data backend")
}

func TestDescribe(t *testing.T) {
	snap := &Snapshot{Tables: []Table{{
		Name:     "t",
		RowCount: 3,
		Columns:  []Column{{Name: "x", Type: TypeNumeric, Sample: 1}},
	}}}
	out := snap.Describe()
	assert.Contains(t, out, "Table t (3 rows)")
	assert.Contains(t, out, "x (numeric)")

	var empty *Snapshot
	assert.True(t, empty.Empty())
	assert.Equal(t, "(no tables available)", (&Snapshot{}).Describe())
}
