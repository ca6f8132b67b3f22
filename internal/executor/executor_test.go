package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report_agent/internal/backend"
	"report_agent/internal/common"
	"report_agent/internal/dialect"
	"report_agent/internal/events"
	"report_agent/pkg/logger"
)

// thinBackend refuses server-side aggregation and can fail whole tables,
// mimicking a REST data layer.
type thinBackend struct {
	rows       map[string][]common.Row
	failTables map[string]bool
}

func (b *thinBackend) ListTables(context.Context) ([]string, error) {
	var out []string
	for t := range b.rows {
		out = append(out, t)
	}
	return out, nil
}

func (b *thinBackend) Sample(_ context.Context, table string, limit int) ([]common.Row, error) {
	if b.failTables[table] {
		return nil, errors.New("connection refused")
	}
	rows := b.rows[table]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (b *thinBackend) Execute(ctx context.Context, d *dialect.Description) ([]common.Row, error) {
	if d.Kind == dialect.KindAggregating {
		return nil, backend.ErrAggregationUnsupported
	}
	rows, err := b.Sample(ctx, d.Table, 0)
	if err != nil {
		return nil, err
	}
	if d.HasLimit && len(rows) > d.Limit {
		rows = rows[:d.Limit]
	}
	return rows, nil
}

func (b *thinBackend) Stats(_ context.Context, table string) (backend.TableStats, error) {
	return backend.TableStats{RowCount: int64(len(b.rows[table]))}, nil
}

func (b *thinBackend) EnsureData(context.Context) error { return nil }

func newTestRunner(b backend.Backend) *Runner {
	return NewRunner(b, events.NopEmitter{}, logger.NewMetrics(nil), WithWorkers(2))
}

func salesRows(n int) []common.Row {
	cities := []string{"Paris", "Lyon", "Nice", "Lille"}
	rows := make([]common.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, common.Row{
			"city":  cities[i%len(cities)],
			"sales": float64(i + 1),
		})
	}
	return rows
}

func TestRunReturnsOneResultPerSpec(t *testing.T) {
	b := &thinBackend{
		rows:       map[string][]common.Row{"t": salesRows(10)},
		failTables: map[string]bool{"broken": true},
	}
	queries := []common.QuerySpec{
		{QueryID: "q1", SQL: "SELECT * FROM t LIMIT 5"},
		{QueryID: "q2", SQL: "SELECT * FROM broken"},
		{QueryID: "q3", SQL: "this is not even sql"},
		{QueryID: "q4", SQL: "SELECT city, SUM(sales) AS total FROM t GROUP BY city"},
	}

	results := newTestRunner(b).Run(context.Background(), queries)
	require.Len(t, results, 4)
	assert.True(t, results["q1"].Success)
	assert.Len(t, results["q1"].Rows, 5)
	assert.False(t, results["q2"].Success)
	assert.NotEmpty(t, results["q2"].Error)
	assert.False(t, results["q3"].Success)
	assert.True(t, results["q4"].Success)
}

func TestRunHonorsExplicitZeroLimit(t *testing.T) {
	b := &thinBackend{rows: map[string][]common.Row{"t": salesRows(10)}}
	results := newTestRunner(b).Run(context.Background(), []common.QuerySpec{
		{QueryID: "q1", SQL: "SELECT * FROM t LIMIT 0"},
	})

	res := results["q1"]
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Rows)
}

func TestRunSimpleFetchFailsOnBrokenBackend(t *testing.T) {
	b := &thinBackend{
		rows:       map[string][]common.Row{"good": salesRows(3)},
		failTables: map[string]bool{"bad": true},
	}
	results := newTestRunner(b).Run(context.Background(), []common.QuerySpec{
		{QueryID: "ok", SQL: "SELECT * FROM good"},
		{QueryID: "boom", SQL: "SELECT * FROM bad"},
	})
	require.Len(t, results, 2)
	assert.True(t, results["ok"].Success)
	assert.False(t, results["boom"].Success)
	assert.Contains(t, results["boom"].Error, "connection refused")
}

func TestFallbackAggregationTopN(t *testing.T) {
	b := &thinBackend{rows: map[string][]common.Row{"t": salesRows(200)}}
	results := newTestRunner(b).Run(context.Background(), []common.QuerySpec{{
		QueryID: "q1",
		SQL:     "SELECT city, SUM(sales) AS total_sales FROM t GROUP BY city ORDER BY total_sales DESC LIMIT 5",
	}})

	res := results["q1"]
	require.True(t, res.Success, res.Error)
	require.LessOrEqual(t, len(res.Rows), 5)

	// sorted descending by total_sales
	for i := 1; i < len(res.Rows); i++ {
		prev := res.Rows[i-1]["total_sales"].(float64)
		cur := res.Rows[i]["total_sales"].(float64)
		assert.GreaterOrEqual(t, prev, cur)
	}
}

func TestFallbackAggregationMatchesDirectSums(t *testing.T) {
	rows := salesRows(40)
	want := map[string]float64{}
	for _, r := range rows {
		want[r["city"].(string)] += r["sales"].(float64)
	}

	d, err := dialect.Parse("SELECT city, SUM(sales) AS total FROM t GROUP BY city")
	require.NoError(t, err)
	got, err := AggregateRows(rows, d)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for _, r := range got {
		assert.Equal(t, want[r["city"].(string)], r["total"].(float64))
	}
}

func TestAggregateRowsFunctions(t *testing.T) {
	rows := []common.Row{
		{"g": "a", "v": 10.0},
		{"g": "a", "v": 30.0},
		{"g": "b", "v": 5.0},
		{"g": "b", "v": nil},
	}

	cases := []struct {
		sql   string
		check func(t *testing.T, out []common.Row)
	}{
		{"SELECT g, AVG(v) AS m FROM t GROUP BY g", func(t *testing.T, out []common.Row) {
			byG := indexBy(out, "g")
			assert.Equal(t, 20.0, byG["a"]["m"])
			assert.Equal(t, 5.0, byG["b"]["m"])
		}},
		{"SELECT g, COUNT(*) AS m FROM t GROUP BY g", func(t *testing.T, out []common.Row) {
			byG := indexBy(out, "g")
			assert.EqualValues(t, 2, byG["a"]["m"])
			assert.EqualValues(t, 2, byG["b"]["m"])
		}},
		{"SELECT g, MAX(v) AS m FROM t GROUP BY g", func(t *testing.T, out []common.Row) {
			byG := indexBy(out, "g")
			assert.Equal(t, 30.0, byG["a"]["m"])
		}},
		{"SELECT g, MIN(v) AS m FROM t GROUP BY g", func(t *testing.T, out []common.Row) {
			byG := indexBy(out, "g")
			assert.Equal(t, 10.0, byG["a"]["m"])
		}},
	}
	for _, tc := range cases {
		t.Run(tc.sql, func(t *testing.T) {
			d, err := dialect.Parse(tc.sql)
			require.NoError(t, err)
			out, err := AggregateRows(rows, d)
			require.NoError(t, err)
			tc.check(t, out)
		})
	}
}

func TestAggregateRowsNotNullFilter(t *testing.T) {
	rows := []common.Row{
		{"g": "a", "v": 1.0},
		{"g": nil, "v": 2.0},
		{"g": "b", "v": 3.0},
	}
	d, err := dialect.Parse("SELECT g, SUM(v) AS s FROM t WHERE g IS NOT NULL GROUP BY g")
	require.NoError(t, err)
	out, err := AggregateRows(rows, d)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestAggregateRowsNoGroupBy(t *testing.T) {
	rows := salesRows(4)
	d, err := dialect.Parse("SELECT SUM(sales) AS grand_total FROM t")
	require.NoError(t, err)
	out, err := AggregateRows(rows, d)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 10.0, out[0]["grand_total"])
}

func indexBy(rows []common.Row, key string) map[string]common.Row {
	out := make(map[string]common.Row, len(rows))
	for _, r := range rows {
		out[fmt.Sprintf("%v", r[key])] = r
	}
	return out
}
