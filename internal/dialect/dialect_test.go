package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimple(t *testing.T) {
	d, err := Parse(`SELECT * FROM orders LIMIT 50`)
	require.NoError(t, err)
	assert.Equal(t, KindSimple, d.Kind)
	assert.Equal(t, "orders", d.Table)
	assert.Equal(t, 50, d.Limit)
	assert.True(t, d.HasLimit)

	d, err = Parse(`SELECT name, city FROM "customers"`)
	require.NoError(t, err)
	assert.Equal(t, "customers", d.Table)
	assert.Zero(t, d.Limit)
	assert.False(t, d.HasLimit)
}

func TestParseLimitZero(t *testing.T) {
	// LIMIT 0 is an explicit bound, not an absent clause
	d, err := Parse(`SELECT * FROM orders LIMIT 0`)
	require.NoError(t, err)
	assert.Zero(t, d.Limit)
	assert.True(t, d.HasLimit)
	assert.Equal(t, "SELECT * FROM orders LIMIT 0", d.BuildSQL())
}

func TestParseAggregating(t *testing.T) {
	d, err := Parse(`SELECT city, SUM(sales) AS total_sales FROM t WHERE city IS NOT NULL GROUP BY city ORDER BY total_sales DESC LIMIT 5`)
	require.NoError(t, err)
	assert.Equal(t, KindAggregating, d.Kind)
	assert.Equal(t, "t", d.Table)
	assert.Equal(t, "SUM", d.AggFunc)
	assert.Equal(t, "sales", d.AggColumn)
	assert.Equal(t, "total_sales", d.AggAlias)
	assert.Equal(t, []string{"city"}, d.GroupBy)
	assert.Equal(t, "city", d.NotNullColumn)
	assert.Equal(t, "total_sales", d.OrderBy)
	assert.True(t, d.OrderDesc)
	assert.Equal(t, 5, d.Limit)
	assert.False(t, d.ExtraAggregates)
}

func TestParseTwoGroupColumns(t *testing.T) {
	d, err := Parse(`SELECT country, year_id, AVG(price) AS avg_price FROM sales GROUP BY country, year_id`)
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "year_id"}, d.GroupBy)
	assert.Equal(t, "AVG", d.AggFunc)
}

func TestParseCountStar(t *testing.T) {
	d, err := Parse(`SELECT country, COUNT(*) AS n FROM sales GROUP BY country`)
	require.NoError(t, err)
	assert.Equal(t, "COUNT", d.AggFunc)
	assert.Equal(t, "*", d.AggColumn)
	assert.Equal(t, "n", d.AggAlias)
}

func TestParseFlagsExtraAggregates(t *testing.T) {
	d, err := Parse(`SELECT country, SUM(sales) AS total, AVG(sales) AS average FROM t GROUP BY country`)
	require.NoError(t, err)
	assert.True(t, d.ExtraAggregates)
	assert.Equal(t, "SUM", d.AggFunc)
	assert.Equal(t, "total", d.AggAlias)
}

func TestParseUnsupported(t *testing.T) {
	_, err := Parse(`SELECT country, SUM(sales) FROM t GROUP BY country HAVING SUM(sales) > 1`)
	// aggregate without alias is outside the subset
	assert.ErrorIs(t, err, ErrUnsupportedQuery)

	_, err = Parse(`PRAGMA table_info(x)`)
	assert.ErrorIs(t, err, ErrUnsupportedQuery)

	// a third group column would be dropped silently; rejected instead
	_, err = Parse(`SELECT a, b, c, SUM(v) AS total FROM t GROUP BY a, b, c`)
	assert.ErrorIs(t, err, ErrUnsupportedQuery)
}

func TestIsAggregating(t *testing.T) {
	assert.True(t, IsAggregating("select count(*) from t"))
	assert.True(t, IsAggregating("SELECT a FROM t GROUP BY a"))
	assert.False(t, IsAggregating("SELECT a, b FROM t WHERE a > 1"))
}

func TestBuildSQL(t *testing.T) {
	d, err := Parse(`SELECT city, SUM(sales) AS total FROM shop WHERE sales IS NOT NULL GROUP BY city ORDER BY total DESC LIMIT 10`)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT city, SUM(sales) AS total FROM shop WHERE sales IS NOT NULL GROUP BY city ORDER BY total DESC LIMIT 10",
		d.BuildSQL())

	d, err = Parse(`SELECT * FROM shop`)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM shop LIMIT 1000", d.BuildSQL())
}
