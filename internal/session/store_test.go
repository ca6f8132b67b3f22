package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report_agent/internal/common"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)

	run := &Run{
		ID:          NewRunID(),
		UserRequest: "how are sales by country",
		Plan: common.ExecutionPlan{
			ReportTitle: "Sales by Country",
			SQLQueries:  []common.QuerySpec{{QueryID: "q1", SQL: "SELECT 1"}},
		},
		FinalResponse: "the report",
		MetricCount:   4,
		FallbackPlan:  true,
		CreatedAt:     time.Now().UTC(),
		Queries: []QueryRecord{
			{QueryID: "q1", Purpose: "aggregate", Success: true, RowCount: 3},
			{QueryID: "q2", Purpose: "broken", Success: false, Error: "boom"},
		},
	}
	require.NoError(t, s.SaveRun(run))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.UserRequest, got.UserRequest)
	assert.Equal(t, "Sales by Country", got.Plan.ReportTitle)
	assert.Equal(t, 4, got.MetricCount)
	assert.True(t, got.FallbackPlan)
	require.Len(t, got.Queries, 2)
	assert.True(t, got.Queries[0].Success)
	assert.Equal(t, "boom", got.Queries[1].Error)
}

func TestListAndCount(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveRun(&Run{
			ID:          NewRunID(),
			UserRequest: "r",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	count, err := s.RunCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = s.GetRun("does-not-exist")
	assert.Error(t, err)
}
