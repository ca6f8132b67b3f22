package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  string
		isErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"surrounding prose", "Here is the plan:\n{\"a\":1}\nDone.", `{"a":1}`, false},
		{"no object", "sorry, I cannot help", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			if tc.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFlexStringsUnmarshal(t *testing.T) {
	var fs FlexStrings
	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &fs))
	assert.Equal(t, FlexStrings{"a", "b"}, fs)

	require.NoError(t, json.Unmarshal([]byte(`"a, b ,c"`), &fs))
	assert.Equal(t, FlexStrings{"a", "b", "c"}, fs)
}

func TestFlexStringUnmarshal(t *testing.T) {
	var f FlexString
	require.NoError(t, json.Unmarshal([]byte(`["x","y"]`), &f))
	assert.Equal(t, "x\ny", f.String())
}

func TestExecutionPlanDecode(t *testing.T) {
	raw := `{
		"report_title": "Sales Report",
		"estimated_complexity": "medium",
		"sql_queries": [{"query_id":"q1","sql":"SELECT 1","purpose":"probe","expected_columns":"a,b"}],
		"report_sections": [{"section_id":"s1","title":"Overview","content":["visualization:v1"],"key_insight":"none"}]
	}`
	var p ExecutionPlan
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.True(t, p.EstimatedComplexity.Valid())
	require.Len(t, p.SQLQueries, 1)
	assert.Equal(t, FlexStrings{"a", "b"}, p.SQLQueries[0].ExpectedColumns)
	require.Len(t, p.ReportSections, 1)
	assert.Equal(t, FlexStrings{"visualization:v1"}, p.ReportSections[0].Content)
}

func TestTruncateStr(t *testing.T) {
	assert.Equal(t, "abc", TruncateStr("abc", 5))
	assert.Equal(t, "abcde...", TruncateStr("abcdefgh", 5))
}
