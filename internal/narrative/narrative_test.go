package narrative

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report_agent/internal/common"
	"report_agent/internal/events"
	"report_agent/pkg/logger"
)

// topicOracle answers per topic keyword and can fail selected topics.
type topicOracle struct {
	mu        sync.Mutex
	failWhen  string
	responses map[string]string
	calls     int
}

func (o *topicOracle) Complete(_ context.Context, prompt string) (string, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	if o.failWhen != "" && strings.Contains(prompt, o.failWhen) {
		return "", errors.New("oracle timeout")
	}
	for marker, resp := range o.responses {
		if strings.Contains(prompt, marker) {
			return resp, nil
		}
	}
	return "Generated narrative text.", nil
}

func testPlan() common.ExecutionPlan {
	return common.ExecutionPlan{
		ReportTitle: "Sales Report",
		ReportSections: []common.SectionSpec{
			{SectionID: "s1", Title: "Country Performance", KeyInsight: "US leads"},
			{SectionID: "s2", Title: "Risks", KeyInsight: "Concentration"},
		},
	}
}

func testResults() map[string]common.QueryResult {
	return map[string]common.QueryResult{"q1": {
		QueryID: "q1", Success: true,
		Columns: []string{"country", "total_sales"},
		Rows: []common.Row{
			{"country": "US", "total_sales": 100.0},
			{"country": "CA", "total_sales": 50.0},
		},
	}}
}

func testMetrics() map[string]common.MetricResult {
	return map[string]common.MetricResult{
		"total": {Metric: "Total Sales", Value: 150.0, Formatted: "$150.00"},
	}
}

func newSynth(o *topicOracle) *Synthesizer {
	return NewSynthesizer(o, events.NopEmitter{}, logger.NewMetrics(nil), WithWorkers(2))
}

func TestSynthesizeCoversAllTopics(t *testing.T) {
	o := &topicOracle{}
	bundle := newSynth(o).Synthesize(context.Background(), testPlan(), testResults(), testMetrics(), "how are sales")

	for _, topic := range []string{
		common.TopicExecutiveSummary,
		common.TopicDataOverview,
		common.TopicProblems,
		common.TopicNextSteps,
		"s1", "s2",
	} {
		assert.Contains(t, bundle, topic)
		assert.NotEmpty(t, bundle[topic])
	}
	assert.Equal(t, 6, o.calls)
}

func TestTopicFailureIsIsolated(t *testing.T) {
	// the s1 section prompt contains its title, which we use to fail it
	o := &topicOracle{failWhen: "Country Performance"}
	bundle := newSynth(o).Synthesize(context.Background(), testPlan(), testResults(), testMetrics(), "how are sales")

	assert.Equal(t, Placeholder("s1"), bundle["s1"])
	assert.NotEqual(t, Placeholder("s2"), bundle["s2"])
	assert.NotEqual(t, Placeholder(common.TopicExecutiveSummary), bundle[common.TopicExecutiveSummary])
}

func TestAllTopicsFailYieldsPlaceholders(t *testing.T) {
	o := &topicOracle{failWhen: "# Task"}
	bundle := newSynth(o).Synthesize(context.Background(), testPlan(), testResults(), testMetrics(), "x")
	require.Len(t, bundle, 6)
	for topic, text := range bundle {
		assert.Equal(t, Placeholder(topic), text)
	}
}

func TestBuildContextListsFiguresAndFailures(t *testing.T) {
	results := testResults()
	results["q2"] = common.QueryResult{QueryID: "q2", Success: false, Error: "connection refused"}

	ctx := BuildContext(results, testMetrics())
	assert.Contains(t, ctx, "q1: 2 rows, 2 columns")
	assert.Contains(t, ctx, "q2: failed (connection refused)")
	assert.Contains(t, ctx, "total_sales: min 50.00, max 100.00, mean 75.00")
	assert.Contains(t, ctx, "Total Sales: $150.00")
}

func TestTrimToBudget(t *testing.T) {
	long := strings.Repeat("sales figures and revenue numbers ", 500)
	trimmed := TrimToBudget(long, 50)
	assert.Less(t, len(trimmed), len(long))
	assert.True(t, strings.HasSuffix(trimmed, "(truncated)"))

	short := "short text"
	assert.Equal(t, short, TrimToBudget(short, 50))
}
