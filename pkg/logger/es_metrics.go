package logger

import (
	"time"

	"github.com/elastic/go-elasticsearch/v7"
)

const (
	MetricsIndex = "report_agent_logs"

	// Pipeline phases
	PhasePlanner   = "planner"
	PhaseExecutor  = "executor"
	PhaseAnalyzer  = "analyzer"
	PhaseNarrative = "narrative"
	PhasePipeline  = "pipeline"

	// LogType constants identify the emitting site for ES filtering.
	// Planner
	LTPlannerRawOutput = "planner.raw_output" // raw LLM plan response
	LTPlannerParsed    = "planner.plan_parsed"
	LTPlannerFallback  = "planner.fallback"
	LTPlannerError     = "planner.error"

	// Executor
	LTExecutorStart    = "executor.start"
	LTExecutorEnd      = "executor.end"
	LTQueryCompleted   = "executor.query_completed"
	LTQueryFailed      = "executor.query_failed"
	LTQueryFallbackAgg = "executor.fallback_aggregation"

	// Analyzer
	LTAnalysisCompleted = "analyzer.task_completed"
	LTAnalysisSkipped   = "analyzer.task_skipped"
	LTAnalysisFallback  = "analyzer.fallback_kpi"

	// Narrative
	LTNarrativeTopic = "narrative.topic_generated"
	LTNarrativeError = "narrative.topic_error"

	// Pipeline
	LTStageStart = "pipeline.stage_start"
	LTStageEnd   = "pipeline.stage_end"
	LTStageError = "pipeline.stage_error"
	LTRunDone    = "pipeline.run_done"
)

// MetricsEvent is the telemetry document written to ES.
type MetricsEvent struct {
	Timestamp  time.Time   `json:"@timestamp"`
	LogType    string      `json:"log_type"`
	Phase      string      `json:"phase"`
	Event      string      `json:"event"`
	RunID      string      `json:"run_id,omitempty"`
	Stage      string      `json:"stage,omitempty"`
	QueryID    string      `json:"query_id,omitempty"`
	Topic      string      `json:"topic,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
	Error      string      `json:"error,omitempty"`
	Input      interface{} `json:"input,omitempty"`
	Output     interface{} `json:"output,omitempty"`
	Detail     interface{} `json:"detail,omitempty"`
}

// Metrics ships telemetry events to ES.
type Metrics struct {
	es    *elasticsearch.Client
	index string
}

// NewMetrics creates the emitter; with a nil client every emit is a
// silent no-op, so callers never guard their call sites.
func NewMetrics(es *elasticsearch.Client) *Metrics {
	return &Metrics{es: es, index: MetricsIndex}
}

// ESClient exposes the underlying client for callers that attach their
// own log sinks (graph callbacks, event consumers). Nil-safe.
func (m *Metrics) ESClient() *elasticsearch.Client {
	if m == nil {
		return nil
	}
	return m.es
}

// Emit ships one event; a failure only warns and never blocks the run.
func (m *Metrics) Emit(evt MetricsEvent) {
	if m == nil || m.es == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	logType := evt.LogType
	if logType == "" {
		logType = evt.Phase + "." + evt.Event
	}
	if err := SendWrappedLog(m.es, m.index, logType, evt); err != nil {
		Warnf("[Metrics] ES write failed (log_type=%s): %v", logType, err)
	}
}

// Timer measures elapsed time for telemetry.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ElapsedMs() int64 {
	return time.Since(t.start).Milliseconds()
}
