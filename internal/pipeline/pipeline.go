// Package pipeline drives one report run through a fixed sequence of
// stages. Stage failures degrade the state instead of aborting: the
// driver records the error and moves on, so every run reaches Done with
// a usable final response.
package pipeline

import (
	"context"
	"fmt"

	"report_agent/internal/analyzer"
	"report_agent/internal/backend"
	"report_agent/internal/common"
	"report_agent/internal/dialect"
	"report_agent/internal/events"
	"report_agent/internal/executor"
	"report_agent/internal/narrative"
	"report_agent/internal/planner"
	"report_agent/internal/report"
	"report_agent/internal/schema"
	"report_agent/internal/session"
	"report_agent/pkg/logger"
)

// Stage identifies one step of the run.
type Stage int

const (
	StageSchemaDiscovery Stage = iota
	StagePlanning
	StageSqlGeneration
	StageExecution
	StageResultAnalysis
	StageInsightSynthesis
	StageDone
)

var stageNames = map[Stage]string{
	StageSchemaDiscovery:  "SchemaDiscovery",
	StagePlanning:         "Planning",
	StageSqlGeneration:    "SqlGeneration",
	StageExecution:        "Execution",
	StageResultAnalysis:   "ResultAnalysis",
	StageInsightSynthesis: "InsightSynthesis",
	StageDone:             "Done",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// StageError records a contained stage failure.
type StageError struct {
	Stage   Stage
	Message string
}

// State is the single mutable object threaded through one run. It is
// owned by the coordinator and never shared across runs.
type State struct {
	RunID       string
	UserRequest string
	Ingest      bool

	Schema       *schema.Snapshot
	Plan         common.ExecutionPlan
	FallbackPlan bool
	// Translations maps query ids to the dialect error for queries the
	// translator rejected; queries absent from the map translated fine.
	Translations  map[string]string
	Results       map[string]common.QueryResult
	Metrics       map[string]common.MetricResult
	Narratives    common.NarrativeBundle
	Payload       *report.Payload
	FinalResponse string

	Stage       Stage
	StageErrors []StageError
}

// Coordinator wires the pipeline components. All collaborators are
// injected; the coordinator holds no globals.
type Coordinator struct {
	backend    backend.Backend
	schemas    *schema.Provider
	planner    *planner.Planner
	runner     *executor.Runner
	summarizer *analyzer.Summarizer
	narrator   *narrative.Synthesizer
	emitter    events.Emitter
	metrics    *logger.Metrics
}

// Deps lists the collaborators a Coordinator needs.
type Deps struct {
	Backend    backend.Backend
	Schemas    *schema.Provider
	Planner    *planner.Planner
	Runner     *executor.Runner
	Summarizer *analyzer.Summarizer
	Narrator   *narrative.Synthesizer
	Emitter    events.Emitter
	Metrics    *logger.Metrics
}

func New(deps Deps) *Coordinator {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Coordinator{
		backend:    deps.Backend,
		schemas:    deps.Schemas,
		planner:    deps.Planner,
		runner:     deps.Runner,
		summarizer: deps.Summarizer,
		narrator:   deps.Narrator,
		emitter:    emitter,
		metrics:    deps.Metrics,
	}
}

// Run executes the full pipeline for one request. It always returns a
// state with Stage == StageDone and a non-empty FinalResponse.
func (c *Coordinator) Run(ctx context.Context, userRequest string, ingest bool) *State {
	st := &State{
		RunID:       session.NewRunID(),
		UserRequest: userRequest,
		Ingest:      ingest,
		Schema:      &schema.Snapshot{},
	}

	runTimer := logger.NewTimer()
	stages := []struct {
		stage Stage
		fn    func(context.Context, *State) error
	}{
		{StageSchemaDiscovery, c.schemaDiscovery},
		{StagePlanning, c.planning},
		{StageSqlGeneration, c.sqlGeneration},
		{StageExecution, c.execution},
		{StageResultAnalysis, c.resultAnalysis},
		{StageInsightSynthesis, c.insightSynthesis},
	}

	for _, s := range stages {
		st.Stage = s.stage
		logger.Infof("[Pipeline] %s: stage %s", st.RunID, s.stage)
		c.metrics.Emit(logger.MetricsEvent{
			LogType: logger.LTStageStart,
			Phase:   logger.PhasePipeline,
			RunID:   st.RunID,
			Stage:   s.stage.String(),
		})

		timer := logger.NewTimer()
		if err := c.runStage(ctx, s.fn, st); err != nil {
			logger.Errorf("[Pipeline] %s: stage %s degraded: %v", st.RunID, s.stage, err)
			st.StageErrors = append(st.StageErrors, StageError{Stage: s.stage, Message: err.Error()})
			c.emitter.Emit(events.NewEvent(events.TypeStageError, st.RunID, events.ErrorData{
				Phase:   s.stage.String(),
				Message: err.Error(),
			}))
			c.metrics.Emit(logger.MetricsEvent{
				LogType:    logger.LTStageError,
				Phase:      logger.PhasePipeline,
				RunID:      st.RunID,
				Stage:      s.stage.String(),
				DurationMs: timer.ElapsedMs(),
				Error:      err.Error(),
			})
			continue
		}
		c.metrics.Emit(logger.MetricsEvent{
			LogType:    logger.LTStageEnd,
			Phase:      logger.PhasePipeline,
			RunID:      st.RunID,
			Stage:      s.stage.String(),
			DurationMs: timer.ElapsedMs(),
		})
	}

	st.Stage = StageDone
	st.FinalResponse = compileResponse(st)
	c.emitter.Emit(events.NewEvent(events.TypeReportGenerated, st.RunID, events.ReportData{
		Title:      st.Plan.ReportTitle,
		ContentLen: len(st.FinalResponse),
		Sections:   len(st.Plan.ReportSections),
		DurationMs: runTimer.ElapsedMs(),
	}))
	c.metrics.Emit(logger.MetricsEvent{
		LogType:    logger.LTRunDone,
		Phase:      logger.PhasePipeline,
		RunID:      st.RunID,
		DurationMs: runTimer.ElapsedMs(),
		Detail:     len(st.StageErrors),
	})
	return st
}

// runStage contains a stage's failure, including panics, at the stage
// boundary.
func (c *Coordinator) runStage(ctx context.Context, fn func(context.Context, *State) error, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panic: %v", r)
		}
	}()
	return fn(ctx, st)
}

func (c *Coordinator) schemaDiscovery(ctx context.Context, st *State) error {
	if st.Ingest {
		if err := c.backend.EnsureData(ctx); err != nil {
			return fmt.Errorf("ensure data: %w", err)
		}
	}
	snap, err := c.schemas.Snapshot(ctx)
	if err != nil {
		// backend unreachable; downstream stages degrade on the empty
		// snapshot and the final response carries the signal
		return err
	}
	st.Schema = snap
	return nil
}

func (c *Coordinator) planning(ctx context.Context, st *State) error {
	plan, fallback := c.planner.Plan(ctx, st.UserRequest, st.Schema)
	st.Plan = plan
	st.FallbackPlan = fallback
	return nil
}

// sqlGeneration validates every planned query against the dialect so
// untranslatable queries are known before execution.
func (c *Coordinator) sqlGeneration(_ context.Context, st *State) error {
	st.Translations = make(map[string]string)
	for _, q := range st.Plan.SQLQueries {
		if _, err := dialect.Parse(q.SQL); err != nil {
			logger.Warnf("[Pipeline] %s: query %s will not translate: %v", st.RunID, q.QueryID, err)
			st.Translations[q.QueryID] = err.Error()
		}
	}
	return nil
}

func (c *Coordinator) execution(ctx context.Context, st *State) error {
	st.Results = c.runner.Run(ctx, st.Plan.SQLQueries)
	return nil
}

func (c *Coordinator) resultAnalysis(_ context.Context, st *State) error {
	st.Metrics = c.summarizer.Summarize(st.Results, st.Plan.AnalysisTasks)
	return nil
}

func (c *Coordinator) insightSynthesis(ctx context.Context, st *State) error {
	st.Narratives = c.narrator.Synthesize(ctx, st.Plan, st.Results, st.Metrics, st.UserRequest)
	st.Payload = report.Build(st.Plan, st.Results, st.Metrics, st.Narratives)
	return nil
}
