package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"report_agent/internal/common"
	"report_agent/internal/events"
	"report_agent/internal/oracle"
	"report_agent/internal/prompts"
	dbschema "report_agent/internal/schema"
	"report_agent/pkg/logger"
)

// Planner produces an ExecutionPlan from a user request and a schema
// snapshot. The oracle is called at most once; any failure along the
// prompt → model → parse path yields the deterministic fallback plan,
// so Plan never returns an invalid plan and never returns an error.
type Planner struct {
	graph    compose.Runnable[map[string]any, common.ExecutionPlan]
	emitter  events.Emitter
	metrics  *logger.Metrics
	callback *logger.LoggerCallback
}

// New builds the planner graph: prompt → oracle → parse.
func New(ctx context.Context, client oracle.Client, emitter events.Emitter, metrics *logger.Metrics) (*Planner, error) {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}

	plannerPrompt, err := prompts.GetSinglePrompt("planner")
	if err != nil {
		return nil, fmt.Errorf("load planner prompt: %w", err)
	}

	tpl := prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(plannerPrompt),
		schema.UserMessage("# Database schema\n\n{{.schema_block}}\n\n# Business question\n\n{{.user_request}}"),
	)

	oracleLambda := compose.InvokableLambda(func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
		timer := logger.NewTimer()
		out, err := client.Complete(ctx, flattenMessages(in))
		elapsed := timer.ElapsedMs()
		if err != nil {
			logger.Errorf("[Planner] oracle error after %dms: %v", elapsed, err)
			return nil, err
		}
		logger.Infof("[Planner] oracle output (%dms): %s", elapsed, common.TruncateStr(out, 500))
		metrics.Emit(logger.MetricsEvent{
			LogType:    logger.LTPlannerRawOutput,
			Phase:      logger.PhasePlanner,
			DurationMs: elapsed,
			Output:     common.TruncateStr(out, 2000),
		})
		return schema.AssistantMessage(out, nil), nil
	})

	parseLambda := compose.InvokableLambda(func(ctx context.Context, input *schema.Message) (common.ExecutionPlan, error) {
		var plan common.ExecutionPlan
		str, err := common.ExtractJSON(input.Content)
		if err != nil {
			return common.ExecutionPlan{}, fmt.Errorf("extract json from planner output: %w", err)
		}
		if err := json.Unmarshal([]byte(str), &plan); err != nil {
			return common.ExecutionPlan{}, fmt.Errorf("unmarshal plan: %w | content: %s", err, common.TruncateStr(input.Content, 1000))
		}
		if err := Validate(&plan); err != nil {
			return common.ExecutionPlan{}, fmt.Errorf("validate plan: %w", err)
		}
		logger.Infof("[Planner] plan parsed: %d queries, %d sections", len(plan.SQLQueries), len(plan.ReportSections))
		return plan, nil
	})

	g := compose.NewGraph[map[string]any, common.ExecutionPlan]()
	_ = g.AddChatTemplateNode("planner-prompt", tpl)
	_ = g.AddLambdaNode("planner-oracle", oracleLambda)
	_ = g.AddLambdaNode("planner-parse", parseLambda)
	_ = g.AddEdge(compose.START, "planner-prompt")
	_ = g.AddEdge("planner-prompt", "planner-oracle")
	_ = g.AddEdge("planner-oracle", "planner-parse")
	_ = g.AddEdge("planner-parse", compose.END)

	compiled, err := g.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile planner graph: %w", err)
	}

	return &Planner{
		graph:    compiled,
		emitter:  emitter,
		metrics:  metrics,
		callback: &logger.LoggerCallback{Es: metrics.ESClient()},
	}, nil
}

// Plan runs the planner graph once. On any failure it substitutes the
// deterministic fallback plan; the returned bool reports whether the
// fallback was used.
func (p *Planner) Plan(ctx context.Context, userRequest string, snap *dbschema.Snapshot) (common.ExecutionPlan, bool) {
	templateVars := map[string]any{
		"user_request": userRequest,
		"schema_block": snap.Describe(),
	}

	plan, err := p.graph.Invoke(ctx, templateVars, compose.WithCallbacks(p.callback))
	if err != nil {
		logger.Warnf("[Planner] oracle planning failed, using fallback plan: %v", err)
		p.emitter.Emit(events.NewEvent(events.TypePlanError, "", events.ErrorData{
			Phase:   "planner",
			Message: err.Error(),
		}))
		p.metrics.Emit(logger.MetricsEvent{
			LogType: logger.LTPlannerError,
			Phase:   logger.PhasePlanner,
			Error:   err.Error(),
		})

		plan = FallbackPlan(userRequest, snap)
		p.emitter.Emit(events.NewEvent(events.TypePlanFallback, "", planCreatedData(plan, true)))
		p.metrics.Emit(logger.MetricsEvent{
			LogType: logger.LTPlannerFallback,
			Phase:   logger.PhasePlanner,
			Detail:  plan.ReportTitle,
		})
		return plan, true
	}

	p.emitter.Emit(events.NewEvent(events.TypePlanCreated, "", planCreatedData(plan, false)))
	p.metrics.Emit(logger.MetricsEvent{
		LogType: logger.LTPlannerParsed,
		Phase:   logger.PhasePlanner,
		Output:  planCreatedData(plan, false),
	})
	return plan, false
}

// Validate enforces the plan invariants: sql_queries non-empty with
// usable query text, ids filled in, complexity coerced to medium when
// absent or unknown.
func Validate(plan *common.ExecutionPlan) error {
	if len(plan.SQLQueries) == 0 {
		return fmt.Errorf("plan has no sql_queries")
	}
	seen := make(map[string]bool, len(plan.SQLQueries))
	for i := range plan.SQLQueries {
		q := &plan.SQLQueries[i]
		if strings.TrimSpace(q.SQL) == "" {
			return fmt.Errorf("query %d has empty sql", i+1)
		}
		if q.QueryID == "" || seen[q.QueryID] {
			q.QueryID = fmt.Sprintf("q%d", i+1)
		}
		seen[q.QueryID] = true
	}
	if !plan.EstimatedComplexity.Valid() {
		plan.EstimatedComplexity = common.ComplexityMedium
	}
	if plan.ReportTitle == "" {
		plan.ReportTitle = "Data Analysis Report"
	}
	return nil
}

func planCreatedData(plan common.ExecutionPlan, fallback bool) events.PlanCreatedData {
	queries := make([]events.QueryInfo, len(plan.SQLQueries))
	for i, q := range plan.SQLQueries {
		queries[i] = events.QueryInfo{QueryID: q.QueryID, Purpose: q.Purpose}
	}
	return events.PlanCreatedData{
		ReportTitle: plan.ReportTitle,
		Strategy:    plan.AnalysisStrategy,
		Complexity:  string(plan.EstimatedComplexity),
		Queries:     queries,
		Fallback:    fallback,
	}
}

func flattenMessages(msgs []*schema.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}
