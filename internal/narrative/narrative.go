// Package narrative generates the prose sections of the report, one
// isolated oracle call per topic. A failed topic degrades to a fixed
// placeholder without touching its siblings.
package narrative

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"

	"report_agent/internal/common"
	"report_agent/internal/events"
	"report_agent/internal/oracle"
	"report_agent/internal/prompts"
	"report_agent/pkg/logger"
)

const (
	// DefaultWorkers bounds concurrent topic generation.
	DefaultWorkers = 3
	// DefaultContextTokens caps the data-context block per prompt.
	DefaultContextTokens = 3000
)

// topicInstructions drive the fixed topics; report sections get their
// instruction built from the section spec.
var topicInstructions = map[string]string{
	common.TopicExecutiveSummary: "Write a 3-4 sentence executive summary of overall performance, leading with the most important totals.",
	common.TopicDataOverview:     "Describe the shape of the analyzed data: which datasets were produced, their sizes, and what they cover.",
	common.TopicProblems:         "Point out weaknesses, risks or anomalies visible in the figures. If nothing stands out, say the data shows no obvious problems.",
	common.TopicNextSteps:        "Recommend 2-3 concrete follow-up actions grounded in the figures, as short imperative sentences.",
}

// Synthesizer fans topics out over a bounded pool and assembles the
// NarrativeBundle.
type Synthesizer struct {
	client        oracle.Client
	emitter       events.Emitter
	metrics       *logger.Metrics
	workers       int
	contextBudget int
}

type Option func(*Synthesizer)

func WithWorkers(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithContextBudget(tokens int) Option {
	return func(s *Synthesizer) {
		if tokens > 0 {
			s.contextBudget = tokens
		}
	}
}

func NewSynthesizer(client oracle.Client, emitter events.Emitter, metrics *logger.Metrics, opts ...Option) *Synthesizer {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	s := &Synthesizer{
		client:        client,
		emitter:       emitter,
		metrics:       metrics,
		workers:       DefaultWorkers,
		contextBudget: DefaultContextTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Placeholder is the fixed text substituted for a topic whose oracle
// call failed.
func Placeholder(topic string) string {
	return fmt.Sprintf("[This part of the report could not be generated (%s). The underlying figures remain available in the data tables.]", topic)
}

// Synthesize generates the fixed topics plus one narrative per report
// section. Every topic is independent: one oracle call, no retry, and a
// placeholder on failure.
func (s *Synthesizer) Synthesize(ctx context.Context, plan common.ExecutionPlan,
	results map[string]common.QueryResult, metricResults map[string]common.MetricResult,
	userRequest string) common.NarrativeBundle {

	scaffold, err := prompts.GetSinglePrompt("narrative")
	if err != nil {
		logger.Errorf("[Narrative] narrative prompt missing: %v", err)
		scaffold = ""
	}
	dataContext := TrimToBudget(BuildContext(results, metricResults), s.contextBudget)
	planOverview := common.FormatPlanOverview(plan)

	type job struct {
		topic       string
		instruction string
	}
	jobs := []job{
		{common.TopicExecutiveSummary, topicInstructions[common.TopicExecutiveSummary]},
		{common.TopicDataOverview, topicInstructions[common.TopicDataOverview]},
		{common.TopicProblems, topicInstructions[common.TopicProblems]},
	}
	for _, sec := range plan.ReportSections {
		jobs = append(jobs, job{
			topic: sec.SectionID,
			instruction: fmt.Sprintf(
				"Write the body of the report section titled %q. The key insight to land: %s.",
				sec.Title, sec.KeyInsight),
		})
	}
	jobs = append(jobs, job{common.TopicNextSteps, topicInstructions[common.TopicNextSteps]})

	bundle := make(common.NarrativeBundle, len(jobs))
	var mu sync.Mutex
	pool := pond.NewPool(s.workers)
	for _, j := range jobs {
		pool.Submit(func() {
			text := s.generateTopic(ctx, scaffold, j.topic, j.instruction, planOverview, dataContext, userRequest)
			mu.Lock()
			bundle[j.topic] = text
			mu.Unlock()
		})
	}
	pool.StopAndWait()
	return bundle
}

// generateTopic issues exactly one oracle call for one topic.
func (s *Synthesizer) generateTopic(ctx context.Context, scaffold, topic, instruction, planOverview, dataContext, userRequest string) string {
	var sb strings.Builder
	sb.WriteString(scaffold)
	sb.WriteString("\n\n# Task\n\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\n# Original business question\n\n")
	sb.WriteString(userRequest)
	sb.WriteString("\n\n# Analysis plan\n\n")
	sb.WriteString(planOverview)
	sb.WriteString("\n\n# Data context\n\n")
	sb.WriteString(dataContext)

	timer := logger.NewTimer()
	text, err := s.client.Complete(ctx, sb.String())
	if err != nil || strings.TrimSpace(text) == "" {
		if err == nil {
			err = fmt.Errorf("empty response")
		}
		logger.Warnf("[Narrative] topic %s failed, using placeholder: %v", topic, err)
		s.emitter.Emit(events.NewEvent(events.TypeNarrativeGenerated, "", events.NarrativeGeneratedData{
			Topic:       topic,
			Placeholder: true,
		}))
		s.metrics.Emit(logger.MetricsEvent{
			LogType:    logger.LTNarrativeError,
			Phase:      logger.PhaseNarrative,
			Topic:      topic,
			DurationMs: timer.ElapsedMs(),
			Error:      err.Error(),
		})
		return Placeholder(topic)
	}

	s.emitter.Emit(events.NewEvent(events.TypeNarrativeGenerated, "", events.NarrativeGeneratedData{Topic: topic}))
	s.metrics.Emit(logger.MetricsEvent{
		LogType:    logger.LTNarrativeTopic,
		Phase:      logger.PhaseNarrative,
		Topic:      topic,
		DurationMs: timer.ElapsedMs(),
		Detail:     len(text),
	})
	return strings.TrimSpace(text)
}
