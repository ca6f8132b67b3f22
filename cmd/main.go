package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7"

	"report_agent/internal/analyzer"
	"report_agent/internal/backend"
	"report_agent/internal/config"
	"report_agent/internal/events"
	"report_agent/internal/executor"
	"report_agent/internal/narrative"
	"report_agent/internal/oracle"
	"report_agent/internal/pipeline"
	"report_agent/internal/planner"
	"report_agent/internal/schema"
	"report_agent/internal/session"
	"report_agent/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	args := os.Args[1:]
	ingest := false
	if len(args) > 0 && args[0] == "--ingest" {
		ingest = true
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: report_agent [--ingest] <business question>")
		os.Exit(2)
	}
	question := strings.Join(args, " ")

	be, err := backend.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		logger.Fatalf("open data backend: %v", err)
	}
	defer be.Close()

	store, err := session.OpenStore(cfg.StorePath)
	if err != nil {
		logger.Fatalf("open run store: %v", err)
	}
	defer store.Close()

	client, err := oracle.NewOpenAIClient(ctx, oracle.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		logger.Fatalf("create oracle client: %v", err)
	}

	emitter := events.NewChannelEmitter(256)
	defer emitter.Close()
	printEvents(emitter)

	var metrics *logger.Metrics
	if addrs := cfg.ESAddressList(); len(addrs) > 0 {
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: addrs,
			Username:  cfg.ESUsername,
			Password:  cfg.ESPassword,
		})
		if err != nil {
			logger.Warnf("ES client unavailable, telemetry disabled: %v", err)
		} else {
			metrics = logger.NewMetrics(esClient)
			events.NewESConsumer(esClient, "").Start(emitter)
		}
	}

	pl, err := planner.New(ctx, client, emitter, metrics)
	if err != nil {
		logger.Fatalf("build planner: %v", err)
	}

	coord := pipeline.New(pipeline.Deps{
		Backend: be,
		Schemas: schema.NewProvider(be, cfg.SampleLimit),
		Planner: pl,
		Runner: executor.NewRunner(be, emitter, metrics,
			executor.WithWorkers(cfg.QueryWorkers),
			executor.WithFetchCap(cfg.FetchCap)),
		Summarizer: analyzer.NewSummarizer(emitter, metrics),
		Narrator: narrative.NewSynthesizer(client, emitter, metrics,
			narrative.WithWorkers(cfg.NarrativeWorkers),
			narrative.WithContextBudget(cfg.ContextTokens)),
		Emitter: emitter,
		Metrics: metrics,
	})

	st := coord.Run(ctx, question, ingest)

	fmt.Println(st.FinalResponse)

	if err := store.SaveRun(runRecord(st)); err != nil {
		logger.Warnf("persist run %s: %v", st.RunID, err)
	}
	logger.Infof("run %s saved (%d metrics, %d stage errors)",
		st.RunID, len(st.Metrics), len(st.StageErrors))
}

// printEvents mirrors pipeline progress onto the console so a CLI user
// sees movement while the model calls are in flight.
func printEvents(emitter events.Emitter) {
	ch := emitter.Subscribe()
	go func() {
		for evt := range ch {
			switch evt.Type {
			case events.TypePlanCreated, events.TypePlanFallback,
				events.TypeQueryCompleted, events.TypeQueryFailed,
				events.TypeNarrativeGenerated, events.TypeStageError:
				logger.Infof("[%s] %s", evt.Type, string(evt.Data))
			}
		}
	}()
}

func runRecord(st *pipeline.State) *session.Run {
	run := &session.Run{
		ID:            st.RunID,
		UserRequest:   st.UserRequest,
		Plan:          st.Plan,
		FinalResponse: st.FinalResponse,
		MetricCount:   len(st.Metrics),
		FallbackPlan:  st.FallbackPlan,
		CreatedAt:     time.Now().UTC(),
	}
	for _, q := range st.Plan.SQLQueries {
		res := st.Results[q.QueryID]
		run.Queries = append(run.Queries, session.QueryRecord{
			QueryID:  q.QueryID,
			Purpose:  q.Purpose,
			Success:  res.Success,
			RowCount: len(res.Rows),
			Error:    res.Error,
		})
	}
	return run
}
