package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alitto/pond/v2"

	"report_agent/internal/backend"
	"report_agent/internal/common"
	"report_agent/internal/dialect"
	"report_agent/internal/events"
	"report_agent/pkg/logger"
)

const (
	// DefaultWorkers bounds concurrent query execution.
	DefaultWorkers = 4
	// DefaultFetchCap bounds the raw-row fetch backing fallback aggregation.
	DefaultFetchCap = 5000
	// SimpleCap is the hard row cap for simple fetches, enforced even
	// when the plan requests more.
	SimpleCap = 1000
)

// Runner executes every QuerySpec of a plan against the backend. It is
// total: each spec yields exactly one QueryResult, and a failed spec
// carries an error string instead of aborting its siblings.
type Runner struct {
	backend  backend.Backend
	emitter  events.Emitter
	metrics  *logger.Metrics
	workers  int
	fetchCap int
}

// Option tweaks Runner construction.
type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithFetchCap(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.fetchCap = n
		}
	}
}

func NewRunner(b backend.Backend, emitter events.Emitter, metrics *logger.Metrics, opts ...Option) *Runner {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	r := &Runner{
		backend:  b,
		emitter:  emitter,
		metrics:  metrics,
		workers:  DefaultWorkers,
		fetchCap: DefaultFetchCap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes all queries on a bounded worker pool and returns one
// result per query id. Results are keyed, so completion order never
// leaks into consumer order.
func (r *Runner) Run(ctx context.Context, queries []common.QuerySpec) map[string]common.QueryResult {
	results := make(map[string]common.QueryResult, len(queries))
	if len(queries) == 0 {
		return results
	}

	r.metrics.Emit(logger.MetricsEvent{
		LogType: logger.LTExecutorStart,
		Phase:   logger.PhaseExecutor,
		Detail:  len(queries),
	})
	timer := logger.NewTimer()

	var mu sync.Mutex
	pool := pond.NewPool(r.workers)
	for _, q := range queries {
		pool.Submit(func() {
			res := r.runOne(ctx, q)
			mu.Lock()
			results[q.QueryID] = res
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	r.metrics.Emit(logger.MetricsEvent{
		LogType:    logger.LTExecutorEnd,
		Phase:      logger.PhaseExecutor,
		DurationMs: timer.ElapsedMs(),
		Detail:     len(results),
	})
	return results
}

func (r *Runner) runOne(ctx context.Context, q common.QuerySpec) common.QueryResult {
	logger.Infof("[Runner] executing %s: %s", q.QueryID, common.TruncateStr(q.SQL, 80))
	timer := logger.NewTimer()

	desc, err := dialect.Parse(q.SQL)
	if err != nil {
		return r.failed(q, timer, fmt.Sprintf("query translation failed: %v", err))
	}
	if desc.ExtraAggregates {
		logger.Warnf("[Runner] %s has multiple aggregate expressions, only %s(%s) is honored",
			q.QueryID, desc.AggFunc, desc.AggColumn)
	}

	var rows []common.Row
	usedFallback := false
	switch desc.Kind {
	case dialect.KindAggregating:
		rows, err = r.backend.Execute(ctx, desc)
		if err != nil {
			logger.Warnf("[Runner] %s server-side aggregation failed, aggregating client-side: %v", q.QueryID, err)
			rows, err = r.fallbackAggregate(ctx, desc)
			usedFallback = true
		}
	default:
		if !desc.HasLimit || desc.Limit > SimpleCap {
			desc.Limit = SimpleCap
			desc.HasLimit = true
		}
		rows, err = r.backend.Execute(ctx, desc)
	}
	if err != nil {
		return r.failed(q, timer, err.Error())
	}

	res := common.QueryResult{
		QueryID: q.QueryID,
		Success: true,
		Rows:    rows,
		Columns: columnsOf(rows),
	}
	r.emitter.Emit(events.NewEvent(events.TypeQueryCompleted, "", events.QueryCompletedData{
		QueryID:  q.QueryID,
		Success:  true,
		RowCount: len(rows),
		Fallback: usedFallback,
	}))
	lt := logger.LTQueryCompleted
	if usedFallback {
		lt = logger.LTQueryFallbackAgg
	}
	r.metrics.Emit(logger.MetricsEvent{
		LogType:    lt,
		Phase:      logger.PhaseExecutor,
		QueryID:    q.QueryID,
		DurationMs: timer.ElapsedMs(),
		Detail:     len(rows),
	})
	return res
}

// fallbackAggregate fetches raw rows up to the cap and reproduces the
// aggregation in process.
func (r *Runner) fallbackAggregate(ctx context.Context, desc *dialect.Description) ([]common.Row, error) {
	raw, err := r.backend.Sample(ctx, desc.Table, r.fetchCap)
	if err != nil {
		return nil, fmt.Errorf("fallback fetch from %s: %w", desc.Table, err)
	}
	rows, err := AggregateRows(raw, desc)
	if err != nil {
		return nil, fmt.Errorf("fallback aggregation: %w", err)
	}
	return rows, nil
}

func (r *Runner) failed(q common.QuerySpec, timer *logger.Timer, msg string) common.QueryResult {
	logger.Errorf("[Runner] %s failed: %s", q.QueryID, msg)
	r.emitter.Emit(events.NewEvent(events.TypeQueryFailed, "", events.QueryCompletedData{
		QueryID: q.QueryID,
		Success: false,
		Error:   msg,
	}))
	r.metrics.Emit(logger.MetricsEvent{
		LogType:    logger.LTQueryFailed,
		Phase:      logger.PhaseExecutor,
		QueryID:    q.QueryID,
		DurationMs: timer.ElapsedMs(),
		Error:      msg,
	})
	return common.QueryResult{QueryID: q.QueryID, Success: false, Error: msg}
}

// columnsOf derives a deterministic column order from the first row.
func columnsOf(rows []common.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
