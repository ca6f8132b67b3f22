// Package backend defines the data-access surface the pipeline consumes.
// Implementations may be thin (no server-side aggregation); callers must
// treat ErrAggregationUnsupported as a signal to aggregate client-side.
package backend

import (
	"context"
	"errors"

	"report_agent/internal/common"
	"report_agent/internal/dialect"
)

// ErrAggregationUnsupported is returned by Execute when the backend
// cannot run an aggregating query server-side.
var ErrAggregationUnsupported = errors.New("backend does not support server-side aggregation")

// TableStats is the per-table metadata a backend can report cheaply.
type TableStats struct {
	RowCount int64
}

// Backend is the data source the pipeline reads from.
type Backend interface {
	// ListTables returns the names of the queryable tables.
	ListTables(ctx context.Context) ([]string, error)

	// Sample fetches up to limit rows from table.
	Sample(ctx context.Context, table string, limit int) ([]common.Row, error)

	// Execute runs the described query. Aggregating descriptions may
	// fail with ErrAggregationUnsupported.
	Execute(ctx context.Context, d *dialect.Description) ([]common.Row, error)

	// Stats reports table metadata.
	Stats(ctx context.Context, table string) (TableStats, error)

	// EnsureData verifies the backend holds queryable data, running
	// any pending ingestion. Called before schema discovery when the
	// caller requests ingestion.
	EnsureData(ctx context.Context) error
}
