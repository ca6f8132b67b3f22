package session

import (
	"time"

	"github.com/google/uuid"

	"report_agent/internal/common"
)

// Run is one persisted pipeline execution.
type Run struct {
	ID            string
	UserRequest   string
	Plan          common.ExecutionPlan
	FinalResponse string
	MetricCount   int
	FallbackPlan  bool
	CreatedAt     time.Time
	Queries       []QueryRecord
}

// QueryRecord is the per-query outcome stored alongside a run.
type QueryRecord struct {
	QueryID  string
	Purpose  string
	Success  bool
	RowCount int
	Error    string
}

// NewRunID mints a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}
