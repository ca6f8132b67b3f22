package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types for frontend consumption.
const (
	// Planner events
	TypePlanCreated  = "plan.created"
	TypePlanFallback = "plan.fallback"
	TypePlanError    = "plan.error"

	// Runner events
	TypeQueryCompleted = "query.completed"
	TypeQueryFailed    = "query.failed"

	// Analyzer events
	TypeAnalysisCompleted = "analysis.completed"

	// Narrative events
	TypeNarrativeGenerated = "narrative.generated"

	// Pipeline events
	TypeStageError      = "stage.error"
	TypeReportGenerated = "report.generated"

	// General
	TypeInfo  = "info"
	TypeError = "error"
)

// Event is the unified event structure sent to consumers (CLI printer, SSE endpoint, etc.).
// Data is a json.RawMessage so consumers can decode it based on Type.
type Event struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an Event, marshaling data to JSON. If marshaling fails, data is set to null.
func NewEvent(eventType string, runID string, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("null")
	}
	return Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      raw,
	}
}

// --- Typed event data structs (frontend-friendly JSON) ---

type PlanCreatedData struct {
	ReportTitle string      `json:"report_title"`
	Strategy    string      `json:"strategy"`
	Complexity  string      `json:"complexity"`
	Queries     []QueryInfo `json:"queries"`
	Fallback    bool        `json:"fallback"`
}

type QueryInfo struct {
	QueryID string `json:"query_id"`
	Purpose string `json:"purpose"`
}

type QueryCompletedData struct {
	QueryID  string `json:"query_id"`
	Success  bool   `json:"success"`
	RowCount int    `json:"row_count"`
	Error    string `json:"error,omitempty"`
	Fallback bool   `json:"fallback_aggregation,omitempty"`
}

type AnalysisCompletedData struct {
	TaskCount   int `json:"task_count"`
	MetricCount int `json:"metric_count"`
}

type NarrativeGeneratedData struct {
	Topic       string `json:"topic"`
	Placeholder bool   `json:"placeholder"`
}

type ReportData struct {
	Title      string `json:"title"`
	ContentLen int    `json:"content_length"`
	Sections   int    `json:"sections"`
	DurationMs int64  `json:"duration_ms"`
}

type ErrorData struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	QueryID string `json:"query_id,omitempty"`
}

type InfoData struct {
	Message string `json:"message"`
}

// --- Emitter interface and channel-based implementation ---

// Emitter is the interface for publishing events. Implementations may push to a channel,
// write to ES, or stream via SSE.
type Emitter interface {
	Emit(event Event)
	Subscribe() <-chan Event
	Close()
}

// ChannelEmitter is a buffered channel-based Emitter.
type ChannelEmitter struct {
	ch     chan Event
	subs   []chan Event
	mu     sync.RWMutex
	closed bool
}

// NewChannelEmitter creates a new emitter with the given buffer size.
func NewChannelEmitter(bufSize int) *ChannelEmitter {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &ChannelEmitter{
		ch: make(chan Event, bufSize),
	}
}

// Emit publishes an event to all subscribers. Non-blocking: drops if subscriber is full.
func (e *ChannelEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, sub := range e.subs {
		select {
		case sub <- event:
		default:
			// drop if subscriber can't keep up
		}
	}
}

// Subscribe returns a channel that receives all emitted events.
func (e *ChannelEmitter) Subscribe() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, 256)
	e.subs = append(e.subs, ch)
	return ch
}

// Close closes all subscriber channels.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, sub := range e.subs {
		close(sub)
	}
}

// NopEmitter is a no-op emitter for when event reporting is not needed.
type NopEmitter struct{}

func (NopEmitter) Emit(Event)              {}
func (NopEmitter) Subscribe() <-chan Event { return make(chan Event) }
func (NopEmitter) Close()                  {}
