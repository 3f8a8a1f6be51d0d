package events

import (
	"context"
	"time"
)

// QueryEvent describes one completed query, successful or not.
type QueryEvent struct {
	Query        string    `json:"query"`
	DataSourceID string    `json:"data_source_id,omitempty"`
	Path         string    `json:"path"` // exact, approximate, semantic
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Sink receives query lifecycle notifications. The router publishes to an
// explicit Sink passed at construction; there is no process-wide emitter.
type Sink interface {
	QueryCompleted(ctx context.Context, ev QueryEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) QueryCompleted(context.Context, QueryEvent) {}
