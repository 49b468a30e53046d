package query

import (
	"context"
	"sync"
	"time"

	"github.com/filmgraph/backend/pkg/logger"
)

type TraceEventKind string

const (
	TraceEventStatement TraceEventKind = "statement"
	TraceEventQueryRun  TraceEventKind = "query_run"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`

	Query      string  `json:"query,omitempty"`
	Adapter    Adapter `json:"adapter,omitempty"`
	Statement  string  `json:"statement,omitempty"`
	Rows       int     `json:"rows"`
	DurationMs int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

type tracerKey struct{}

// ContextWithTracer attaches a tracer to ctx. Runs made with the returned
// context report to it in addition to the catalog tracer.
func ContextWithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, t)
}

func tracerFrom(ctx context.Context, base Tracer) Tracer {
	t, _ := ctx.Value(tracerKey{}).(Tracer)
	switch {
	case t == nil:
		return base
	case base == nil:
		return t
	}
	return MultiTracer{base, t}
}

func RecordStatement(t Tracer, adapter Adapter, statement string, rows int, d time.Duration, err error) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{
		Kind:       TraceEventStatement,
		Adapter:    adapter,
		Statement:  statement,
		Rows:       rows,
		DurationMs: d.Milliseconds(),
		Error:      errString(err),
	})
}

func RecordQueryRun(t Tracer, query string, d time.Duration, err error) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{
		Kind:       TraceEventQueryRun,
		Query:      query,
		DurationMs: d.Milliseconds(),
		Error:      errString(err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// LogTracer writes every event to the debug log.
type LogTracer struct{}

func (LogTracer) Record(event TraceEvent) {
	logger.Debug("[Query] Trace",
		"kind", event.Kind,
		"query", event.Query,
		"adapter", event.Adapter,
		"rows", event.Rows,
		"duration_ms", event.DurationMs,
		"error", event.Error,
	)
}

// QueryTrace collects the statements executed during query runs.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu     sync.Mutex
	events []TraceEvent
}

type QueryTraceSnapshot struct {
	Statements []TraceEvent `json:"statements"`
	TotalMs    int64        `json:"total_ms"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{}
	for _, e := range t.events {
		switch e.Kind {
		case TraceEventStatement:
			s.Statements = append(s.Statements, e)
		case TraceEventQueryRun:
			s.TotalMs += e.DurationMs
		}
	}
	return s
}
