package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardEventName   = "board.fetch"
	boardEventDomain = "board"
	boardSpanName    = "GET /api/board"
	boardRoute       = "/api/board"
)

// boardRequestMetrics records the phases of one board fetch and emits a
// single structured observability event plus a span when the request
// finishes.
type boardRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	encodeDuration time.Duration
	queryProvided  bool
	tasksReturned  int
	errorStage     string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) (*boardRequestMetrics, context.Context) {
	m := &boardRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer("board-api/api").Start(ctx, boardSpanName)
	m.span = span
	return m, spanCtx
}

func (m *boardRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *boardRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *boardRequestMetrics) SetQueryProvided(provided bool) {
	m.queryProvided = provided
}

func (m *boardRequestMetrics) AddTasksReturned(count int) {
	if count > 0 {
		m.tasksReturned += count
	}
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and writes the observability event. Safe to call
// exactly once, from a deferred handler.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	totalMs := durationToMillis(time.Since(m.start))

	attrs := map[string]any{
		"http.route":                 boardRoute,
		"http.status_code":           status,
		"board.fetch.total_ms":       totalMs,
		"board.fetch.query_provided": m.queryProvided,
		"board.fetch.tasks_returned": m.tasksReturned,
	}
	if m.authDuration > 0 {
		attrs["board.fetch.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.encodeDuration > 0 {
		attrs["board.fetch.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["board.fetch.error_stage"] = m.errorStage
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", boardRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("board.fetch.total_ms", totalMs),
			attribute.Bool("board.fetch.query_provided", m.queryProvided),
			attribute.Int("board.fetch.tasks_returned", m.tasksReturned),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("board.fetch.error_stage", m.errorStage))
		}
		if err != nil || status >= http.StatusInternalServerError {
			m.span.SetStatus(codes.Error, m.errorStage)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.AddEvent("observability.event")
	}

	severityText, severityNumber := "INFO", 9
	if err != nil || m.errorStage != "" {
		severityText, severityNumber = "ERROR", 17
	}
	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if m.logger != nil {
		entry := m.logger.WithFields(fields)
		if severityText == "ERROR" {
			entry.Error("observability.event")
		} else {
			entry.Info("observability.event")
		}
	}

	if m.span != nil {
		m.span.End()
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
