package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage tracks one pipeline stage (extraction, report generation, analysis
// run) as a span plus request/latency/usage metrics.
type Stage struct {
	start time.Time
	span  trace.Span
	attrs []attribute.KeyValue
	usage UsageTokens
}

// StartStage opens the stage span and counts the request.
func StartStage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Stage) {
	ctx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	recordRequest(attrs...)
	return ctx, &Stage{start: time.Now(), span: span, attrs: attrs}
}

// Session tags the stage with the session it operates on.
func (s *Stage) Session(id string) {
	s.AddAttributes(attribute.String("session.id", id))
}

// AddAttributes appends attributes to the span and to subsequent metrics.
func (s *Stage) AddAttributes(attrs ...attribute.KeyValue) {
	if s == nil {
		return
	}
	s.attrs = append(s.attrs, attrs...)
	s.span.SetAttributes(attrs...)
}

// RecordUsage attaches provider token accounting, emitted when the stage
// ends.
func (s *Stage) RecordUsage(usage UsageTokens) {
	if s == nil {
		return
	}
	s.usage = usage
}

// End closes the stage, marking the span failed when err is non-nil.
func (s *Stage) End(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	recordLatency(time.Since(s.start).Seconds()*1000, s.attrs...)
	if s.usage.TotalTokens > 0 || s.usage.InputTokens > 0 || s.usage.OutputTokens > 0 {
		recordUsage(s.usage, s.attrs...)
	}
	s.span.End()
}
