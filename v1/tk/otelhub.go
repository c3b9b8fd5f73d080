// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// otelHub adapts an OpenTelemetry tracer to the Hub interface. The
// interceptors' spans become children of the span carried by the hub's
// context, and the W3C trace context is propagated downstream.
type otelHub struct {
	ctx          context.Context
	tracer       trace.Tracer
	integrations map[string]struct{}
}

// NewOTelHub returns a Hub backed by an OpenTelemetry tracer. ctx is the
// parent context; when it carries an active span, interceptor spans become
// its children and its trace context is what gets propagated. With no
// integration IDs given, all default integrations are attached.
func NewOTelHub(ctx context.Context, tracer trace.Tracer, integrations ...string) Hub {
	if len(integrations) == 0 {
		integrations = DefaultIntegrations
	}
	ids := make(map[string]struct{}, len(integrations))
	for _, id := range integrations {
		ids[id] = struct{}{}
	}
	return &otelHub{ctx: ctx, tracer: tracer, integrations: ids}
}

func (h *otelHub) IntegrationActive(id string) bool {
	if Disabled() {
		return false
	}
	_, ok := h.integrations[id]
	return ok
}

// PropagationHeaders serializes the active trace context in the W3C
// traceparent/tracestate format.
func (h *otelHub) PropagationHeaders() Headers {
	if Disabled() || !trace.SpanContextFromContext(h.ctx).IsValid() {
		return nil
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(h.ctx, carrier)
	headers := make(Headers, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, Header{Name: k, Value: v})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
	return headers
}

func (h *otelHub) BeginSpan(op, description string) Span {
	if Disabled() {
		return nullSpan{}
	}
	_, span := h.tracer.Start(h.ctx, description,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("op", op)))
	return &otelSpan{span: span}
}

// otelSpan funnels the span lifecycle into an OpenTelemetry span.
type otelSpan struct {
	span    trace.Span
	mu      sync.Mutex
	endArgs []interface{}
	ended   bool
}

func (s *otelSpan) End(args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	for k, v := range fromKVs(append(append([]interface{}{}, s.endArgs...), args...)...) {
		s.span.SetAttributes(otelAttribute(k, v))
	}
	s.span.End()
	s.endArgs = nil
	s.ended = true
}

func (s *otelSpan) AddEndArgs(args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if len(args)%2 == 1 {
		args = args[0 : len(args)-1]
	}
	s.endArgs = append(s.endArgs, args...)
}

func (s *otelSpan) Error(class, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.span.RecordError(fmt.Errorf("%s: %s", class, msg))
	s.span.SetStatus(codes.Error, msg)
}

func (s *otelSpan) Err(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) IsReporting() bool { return s.ok() }

func (s *otelSpan) ok() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// otelAttribute converts a reported KV into a typed attribute.
func otelAttribute(k string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case bool:
		return attribute.Bool(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case float64:
		return attribute.Float64(k, val)
	default:
		return attribute.String(k, fmt.Sprint(val))
	}
}
