// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"sort"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"

	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/log"
)

// otHub adapts an OpenTracing tracer to the Hub interface, so the
// interceptors in this package can feed spans into an existing OpenTracing
// deployment and propagate its wire format downstream.
type otHub struct {
	tracer       opentracing.Tracer
	parent       opentracing.SpanContext
	integrations map[string]struct{}
}

// NewOpenTracingHub returns a Hub backed by an OpenTracing tracer. Spans
// opened by the interceptors become children of parent; parent may be nil
// to start new traces. With no integration IDs given, all default
// integrations are attached.
func NewOpenTracingHub(tracer opentracing.Tracer, parent opentracing.SpanContext, integrations ...string) Hub {
	if len(integrations) == 0 {
		integrations = DefaultIntegrations
	}
	ids := make(map[string]struct{}, len(integrations))
	for _, id := range integrations {
		ids[id] = struct{}{}
	}
	return &otHub{tracer: tracer, parent: parent, integrations: ids}
}

func (h *otHub) IntegrationActive(id string) bool {
	if Disabled() {
		return false
	}
	_, ok := h.integrations[id]
	return ok
}

// PropagationHeaders serializes the parent span context through the
// tracer's TextMap format.
func (h *otHub) PropagationHeaders() Headers {
	if Disabled() || h.parent == nil {
		return nil
	}
	carrier := opentracing.TextMapCarrier{}
	if err := h.tracer.Inject(h.parent, opentracing.TextMap, carrier); err != nil {
		log.Warningf("inject trace context: %v", err)
		return nil
	}
	headers := make(Headers, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, Header{Name: k, Value: v})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
	return headers
}

func (h *otHub) BeginSpan(op, description string) Span {
	if Disabled() {
		return nullSpan{}
	}
	opts := []opentracing.StartSpanOption{opentracing.Tag{Key: "op", Value: op}}
	if h.parent != nil {
		opts = append(opts, opentracing.ChildOf(h.parent))
	}
	return &otSpan{span: h.tracer.StartSpan(description, opts...)}
}

// otSpan funnels the span lifecycle into an OpenTracing span.
type otSpan struct {
	span    opentracing.Span
	mu      sync.Mutex
	endArgs []interface{}
	ended   bool
}

func (s *otSpan) End(args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	for k, v := range fromKVs(append(append([]interface{}{}, s.endArgs...), args...)...) {
		s.span.SetTag(k, v)
	}
	s.span.Finish()
	s.endArgs = nil
	s.ended = true
}

func (s *otSpan) AddEndArgs(args ...interface{}) {
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

func (s *otSpan) Error(class, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.span.SetTag("error", true)
	s.span.LogKV("error.kind", class, "message", msg)
}

func (s *otSpan) Err(err error) {
	if err == nil {
		return
	}
	s.Error("error", err.Error())
}

func (s *otSpan) IsReporting() bool { return s.ok() }

func (s *otSpan) ok() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}
