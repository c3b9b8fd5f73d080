// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"errors"
	"sort"
	"testing"

	basictracer "github.com/opentracing/basictracer-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTracingHubPropagationHeaders(t *testing.T) {
	rec := basictracer.NewInMemoryRecorder()
	tracer := basictracer.New(rec)
	parent := tracer.StartSpan("parent")
	defer parent.Finish()

	h := NewOpenTracingHub(tracer, parent.Context())
	headers := h.PropagationHeaders()
	require.NotEmpty(t, headers)

	names := make([]string, len(headers))
	byName := map[string]string{}
	for i, hdr := range headers {
		names[i] = hdr.Name
		byName[hdr.Name] = hdr.Value
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.NotEmpty(t, byName["ot-tracer-traceid"])
	assert.NotEmpty(t, byName["ot-tracer-spanid"])

	assert.Nil(t, NewOpenTracingHub(tracer, nil).PropagationHeaders())
}

func TestOpenTracingHubSpan(t *testing.T) {
	rec := basictracer.NewInMemoryRecorder()
	tracer := basictracer.New(rec)
	parent := tracer.StartSpan("parent")

	h := NewOpenTracingHub(tracer, parent.Context())
	span := h.BeginSpan(OpHTTP, "GET http://example.com/")
	assert.True(t, span.IsReporting())
	span.AddEndArgs(keyStatusCode, 200)
	span.End(keyReason, "OK")
	span.End() // inert
	assert.False(t, span.IsReporting())
	parent.Finish()

	spans := rec.GetSpans()
	require.Len(t, spans, 2)
	child := spans[0]
	assert.Equal(t, "GET http://example.com/", child.Operation)
	assert.Equal(t, OpHTTP, child.Tags["op"])
	assert.Equal(t, 200, child.Tags[keyStatusCode])
	assert.Equal(t, "OK", child.Tags[keyReason])
	assert.Equal(t, spans[1].Context.SpanID, child.ParentSpanID)
}

func TestOpenTracingHubSpanError(t *testing.T) {
	rec := basictracer.NewInMemoryRecorder()
	tracer := basictracer.New(rec)

	h := NewOpenTracingHub(tracer, nil)
	span := h.BeginSpan(OpSubprocess, "false")
	span.Err(errors.New("exit status 1"))
	span.End()

	spans := rec.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, true, spans[0].Tags["error"])
	require.NotEmpty(t, spans[0].Logs)
}

func TestOpenTracingHubIntegrations(t *testing.T) {
	tracer := basictracer.New(basictracer.NewInMemoryRecorder())
	h := NewOpenTracingHub(tracer, nil, IntegrationSubprocess)
	assert.True(t, h.IntegrationActive(IntegrationSubprocess))
	assert.False(t, h.IntegrationActive(IntegrationHTTP))

	SetDisabled(true)
	defer SetDisabled(false)
	assert.False(t, h.IntegrationActive(IntegrationSubprocess))
	assert.False(t, h.BeginSpan(OpSubprocess, "x").IsReporting())
}
