// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"context"
	"os"
)

// Integration IDs of the instrumentation modules shipped by this package.
const (
	// IntegrationHTTP identifies the HTTP client interceptor.
	IntegrationHTTP = "httpclient"
	// IntegrationSubprocess identifies the process spawn interceptor.
	IntegrationSubprocess = "subprocess"
)

// DefaultIntegrations lists the integrations attached to a Hub when none are
// named explicitly.
var DefaultIntegrations = []string{IntegrationHTTP, IntegrationSubprocess}

// Hub is the ambient tracing collaborator consumed by the interceptors. It
// owns the current trace state; this package only ever reads it.
type Hub interface {
	// IntegrationActive reports whether the named instrumentation module
	// is attached and tracing is on.
	IntegrationActive(id string) bool

	// PropagationHeaders linearizes the current trace context into
	// (name, value) pairs for an outgoing request or child process. It
	// returns nil when no trace context is active.
	PropagationHeaders() Headers

	// BeginSpan opens a span of the given operation kind. The caller must
	// close it exactly once with End.
	BeginSpan(op, description string) Span
}

type contextKeyT interface{}

var contextKeyHub = contextKeyT("github.com/tracekit/tracekit-apm-go/v1/tk.Hub")

// NewContext returns a copy of the parent context carrying the Hub.
func NewContext(ctx context.Context, h Hub) context.Context {
	return context.WithValue(ctx, contextKeyHub, h)
}

// HubFromContext returns the Hub bound to the context. An inactive null hub
// is returned when the context carries none.
func HubFromContext(ctx context.Context) Hub {
	if ctx == nil {
		return nullHub{}
	}
	if h, ok := ctx.Value(contextKeyHub).(Hub); ok && h != nil {
		return h
	}
	return nullHub{}
}

// nullHub is a hub with no trace context and no integrations.
type nullHub struct{}

func (nullHub) IntegrationActive(string) bool  { return false }
func (nullHub) PropagationHeaders() Headers    { return nil }
func (nullHub) BeginSpan(op, desc string) Span { return nullSpan{} }

// hub is the default Hub implementation. It carries the continued inbound
// trace context as a fixed header sequence and reports spans through the
// event pipeline.
type hub struct {
	headers      Headers
	integrations map[string]struct{}
}

// NewHub returns a Hub carrying the given propagation headers, typically the
// continuation of an inbound trace. With no integration IDs given, all
// default integrations are attached.
func NewHub(headers Headers, integrations ...string) Hub {
	if len(integrations) == 0 {
		integrations = DefaultIntegrations
	}
	ids := make(map[string]struct{}, len(integrations))
	for _, id := range integrations {
		ids[id] = struct{}{}
	}
	return &hub{headers: headers, integrations: ids}
}

// ContinueFromEnviron returns a Hub whose trace context is reconstructed from
// the process environment, as injected by an instrumented parent process. No
// span is started; the headers are a read view only.
func ContinueFromEnviron(integrations ...string) Hub {
	return NewHub(HeadersFromEnviron(os.Environ(), EnvPrefix), integrations...)
}

func (h *hub) IntegrationActive(id string) bool {
	if Disabled() {
		return false
	}
	_, ok := h.integrations[id]
	return ok
}

func (h *hub) PropagationHeaders() Headers {
	if Disabled() || len(h.headers) == 0 {
		return nil
	}
	out := make(Headers, len(h.headers))
	copy(out, h.headers)
	return out
}

func (h *hub) BeginSpan(op, description string) Span {
	if Disabled() || Closed() {
		return nullSpan{}
	}
	return newSpan(op, description)
}
