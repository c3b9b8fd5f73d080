// Copyright (C) 2021 TraceKit, Inc. All rights reserved.
// TraceKit HTTP client instrumentation for Go

package tk

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/context"

	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/reporter"
)

// HTTPConn is the two-phase HTTP client primitive wrapped by this package:
// a request is initiated with PutRequest/PutHeader and its response is read
// later with GetResponse on the same handle.
type HTTPConn interface {
	// PutRequest begins a request. uri is the path and query as supplied
	// by the caller, or an absolute URL.
	PutRequest(method, uri string) error
	// PutHeader appends a header to the outgoing request.
	PutHeader(name, value string)
	// GetResponse completes the request and reads the response.
	GetResponse() (*http.Response, error)
}

// request lifecycle states of an instrumented connection
type connState int

const (
	connIdle connState = iota
	connRequesting
	connAwaitingResponse
	connClosed
)

// ClientConn wraps an HTTPConn so that each request/response cycle produces
// a span and carries the current propagation headers downstream. The state
// linking the two phases lives on the wrapper handle itself, so independent
// connections never share mutable state.
type ClientConn struct {
	conn        HTTPConn
	hub         Hub
	host        string
	port        int
	defaultPort int

	mu    sync.Mutex
	state connState
	span  Span
	data  reporter.KVMap
}

// InstrumentConn wraps conn with the HTTP call interceptor. host, port and
// defaultPort describe the underlying connection and are used to rebuild the
// absolute request URL.
func InstrumentConn(ctx context.Context, conn HTTPConn, host string, port, defaultPort int) *ClientConn {
	return &ClientConn{
		conn:        conn,
		hub:         HubFromContext(ctx),
		host:        host,
		port:        port,
		defaultPort: defaultPort,
	}
}

// requestURL rebuilds the absolute target URL from the connection's host and
// port. The scheme is https exactly when the default port is 443, and the
// port segment is omitted exactly when the port equals the default port.
func requestURL(host string, port, defaultPort int, uri string) string {
	scheme := "http"
	if defaultPort == 443 {
		scheme = "https"
	}
	hostport := host
	if port != defaultPort {
		hostport = fmt.Sprintf("%s:%d", host, port)
	}
	return scheme + "://" + hostport + uri
}

// PutRequest begins the request. A span is opened before the wrapped
// primitive runs, so a failure inside it is still attributed to the span;
// on success the current propagation headers are appended to the request.
func (c *ClientConn) PutRequest(method, uri string) error {
	if !c.hub.IntegrationActive(IntegrationHTTP) {
		return c.conn.PutRequest(method, uri)
	}

	realURL := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		realURL = requestURL(c.host, c.port, c.defaultPort, uri)
	}
	if !reporter.ShouldTraceURL(realURL) {
		return c.conn.PutRequest(method, uri)
	}

	c.mu.Lock()
	c.state = connRequesting
	c.mu.Unlock()

	span := c.hub.BeginSpan(OpHTTP, method+" "+realURL)

	if err := c.conn.PutRequest(method, uri); err != nil {
		// the failure belongs to the span, the caller sees it unchanged
		span.Err(err)
		span.End()
		c.mu.Lock()
		c.state = connClosed
		c.mu.Unlock()
		return err
	}

	for _, h := range c.hub.PropagationHeaders() {
		c.conn.PutHeader(h.Name, h.Value)
	}

	c.mu.Lock()
	c.span = span
	c.data = reporter.KVMap{keyMethod: method, keyURL: realURL}
	c.state = connAwaitingResponse
	c.mu.Unlock()
	return nil
}

// PutHeader appends a header to the outgoing request.
func (c *ClientConn) PutHeader(name, value string) {
	c.conn.PutHeader(name, value)
}

// GetResponse completes the request. When a span was opened for this handle
// it is closed exactly once: with the response status and reason on success,
// or with the failure recorded otherwise. Signature-probe failures pass
// through without influencing the span.
func (c *ClientConn) GetResponse() (*http.Response, error) {
	c.mu.Lock()
	span := c.span
	data := c.data
	c.mu.Unlock()

	if span == nil {
		return c.conn.GetResponse()
	}

	resp, err := c.conn.GetResponse()
	if err != nil {
		if IsSignatureProbe(err) {
			return resp, err
		}
		span.Err(err)
		c.closeSpan(span, data)
		return resp, err
	}

	data[keyResponse] = resp
	data[keyStatusCode] = resp.StatusCode
	data[keyReason] = statusReason(resp)
	c.closeSpan(span, data)
	return resp, nil
}

// closeSpan ends the span with the accumulated data and makes the handle's
// stored reference inert, so a second completion can never double-close.
func (c *ClientConn) closeSpan(span Span, data reporter.KVMap) {
	c.mu.Lock()
	c.span = nil
	c.data = nil
	c.state = connClosed
	c.mu.Unlock()

	for k, v := range data {
		span.AddEndArgs(k, v)
	}
	span.End()
}

// statusReason extracts the reason phrase from the response status line.
func statusReason(resp *http.Response) string {
	if reason := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); reason != resp.Status {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// SignatureProbeError wraps a failure that a caller provoked deliberately to
// probe for optional-parameter support in the wrapped primitive. Such
// failures must reach the prober unchanged and must not count as the span's
// outcome.
type SignatureProbeError struct {
	Err error
}

func (e *SignatureProbeError) Error() string { return e.Err.Error() }

func (e *SignatureProbeError) Unwrap() error { return e.Err }

// IsSignatureProbe reports whether err is a signature-probe failure.
func IsSignatureProbe(err error) bool {
	var probe *SignatureProbeError
	return errors.As(err, &probe)
}

// Transport is an http.RoundTripper middleware with the same span semantics
// as ClientConn, for callers going through net/http.
//
//	client := &http.Client{Transport: &tk.Transport{}}
//	resp, err := client.Do(req.WithContext(tk.NewContext(ctx, hub)))
type Transport struct {
	// Base is the wrapped round tripper; http.DefaultTransport when nil.
	Base http.RoundTripper
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip performs the request inside a span and injects the current
// propagation headers. The response, its error, and the caller-visible
// behavior are never altered.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	hub := HubFromContext(req.Context())
	url := req.URL.String()
	if !hub.IntegrationActive(IntegrationHTTP) || !reporter.ShouldTraceURL(url) {
		return t.base().RoundTrip(req)
	}

	span := hub.BeginSpan(OpHTTP, req.Method+" "+url)

	req = req.Clone(req.Context())
	for _, h := range hub.PropagationHeaders() {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		span.Err(err)
		span.End(keyMethod, req.Method, keyURL, url)
		return resp, err
	}
	span.End(keyMethod, req.Method, keyURL, url,
		keyStatusCode, resp.StatusCode, keyReason, statusReason(resp))
	return resp, nil
}
