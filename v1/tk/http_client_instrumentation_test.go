// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/reporter"
)

// fakeConn is a scriptable two-phase HTTP primitive.
type fakeConn struct {
	requests []string
	headers  http.Header
	putErr   error
	resp     *http.Response
	respErrs []error
	gets     int
}

func (c *fakeConn) PutRequest(method, uri string) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.requests = append(c.requests, method+" "+uri)
	return nil
}

func (c *fakeConn) PutHeader(name, value string) {
	if c.headers == nil {
		c.headers = http.Header{}
	}
	c.headers.Add(name, value)
}

func (c *fakeConn) GetResponse() (*http.Response, error) {
	c.gets++
	if len(c.respErrs) > 0 {
		err := c.respErrs[0]
		c.respErrs = c.respErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return c.resp, nil
}

func testHub() Hub {
	return NewHub(Headers{{Name: "sentry-trace", Value: "abc123"}})
}

func TestRequestURL(t *testing.T) {
	for _, tc := range []struct {
		host              string
		port, defaultPort int
		uri               string
		want              string
	}{
		{"example.com", 80, 80, "/path", "http://example.com/path"},
		{"example.com", 443, 443, "/path", "https://example.com/path"},
		{"example.com", 8080, 80, "/path?q=1", "http://example.com:8080/path?q=1"},
		{"example.com", 8443, 443, "/", "https://example.com:8443/"},
		{"localhost", 80, 443, "/x", "https://localhost:80/x"},
	} {
		assert.Equal(t, tc.want, requestURL(tc.host, tc.port, tc.defaultPort, tc.uri), tc.want)
	}
}

func TestClientConnSuccess(t *testing.T) {
	r := reporter.SetTestReporter()
	conn := &fakeConn{resp: &http.Response{StatusCode: 404, Status: "404 Not Found"}}
	ctx := NewContext(context.Background(), testHub())
	c := InstrumentConn(ctx, conn, "example.com", 80, 80)

	require.NoError(t, c.PutRequest("GET", "/path"))
	resp, err := c.GetResponse()
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	r.Close(2)

	assert.Equal(t, []string{"GET /path"}, conn.requests)
	assert.Equal(t, "abc123", conn.headers.Get("sentry-trace"))

	entries := r.EventsWithLabel(reporter.LabelEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, "GET http://example.com/path", entries[0][keyDescription])
	assert.Equal(t, OpHTTP, entries[0][reporter.KeyLayer])

	exits := r.EventsWithLabel(reporter.LabelExit)
	require.Len(t, exits, 1)
	assert.Equal(t, 404, exits[0][keyStatusCode])
	assert.Equal(t, "Not Found", exits[0][keyReason])
	assert.Equal(t, "http://example.com/path", exits[0][keyURL])
	assert.Same(t, conn.resp, exits[0][keyResponse])
}

func TestClientConnAbsoluteURI(t *testing.T) {
	r := reporter.SetTestReporter()
	conn := &fakeConn{resp: &http.Response{StatusCode: 200, Status: "200 OK"}}
	c := InstrumentConn(NewContext(context.Background(), testHub()), conn, "proxy", 3128, 80)

	require.NoError(t, c.PutRequest("GET", "https://example.com/abs"))
	_, err := c.GetResponse()
	require.NoError(t, err)
	r.Close(2)

	entries := r.EventsWithLabel(reporter.LabelEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, "GET https://example.com/abs", entries[0][keyDescription])
}

func TestClientConnRequestError(t *testing.T) {
	r := reporter.SetTestReporter()
	boom := errors.New("connection refused")
	conn := &fakeConn{putErr: boom}
	c := InstrumentConn(NewContext(context.Background(), testHub()), conn, "example.com", 80, 80)

	err := c.PutRequest("GET", "/path")
	assert.Same(t, boom, err)

	// the same handle falls through in the response phase
	conn.putErr = nil
	conn.resp = &http.Response{StatusCode: 200, Status: "200 OK"}
	_, err = c.GetResponse()
	require.NoError(t, err)
	r.Close(3)

	require.Len(t, r.EventsWithLabel(reporter.LabelEntry), 1)
	errs := r.EventsWithLabel(reporter.LabelError)
	require.Len(t, errs, 1)
	assert.Equal(t, "connection refused", errs[0][keyErrorMsg])
	// the span was closed in the request phase, not again afterwards
	assert.Len(t, r.EventsWithLabel(reporter.LabelExit), 1)
}

func TestClientConnSignatureProbe(t *testing.T) {
	r := reporter.SetTestReporter()
	probe := &SignatureProbeError{Err: errors.New("unexpected argument")}
	conn := &fakeConn{
		resp:     &http.Response{StatusCode: 200, Status: "200 OK"},
		respErrs: []error{probe, nil},
	}
	c := InstrumentConn(NewContext(context.Background(), testHub()), conn, "example.com", 443, 443)
	require.NoError(t, c.PutRequest("GET", "/probe"))

	_, err := c.GetResponse()
	require.Same(t, probe, err)
	assert.True(t, IsSignatureProbe(err))
	// the probe neither closed the span nor recorded a failure
	assert.Empty(t, r.EventsWithLabel(reporter.LabelExit))
	assert.Empty(t, r.EventsWithLabel(reporter.LabelError))

	// the retried completion still closes the span normally
	_, err = c.GetResponse()
	require.NoError(t, err)
	r.Close(2)
	exits := r.EventsWithLabel(reporter.LabelExit)
	require.Len(t, exits, 1)
	assert.Equal(t, 200, exits[0][keyStatusCode])
}

func TestClientConnDoubleClose(t *testing.T) {
	r := reporter.SetTestReporter()
	conn := &fakeConn{resp: &http.Response{StatusCode: 200, Status: "200 OK"}}
	c := InstrumentConn(NewContext(context.Background(), testHub()), conn, "example.com", 80, 80)
	require.NoError(t, c.PutRequest("HEAD", "/"))

	_, err := c.GetResponse()
	require.NoError(t, err)
	_, err = c.GetResponse()
	require.NoError(t, err)
	r.Close(2)

	assert.Equal(t, 2, conn.gets)
	assert.Len(t, r.EventsWithLabel(reporter.LabelExit), 1)
}

func TestClientConnInactiveHub(t *testing.T) {
	r := reporter.SetTestReporter()
	conn := &fakeConn{resp: &http.Response{StatusCode: 200, Status: "200 OK"}}
	c := InstrumentConn(context.Background(), conn, "example.com", 80, 80)

	require.NoError(t, c.PutRequest("GET", "/path"))
	_, err := c.GetResponse()
	require.NoError(t, err)
	r.Close(0)

	assert.Empty(t, r.Events())
	assert.Equal(t, []string{"GET /path"}, conn.requests)
	assert.Nil(t, conn.headers)
}

func TestIsSignatureProbe(t *testing.T) {
	probe := &SignatureProbeError{Err: errors.New("nope")}
	assert.True(t, IsSignatureProbe(probe))
	assert.EqualError(t, probe, "nope")
	assert.False(t, IsSignatureProbe(errors.New("nope")))
	assert.False(t, IsSignatureProbe(nil))
}

func TestTransport(t *testing.T) {
	r := reporter.SetTestReporter()
	var gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotTrace = req.Header.Get("sentry-trace")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{}}
	req, err := http.NewRequest("GET", srv.URL+"/jobs", nil)
	require.NoError(t, err)
	req = req.WithContext(NewContext(context.Background(), testHub()))

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	r.Close(2)

	assert.Equal(t, "abc123", gotTrace)
	exits := r.EventsWithLabel(reporter.LabelExit)
	require.Len(t, exits, 1)
	assert.Equal(t, http.StatusAccepted, exits[0][keyStatusCode])
	assert.Equal(t, "Accepted", exits[0][keyReason])
	assert.Equal(t, "GET", exits[0][keyMethod])
}

func TestTransportPassthroughWithoutHub(t *testing.T) {
	r := reporter.SetTestReporter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Empty(t, req.Header.Get("sentry-trace"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	r.Close(0)

	assert.Empty(t, r.Events())
}
