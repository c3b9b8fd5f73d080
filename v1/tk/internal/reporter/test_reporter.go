// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package reporter

import (
	"context"
	"sync"
	"time"
)

const defaultTestReporterTimeout = 2 * time.Second

// TestReporter appends reported events to Events for test assertions.
type TestReporter struct {
	Timeout time.Duration

	mu     sync.Mutex
	events []KVMap
	closed bool

	old reporter
}

// TestReporterOption values may be passed to SetTestReporter.
type TestReporterOption func(*TestReporter)

// TestReporterTimeout sets how long Close waits for the expected events.
func TestReporterTimeout(timeout time.Duration) TestReporterOption {
	return func(r *TestReporter) { r.Timeout = timeout }
}

// SetTestReporter sets and returns a test reporter that captures events for
// making assertions. Close() restores the previous reporter.
func SetTestReporter(options ...TestReporterOption) *TestReporter {
	r := &TestReporter{Timeout: defaultTestReporterTimeout}
	for _, option := range options {
		option(r)
	}

	reporterMu.Lock()
	r.old = globalReporter
	globalReporter = r
	reporterMu.Unlock()

	return r
}

func (r *TestReporter) reportEvent(e KVMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrChannelClosed
	}
	r.events = append(r.events, e)
	return nil
}

// Shutdown closes the reporter.
func (r *TestReporter) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed returns if the reporter is already closed.
func (r *TestReporter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Events returns a snapshot of the events received so far.
func (r *TestReporter) Events() []KVMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]KVMap, len(r.events))
	copy(out, r.events)
	return out
}

// EventsWithLabel returns the received events carrying the given label.
func (r *TestReporter) EventsWithLabel(label Label) []KVMap {
	var out []KVMap
	for _, e := range r.Events() {
		if e[KeyLabel] == string(label) {
			out = append(out, e)
		}
	}
	return out
}

// Close waits until numEvents events have been received or the timeout
// expires, then stops capturing and restores the previous reporter.
func (r *TestReporter) Close(numEvents int) {
	deadline := time.Now().Add(r.Timeout)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.events)
		r.mu.Unlock()
		if n >= numEvents {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	reporterMu.Lock()
	if globalReporter == reporter(r) {
		globalReporter = r.old
	}
	reporterMu.Unlock()
}
