// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

// Package reporter provides a low-level API for assembling and emitting the
// telemetry events produced by the TraceKit instrumentation.
package reporter

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/config"
)

// KVMap is a map of key-value pairs to report along with an event.
type KVMap map[string]interface{}

// Label is a required event attribute.
type Label string

// Labels used for reporting span events.
const (
	LabelEntry Label = "entry"
	LabelExit  Label = "exit"
	LabelError Label = "error"
)

// Reserved event keys set by the pipeline itself.
const (
	KeyLabel     = "Label"
	KeyLayer     = "Layer"
	KeyTimestamp = "Timestamp_u"
	KeyHostname  = "Hostname"
	KeyPID       = "PID"
	KeyContexts  = "contexts"
)

// ErrChannelClosed indicates the reporter has been shut down.
var ErrChannelClosed = errors.New("reporter is closed")

// reporter defines what methods a reporter should offer (internal to the
// reporter package).
type reporter interface {
	// called when an event should be reported
	reportEvent(e KVMap) error
	// Shutdown closes the reporter.
	Shutdown(ctx context.Context) error
	// Closed returns if the reporter is already closed.
	Closed() bool
}

// currently used reporter
var (
	globalReporter reporter = &nullReporter{}
	reporterMu     sync.RWMutex
)

var hostname, _ = os.Hostname()

// a noop reporter
type nullReporter struct{}

func (r *nullReporter) reportEvent(e KVMap) error          { return nil }
func (r *nullReporter) Shutdown(ctx context.Context) error { return nil }
func (r *nullReporter) Closed() bool                       { return true }

// init() is called only once on program startup. Here we create the reporter
// that will be used throughout the runtime of the app. Default is 'log' but
// can be overridden via TRACEKIT_REPORTER.
func init() {
	setGlobalReporter(config.GetReporterType())
}

func setGlobalReporter(reporterType string) {
	reporterMu.Lock()
	defer reporterMu.Unlock()

	switch strings.ToLower(reporterType) {
	case "log":
		globalReporter = newLogReporter(config.GetEventsFile())
	case "none":
		globalReporter = &nullReporter{}
	default:
		globalReporter = &nullReporter{}
	}
}

func current() reporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalReporter
}

// Processor transforms an outgoing event before it reaches the reporter.
// Returning nil drops the event.
type Processor func(e KVMap) KVMap

var (
	processorMu sync.RWMutex
	processors  []Processor
)

// AddProcessor registers a process-wide event transform. Processors run in
// registration order on every outgoing event.
func AddProcessor(p Processor) {
	processorMu.Lock()
	defer processorMu.Unlock()
	processors = append(processors, p)
}

func applyProcessors(e KVMap) KVMap {
	processorMu.RLock()
	defer processorMu.RUnlock()
	for _, p := range processors {
		if e = p(e); e == nil {
			return nil
		}
	}
	return e
}

// ReportEvent assembles an event from the given label, layer and KV pairs,
// runs the registered processors over it and hands it to the active reporter.
func ReportEvent(label Label, layer string, kvs KVMap) error {
	e := KVMap{
		KeyLabel:     string(label),
		KeyLayer:     layer,
		KeyTimestamp: time.Now().UnixNano() / 1000,
		KeyHostname:  hostname,
		KeyPID:       os.Getpid(),
	}
	for k, v := range kvs {
		if _, reserved := e[k]; reserved {
			continue
		}
		e[k] = v
	}

	if e = applyProcessors(e); e == nil {
		return nil
	}
	return current().reportEvent(e)
}

// Shutdown flushes and closes the active reporter. The call blocks until the
// reporter is shut down or the context is canceled.
func Shutdown(ctx context.Context) error {
	return current().Shutdown(ctx)
}

// Closed returns true if the active reporter no longer accepts events.
func Closed() bool {
	return current().Closed()
}
