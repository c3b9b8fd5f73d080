// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"runtime/debug"
	"sync"

	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/reporter"
)

// Operation kinds of the spans produced by this package.
const (
	// OpHTTP tags spans measuring an outbound HTTP request.
	OpHTTP = "http"
	// OpSubprocess tags spans measuring a child-process spawn.
	OpSubprocess = "subprocess"
)

// The keys used in reporting events
const (
	keyDescription = "Description"
	keySpec        = "Spec"
	keyErrorClass  = "ErrorClass"
	keyErrorMsg    = "ErrorMsg"
	keyBackTrace   = "Backtrace"
	keyMethod      = "Method"
	keyURL         = "URL"
	keyStatusCode  = "StatusCode"
	keyReason      = "Reason"
	keyResponse    = "Response"
	keyCwd         = "Cwd"
	keyExitStatus  = "ExitStatus"
)

// Span is a timed record of one outbound operation. It is created at the
// start of an intercepted call, owned exclusively by that call, and closed
// exactly once: later closes are inert.
type Span interface {
	// End closes the Span, optionally reporting KV pairs provided by args.
	End(args ...interface{})

	// AddEndArgs adds additional KV pairs that will be serialized at the
	// end of this span.
	AddEndArgs(args ...interface{})

	// Error reports details about an error (along with a stack trace) for this Span.
	Error(class, msg string)
	// Err reports details about error err (along with a stack trace) for this Span.
	Err(error)

	// IsReporting returns whether this span still reports events.
	IsReporting() bool

	ok() bool
}

// span consolidates the reporting routines shared by the hub span types.
type span struct {
	op      string
	endArgs []interface{}
	ended   bool
	lock    sync.RWMutex
}

// nullSpan is a span that is not tracing; it satisfies Span.
type nullSpan struct{}

func (s nullSpan) End(args ...interface{})        {}
func (s nullSpan) AddEndArgs(args ...interface{}) {}
func (s nullSpan) Error(class, msg string)        {}
func (s nullSpan) Err(err error)                  {}
func (s nullSpan) IsReporting() bool              { return false }
func (s nullSpan) ok() bool                       { return false }

func newSpan(op, description string) Span {
	if err := reporter.ReportEvent(reporter.LabelEntry, op, reporter.KVMap{
		keyDescription: description,
	}); err != nil {
		return nullSpan{}
	}
	return &span{op: op}
}

// is this span still open
func (s *span) ok() bool {
	if s == nil {
		return false
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	return !s.ended
}

func (s *span) IsReporting() bool { return s.ok() }

// End closes the span and reports its exit event. Only the first call has
// any effect.
func (s *span) End(args ...interface{}) {
	if s == nil {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ended {
		return
	}
	kvs := append(append([]interface{}{}, s.endArgs...), args...)
	_ = reporter.ReportEvent(reporter.LabelExit, s.op, fromKVs(kvs...))
	s.endArgs = nil
	s.ended = true
}

// AddEndArgs adds KV pairs as variadic args that will be serialized at the
// end of this span.
func (s *span) AddEndArgs(args ...interface{}) {
	if s.ok() {
		// ensure even number of args added
		if len(args)%2 == 1 {
			args = args[0 : len(args)-1]
		}
		s.lock.Lock()
		s.endArgs = append(s.endArgs, args...)
		s.lock.Unlock()
	}
}

// Error reports an error, distinguished by its class and message
func (s *span) Error(class, msg string) {
	if s.ok() {
		_ = reporter.ReportEvent(reporter.LabelError, s.op, reporter.KVMap{
			keySpec:       "error",
			keyErrorClass: class,
			keyErrorMsg:   msg,
			keyBackTrace:  string(debug.Stack()),
		})
	}
}

// Err reports the provided error type
func (s *span) Err(err error) {
	if err == nil {
		return
	}
	s.Error("error", err.Error())
}

func fromKVs(kvs ...interface{}) reporter.KVMap {
	m := make(reporter.KVMap)
	for i := 0; i+1 < len(kvs); i += 2 {
		if k, ok := kvs[i].(string); ok {
			m[k] = kvs[i+1]
		}
	}
	return m
}
