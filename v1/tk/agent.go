// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

// Package tk instruments outbound operations - HTTP client requests and
// child-process spawns - so that each becomes a timed span carrying
// distributed tracing context to the downstream peer.
package tk

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/config"
	tklog "github.com/tracekit/tracekit-apm-go/v1/tk/internal/log"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/reporter"
)

var errInvalidLogLevel = errors.New("invalid log level")

var disabled = atomic.NewBool(config.GetDisabled())

func init() {
	tklog.SetLevelFromStr(config.DebugLevel())
}

// Disabled reports whether the agent is turned off. A disabled agent forwards
// every intercepted call to the unwrapped primitive unchanged.
func Disabled() bool {
	return disabled.Load()
}

// SetDisabled turns the agent off (or back on) at runtime.
func SetDisabled(v bool) {
	disabled.Store(v)
}

// Closed returns true if the event pipeline no longer accepts events.
func Closed() bool {
	return reporter.Closed()
}

// Shutdown flushes and stops the agent. The call blocks until the agent is
// shut down or the context is canceled.
//
// This function should be called only once.
func Shutdown(ctx context.Context) error {
	return reporter.Shutdown(ctx)
}

// SetLogLevel changes the logging level of the TraceKit agent.
// Valid logging levels: DEBUG, INFO, WARN, ERROR
func SetLogLevel(level string) error {
	l, ok := tklog.ToLogLevel(level)
	if !ok {
		return errInvalidLogLevel
	}
	tklog.SetLevel(l)
	return nil
}

// GetLogLevel returns the current logging level of the TraceKit agent
func GetLogLevel() string {
	return tklog.LevelStr[tklog.Level()]
}
