// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/log"
)

// logReporter writes events as JSON lines to a local destination. It's the
// default sink: the spans are fully observable without any backend attached.
type logReporter struct {
	mu     sync.Mutex
	dest   io.Writer
	closer io.Closer
	closed bool
}

func newLogReporter(path string) reporter {
	lr := &logReporter{dest: os.Stderr}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Warningf("events file %s not writable, using stderr: %v", path, err)
		} else {
			lr.dest = f
			lr.closer = f
		}
	}
	return lr
}

// encode renders the event as one JSON line. Events may carry values that
// encoding/json rejects (live handles recorded as auxiliary data); those are
// re-rendered through fmt before giving up.
func (lr *logReporter) encode(e KVMap) ([]byte, error) {
	data, err := json.Marshal(e)
	if err == nil {
		return append(data, '\n'), nil
	}

	safe := make(KVMap, len(e))
	for k, v := range e {
		if _, jsonErr := json.Marshal(v); jsonErr != nil {
			safe[k] = fmt.Sprintf("%v", v)
		} else {
			safe[k] = v
		}
	}
	data, err = json.Marshal(safe)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding event")
	}
	return append(data, '\n'), nil
}

func (lr *logReporter) reportEvent(e KVMap) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.closed {
		return ErrChannelClosed
	}

	data, err := lr.encode(e)
	if err != nil {
		return errors.Wrap(err, "write to log reporter failed")
	}
	if _, err := lr.dest.Write(data); err != nil {
		return errors.Wrap(err, "write to log reporter failed")
	}
	return nil
}

// Shutdown closes the reporter.
func (lr *logReporter) Shutdown(ctx context.Context) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.closed {
		return ErrChannelClosed
	}
	lr.closed = true
	if lr.closer != nil {
		return lr.closer.Close()
	}
	return nil
}

// Closed returns if the reporter is already closed.
func (lr *logReporter) Closed() bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.closed
}
