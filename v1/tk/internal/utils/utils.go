// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

// Package utils provides small helpers shared across the agent.
package utils

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// CopyMap makes a copy of all elements of a map.
func CopyMap(from map[string]string) map[string]string {
	to := make(map[string]string, len(from))
	for k, v := range from {
		to[k] = v
	}
	return to
}

// fmt recovers panics raised by String/GoString/Error methods itself and
// embeds this marker in the output instead of unwinding.
const fmtPanicMarker = "(PANIC="

// SafeRepr returns a structural representation of v. A value whose GoString
// method blows up yields a minimal fallback instead of fmt's panic note.
func SafeRepr(v interface{}) string {
	s := fmt.Sprintf("%#v", v)
	if strings.Contains(s, fmtPanicMarker) {
		return fmt.Sprintf("<unrepresentable %T>", v)
	}
	return s
}

// SafeString renders v with fmt.Sprint. The second return value reports
// whether rendering succeeded, i.e. no formatting method panicked.
func SafeString(v interface{}) (string, bool) {
	s := fmt.Sprint(v)
	if strings.Contains(s, fmtPanicMarker) {
		return "", false
	}
	return s, true
}

// SafeBuffer is a goroutine-safe buffer. It is for internal test use only.
type SafeBuffer struct {
	buf bytes.Buffer
	sync.Mutex
}

func (b *SafeBuffer) Read(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.buf.Read(p)
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.buf.Write(p)
}

func (b *SafeBuffer) String() string {
	b.Lock()
	defer b.Unlock()
	return b.buf.String()
}

// Reset truncates the buffer
func (b *SafeBuffer) Reset() {
	b.Lock()
	defer b.Unlock()
	b.buf.Reset()
}
