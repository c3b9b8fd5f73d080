// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package utils

import (
	"runtime"
	"strings"
)

var (
	// The TraceKit Go agent version
	version = "1.2.0"

	// The Go version
	goVersion = strings.TrimPrefix(runtime.Version(), "go")
)

// Version returns the agent's version
func Version() string {
	return version
}

// GoVersion returns the Go version
func GoVersion() string {
	return goVersion
}
