// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"fmt"
	"runtime"

	version "github.com/hashicorp/go-version"

	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/log"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/reporter"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/utils"
)

func init() {
	reporter.AddProcessor(runtimeContextProcessor)
}

// runtimeContextProcessor annotates every reported event with a runtime
// context describing the executing runtime: its name, a normalized
// three-component version, and the raw build string. An existing runtime
// entry placed by the caller always wins.
func runtimeContextProcessor(event reporter.KVMap) reporter.KVMap {
	if Disabled() {
		return event
	}

	var contexts map[string]interface{}
	switch v := event[reporter.KeyContexts].(type) {
	case nil:
		contexts = make(map[string]interface{})
		event[reporter.KeyContexts] = contexts
	case map[string]interface{}:
		contexts = v
	default:
		// caller stored something unexpected under contexts, leave it be
		return event
	}

	if _, ok := contexts["runtime"]; ok {
		return event
	}
	contexts["runtime"] = runtimeContext()
	return event
}

// runtimeContext builds the runtime description reported with each event.
func runtimeContext() map[string]interface{} {
	return map[string]interface{}{
		"name":    runtime.Compiler,
		"version": normalizedGoVersion(),
		"build":   runtime.Version(),
	}
}

// normalizedGoVersion renders the runtime version with exactly three
// components, so "go1.24" and "go1.24.5" report as "1.24.0" and "1.24.5".
func normalizedGoVersion() string {
	raw := utils.GoVersion()
	v, err := version.NewVersion(raw)
	if err != nil {
		log.Debugf("unparsable runtime version %q: %v", raw, err)
		return raw
	}
	seg := v.Segments()
	return fmt.Sprintf("%d.%d.%d", seg[0], seg[1], seg[2])
}
