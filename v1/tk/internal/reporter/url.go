// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package reporter

import (
	"path/filepath"
	"regexp"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/config"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/log"
)

var globalURLFilter *urlFilter

func init() {
	globalURLFilter = newURLFilter()
	globalURLFilter.loadConfig(config.GetURLFiltering())
}

// urlCache stores per-URL trace decisions
type urlCache struct{ *freecache.Cache }

// Trace decisions in cache
const (
	traceEnabled  = "t"
	traceDisabled = "f"
)

// setURLTrace sets a url and its trace decision into the cache
func (c *urlCache) setURLTrace(url string, trace bool) {
	val := traceEnabled
	if !trace {
		val = traceDisabled
	}
	_ = c.Set([]byte(url), []byte(val), 0)
}

// getURLTrace gets the trace decision of a URL
func (c *urlCache) getURLTrace(url string) (bool, error) {
	traceStr, err := c.Get([]byte(url))
	if err != nil {
		return false, err
	}
	return string(traceStr) == traceEnabled, nil
}

// Filter defines a URL filter
type Filter interface {
	Match(url string) bool
}

// RegexFilter is a regular expression based URL filter
type RegexFilter struct {
	Regex *regexp.Regexp
}

// NewRegexFilter creates a new RegexFilter instance
func NewRegexFilter(regex string) (*RegexFilter, error) {
	re, err := regexp.Compile(regex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse regexp")
	}
	return &RegexFilter{Regex: re}, nil
}

// Match checks if the url matches the filter
func (f *RegexFilter) Match(url string) bool {
	return f.Regex.MatchString(url)
}

// ExtensionFilter is an extension-based filter
type ExtensionFilter struct {
	Exts map[string]struct{}
}

// NewExtensionFilter creates a new instance of ExtensionFilter
func NewExtensionFilter(extensions []string) *ExtensionFilter {
	exts := make(map[string]struct{})
	for _, ext := range extensions {
		exts[ext] = struct{}{}
	}
	return &ExtensionFilter{Exts: exts}
}

// Match checks if the url matches the filter
func (f *ExtensionFilter) Match(url string) bool {
	_, ok := f.Exts[filepath.Ext(url)]
	return ok
}

type urlFilter struct {
	cache   *urlCache
	filters []Filter
}

func newURLFilter() *urlFilter {
	return &urlFilter{
		cache: &urlCache{freecache.NewCache(1024 * 1024)},
	}
}

func (f *urlFilter) loadConfig(filters []config.URLFilter) {
	for _, filter := range filters {
		if filter.Tracing == config.EnabledTracingMode {
			continue
		}

		if filter.RegEx != "" {
			re, err := NewRegexFilter(filter.RegEx)
			if err != nil {
				log.Warningf("Ignoring bad regex: %s, error=%s", filter.RegEx, err.Error())
				continue
			}
			f.filters = append(f.filters, re)
		} else {
			f.filters = append(f.filters, NewExtensionFilter(filter.Extensions))
		}
	}
}

// ShouldTrace checks if the URL should be traced or not.
func (f *urlFilter) ShouldTrace(url string) bool {
	if len(f.filters) == 0 {
		return true
	}

	trace, err := f.cache.getURLTrace(url)
	if err == nil {
		return trace
	}

	trace = f.shouldTrace(url)
	f.cache.setURLTrace(url, trace)

	return trace
}

func (f *urlFilter) shouldTrace(url string) bool {
	for _, filter := range f.filters {
		if filter.Match(url) {
			return false
		}
	}
	return true
}

// ShouldTraceURL checks the URL filters to decide if an outbound request to
// the URL should be instrumented.
func ShouldTraceURL(url string) bool {
	return globalURLFilter.ShouldTrace(url)
}

// ReloadURLFilter rebuilds the URL filter from the current configuration.
// It is intended for tests.
func ReloadURLFilter() {
	f := newURLFilter()
	f.loadConfig(config.GetURLFiltering())
	globalURLFilter = f
}
