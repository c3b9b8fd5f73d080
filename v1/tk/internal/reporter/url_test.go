// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package reporter

import (
	"testing"

	"github.com/coocood/freecache"
	"github.com/stretchr/testify/assert"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/config"
)

func TestURLCache(t *testing.T) {
	cache := &urlCache{freecache.NewCache(1024 * 1024)}

	cache.setURLTrace("traced_1", true)
	cache.setURLTrace("not_traced_1", false)
	assert.Equal(t, int64(2), cache.EntryCount())

	trace, err := cache.getURLTrace("traced_1")
	assert.Nil(t, err)
	assert.True(t, trace)
	assert.Equal(t, int64(1), cache.HitCount())

	trace, err = cache.getURLTrace("not_traced_1")
	assert.Nil(t, err)
	assert.False(t, trace)

	_, err = cache.getURLTrace("non_exist_1")
	assert.NotNil(t, err)
	assert.Equal(t, int64(1), cache.MissCount())
}

func TestURLFilter(t *testing.T) {
	filter := newURLFilter()
	filter.loadConfig([]config.URLFilter{
		{Type: "url", RegEx: `user\d{3}`, Tracing: config.DisabledTracingMode},
		{Type: "url", Extensions: []string{".png", ".jpg"}, Tracing: config.DisabledTracingMode},
	})

	assert.False(t, filter.ShouldTrace("http://test.com/user123"))
	assert.True(t, filter.ShouldTrace("http://test.com/test123"))
	assert.False(t, filter.ShouldTrace("http://user.com/eric/avatar.png"))

	// cached decision
	assert.False(t, filter.ShouldTrace("http://test.com/user123"))
	assert.NotZero(t, filter.cache.HitCount())
}

func TestURLFilterNoRules(t *testing.T) {
	filter := newURLFilter()
	assert.True(t, filter.ShouldTrace("http://anything.at/all"))
}

func TestURLFilterBadRegex(t *testing.T) {
	filter := newURLFilter()
	filter.loadConfig([]config.URLFilter{
		{Type: "url", RegEx: `(`, Tracing: config.DisabledTracingMode},
	})
	assert.Empty(t, filter.filters)
	assert.True(t, filter.ShouldTrace("http://test.com/anything"))
}
