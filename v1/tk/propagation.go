// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

import (
	"sort"
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

// EnvPrefix is the fixed namespace token prepended to every propagation
// header injected into a child-process environment. It is the package's only
// wire protocol: header name `H` becomes `SUBPROCESS_<H upper-cased, dashes
// replaced with underscores>`.
const EnvPrefix = "SUBPROCESS_"

// Header is one (name, value) pair carrying trace context to a peer.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered sequence of propagation headers.
type Headers []Header

// EnvKey converts a header name into its environment variable form,
// including the namespace prefix.
func EnvKey(name string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// headerName reverses EnvKey for a key whose prefix has been stripped,
// restoring the lower-case, dash-separated header naming convention.
func headerName(envKey string) string {
	return strings.ToLower(strings.ReplaceAll(envKey, "_", "-"))
}

// EnvironPairs converts the headers into environment variable pairs using
// the EnvPrefix namespace.
func (hs Headers) EnvironPairs() map[string]string {
	if len(hs) == 0 {
		return nil
	}
	pairs := make(map[string]string, len(hs))
	for _, h := range hs {
		pairs[EnvKey(h.Name)] = h.Value
	}
	return pairs
}

// HeadersFromEnviron reconstructs propagation headers from an environment in
// the "KEY=value" form of os.Environ, restricted to keys with the given
// prefix. The prefix is stripped and the header naming convention restored.
// The result is sorted by name; the environment itself is never modified.
func HeadersFromEnviron(environ []string, prefix string) Headers {
	var hs Headers
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		hs = append(hs, Header{Name: headerName(strings.TrimPrefix(k, prefix)), Value: v})
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Name < hs[j].Name })
	return hs
}

// EnvironCarrier adapts a prefixed environment map to the OpenTelemetry
// TextMapCarrier interface, so W3C propagators can inject into or extract
// from a child-process environment directly.
type EnvironCarrier struct {
	// Prefix namespaces every key; defaults to EnvPrefix when empty.
	Prefix string
	// Env holds the environment variables, keyed by their full names.
	Env map[string]string
}

var _ propagation.TextMapCarrier = EnvironCarrier{}

func (c EnvironCarrier) prefix() string {
	if c.Prefix == "" {
		return EnvPrefix
	}
	return c.Prefix
}

// Get returns the value for the header key, or "" if unset.
func (c EnvironCarrier) Get(key string) string {
	return c.Env[c.prefix()+strings.ToUpper(strings.ReplaceAll(key, "-", "_"))]
}

// Set stores the header key under its environment variable form.
func (c EnvironCarrier) Set(key, value string) {
	if c.Env == nil {
		return
	}
	c.Env[c.prefix()+strings.ToUpper(strings.ReplaceAll(key, "-", "_"))] = value
}

// Keys lists the header keys present under the carrier's prefix.
func (c EnvironCarrier) Keys() []string {
	var keys []string
	for k := range c.Env {
		if strings.HasPrefix(k, c.prefix()) {
			keys = append(keys, headerName(strings.TrimPrefix(k, c.prefix())))
		}
	}
	sort.Strings(keys)
	return keys
}
