// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package tk

// Arguments captures the positional vector and keyword map of a loosely
// typed call, so an interceptor can read or default individual parameters
// without knowing the wrapped function's full signature.
type Arguments struct {
	Positional []interface{}
	Keyword    map[string]interface{}
}

// Extract retrieves (and optionally sets a default for) an argument by
// either name or canonical position.
//
// If the argument is present - as a keyword or within positional bounds -
// its value is passed through defaultFn (when given) and the non-nil result
// written back to the same slot. If the argument is absent, defaultFn(nil)
// is computed and a non-nil result inserted as a new keyword argument.
// The final resolved value, possibly nil, is returned in all cases.
//
// With a nil defaultFn the call is a pure read: no slot is ever written, so
// it is safe for speculative lookups.
func (a *Arguments) Extract(name string, position int, defaultFn func(interface{}) interface{}) interface{} {
	if v, ok := a.Keyword[name]; ok {
		if defaultFn != nil {
			v = defaultFn(v)
			if v != nil {
				a.Keyword[name] = v
			}
		}
		return v
	}

	if position >= 0 && position < len(a.Positional) {
		v := a.Positional[position]
		if defaultFn != nil {
			v = defaultFn(v)
			if v != nil {
				a.Positional[position] = v
			}
		}
		return v
	}

	if defaultFn == nil {
		return nil
	}
	v := defaultFn(nil)
	if v != nil {
		if a.Keyword == nil {
			a.Keyword = make(map[string]interface{})
		}
		a.Keyword[name] = v
	}
	return v
}
