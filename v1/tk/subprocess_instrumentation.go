// Copyright (C) 2021 TraceKit, Inc. All rights reserved.
// TraceKit child-process instrumentation for Go

package tk

import (
	"os"
	"os/exec"
	"strings"

	"golang.org/x/net/context"

	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/utils"
)

// maximum argv length rendered element-by-element; longer vectors fall back
// to a single safe representation
const maxSpawnArgs = 100

// StartCommand starts cmd inside a subprocess span and hands the current
// propagation headers to the child through its environment. The caller's
// cmd.Env slice and the parent process environment are never modified; when
// headers need to be injected the command gets a fresh copy.
func StartCommand(ctx context.Context, cmd *exec.Cmd) error {
	hub := HubFromContext(ctx)
	if !hub.IntegrationActive(IntegrationSubprocess) {
		return cmd.Start()
	}

	injectCommandEnv(hub, cmd)

	span := hub.BeginSpan(OpSubprocess, spawnDescription(cmd.Args))
	if cmd.Dir != "" {
		span.AddEndArgs(keyCwd, cmd.Dir)
	}
	if err := cmd.Start(); err != nil {
		span.Err(err)
		span.End()
		return err
	}
	span.End()
	return nil
}

// RunCommand runs cmd to completion inside a subprocess span. Unlike
// StartCommand the span covers the whole child lifetime and records the
// exit status.
func RunCommand(ctx context.Context, cmd *exec.Cmd) error {
	hub := HubFromContext(ctx)
	if !hub.IntegrationActive(IntegrationSubprocess) {
		return cmd.Run()
	}

	injectCommandEnv(hub, cmd)

	span := hub.BeginSpan(OpSubprocess, spawnDescription(cmd.Args))
	if cmd.Dir != "" {
		span.AddEndArgs(keyCwd, cmd.Dir)
	}
	err := cmd.Run()
	if err != nil {
		span.Err(err)
	}
	if cmd.ProcessState != nil {
		span.AddEndArgs(keyExitStatus, cmd.ProcessState.ExitCode())
	}
	span.End()
	return err
}

// injectCommandEnv appends the hub's propagation headers to the command's
// environment, copying the inherited or caller-supplied environment first.
// With no headers to propagate the command is left untouched.
func injectCommandEnv(hub Hub, cmd *exec.Cmd) {
	headers := hub.PropagationHeaders()
	if len(headers) == 0 {
		return
	}
	var env []string
	if cmd.Env != nil {
		env = append(env, cmd.Env...)
	} else {
		env = os.Environ()
	}
	for _, h := range headers {
		env = append(env, EnvKey(h.Name)+"="+h.Value)
	}
	cmd.Env = env
}

// spawnDescription renders a command argument vector as the span
// description. String vectors of reasonable length are joined with spaces,
// with a per-element guard against misbehaving values; anything else is
// rendered as a single safe representation.
func spawnDescription(args interface{}) string {
	switch v := args.(type) {
	case []string:
		if len(v) < maxSpawnArgs {
			return strings.Join(v, " ")
		}
	case []interface{}:
		if len(v) < maxSpawnArgs {
			parts := make([]string, 0, len(v))
			for _, a := range v {
				s, ok := utils.SafeString(a)
				if !ok {
					return utils.SafeRepr(args)
				}
				parts = append(parts, s)
			}
			return strings.Join(parts, " ")
		}
	}
	return utils.SafeRepr(args)
}

// SpawnFunc is a loosely-typed process launcher taking positional and
// keyword arguments, in the style of dynamic process-spawn APIs. args
// (position 0) is the argument vector, cwd (position 9) the working
// directory, env (position 10) the environment map; a nil env means the
// child inherits the parent environment.
type SpawnFunc func(a *Arguments) error

// WrapSpawn wraps a loosely-typed launcher so that every call runs inside a
// subprocess span and carries hub's propagation headers in the child
// environment. The caller's env map is never mutated: when headers are
// injected the wrapped launcher sees a copy.
func WrapSpawn(hub Hub, spawn SpawnFunc) SpawnFunc {
	return func(a *Arguments) error {
		if !hub.IntegrationActive(IntegrationSubprocess) {
			return spawn(a)
		}

		args := a.Extract("args", 0, nil)
		cwd := a.Extract("cwd", 9, nil)

		if headers := hub.PropagationHeaders(); len(headers) != 0 {
			env := a.Extract("env", 10, func(cur interface{}) interface{} {
				return environMap(cur)
			})
			if m, ok := env.(map[string]string); ok {
				for _, h := range headers {
					m[EnvKey(h.Name)] = h.Value
				}
			}
		}

		span := hub.BeginSpan(OpSubprocess, spawnDescription(args))
		if s, ok := cwd.(string); ok && s != "" {
			span.AddEndArgs(keyCwd, s)
		}
		if err := spawn(a); err != nil {
			span.Err(err)
			span.End()
			return err
		}
		span.End()
		return nil
	}
}

// environMap copies cur into a fresh map[string]string; a nil cur yields a
// copy of the parent process environment.
func environMap(cur interface{}) interface{} {
	if m, ok := cur.(map[string]string); ok {
		return utils.CopyMap(m)
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
