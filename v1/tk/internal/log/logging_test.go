// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package log

import (
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/utils"
)

func TestDebugLevel(t *testing.T) {
	tests := []struct {
		val      string
		expected LogLevel
	}{
		{"DEBUG", DEBUG},
		{"Info", INFO},
		{"warn", WARNING},
		{"erroR", ERROR},
		{"erroR  ", ERROR},
		{"HelloWorld", DefaultLevel},
		{"", DefaultLevel},
	}

	for _, test := range tests {
		os.Setenv(envTraceKitLogLevel, test.val)
		SetLevelFromStr(os.Getenv(envTraceKitLogLevel))
		assert.EqualValues(t, test.expected, Level(), "Test-"+test.val)
	}

	os.Unsetenv(envTraceKitLogLevel)
	SetLevelFromStr(os.Getenv(envTraceKitLogLevel))
	assert.EqualValues(t, DefaultLevel, Level())
}

func TestLog(t *testing.T) {
	buffer := &utils.SafeBuffer{}
	SetOutput(buffer)
	defer SetOutput(os.Stderr)

	SetLevel(DEBUG)
	defer SetLevel(DefaultLevel)

	tests := map[string]string{
		"hello world": "hello world\n",
		"":            "\n",
		"hello %s":    "hello %!s(MISSING)\n",
	}

	for str, expected := range tests {
		buffer.Reset()
		Logf(INFO, str)
		assert.True(t, strings.HasSuffix(buffer.String(), expected))
	}

	buffer.Reset()
	Log(INFO, 1, 2, 3)
	assert.True(t, strings.HasSuffix(buffer.String(), "1 2 3\n"))

	buffer.Reset()
	Debug(1, "abc", 3)
	assert.True(t, strings.HasSuffix(buffer.String(), "1abc3\n"))
	assert.Contains(t, buffer.String(), "logging_test.go")

	buffer.Reset()
	Error(errors.New("hello"))
	assert.True(t, strings.HasSuffix(buffer.String(), "hello\n"))

	buffer.Reset()
	Warning("Áú")
	assert.True(t, strings.HasSuffix(buffer.String(), "Áú\n"))

	buffer.Reset()
	Info("hello")
	assert.True(t, strings.HasSuffix(buffer.String(), "hello\n"))
}

func TestLevelGating(t *testing.T) {
	buffer := &utils.SafeBuffer{}
	SetOutput(buffer)
	defer SetOutput(os.Stderr)

	SetLevel(ERROR)
	defer SetLevel(DefaultLevel)

	Debug("drop me")
	Info("drop me")
	Warning("drop me")
	assert.Equal(t, "", buffer.String())

	Error("keep me")
	assert.Contains(t, buffer.String(), "keep me")
}
