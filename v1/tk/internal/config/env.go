// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/log"
)

// EnvVar defines the necessary properties and behaviors of an environment variable
type EnvVar struct {
	// the name of the environment variable
	name string
}

// Env creates a new EnvVar object
func Env(name string) EnvVar {
	return EnvVar{name}
}

// ToString loads the env and returns a string value
func (e EnvVar) ToString(fallback string) string {
	v := os.Getenv(e.name)
	if v != "" {
		return v
	}
	return fallback
}

func toBool(s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "yes" || s == "true" {
		return true, nil
	} else if s == "no" || s == "false" {
		return false, nil
	}
	return false, errors.New("cannot convert input to bool")
}

// ToBool loads the env and returns a bool value
func (e EnvVar) ToBool(fallback bool) bool {
	v := os.Getenv(e.name)
	if v == "" {
		return fallback
	}
	b, err := toBool(v)
	if err != nil {
		log.Warningf("Ignore invalid bool value: %s=%s", e.name, v)
		return fallback
	}
	return b
}

// ToInt loads the env and returns an int value
func (e EnvVar) ToInt(fallback int) int {
	v := os.Getenv(e.name)
	if v == "" {
		return fallback
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		log.Warningf("Ignore invalid int value: %s=%s", e.name, v)
		return fallback
	}
	return i
}
