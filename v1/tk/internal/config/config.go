// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

// Package config is responsible for loading the agent configuration from its
// various sources: built-in defaults, an optional YAML configuration file and
// environment variables, in ascending order of precedence.
//
// In order to add a new configuration item, you need to:
//   - add a field to the Config struct with its yaml tag,
//   - load it in loadEnvs() if it may come from the environment,
//   - add a getter and a wrapper for the global `GlobalConfig` (see wrappers.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tracekit/tracekit-apm-go/v1/tk/internal/log"
	"gopkg.in/yaml.v2"
)

// The environment variables
const (
	envTraceKitDisabled   = "TRACEKIT_DISABLED"
	envTraceKitReporter   = "TRACEKIT_REPORTER"
	envTraceKitEventsFile = "TRACEKIT_EVENTS_FILE"
	envTraceKitDebugLevel = "TRACEKIT_DEBUG_LEVEL"
	envTraceKitConfigFile = "TRACEKIT_CONFIG_FILE"
)

// max config file size = 1MB
const maxConfigFileSize = 1024 * 1024

// Errors
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFileTooLarge      = errors.New("file size exceeds limit")
)

// Tracing modes of a URL filter
const (
	EnabledTracingMode  = "enabled"
	DisabledTracingMode = "disabled"
)

// URLFilter defines one outbound URL filtering rule. URLs matched by a rule
// whose Tracing is "disabled" are passed through without instrumentation.
type URLFilter struct {
	Type       string   `yaml:"type"` // "url" is the only supported type
	RegEx      string   `yaml:"regexp,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
	Tracing    string   `yaml:"tracing"`
}

// Config is the struct to define the agent configuration. The configuration
// options in this struct are not intended for dynamic updating.
type Config struct {
	sync.RWMutex `yaml:"-"`

	// Disabled turns the agent off entirely: all interceptors pass through.
	Disabled bool `yaml:"disabled,omitempty"`

	// ReporterType picks the event sink: "log" or "none".
	ReporterType string `yaml:"reporterType,omitempty"`

	// EventsFile is the destination path of the log reporter. Empty means
	// stderr.
	EventsFile string `yaml:"eventsFile,omitempty"`

	// DebugLevel is the agent's internal logging level.
	DebugLevel string `yaml:"debugLevel,omitempty"`

	// URLFiltering lists the outbound URL filtering rules.
	URLFiltering []URLFilter `yaml:"urlFiltering,omitempty"`
}

// GlobalConfig is the global configuration of the agent.
var GlobalConfig = NewConfig()

// NewConfig initializes a Config object with defaults, the config file and
// environment variables applied in order.
func NewConfig() *Config {
	c := &Config{}
	if err := c.Load(); err != nil {
		log.Warningf("config load: %v", err)
	}
	return c
}

// Load reads the configuration from all sources. The receiver is reset to
// defaults first.
func (c *Config) Load() error {
	c.Lock()
	defer c.Unlock()

	c.reset()

	if err := c.loadConfigFile(); err != nil {
		return errors.Wrap(err, "Load")
	}
	c.loadEnvs()

	return c.validate()
}

func (c *Config) reset() {
	c.Disabled = false
	c.ReporterType = "log"
	c.EventsFile = ""
	c.DebugLevel = log.LevelStr[log.DefaultLevel]
	c.URLFiltering = nil
}

func (c *Config) loadEnvs() {
	c.Disabled = Env(envTraceKitDisabled).ToBool(c.Disabled)
	c.ReporterType = Env(envTraceKitReporter).ToString(c.ReporterType)
	c.EventsFile = Env(envTraceKitEventsFile).ToString(c.EventsFile)
	c.DebugLevel = Env(envTraceKitDebugLevel).ToString(c.DebugLevel)
}

func (c *Config) validate() error {
	c.ReporterType = strings.ToLower(strings.TrimSpace(c.ReporterType))
	switch c.ReporterType {
	case "log", "none":
	default:
		log.Warningf("Ignore invalid reporter type: %s", c.ReporterType)
		c.ReporterType = "log"
	}

	if _, ok := log.ToLogLevel(c.DebugLevel); !ok {
		log.Warningf("Ignore invalid debug level: %s", c.DebugLevel)
		c.DebugLevel = log.LevelStr[log.DefaultLevel]
	}

	var filters []URLFilter
	for _, f := range c.URLFiltering {
		if f.Type != "url" {
			log.Warningf("Ignore URL filter of unknown type: %s", f.Type)
			continue
		}
		if f.Tracing != EnabledTracingMode && f.Tracing != DisabledTracingMode {
			log.Warningf("Ignore URL filter with invalid tracing mode: %s", f.Tracing)
			continue
		}
		filters = append(filters, f)
	}
	c.URLFiltering = filters

	return nil
}

func (c *Config) getConfigPath() string {
	path := os.Getenv(envTraceKitConfigFile)
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (c *Config) checkFileSize(path string) error {
	file, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "checkFileSize")
	}
	if size := file.Size(); size > maxConfigFileSize {
		return errors.Wrap(ErrFileTooLarge, fmt.Sprintf("File size: %d", size))
	}
	return nil
}

func (c *Config) loadYaml(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "loadYaml")
	}

	// The config struct is modified in place so we won't tolerate any error
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, "loadYaml")
	}
	return nil
}

// loadConfigFile loads from the config file
func (c *Config) loadConfigFile() error {
	path := c.getConfigPath()
	if path == "" {
		log.Debug("No config file found.")
		return nil
	}

	if err := c.checkFileSize(path); err != nil {
		return errors.Wrap(err, "loadConfigFile")
	}

	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		log.Warningf("Loading config file: %s", path)
		return c.loadYaml(path)
	default:
		return errors.Wrap(ErrUnsupportedFormat, path)
	}
}

// GetDisabled returns whether the agent is disabled
func (c *Config) GetDisabled() bool {
	c.RLock()
	defer c.RUnlock()
	return c.Disabled
}

// GetReporterType returns the reporter type
func (c *Config) GetReporterType() string {
	c.RLock()
	defer c.RUnlock()
	return c.ReporterType
}

// GetEventsFile returns the destination path of the log reporter
func (c *Config) GetEventsFile() string {
	c.RLock()
	defer c.RUnlock()
	return c.EventsFile
}

// GetDebugLevel returns the agent's internal logging level
func (c *Config) GetDebugLevel() string {
	c.RLock()
	defer c.RUnlock()
	return c.DebugLevel
}

// GetURLFiltering returns the outbound URL filtering rules
func (c *Config) GetURLFiltering() []URLFilter {
	c.RLock()
	defer c.RUnlock()
	return c.URLFiltering
}
