// Package config provides YAML configuration parsing for statuswatch.
//
// This package enables running statuswatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// A configuration file is optional: defaults plus environment overrides are
// enough to run.
//
// Example configuration:
//
//	poll_interval: 60s
//	timeout: 10s
//	max_concurrency: 20
//	sources_file: sources.json
//	first_seen: notify
//
//	state:
//	  driver: file
//	  path: ${STATE_DIR:-.}/state.json
//
//	log:
//	  level: info
//	  file: error.log
//
//	http:
//	  port: 8080
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval.
// This prevents accidental hammering of vendor status pages.
const minPollInterval = 1 * time.Second

const (
	defaultPollInterval   = 60 * time.Second
	defaultTimeout        = 10 * time.Second
	defaultMaxConcurrency = 20
	defaultGracePeriod    = 5 * time.Second
	defaultSourcesFile    = "sources.json"
	defaultStateFile      = "state.json"
	defaultHistorySize    = 50
)

// Environment variables that override the file.
const (
	EnvStateFile    = "STATE_FILE"
	EnvSourcesFile  = "SOURCES_FILE"
	EnvPollInterval = "POLL_INTERVAL"
	EnvErrorLogFile = "ERROR_LOG_FILE"
	EnvPort         = "PORT"
)

// Config is the root configuration structure for statuswatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load], [Parse] or [Default] to create a Config.
type Config struct {
	// PollInterval is the pause between poll cycles. Defaults to 60s.
	PollInterval Duration `yaml:"poll_interval"`

	// Timeout bounds each feed request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// MaxConcurrency is how many feeds are fetched at once. Defaults to 20.
	MaxConcurrency int `yaml:"max_concurrency"`

	// GracePeriod is how long in-flight fetches may run after shutdown is
	// requested. Defaults to 5s; an explicit 0s abandons immediately.
	GracePeriod *Duration `yaml:"grace_period"`

	// SourcesFile is the JSON or YAML name → URL mapping.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	SourcesFile string `yaml:"sources_file"`

	// WatchSources polls early when the sources file changes.
	WatchSources bool `yaml:"watch_sources"`

	// FirstSeen is notify or seed. Defaults to notify.
	FirstSeen string `yaml:"first_seen"`

	// UserAgent overrides the User-Agent sent with feed requests.
	UserAgent string `yaml:"user_agent"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	State     StateConfig     `yaml:"state"`
	Output    OutputConfig    `yaml:"output"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// RateLimitConfig caps outgoing requests across all sources.
type RateLimitConfig struct {
	// RequestsPerSecond of 0 disables the limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StateConfig selects where the last seen incidents are persisted.
type StateConfig struct {
	// Driver is file, sqlite, bolt or memory. Defaults to file.
	Driver string `yaml:"driver"`

	// Path of the state file or database. Ignored by memory.
	Path string `yaml:"path"`
}

// OutputConfig controls the primary output, which carries change lines only.
type OutputConfig struct {
	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`

	// Path appends change lines to a file instead of stdout.
	Path string `yaml:"path"`
}

// LogConfig controls diagnostics.
type LogConfig struct {
	// Level is debug, info, warn or error. Defaults to info.
	Level string `yaml:"level"`

	// Format is json or text. Defaults to json.
	Format string `yaml:"format"`

	// File appends diagnostics to a file instead of stderr.
	File string `yaml:"file"`
}

// HTTPConfig controls the optional HTTP view.
type HTTPConfig struct {
	// Port enables the HTTP view when > 0.
	Port int `yaml:"port"`

	// HistorySize is how many recent changes are served. Defaults to 50.
	HistorySize int `yaml:"history_size"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Grace returns the configured grace period.
func (c *Config) Grace() time.Duration {
	if c.GracePeriod == nil {
		return defaultGracePeriod
	}
	return c.GracePeriod.Duration()
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no file is given: built-in
// defaults with environment overrides applied.
func Default() (*Config, error) {
	return Parse(nil)
}

// Parse parses YAML configuration data.
//
// Unknown keys are rejected. Defaults are applied, then the environment
// overrides ([EnvStateFile] and friends), then ${VAR} expansion in paths.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(defaultTimeout)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.SourcesFile == "" {
		c.SourcesFile = defaultSourcesFile
	}
	if c.FirstSeen == "" {
		c.FirstSeen = "notify"
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if c.State.Driver == "" {
		c.State.Driver = "file"
	}
	if c.State.Path == "" && c.State.Driver == "file" {
		c.State.Path = defaultStateFile
	}
	if c.Output.Format == "" {
		c.Output.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.HistorySize == 0 {
		c.HTTP.HistorySize = defaultHistorySize
	}
}

// applyEnv applies the environment overrides. POLL_INTERVAL accepts plain
// seconds ("30") or a duration ("30s").
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvStateFile); ok && v != "" {
		c.State.Path = v
	}
	if v, ok := os.LookupEnv(EnvSourcesFile); ok && v != "" {
		c.SourcesFile = v
	}
	if v, ok := os.LookupEnv(EnvErrorLogFile); ok && v != "" {
		c.Log.File = v
	}
	if v, ok := os.LookupEnv(EnvPollInterval); ok && v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.PollInterval = Duration(d)
	}
	if v, ok := os.LookupEnv(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.HTTP.Port = port
	}
	return nil
}

func parseSecondsOrDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (expected seconds or a duration)", s)
	}
	return d, nil
}

// expandAndValidate expands environment variables in paths and validates
// the config.
func (c *Config) expandAndValidate() error {
	paths := []struct {
		name string
		ptr  *string
	}{
		{"sources_file", &c.SourcesFile},
		{"state.path", &c.State.Path},
		{"output.path", &c.Output.Path},
		{"log.file", &c.Log.File},
	}
	for _, p := range paths {
		expanded, err := expandEnvVars(*p.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		*p.ptr = expanded
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.Timeout.Duration() <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout.Duration())
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.Grace() < 0 {
		return fmt.Errorf("grace_period cannot be negative, got %s", c.Grace())
	}
	if strings.TrimSpace(c.SourcesFile) == "" {
		return errors.New("sources_file is required")
	}
	if c.FirstSeen != "notify" && c.FirstSeen != "seed" {
		return fmt.Errorf("first_seen must be notify or seed, got %q", c.FirstSeen)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second cannot be negative, got %v", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst)
	}

	switch c.State.Driver {
	case "file", "sqlite", "bolt":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for driver %q", c.State.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("state.driver must be file, sqlite, bolt or memory, got %q", c.State.Driver)
	}

	if c.Output.Format != "text" && c.Output.Format != "json" {
		return fmt.Errorf("output.format must be text or json, got %q", c.Output.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.HistorySize < 1 {
		return fmt.Errorf("http.history_size must be at least 1, got %d", c.HTTP.HistorySize)
	}

	return nil
}
