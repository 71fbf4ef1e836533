package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.PollInterval.Duration() != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", cfg.PollInterval.Duration())
	}
	if cfg.Timeout.Duration() != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout.Duration())
	}
	if cfg.MaxConcurrency != 20 {
		t.Errorf("MaxConcurrency = %d, want 20", cfg.MaxConcurrency)
	}
	if cfg.Grace() != 5*time.Second {
		t.Errorf("Grace() = %v, want 5s", cfg.Grace())
	}
	if cfg.SourcesFile != "sources.json" {
		t.Errorf("SourcesFile = %q, want sources.json", cfg.SourcesFile)
	}
	if cfg.FirstSeen != "notify" {
		t.Errorf("FirstSeen = %q, want notify", cfg.FirstSeen)
	}
	if cfg.State.Driver != "file" || cfg.State.Path != "state.json" {
		t.Errorf("State = %+v, want file state.json", cfg.State)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Output.Format = %q, want text", cfg.Output.Format)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info json", cfg.Log)
	}
	if cfg.HTTP.Port != 0 || cfg.HTTP.HistorySize != 50 {
		t.Errorf("HTTP = %+v, want port 0, history 50", cfg.HTTP)
	}
	if cfg.RateLimit.RequestsPerSecond != 0 || cfg.RateLimit.Burst != 1 {
		t.Errorf("RateLimit = %+v, want disabled with burst 1", cfg.RateLimit)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
poll_interval: 2m
timeout: 5s
max_concurrency: 8
grace_period: 0s
sources_file: /etc/statuswatch/sources.yaml
watch_sources: true
first_seen: seed
user_agent: ops-bot/1.0
rate_limit:
  requests_per_second: 4
  burst: 2
state:
  driver: sqlite
  path: /var/lib/statuswatch/state.db
output:
  format: json
  path: /var/log/statuswatch/changes.log
log:
  level: debug
  format: text
  file: /var/log/statuswatch/error.log
http:
  port: 9090
  history_size: 200
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.PollInterval.Duration() != 2*time.Minute {
		t.Errorf("PollInterval = %v, want 2m", cfg.PollInterval.Duration())
	}
	if cfg.Timeout.Duration() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout.Duration())
	}
	if cfg.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", cfg.MaxConcurrency)
	}
	if cfg.Grace() != 0 {
		t.Errorf("Grace() = %v, want 0 when set explicitly", cfg.Grace())
	}
	if cfg.SourcesFile != "/etc/statuswatch/sources.yaml" || !cfg.WatchSources {
		t.Errorf("SourcesFile = %q, WatchSources = %v", cfg.SourcesFile, cfg.WatchSources)
	}
	if cfg.FirstSeen != "seed" {
		t.Errorf("FirstSeen = %q, want seed", cfg.FirstSeen)
	}
	if cfg.UserAgent != "ops-bot/1.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.RateLimit.RequestsPerSecond != 4 || cfg.RateLimit.Burst != 2 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.State.Driver != "sqlite" || cfg.State.Path != "/var/lib/statuswatch/state.db" {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.Output.Format != "json" || cfg.Output.Path != "/var/log/statuswatch/changes.log" {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" || cfg.Log.File != "/var/log/statuswatch/error.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.HTTP.Port != 9090 || cfg.HTTP.HistorySize != 200 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
}

func TestParse_MemoryDriverNeedsNoPath(t *testing.T) {
	cfg, err := Parse([]byte("state:\n  driver: memory\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.State.Path != "" {
		t.Errorf("State.Path = %q, want empty", cfg.State.Path)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{"poll interval too short", "poll_interval: 500ms", "poll_interval must be at least 1s"},
		{"negative timeout", "timeout: -1s", "timeout must be positive"},
		{"negative concurrency", "max_concurrency: -2", "max_concurrency must be at least 1"},
		{"negative grace", "grace_period: -1s", "grace_period cannot be negative"},
		{"unknown policy", "first_seen: loud", "first_seen must be notify or seed"},
		{"negative rate", "rate_limit: {requests_per_second: -1}", "requests_per_second cannot be negative"},
		{"negative burst", "rate_limit: {burst: -1}", "rate_limit.burst must be at least 1"},
		{"unknown driver", "state: {driver: redis}", "state.driver must be file, sqlite, bolt or memory"},
		{"sqlite without path", "state: {driver: sqlite}", "state.path is required"},
		{"unknown output format", "output: {format: xml}", "output.format must be text or json"},
		{"unknown log level", "log: {level: loud}", "log.level must be"},
		{"unknown log format", "log: {format: logfmt}", "log.format must be json or text"},
		{"port too high", "http: {port: 70000}", "http.port must be between 0 and 65535"},
		{"negative history", "http: {history_size: -1}", "http.history_size must be at least 1"},
		{"unknown key", "pol_interval: 10s", "field pol_interval not found"},
		{"invalid duration", "timeout: soon", "invalid duration"},
		{"invalid yaml", "timeout: [", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErrLike)
			}
		})
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvStateFile, "/data/state.json")
	t.Setenv(EnvSourcesFile, "/data/sources.json")
	t.Setenv(EnvErrorLogFile, "/data/error.log")
	t.Setenv(EnvPollInterval, "30")
	t.Setenv(EnvPort, "8081")

	cfg, err := Parse([]byte(`
sources_file: other.json
poll_interval: 5m
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.State.Path != "/data/state.json" {
		t.Errorf("State.Path = %q", cfg.State.Path)
	}
	if cfg.SourcesFile != "/data/sources.json" {
		t.Errorf("SourcesFile = %q", cfg.SourcesFile)
	}
	if cfg.Log.File != "/data/error.log" {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}
	if cfg.PollInterval.Duration() != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval.Duration())
	}
	if cfg.HTTP.Port != 8081 {
		t.Errorf("HTTP.Port = %d, want 8081", cfg.HTTP.Port)
	}
}

func TestParse_EnvPollIntervalDuration(t *testing.T) {
	t.Setenv(EnvPollInterval, "90s")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.PollInterval.Duration() != 90*time.Second {
		t.Errorf("PollInterval = %v, want 90s", cfg.PollInterval.Duration())
	}
}

func TestParse_EnvInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad interval", EnvPollInterval, "soon"},
		{"interval too short", EnvPollInterval, "0.5"},
		{"bad port", EnvPort, "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Default(); err == nil {
				t.Errorf("Default() with %s=%q expected error, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("STATUSWATCH_DIR", "/srv/statuswatch")

	cfg, err := Parse([]byte(`
sources_file: ${STATUSWATCH_DIR}/sources.json
state:
  path: ${STATUSWATCH_DIR}/state.json
log:
  file: ${LOG_DIR:-/tmp}/error.log
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.SourcesFile != "/srv/statuswatch/sources.json" {
		t.Errorf("SourcesFile = %q", cfg.SourcesFile)
	}
	if cfg.State.Path != "/srv/statuswatch/state.json" {
		t.Errorf("State.Path = %q", cfg.State.Path)
	}
	if cfg.Log.File != "/tmp/error.log" {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	_, err := Parse([]byte(`sources_file: ${DEFINITELY_NOT_SET_STATUSWATCH}/sources.json`))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "sources_file") {
		t.Errorf("error = %v, want it to name sources_file", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "10s", 10 * time.Second, false},
		{"milliseconds", "1500ms", 1500 * time.Millisecond, false},
		{"minutes", "2m", 2 * time.Minute, false},
		{"combined", "1m30s", 90 * time.Second, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte("timeout: " + tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.Timeout.Duration() != tt.want {
				t.Errorf("Timeout = %v, want %v", cfg.Timeout.Duration(), tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statuswatch.yaml")
	if err := os.WriteFile(path, []byte("max_concurrency: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxConcurrency != 3 {
		t.Errorf("MaxConcurrency = %d, want 3", cfg.MaxConcurrency)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Load() error = %v, want read error", err)
	}
}
