package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Stage names one externally invoked stage unit and where to reach it.
type Stage struct {
	Name   string `toml:"name"`
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Pipeline contains the ordered stage chain and its execution limits.
type Pipeline struct {
	Stages              []Stage `toml:"stages"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
	OutputField         string  `toml:"output_field"`
	DrainTimeoutSeconds int     `toml:"drain_timeout_seconds"`
}

// Trigger contains the upload event matching rule.
type Trigger struct {
	Bucket         string   `toml:"bucket"`
	Suffixes       []string `toml:"suffixes"`
	Source         string   `toml:"source"`
	DetailType     string   `toml:"detail_type"`
	InspectObjects bool     `toml:"inspect_objects"`
}

// AppSync contains the downstream GraphQL endpoint and credential.
type AppSync struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifier contains change notification policy and delivery settings.
type Notifier struct {
	NotifyActions        []string `toml:"notify_actions"`
	Delivery             string   `toml:"delivery"`
	MaxAttempts          int      `toml:"max_attempts"`
	InitialBackoffMillis int      `toml:"initial_backoff_ms"`
	MaxBackoffMillis     int      `toml:"max_backoff_ms"`
	BackoffFactor        float64  `toml:"backoff_factor"`
	DeadLetter           string   `toml:"dead_letter"`
	DeadLetterBucket     string   `toml:"dead_letter_bucket"`
	DeadLetterPrefix     string   `toml:"dead_letter_prefix"`
}

// AWS contains SDK settings shared by the S3 integrations.
type AWS struct {
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// AMQP contains the upload event queue and execution status exchange.
type AMQP struct {
	Enabled          bool   `toml:"enabled"`
	URL              string `toml:"url"`
	UploadQueue      string `toml:"upload_queue"`
	StatusExchange   string `toml:"status_exchange"`
	StatusRoutingKey string `toml:"status_routing_key"`
	Prefetch         int    `toml:"prefetch"`
	ReconnectSeconds int    `toml:"reconnect_seconds"`
}

// JetStream contains the change stream consumer settings.
type JetStream struct {
	Enabled          bool   `toml:"enabled"`
	URL              string `toml:"url"`
	Stream           string `toml:"stream"`
	Subject          string `toml:"subject"`
	Durable          string `toml:"durable"`
	BatchSize        int    `toml:"batch_size"`
	FetchWaitSeconds int    `toml:"fetch_wait_seconds"`
}

// API contains the daemon HTTP listener settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy operator alerts.
type Notifications struct {
	NtfyTopic         string `toml:"ntfy_topic"`
	RequestTimeout    int    `toml:"request_timeout"`
	ExecutionFailures bool   `toml:"execution_failures"`
	DeadLetters       bool   `toml:"dead_letters"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidflow.
//
// Configuration sections by subsystem:
//   - Paths: data (SQLite archive, lock) and log directories
//   - Pipeline: ordered stage endpoints, overall timeout, envelope field
//   - Trigger: bucket and suffix rule for upload events
//   - AppSync: downstream GraphQL endpoint for change notifications
//   - Notifier: notification policy, retry, and dead-letter settings
//   - AWS: region and endpoint override for S3
//   - AMQP: upload event queue and status exchange
//   - JetStream: change stream consumer
//   - API: daemon HTTP listener
//   - Notifications: ntfy operator alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Trigger       Trigger       `toml:"trigger"`
	AppSync       AppSync       `toml:"appsync"`
	Notifier      Notifier      `toml:"notifier"`
	AWS           AWS           `toml:"aws"`
	AMQP          AMQP          `toml:"amqp"`
	JetStream     JetStream     `toml:"jetstream"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the SQLite archive location.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, "vidflow.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidflowd.lock")
}

// PipelineTimeout returns the overall execution deadline.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Pipeline.TimeoutSeconds) * time.Second
}

// DrainTimeout bounds how long shutdown waits for in-flight executions.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Pipeline.DrainTimeoutSeconds) * time.Second
}

// AppSyncTimeout returns the per-request timeout for downstream calls.
func (c *Config) AppSyncTimeout() time.Duration {
	return time.Duration(c.AppSync.RequestTimeout) * time.Second
}

// StageNames returns the configured stage names in order.
func (c *Config) StageNames() []string {
	names := make([]string, 0, len(c.Pipeline.Stages))
	for _, stg := range c.Pipeline.Stages {
		names = append(names, stg.Name)
	}
	return names
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
