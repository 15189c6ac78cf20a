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

// API contains the trigger/query HTTP surface settings.
type API struct {
	Bind              string `toml:"bind"`
	Token             string `toml:"token"`
	TrustProxyHeaders bool   `toml:"trust_proxy_headers"`
}

// Database selects and tunes the run/event store.
type Database struct {
	Driver                 string `toml:"driver"`
	Path                   string `toml:"path"`
	URL                    string `toml:"url"`
	MaxOpenConns           int    `toml:"max_open_conns"`
	MaxIdleConns           int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `toml:"conn_max_lifetime_seconds"`
	PingTimeoutSeconds     int    `toml:"ping_timeout_seconds"`
}

// Redis contains the shared counter store and asynq broker connection.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RateLimit contains admission control settings for the trigger endpoint.
type RateLimit struct {
	Enabled       bool   `toml:"enabled"`
	Requests      int    `toml:"requests"`
	WindowSeconds int    `toml:"window_seconds"`
	Store         string `toml:"store"`
}

// Pipeline contains orchestrator and worker timing.
type Pipeline struct {
	StageTimeoutSeconds      int            `toml:"stage_timeout_seconds"`
	StageTimeouts            map[string]int `toml:"stage_timeouts"`
	Concurrency              int            `toml:"concurrency"`
	Handoff                  string         `toml:"handoff"`
	PollIntervalSeconds      int            `toml:"poll_interval_seconds"`
	ErrorRetrySeconds        int            `toml:"error_retry_seconds"`
	HeartbeatIntervalSeconds int            `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int            `toml:"heartbeat_timeout_seconds"`
}

// Media contains inputs and tooling for the stage executors.
type Media struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	AudioDir      string `toml:"audio_dir"`
	PlaylistMin   int    `toml:"playlist_min"`
	PlaylistMax   int    `toml:"playlist_max"`
	LoopVideo     string `toml:"loop_video"`
	LoopSeconds   int    `toml:"loop_seconds"`
	IntroVideo    string `toml:"intro_video"`
	OutroVideo    string `toml:"outro_video"`
	ImagePrompt   string `toml:"image_prompt"`
}

// Publish contains the final upload target and default metadata.
type Publish struct {
	Target      string   `toml:"target"`
	Title       string   `toml:"title"`
	Description string   `toml:"description"`
	Tags        []string `toml:"tags"`
}

// ObjectStore contains S3-compatible storage settings for the object_store target.
type ObjectStore struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// Schedule contains the optional cron trigger.
type Schedule struct {
	Cron      string `toml:"cron"`
	CallerKey string `toml:"caller_key"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunStarted     bool   `toml:"run_started"`
	RunSucceeded   bool   `toml:"run_succeeded"`
	RunFailed      bool   `toml:"run_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for lofi.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - API: HTTP bind address, bearer token, proxy header trust
//   - Database: run/event store backend (sqlite or postgres)
//   - Redis: rate window store and asynq broker
//   - RateLimit: trigger admission ceiling and window
//   - Pipeline: stage timeouts, handoff mode, worker intervals
//   - Media: ffmpeg tooling and stage inputs
//   - Publish / ObjectStore: upload target
//   - Schedule: cron-driven triggers
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Database      Database      `toml:"database"`
	Redis         Redis         `toml:"redis"`
	RateLimit     RateLimit     `toml:"rate_limit"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Media         Media         `toml:"media"`
	Publish       Publish       `toml:"publish"`
	ObjectStore   ObjectStore   `toml:"object_store"`
	Schedule      Schedule      `toml:"schedule"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lofi/config.toml")
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lofi.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.RunsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Database.Driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	return nil
}

// RunsDir is the parent of every per-run work directory.
func (c *Config) RunsDir() string {
	return filepath.Join(c.Paths.DataDir, "runs")
}

// RunWorkDir returns the scratch directory for a single run.
func (c *Config) RunWorkDir(runID string) string {
	return filepath.Join(c.RunsDir(), runID)
}

// SimulatedUploadsDir receives metadata written by the simulated publish target.
func (c *Config) SimulatedUploadsDir() string {
	return filepath.Join(c.Paths.DataDir, "simulated_uploads")
}

// StageTimeout returns the execution bound for the named stage.
func (c *Config) StageTimeout(stage string) time.Duration {
	if seconds, ok := c.Pipeline.StageTimeouts[stage]; ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}

// RateWindow returns the configured rate limit window.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
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

// SampleConfig returns the commented sample configuration.
func SampleConfig() string {
	return sampleConfig
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
