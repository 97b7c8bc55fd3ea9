package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration. StagingDir and LogDir default to
// subdirectories of DataDir when left empty.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Workflow contains configuration for daemon timing and the worker pool.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Lease contains configuration for review-task leasing.
type Lease struct {
	DurationSeconds    int `toml:"duration_seconds"`
	RenewalSeconds     int `toml:"renewal_seconds"`
	ReaperInterval     int `toml:"reaper_interval"`
	AuditRetentionDays int `toml:"audit_retention_days"`
}

// SLA contains configuration for the pending-task SLA monitor.
type SLA struct {
	ThresholdSeconds int `toml:"threshold_seconds"`
	CheckInterval    int `toml:"check_interval"`
	MaxListed        int `toml:"max_listed"`
}

// Validation contains limits enforced on submitted videos before any
// pipeline stage runs.
type Validation struct {
	MaxFileSizeBytes   int64    `toml:"max_file_size_bytes"`
	MaxDurationSeconds int      `toml:"max_duration_seconds"`
	AllowedFormats     []string `toml:"allowed_formats"`
}

// StagePolicy describes the retry behavior for a single pipeline stage.
// Zero or negative fields fall back to the stage's repository default.
type StagePolicy struct {
	MaxRetries            int `toml:"max_retries"`
	BackoffCapSeconds     int `toml:"backoff_cap_seconds"`
	AttemptTimeoutSeconds int `toml:"attempt_timeout_seconds"`
}

// Stages contains per-stage retry policies keyed by stage name plus the
// shared backoff base the exponential schedule doubles from.
type Stages struct {
	BackoffBaseSeconds int                    `toml:"backoff_base_seconds"`
	Policies           map[string]StagePolicy `toml:"policies"`
}

// Tools contains override paths for the external binaries the pipeline
// shells out to. Empty values resolve the default names on PATH.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Terms contains the term lists consumed by the lexical scan stage.
type Terms struct {
	Profanity []string `toml:"profanity"`
	Brand     []string `toml:"brand"`
}

// Inference contains connection settings for the remote inference gateway.
type Inference struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage contains configuration for artifact storage.
type Storage struct {
	ArtifactDir         string `toml:"artifact_dir"`
	SignedURLTTLSeconds int    `toml:"signed_url_ttl_seconds"`
}

// Report contains configuration for moderation-report rendering.
type Report struct {
	// RiskCatalogPath points at a TOML overlay for the embedded risk
	// catalog. Empty means embedded definitions only.
	RiskCatalogPath string `toml:"risk_catalog_path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Vigil.
//
// Configuration sections by subsystem:
//   - Paths: data, staging, and log directories
//   - Workflow: orchestrator worker pool and polling intervals
//   - Lease: review-task lease durations, reaper cadence, audit retention
//   - SLA: pending-task alert threshold and monitor cadence
//   - Validation: submission limits (size, duration, container format)
//   - Stages: per-stage retry/backoff/timeout policies
//   - Tools: override paths for ffmpeg and ffprobe
//   - Terms: profanity and brand lists for the lexical scan
//   - Inference: remote inference gateway connection settings
//   - Storage: artifact directory and signed-URL lifetime
//   - Report: risk catalog overlay for report rendering
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Lease         Lease         `toml:"lease"`
	SLA           SLA           `toml:"sla"`
	Validation    Validation    `toml:"validation"`
	Stages        Stages        `toml:"stages"`
	Tools         Tools         `toml:"tools"`
	Terms         Terms         `toml:"terms"`
	Inference     Inference     `toml:"inference"`
	Storage       Storage       `toml:"storage"`
	Report        Report        `toml:"report"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vigil/config.toml")
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

	defaultPath, err := expandPath("~/.config/vigil/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vigil.toml")
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
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir, c.Storage.ArtifactDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PipelineDatabasePath returns the SQLite file backing video and execution state.
func (c *Config) PipelineDatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "pipeline.db")
}

// ReviewDatabasePath returns the SQLite file backing verification tasks and the audit log.
func (c *Config) ReviewDatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "review.db")
}

// FFmpegBinary returns the ffmpeg executable used for media extraction.
func (c *Config) FFmpegBinary() string {
	if c.Tools.FFmpeg != "" {
		return c.Tools.FFmpeg
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for media validation.
func (c *Config) FFprobeBinary() string {
	if c.Tools.FFprobe != "" {
		return c.Tools.FFprobe
	}
	return "ffprobe"
}

// StagePolicyFor returns the effective retry policy for the named stage.
// Stages without an explicit entry fall back to a conservative default.
func (c *Config) StagePolicyFor(stage string) StagePolicy {
	if policy, ok := c.Stages.Policies[stage]; ok {
		return policy
	}
	return fallbackStagePolicy
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
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
