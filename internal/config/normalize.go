package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeLease()
	c.normalizeSLA()
	c.normalizeValidation()
	c.normalizeStages()
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeTerms()
	c.normalizeInference()
	if err := c.normalizeReport(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = filepath.Join(c.Paths.DataDir, "staging")
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	var err error
	if strings.TrimSpace(c.Storage.ArtifactDir) == "" {
		c.Storage.ArtifactDir = filepath.Join(c.Paths.DataDir, "artifacts")
	}
	if c.Storage.ArtifactDir, err = expandPath(c.Storage.ArtifactDir); err != nil {
		return fmt.Errorf("storage.artifact_dir: %w", err)
	}
	if c.Storage.SignedURLTTLSeconds <= 0 {
		c.Storage.SignedURLTTLSeconds = defaultSignedURLTTL
	}
	return nil
}

func (c *Config) normalizeLease() {
	if c.Lease.AuditRetentionDays < 0 {
		c.Lease.AuditRetentionDays = 0
	}
}

func (c *Config) normalizeSLA() {
	if c.SLA.MaxListed <= 0 {
		c.SLA.MaxListed = defaultSLAMaxListed
	}
}

func (c *Config) normalizeValidation() {
	if len(c.Validation.AllowedFormats) == 0 {
		c.Validation.AllowedFormats = defaultAllowedFormats()
		return
	}
	formats := make([]string, 0, len(c.Validation.AllowedFormats))
	seen := make(map[string]struct{}, len(c.Validation.AllowedFormats))
	for _, format := range c.Validation.AllowedFormats {
		normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		formats = append(formats, normalized)
	}
	if len(formats) == 0 {
		formats = defaultAllowedFormats()
	}
	c.Validation.AllowedFormats = formats
}

func (c *Config) normalizeStages() {
	if c.Stages.BackoffBaseSeconds <= 0 {
		c.Stages.BackoffBaseSeconds = defaultBackoffBaseSeconds
	}
	defaults := defaultStagePolicies()
	if c.Stages.Policies == nil {
		c.Stages.Policies = defaults
		return
	}
	for stage, fallback := range defaults {
		policy, ok := c.Stages.Policies[stage]
		if !ok {
			c.Stages.Policies[stage] = fallback
			continue
		}
		if policy.MaxRetries <= 0 {
			policy.MaxRetries = fallback.MaxRetries
		}
		if policy.BackoffCapSeconds <= 0 {
			policy.BackoffCapSeconds = fallback.BackoffCapSeconds
		}
		if policy.AttemptTimeoutSeconds <= 0 {
			policy.AttemptTimeoutSeconds = fallback.AttemptTimeoutSeconds
		}
		c.Stages.Policies[stage] = policy
	}
}

func (c *Config) normalizeTools() error {
	var err error
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg != "" {
		if c.Tools.FFmpeg, err = expandPath(c.Tools.FFmpeg); err != nil {
			return fmt.Errorf("tools.ffmpeg: %w", err)
		}
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe != "" {
		if c.Tools.FFprobe, err = expandPath(c.Tools.FFprobe); err != nil {
			return fmt.Errorf("tools.ffprobe: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeTerms() {
	c.Terms.Profanity = normalizeTermList(c.Terms.Profanity, defaultProfanityTerms)
	c.Terms.Brand = normalizeTermList(c.Terms.Brand, defaultBrandTerms)
}

func normalizeTermList(terms []string, fallback func() []string) []string {
	if len(terms) == 0 {
		return fallback()
	}
	normalized := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		cleaned := strings.ToLower(strings.TrimSpace(term))
		if cleaned == "" {
			continue
		}
		if _, exists := seen[cleaned]; exists {
			continue
		}
		seen[cleaned] = struct{}{}
		normalized = append(normalized, cleaned)
	}
	if len(normalized) == 0 {
		return fallback()
	}
	return normalized
}

func (c *Config) normalizeInference() {
	c.Inference.BaseURL = strings.TrimRight(strings.TrimSpace(c.Inference.BaseURL), "/")
	if c.Inference.BaseURL == "" {
		c.Inference.BaseURL = defaultInferenceBaseURL
	}
	c.Inference.APIKey = strings.TrimSpace(c.Inference.APIKey)
	if c.Inference.APIKey == "" {
		if value, ok := os.LookupEnv("VIGIL_INFERENCE_API_KEY"); ok {
			c.Inference.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Inference.TimeoutSeconds <= 0 {
		c.Inference.TimeoutSeconds = defaultInferenceTimeout
	}
}

func (c *Config) normalizeReport() error {
	c.Report.RiskCatalogPath = strings.TrimSpace(c.Report.RiskCatalogPath)
	if c.Report.RiskCatalogPath == "" {
		return nil
	}
	expanded, err := expandPath(c.Report.RiskCatalogPath)
	if err != nil {
		return fmt.Errorf("report.risk_catalog_path: %w", err)
	}
	c.Report.RiskCatalogPath = expanded
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
