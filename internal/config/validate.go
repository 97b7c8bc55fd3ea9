package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLease(); err != nil {
		return err
	}
	if err := c.validateSLA(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"inference.timeout_seconds":     c.Inference.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateLease() error {
	if err := ensurePositiveMap(map[string]int{
		"lease.duration_seconds": c.Lease.DurationSeconds,
		"lease.renewal_seconds":  c.Lease.RenewalSeconds,
		"lease.reaper_interval":  c.Lease.ReaperInterval,
	}); err != nil {
		return err
	}
	if c.Lease.RenewalSeconds > c.Lease.DurationSeconds {
		return errors.New("lease.renewal_seconds must not exceed lease.duration_seconds")
	}
	return nil
}

func (c *Config) validateSLA() error {
	if err := ensurePositiveMap(map[string]int{
		"sla.threshold_seconds": c.SLA.ThresholdSeconds,
		"sla.check_interval":    c.SLA.CheckInterval,
	}); err != nil {
		return err
	}
	if c.SLA.MaxListed < 1 {
		return errors.New("sla.max_listed must be >= 1")
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.MaxFileSizeBytes <= 0 {
		return errors.New("validation.max_file_size_bytes must be positive")
	}
	if c.Validation.MaxDurationSeconds <= 0 {
		return errors.New("validation.max_duration_seconds must be positive")
	}
	if len(c.Validation.AllowedFormats) == 0 {
		return errors.New("validation.allowed_formats must include at least one format")
	}
	return nil
}

func (c *Config) validateStages() error {
	if c.Stages.BackoffBaseSeconds <= 0 {
		return errors.New("stages.backoff_base_seconds must be positive")
	}
	known := defaultStagePolicies()
	names := make([]string, 0, len(c.Stages.Policies))
	for stage := range c.Stages.Policies {
		names = append(names, stage)
	}
	sort.Strings(names)
	for _, stage := range names {
		if _, ok := known[stage]; !ok {
			return fmt.Errorf("stages.policies.%s: unknown stage", stage)
		}
		policy := c.Stages.Policies[stage]
		if err := ensurePositiveMap(map[string]int{
			fmt.Sprintf("stages.policies.%s.max_retries", stage):             policy.MaxRetries,
			fmt.Sprintf("stages.policies.%s.backoff_cap_seconds", stage):     policy.BackoffCapSeconds,
			fmt.Sprintf("stages.policies.%s.attempt_timeout_seconds", stage): policy.AttemptTimeoutSeconds,
		}); err != nil {
			return err
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
