package config

const (
	defaultDataDir             = "~/.local/share/vigil"
	defaultWorkers             = 2
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultLeaseSeconds        = 7200
	defaultRenewalSeconds      = 3600
	defaultReaperInterval      = 60
	defaultAuditRetentionDays  = 90
	defaultSLAThresholdSeconds = 14400
	defaultSLACheckInterval    = 300
	defaultSLAMaxListed        = 20
	defaultMaxFileSizeBytes    = 2147483648
	defaultMaxDurationSeconds  = 7200
	defaultBackoffBaseSeconds  = 2
	defaultInferenceBaseURL    = "http://127.0.0.1:8900"
	defaultInferenceTimeout    = 120
	defaultSignedURLTTL        = 3600
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
)

// fallbackStagePolicy covers stage names without a defaults entry.
var fallbackStagePolicy = StagePolicy{MaxRetries: 2, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 600}

// Policy keys match the stage names the orchestrator registers. External-API
// stages carry more retries and longer attempt timeouts than local stages.
func defaultStagePolicies() map[string]StagePolicy {
	return map[string]StagePolicy{
		"preprocess":     {MaxRetries: 2, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 600},
		"extract_audio":  {MaxRetries: 2, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 600},
		"extract_frames": {MaxRetries: 2, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 600},
		"transcribe":     {MaxRetries: 3, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 900},
		"frame_analysis": {MaxRetries: 3, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 900},
		"lexical_scan":   {MaxRetries: 2, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 300},
		"compile_report": {MaxRetries: 1, BackoffCapSeconds: 600, AttemptTimeoutSeconds: 300},
	}
}

func defaultAllowedFormats() []string {
	return []string{"mp4", "avi", "mov", "mkv", "webm"}
}

func defaultProfanityTerms() []string {
	return []string{"damn", "hell", "shit", "fuck", "bitch", "bastard"}
}

func defaultBrandTerms() []string {
	return []string{"coca cola", "pepsi", "nike", "adidas"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Lease: Lease{
			DurationSeconds:    defaultLeaseSeconds,
			RenewalSeconds:     defaultRenewalSeconds,
			ReaperInterval:     defaultReaperInterval,
			AuditRetentionDays: defaultAuditRetentionDays,
		},
		SLA: SLA{
			ThresholdSeconds: defaultSLAThresholdSeconds,
			CheckInterval:    defaultSLACheckInterval,
			MaxListed:        defaultSLAMaxListed,
		},
		Validation: Validation{
			MaxFileSizeBytes:   defaultMaxFileSizeBytes,
			MaxDurationSeconds: defaultMaxDurationSeconds,
			AllowedFormats:     defaultAllowedFormats(),
		},
		Stages: Stages{
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			Policies:           defaultStagePolicies(),
		},
		Terms: Terms{
			Profanity: defaultProfanityTerms(),
			Brand:     defaultBrandTerms(),
		},
		Inference: Inference{
			BaseURL:        defaultInferenceBaseURL,
			TimeoutSeconds: defaultInferenceTimeout,
		},
		Storage: Storage{
			SignedURLTTLSeconds: defaultSignedURLTTL,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
