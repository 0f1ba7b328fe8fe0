package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTrigger(); err != nil {
		return err
	}
	if err := c.validateAppSync(); err != nil {
		return err
	}
	if err := c.validateNotifier(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if len(c.Pipeline.Stages) == 0 {
		return errors.New("pipeline.stages must list at least one stage")
	}
	seen := make(map[string]struct{}, len(c.Pipeline.Stages))
	for i, stg := range c.Pipeline.Stages {
		if stg.Name == "" {
			return fmt.Errorf("pipeline.stages[%d].name must be set", i)
		}
		if _, dup := seen[stg.Name]; dup {
			return fmt.Errorf("pipeline.stages: duplicate stage name %q", stg.Name)
		}
		seen[stg.Name] = struct{}{}
		if stg.URL == "" {
			return fmt.Errorf("pipeline.stages[%d].url is required for stage %q. Set %s or edit %s (create with 'vidflow config init')", i, stg.Name, stageURLEnv(stg.Name), configPathHint())
		}
		if err := validateHTTPURL(stg.URL); err != nil {
			return fmt.Errorf("pipeline.stages[%d].url: %w", i, err)
		}
	}
	return nil
}

func (c *Config) validateTrigger() error {
	if c.Trigger.Bucket == "" {
		return fmt.Errorf("trigger.bucket is required. Set VIDEO_BUCKET env var or edit %s (create with 'vidflow config init')", configPathHint())
	}
	if len(c.Trigger.Suffixes) == 0 {
		return errors.New("trigger.suffixes must list at least one suffix")
	}
	return nil
}

func (c *Config) validateAppSync() error {
	if c.AppSync.Endpoint == "" {
		return fmt.Errorf("appsync.endpoint is required. Set APPSYNC_URL env var or edit %s (create with 'vidflow config init')", configPathHint())
	}
	if err := validateHTTPURL(c.AppSync.Endpoint); err != nil {
		return fmt.Errorf("appsync.endpoint: %w", err)
	}
	if c.AppSync.APIKey == "" {
		return fmt.Errorf("appsync.api_key is required. Set APPSYNC_API_KEY env var or edit %s", configPathHint())
	}
	return nil
}

func (c *Config) validateNotifier() error {
	for _, action := range c.Notifier.NotifyActions {
		switch action {
		case "CREATE", "UPDATE", "DELETE", "UNKNOWN":
		default:
			return fmt.Errorf("notifier.notify_actions: unsupported action %q", action)
		}
	}
	switch c.Notifier.Delivery {
	case DeliveryBestEffort, DeliveryRetry:
	default:
		return fmt.Errorf("notifier.delivery must be %q or %q", DeliveryBestEffort, DeliveryRetry)
	}
	if c.Notifier.BackoffFactor < 1 {
		return errors.New("notifier.backoff_factor must be at least 1")
	}
	if c.Notifier.MaxBackoffMillis < c.Notifier.InitialBackoffMillis {
		return errors.New("notifier.max_backoff_ms must not be less than notifier.initial_backoff_ms")
	}
	switch c.Notifier.DeadLetter {
	case DeadLetterNone, DeadLetterSQLite:
	case DeadLetterS3:
		if c.Notifier.DeadLetterBucket == "" {
			return errors.New("notifier.dead_letter_bucket must be set when notifier.dead_letter is \"s3\"")
		}
	default:
		return fmt.Errorf("notifier.dead_letter must be empty, %q, or %q", DeadLetterSQLite, DeadLetterS3)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", raw)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("host is required, got %q", raw)
	}
	return nil
}

func configPathHint() string {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return defaultPath
}
