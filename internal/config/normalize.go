package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeTrigger()
	c.normalizeAppSync()
	c.normalizeNotifier()
	c.normalizeAWS()
	c.normalizeAMQP()
	c.normalizeJetStream()
	c.normalizeAPI()
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
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	for i := range c.Pipeline.Stages {
		stg := &c.Pipeline.Stages[i]
		stg.Name = strings.TrimSpace(stg.Name)
		stg.URL = strings.TrimSpace(stg.URL)
		if stg.URL == "" {
			if value, ok := os.LookupEnv(stageURLEnv(stg.Name)); ok {
				stg.URL = strings.TrimSpace(value)
			}
		}
	}
	if c.Pipeline.TimeoutSeconds <= 0 {
		c.Pipeline.TimeoutSeconds = defaultPipelineTimeout
	}
	if c.Pipeline.DrainTimeoutSeconds <= 0 {
		c.Pipeline.DrainTimeoutSeconds = defaultDrainTimeout
	}
	c.Pipeline.OutputField = strings.TrimSpace(c.Pipeline.OutputField)
	if c.Pipeline.OutputField == "" {
		c.Pipeline.OutputField = defaultOutputField
	}
}

// stageURLEnv maps a stage name such as "create-casings" to
// VIDFLOW_STAGE_CREATE_CASINGS_URL.
func stageURLEnv(name string) string {
	upper := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
	return "VIDFLOW_STAGE_" + upper + "_URL"
}

func (c *Config) normalizeTrigger() {
	c.Trigger.Bucket = strings.TrimSpace(c.Trigger.Bucket)
	if c.Trigger.Bucket == "" {
		if value, ok := os.LookupEnv("VIDEO_BUCKET"); ok {
			c.Trigger.Bucket = strings.TrimSpace(value)
		}
	}
	suffixes := make([]string, 0, len(c.Trigger.Suffixes))
	for _, suffix := range c.Trigger.Suffixes {
		suffix = strings.TrimSpace(suffix)
		if suffix != "" {
			suffixes = append(suffixes, suffix)
		}
	}
	c.Trigger.Suffixes = suffixes
	if strings.TrimSpace(c.Trigger.Source) == "" {
		c.Trigger.Source = defaultTriggerSource
	}
	if strings.TrimSpace(c.Trigger.DetailType) == "" {
		c.Trigger.DetailType = defaultTriggerDetailType
	}
}

func (c *Config) normalizeAppSync() {
	c.AppSync.Endpoint = strings.TrimSpace(c.AppSync.Endpoint)
	if c.AppSync.Endpoint == "" {
		if value, ok := os.LookupEnv("APPSYNC_URL"); ok {
			c.AppSync.Endpoint = strings.TrimSpace(value)
		}
	}
	if c.AppSync.APIKey == "" {
		if value, ok := os.LookupEnv("APPSYNC_API_KEY"); ok {
			c.AppSync.APIKey = strings.TrimSpace(value)
		}
	}
	if c.AppSync.RequestTimeout <= 0 {
		c.AppSync.RequestTimeout = defaultAppSyncTimeout
	}
}

func (c *Config) normalizeNotifier() {
	actions := make([]string, 0, len(c.Notifier.NotifyActions))
	for _, action := range c.Notifier.NotifyActions {
		action = strings.ToUpper(strings.TrimSpace(action))
		if action != "" {
			actions = append(actions, action)
		}
	}
	c.Notifier.NotifyActions = actions
	c.Notifier.Delivery = strings.ToLower(strings.TrimSpace(c.Notifier.Delivery))
	if c.Notifier.Delivery == "" {
		c.Notifier.Delivery = defaultDelivery
	}
	if c.Notifier.MaxAttempts <= 0 {
		c.Notifier.MaxAttempts = defaultMaxAttempts
	}
	if c.Notifier.InitialBackoffMillis <= 0 {
		c.Notifier.InitialBackoffMillis = defaultInitialBackoffMS
	}
	if c.Notifier.MaxBackoffMillis <= 0 {
		c.Notifier.MaxBackoffMillis = defaultMaxBackoffMS
	}
	if c.Notifier.BackoffFactor <= 0 {
		c.Notifier.BackoffFactor = defaultBackoffFactor
	}
	c.Notifier.DeadLetter = strings.ToLower(strings.TrimSpace(c.Notifier.DeadLetter))
	c.Notifier.DeadLetterBucket = strings.TrimSpace(c.Notifier.DeadLetterBucket)
	if strings.TrimSpace(c.Notifier.DeadLetterPrefix) == "" {
		c.Notifier.DeadLetterPrefix = defaultDeadLetterPrefix
	}
}

func (c *Config) normalizeAWS() {
	c.AWS.Region = strings.TrimSpace(c.AWS.Region)
	if c.AWS.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok && strings.TrimSpace(value) != "" {
			c.AWS.Region = strings.TrimSpace(value)
		} else {
			c.AWS.Region = defaultAWSRegion
		}
	}
	c.AWS.Endpoint = strings.TrimSpace(c.AWS.Endpoint)
}

func (c *Config) normalizeAMQP() {
	if value, ok := os.LookupEnv("AMQP_URL"); ok && strings.TrimSpace(value) != "" && c.AMQP.URL == defaultAMQPURL {
		c.AMQP.URL = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.AMQP.URL) == "" {
		c.AMQP.URL = defaultAMQPURL
	}
	if strings.TrimSpace(c.AMQP.UploadQueue) == "" {
		c.AMQP.UploadQueue = defaultAMQPUploadQueue
	}
	if strings.TrimSpace(c.AMQP.StatusExchange) == "" {
		c.AMQP.StatusExchange = defaultAMQPStatusExchange
	}
	if strings.TrimSpace(c.AMQP.StatusRoutingKey) == "" {
		c.AMQP.StatusRoutingKey = defaultAMQPStatusRouting
	}
	if c.AMQP.Prefetch <= 0 {
		c.AMQP.Prefetch = defaultAMQPPrefetch
	}
	if c.AMQP.ReconnectSeconds <= 0 {
		c.AMQP.ReconnectSeconds = defaultAMQPReconnect
	}
}

func (c *Config) normalizeJetStream() {
	if value, ok := os.LookupEnv("NATS_URL"); ok && strings.TrimSpace(value) != "" && c.JetStream.URL == defaultNATSURL {
		c.JetStream.URL = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.JetStream.URL) == "" {
		c.JetStream.URL = defaultNATSURL
	}
	if strings.TrimSpace(c.JetStream.Stream) == "" {
		c.JetStream.Stream = defaultJetStreamStream
	}
	if strings.TrimSpace(c.JetStream.Subject) == "" {
		c.JetStream.Subject = defaultJetStreamSubject
	}
	if strings.TrimSpace(c.JetStream.Durable) == "" {
		c.JetStream.Durable = defaultJetStreamDurable
	}
	if c.JetStream.BatchSize <= 0 {
		c.JetStream.BatchSize = defaultJetStreamBatchSize
	}
	if c.JetStream.FetchWaitSeconds <= 0 {
		c.JetStream.FetchWaitSeconds = defaultJetStreamFetchWait
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("VIDFLOW_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
