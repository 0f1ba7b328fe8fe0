package testsupport

import (
	"path/filepath"
	"testing"

	"vidflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config seeded with unique temp directories per
// test. Stage and AppSync endpoints point at unroutable placeholders until an
// option overrides them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Trigger.Bucket = "test-uploads"
	cfgVal.AppSync.Endpoint = "http://127.0.0.1:1/graphql"
	cfgVal.AppSync.APIKey = "test-key"
	for i := range cfgVal.Pipeline.Stages {
		cfgVal.Pipeline.Stages[i].URL = "http://127.0.0.1:1/" + cfgVal.Pipeline.Stages[i].Name
	}
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithStageBaseURL points every configured stage at baseURL/<name>.
func WithStageBaseURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		for i := range b.cfg.Pipeline.Stages {
			b.cfg.Pipeline.Stages[i].URL = baseURL + "/" + b.cfg.Pipeline.Stages[i].Name
		}
	}
}

// WithAppSync sets the downstream endpoint and key.
func WithAppSync(endpoint, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AppSync.Endpoint = endpoint
		b.cfg.AppSync.APIKey = apiKey
	}
}

// WithBucket overrides the trigger bucket.
func WithBucket(bucket string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Trigger.Bucket = bucket
	}
}

// WithNtfyTopic enables operator alerts against topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithAPIToken requires bearer auth on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithConfig applies an arbitrary mutation.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		if fn != nil {
			fn(b.cfg)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
