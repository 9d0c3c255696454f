package testsupport

import (
	"path/filepath"
	"testing"

	"rematrix/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.LLM.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxRejections sets the rejection limit on the test config.
func WithMaxRejections(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxRejections = limit
	}
}

// WithBlob enables blob uploads against the given storage endpoint.
func WithBlob(storageURL, accessKey string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Blob.Enabled = true
		cfg.Blob.StorageURL = storageURL
		cfg.Blob.AccessKey = accessKey
	}
}
