package testsupport

import (
	"path/filepath"
	"testing"

	"rorsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputFile = filepath.Join(base, "output.csv")
	cfgVal.Registry.BaseURL = "http://registry.invalid/ws/api"
	cfgVal.Registry.APIKey = "test"
	cfgVal.Matcher.BaseURL = "http://matcher.invalid"
	cfgVal.MatchCache.Path = filepath.Join(base, "cache", "matches.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRegistry points the registry section at baseURL.
func WithRegistry(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Registry.BaseURL = baseURL
	}
}

// WithMatcher points the matcher section at baseURL.
func WithMatcher(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matcher.BaseURL = baseURL
	}
}

// WithPageSize overrides the registry page size.
func WithPageSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Registry.PageSize = size
	}
}

// WithMatchCache enables the persistent match cache.
func WithMatchCache() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.MatchCache.Enabled = true
	}
}

// BaseDir returns the temp directory backing the config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputFile)
}
