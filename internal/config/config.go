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

// Paths contains file and directory locations.
type Paths struct {
	LogDir     string `toml:"log_dir"`
	OutputFile string `toml:"output_file"`
}

// Registry contains configuration for the research-information system API.
type Registry struct {
	BaseURL            string `toml:"base_url"`
	APIKey             string `toml:"api_key"`
	NameLocale         string `toml:"name_locale"`
	PageSize           int    `toml:"page_size"`
	StartOffset        int    `toml:"start_offset"`
	MaxStartupFailures int    `toml:"max_startup_failures"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Matcher contains configuration for the organization matching service.
type Matcher struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// MaxRequests is the quota per window. Zero disables rate limiting.
	MaxRequests   int `toml:"max_requests"`
	WindowSeconds int `toml:"window_seconds"`
}

// MatchCache contains configuration for the persistent match result cache.
type MatchCache struct {
	Enabled bool   `toml:"enabled"` // Default: false
	Path    string `toml:"path"`    // Default: ~/.cache/rorsync/matches.db
}

// CSV contains configuration for the enriched CSV artifact.
type CSV struct {
	OutputDelimiter string `toml:"output_delimiter"`
}

// Identifier describes the identifier object appended to registry records.
type Identifier struct {
	TypeURI           string            `toml:"type_uri"`
	TypeDiscriminator string            `toml:"type_discriminator"`
	Terms             map[string]string `toml:"terms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for rorsync.
//
// Configuration sections by subsystem:
//   - Paths: log directory and default CSV artifact
//   - Registry: registry API endpoint, credentials and pagination
//   - Matcher: matching service endpoint and rate limit policy
//   - MatchCache: optional sqlite cache of matcher answers
//   - CSV: output formatting
//   - Identifier: shape of the identifier written back to the registry
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Registry   Registry   `toml:"registry"`
	Matcher    Matcher    `toml:"matcher"`
	MatchCache MatchCache `toml:"match_cache"`
	CSV        CSV        `toml:"csv"`
	Identifier Identifier `toml:"identifier"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rorsync.toml")
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

// EnsureDirectories creates the log directory and, when enabled, the match cache directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	if c.MatchCache.Enabled && strings.TrimSpace(c.MatchCache.Path) != "" {
		dir := filepath.Dir(c.MatchCache.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create match cache directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogFile returns the path of the append-only audit log.
func (c *Config) LogFile() string {
	return filepath.Join(c.Paths.LogDir, "rorsync.log")
}

// RequireRegistry reports whether the registry endpoint and credentials are
// present. Commands that talk to the registry call it before any network I/O.
func (c *Config) RequireRegistry() error {
	if c.Registry.BaseURL == "" {
		return errors.New("registry.base_url is required. Set PURE_BASE_URL, pass --base-url, or edit the config file")
	}
	if c.Registry.APIKey == "" {
		return errors.New("registry.api_key is required. Set PURE_API_KEY, pass --api-key, or edit the config file")
	}
	return nil
}

// RegistryTimeout returns the per-request timeout for registry calls.
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registry.TimeoutSeconds) * time.Second
}

// MatcherTimeout returns the per-request timeout for matcher calls.
func (c *Config) MatcherTimeout() time.Duration {
	return time.Duration(c.Matcher.TimeoutSeconds) * time.Second
}

// MatcherWindow returns the rate limiter window duration.
func (c *Config) MatcherWindow() time.Duration {
	return time.Duration(c.Matcher.WindowSeconds) * time.Second
}

// OutputDelimiter returns the configured output delimiter as a rune.
func (c *Config) OutputDelimiter() rune {
	for _, r := range c.CSV.OutputDelimiter {
		return r
	}
	return ','
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

func defaultMatchCachePath() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "rorsync", "matches.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/rorsync/matches.db"
	}
	return filepath.Join(home, ".cache", "rorsync", "matches.db")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
