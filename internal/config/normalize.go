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
	c.normalizeRegistry()
	c.normalizeMatcher()
	if err := c.normalizeMatchCache(); err != nil {
		return err
	}
	c.normalizeCSV()
	c.normalizeIdentifier()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.OutputFile = strings.TrimSpace(c.Paths.OutputFile)
	if c.Paths.OutputFile == "" {
		c.Paths.OutputFile = defaultOutputFile
	}
	if c.Paths.OutputFile, err = expandPath(c.Paths.OutputFile); err != nil {
		return fmt.Errorf("paths.output_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeRegistry() {
	if c.Registry.APIKey == "" {
		if value, ok := os.LookupEnv("PURE_API_KEY"); ok {
			c.Registry.APIKey = value
		}
	}
	if c.Registry.BaseURL == "" {
		if value, ok := os.LookupEnv("PURE_BASE_URL"); ok {
			c.Registry.BaseURL = value
		}
	}
	c.Registry.APIKey = strings.TrimSpace(c.Registry.APIKey)
	c.Registry.BaseURL = strings.TrimRight(strings.TrimSpace(c.Registry.BaseURL), "/")
	c.Registry.NameLocale = strings.TrimSpace(c.Registry.NameLocale)
	if c.Registry.NameLocale == "" {
		c.Registry.NameLocale = defaultRegistryNameLocale
	}
	if c.Registry.PageSize == 0 {
		c.Registry.PageSize = defaultRegistryPageSize
	}
	if c.Registry.MaxStartupFailures == 0 {
		c.Registry.MaxStartupFailures = defaultRegistryStartupFailures
	}
	if c.Registry.TimeoutSeconds == 0 {
		c.Registry.TimeoutSeconds = defaultRegistryTimeoutSeconds
	}
}

func (c *Config) normalizeMatcher() {
	if value, ok := os.LookupEnv("ROR_BASE_URL"); ok && strings.TrimSpace(value) != "" && c.Matcher.BaseURL == defaultMatcherBaseURL {
		c.Matcher.BaseURL = value
	}
	c.Matcher.BaseURL = strings.TrimRight(strings.TrimSpace(c.Matcher.BaseURL), "/")
	if c.Matcher.BaseURL == "" {
		c.Matcher.BaseURL = defaultMatcherBaseURL
	}
	if c.Matcher.TimeoutSeconds == 0 {
		c.Matcher.TimeoutSeconds = defaultMatcherTimeoutSeconds
	}
	if c.Matcher.MaxRequests > 0 && c.Matcher.WindowSeconds == 0 {
		c.Matcher.WindowSeconds = defaultMatcherWindowSeconds
	}
}

func (c *Config) normalizeMatchCache() error {
	if strings.TrimSpace(c.MatchCache.Path) == "" {
		c.MatchCache.Path = defaultMatchCachePath()
	}
	var err error
	if c.MatchCache.Path, err = expandPath(c.MatchCache.Path); err != nil {
		return fmt.Errorf("match_cache.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeCSV() {
	value := strings.TrimSpace(c.CSV.OutputDelimiter)
	switch strings.ToLower(value) {
	case "", "comma":
		value = ","
	case "semicolon":
		value = ";"
	case "tab", `\t`:
		value = "\t"
	}
	c.CSV.OutputDelimiter = value
}

func (c *Config) normalizeIdentifier() {
	c.Identifier.TypeURI = strings.TrimSpace(c.Identifier.TypeURI)
	if c.Identifier.TypeURI == "" {
		c.Identifier.TypeURI = defaultIdentifierTypeURI
	}
	c.Identifier.TypeDiscriminator = strings.TrimSpace(c.Identifier.TypeDiscriminator)
	if c.Identifier.TypeDiscriminator == "" {
		c.Identifier.TypeDiscriminator = defaultIdentifierDiscriminator
	}
	terms := make(map[string]string, len(c.Identifier.Terms))
	for locale, label := range c.Identifier.Terms {
		locale = strings.TrimSpace(locale)
		label = strings.TrimSpace(label)
		if locale == "" || label == "" {
			continue
		}
		terms[locale] = label
	}
	if len(terms) == 0 {
		terms = defaultIdentifierTerms()
	}
	c.Identifier.Terms = terms
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
