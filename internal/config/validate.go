package config

import (
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"
)

// Validate ensures the configuration is usable. Registry credentials are
// checked separately by RequireRegistry because the offline matcher runs
// without them.
func (c *Config) Validate() error {
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateMatcher(); err != nil {
		return err
	}
	if err := c.validateCSV(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if c.Registry.PageSize <= 0 {
		return errors.New("registry.page_size must be positive")
	}
	if c.Registry.StartOffset < 0 {
		return errors.New("registry.start_offset must not be negative")
	}
	if c.Registry.MaxStartupFailures < 0 {
		return errors.New("registry.max_startup_failures must not be negative")
	}
	if c.Registry.TimeoutSeconds < 0 {
		return errors.New("registry.timeout_seconds must not be negative")
	}
	if c.Registry.BaseURL != "" {
		if err := validateHTTPURL(c.Registry.BaseURL); err != nil {
			return fmt.Errorf("registry.base_url: %w", err)
		}
	}
	return nil
}

func (c *Config) validateMatcher() error {
	if err := validateHTTPURL(c.Matcher.BaseURL); err != nil {
		return fmt.Errorf("matcher.base_url: %w", err)
	}
	if c.Matcher.TimeoutSeconds < 0 {
		return errors.New("matcher.timeout_seconds must not be negative")
	}
	if c.Matcher.MaxRequests < 0 {
		return errors.New("matcher.max_requests must not be negative")
	}
	if c.Matcher.MaxRequests > 0 && c.Matcher.WindowSeconds <= 0 {
		return errors.New("matcher.window_seconds must be positive when matcher.max_requests is set")
	}
	return nil
}

func (c *Config) validateCSV() error {
	if utf8.RuneCountInString(c.CSV.OutputDelimiter) != 1 {
		return fmt.Errorf("csv.output_delimiter must be a single character, got %q", c.CSV.OutputDelimiter)
	}
	switch c.CSV.OutputDelimiter {
	case "\"", "\r", "\n":
		return fmt.Errorf("csv.output_delimiter %q is not allowed", c.CSV.OutputDelimiter)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
