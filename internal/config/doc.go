// Package config loads, normalizes, and validates rorsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PURE_API_KEY and PURE_BASE_URL. The Config type centralizes every knob the
// CLI needs so registry credentials, matcher rate limits, and the identifier
// shape written back to the registry are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
