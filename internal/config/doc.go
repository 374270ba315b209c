// Package config loads, normalizes, and validates ferry configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and layers FERRY_* environment overrides on
// top. The Config type centralizes every knob the daemon and CLI need, from
// the artifact root and ingest host through retention and notification
// settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
