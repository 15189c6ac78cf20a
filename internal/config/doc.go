// Package config loads, normalizes, and validates lofi configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATABASE_URL and REDIS_ADDR. The Config type centralizes every knob the
// daemon and CLI need, from the run store backend to the stage timeouts.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
