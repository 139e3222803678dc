// Package config loads, normalizes, and validates tryonrelay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// TELEGRAM_TOKEN, CHAT_ID and PORT so the service can run from the same
// variables the storefront deployment already sets. The Config type
// centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
