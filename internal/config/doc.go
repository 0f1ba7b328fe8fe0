// Package config loads, normalizes, and validates vidflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// APPSYNC_URL, APPSYNC_API_KEY, and VIDEO_BUCKET. Optional .env files are
// applied through LoadEnv before those fallbacks are consulted. The Config type
// centralizes every knob the daemon and CLI need, from the ordered stage chain
// to broker endpoints.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
