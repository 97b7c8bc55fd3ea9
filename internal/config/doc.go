// Package config loads, normalizes, and validates Vigil configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIGIL_INFERENCE_API_KEY. The Config type centralizes every knob the daemon
// and CLI need, from submission limits and per-stage retry policies to lease
// durations and term lists.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
