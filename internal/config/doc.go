// Package config loads, normalizes, and validates autocron configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes the paths and
// tuning knobs shared by the host engine, the monitor and worker processes,
// and the admin CLI, so every process coordinating over one store resolves
// the same database file and log directory.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
