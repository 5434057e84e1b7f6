// Package config loads, normalizes, and validates nightproc configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the NIGHTPROC_TABLE_DIR and
// NIGHTPROC_EXPOSURE_DIR environment fallbacks. The Config type centralizes
// every knob the CLI passes to the engine: table locations and format, batch
// queue placement and timeouts, the resubmission policy and the job command
// template.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical state names, and clear validation errors.
package config
