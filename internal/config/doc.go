// Package config loads, normalizes, and validates fpsync configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// GITHUB_TOKEN and FPSYNC_CORPUS_DIR. The Config type centralizes every knob
// the run coordinator and CLI need.
//
// The source catalog (catalog pages, search URL templates, and issue tracker
// repositories) lives in a separate YAML document. A default catalog is
// embedded; paths.sources_file replaces it.
//
// Always obtain settings through this package so downstream code receives
// expanded paths and clear validation errors.
package config
