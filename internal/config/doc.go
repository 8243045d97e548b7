// Package config loads, normalizes, and validates assetflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ASSETFLOW_CDN_URL and ASSETFLOW_LANGUAGE. Languages are canonicalized to
// BCP 47 tags so the per-language store root and the CDN path agree.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
