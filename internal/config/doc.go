// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI.
//
// Load applies repository defaults, decodes the user's file when present,
// expands ~ in path fields, and validates cross-field constraints. A sample
// configuration is embedded for `rematrix config init`.
package config
