// Package config handles configuration loading for ep-private.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Missing keys fall back to Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from EP_PRIVATE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/ep-private/config.yaml
//  3. ~/.config/ep-private/config.yaml
//
// A path ending in .toml is decoded as TOML with the same key names.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  link_secret: "${EP_PRIVATE_LINK_SECRET}"
//	  admin_token: "${JOBS_ADMIN_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "168h"
//	  link_ttl: "15m"
//	  lookup_timeout: "3s"
//
// # Validation
//
// Load() validates the listen address, database path, cookie name, link
// secret length (32 bytes), path prefixes, positive durations and the
// logging level and format. An empty admin_token is allowed; the job
// endpoints then answer 500 until one is configured.
package config
