// Package config resolves webmocket's runtime configuration.
//
// Values come from several layers with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (WEBMOCKET_*)
//  3. Config file (YAML or TOML, chosen by extension)
//  4. Default values (lowest priority)
//
// Environment values that cannot be parsed are ignored, so the next layer
// down wins. Config.Sources records where each value came from.
package config
