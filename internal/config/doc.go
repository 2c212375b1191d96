// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from config.cue in the interpd configuration directory
// ($XDG_CONFIG_HOME/interpd on Linux, ~/Library/Application Support/interpd on macOS,
// %APPDATA%\interpd on Windows), falling back to ./config.cue. Every scalar setting
// can be overridden with an INTERPD_* environment variable, e.g.
// INTERPD_SESSION_STOP_TIMEOUT=10s.
//
// Files are validated against an embedded CUE schema (config_schema.cue) before
// they reach Viper, so unknown fields and ill-typed values are reported with
// their CUE path.
package config
