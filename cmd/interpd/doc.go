// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for interpd.
//
// The command tree is built per invocation by newRootCommand so tests can run
// it with their own streams and configuration. Execute is the entry point used
// by main.
package cmd
