// Package config loads ksense settings.
//
// Settings come from three places, later ones winning:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← KSENSE_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← .toml, .yaml or .yml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// Command-line flags are applied by the caller after Load and ApplyEnv.
//
// # Example
//
//	[log]
//	level = "debug"
//
//	[completion]
//	max_items = 20
//	retrigger_on_type = true
//
//	[servers.go]
//	command = "/opt/go/bin/gopls"
//	args = ["-remote=auto"]
//
//	[servers.rust]
//	disabled = true
package config
