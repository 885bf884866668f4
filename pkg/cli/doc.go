// Package cli implements the webmocket command line.
//
// Running webmocket with no subcommand starts the server. Configuration is
// resolved from defaults, an optional YAML or TOML file, WEBMOCKET_*
// environment variables and flags, in increasing order of precedence.
//
//	webmocket --port 3001 --ws-path /socket
//	webmocket config --json
//	webmocket version
package cli
