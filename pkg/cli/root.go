package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// NewRootCommand builds the webmocket command tree. Running the root
// command without a subcommand serves.
func NewRootCommand() *cobra.Command {
	sf := newServeFlags()

	root := &cobra.Command{
		Use:   "webmocket",
		Short: "webmocket is a WebSocket mock server for integration tests",
		Long: `webmocket accepts WebSocket clients, records every message they send,
and lets a test drive server-to-client traffic over a small HTTP API.

Configuration can be provided via flags, WEBMOCKET_* environment variables,
or a YAML/TOML configuration file passed with --config.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, sf)
		},
	}
	root.PersistentFlags().StringVarP(&sf.configFile, "config", "c", "", "Path to a YAML or TOML config file")
	sf.bind(root.Flags())

	root.AddCommand(newServeCommand(sf))
	root.AddCommand(newConfigCommand(sf))
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
