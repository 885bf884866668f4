package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/webmocket/pkg/config"
)

// configView is the printable form of the effective configuration.
type configView struct {
	Port         int               `json:"port" yaml:"port"`
	Address      string            `json:"address" yaml:"address"`
	WSPath       string            `json:"wsPath" yaml:"wsPath"`
	LogLevel     string            `json:"logLevel" yaml:"logLevel"`
	LogFormat    string            `json:"logFormat" yaml:"logFormat"`
	BusCapacity  int               `json:"busCapacity" yaml:"busCapacity"`
	WriteTimeout string            `json:"writeTimeout" yaml:"writeTimeout"`
	ReadLimit    int64             `json:"readLimit" yaml:"readLimit"`
	ConfigFile   string            `json:"configFile,omitempty" yaml:"configFile,omitempty"`
	Sources      map[string]string `json:"sources" yaml:"sources"`
}

func newConfigView(cfg *config.Config) configView {
	return configView{
		Port:         cfg.Port,
		Address:      cfg.Address,
		WSPath:       cfg.WSPath,
		LogLevel:     cfg.LogLevel,
		LogFormat:    cfg.LogFormat,
		BusCapacity:  cfg.BusCapacity,
		WriteTimeout: cfg.WriteTimeout.String(),
		ReadLimit:    cfg.ReadLimit,
		ConfigFile:   cfg.ConfigFile,
		Sources:      cfg.Sources,
	}
}

func newConfigCommand(sf *serveFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show effective configuration",
		Long: `Show the configuration the server would start with, and where each
value came from (default, file, env or flag).`,
		Example: `  webmocket config
  WEBMOCKET_PORT=4000 webmocket config --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, sf)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg, jsonOutput)
		},
	}
	sf.bind(cmd.Flags())
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (default: YAML)")
	return cmd
}

func printConfig(w io.Writer, cfg *config.Config, jsonOutput bool) error {
	view := newConfigView(cfg)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	data, err := yaml.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
