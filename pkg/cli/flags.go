package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/getmockd/webmocket/pkg/config"
)

// serveFlags holds the flags shared by the root, serve and config commands.
type serveFlags struct {
	configFile string

	port         int
	address      string
	wsPath       string
	logLevel     string
	logFormat    string
	busCapacity  int
	writeTimeout string
	readLimit    int64
}

func newServeFlags() *serveFlags {
	return &serveFlags{}
}

// flagKeys maps flag names to config keys.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"port", config.KeyPort},
	{"address", config.KeyAddress},
	{"ws-path", config.KeyWSPath},
	{"log-level", config.KeyLogLevel},
	{"log-format", config.KeyLogFormat},
	{"bus-capacity", config.KeyBusCapacity},
	{"write-timeout", config.KeyWriteTimeout},
	{"read-limit", config.KeyReadLimit},
}

// bind registers the override flags on fs. Defaults shown in help are the
// built-in defaults; only flags the user sets are applied.
func (f *serveFlags) bind(fs *pflag.FlagSet) {
	fs.IntVarP(&f.port, "port", "p", config.DefaultPort, "Port to listen on (env WEBMOCKET_PORT)")
	fs.StringVarP(&f.address, "address", "a", config.DefaultAddress, "IP address to bind (env WEBMOCKET_ADDR)")
	fs.StringVar(&f.wsPath, "ws-path", config.DefaultWSPath, "WebSocket upgrade path (env WEBMOCKET_WS_PATH)")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "Log format: text or json")
	fs.IntVar(&f.busCapacity, "bus-capacity", config.DefaultBusCapacity, "Events buffered per session before it lags")
	fs.StringVar(&f.writeTimeout, "write-timeout", config.DefaultWriteTimeout.String(), "Deadline for each outbound frame")
	fs.Int64Var(&f.readLimit, "read-limit", 0, "Maximum inbound frame size in bytes (0 = unlimited)")
}

// resolveConfig loads the layered configuration and applies the flags the
// user set on cmd.
func resolveConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	for _, fk := range flagKeys {
		fl := fs.Lookup(fk.flag)
		if fl == nil || !fl.Changed {
			continue
		}
		if err := cfg.Set(fk.key, fl.Value.String(), config.SourceFlag); err != nil {
			return nil, fmt.Errorf("--%s: %w", fk.flag, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
