package config

import "os"

// Environment variable names.
const (
	EnvPort         = "WEBMOCKET_PORT"
	EnvAddress      = "WEBMOCKET_ADDR"
	EnvWSPath       = "WEBMOCKET_WS_PATH"
	EnvLogLevel     = "WEBMOCKET_LOG_LEVEL"
	EnvLogFormat    = "WEBMOCKET_LOG_FORMAT"
	EnvBusCapacity  = "WEBMOCKET_BUS_CAPACITY"
	EnvWriteTimeout = "WEBMOCKET_WRITE_TIMEOUT"
	EnvReadLimit    = "WEBMOCKET_READ_LIMIT"
	EnvConfig       = "WEBMOCKET_CONFIG"
)

// envKeys maps environment variables to config keys.
var envKeys = []struct {
	env string
	key string
}{
	{EnvPort, KeyPort},
	{EnvAddress, KeyAddress},
	{EnvWSPath, KeyWSPath},
	{EnvLogLevel, KeyLogLevel},
	{EnvLogFormat, KeyLogFormat},
	{EnvBusCapacity, KeyBusCapacity},
	{EnvWriteTimeout, KeyWriteTimeout},
	{EnvReadLimit, KeyReadLimit},
}

// LoadEnv applies WEBMOCKET_* environment variables to cfg. Unset, empty
// and unparsable values leave the current value untouched.
func LoadEnv(cfg *Config) {
	for _, e := range envKeys {
		v := lookupEnv(e.env)
		if v == "" {
			continue
		}
		_ = cfg.Set(e.key, v, SourceEnv)
	}
}

func lookupEnv(name string) string {
	v, _ := os.LookupEnv(name)
	return v
}
