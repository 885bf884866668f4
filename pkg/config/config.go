package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/getmockd/webmocket/pkg/logging"
)

// Defaults.
const (
	DefaultPort         = 3000
	DefaultAddress      = "127.0.0.1"
	DefaultWSPath       = "/ws"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultBusCapacity  = 100
	DefaultWriteTimeout = 10 * time.Second
)

// Value sources.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Validation errors.
var (
	ErrInvalidPort        = errors.New("port must be between 0 and 65535")
	ErrInvalidAddress     = errors.New("address must be an IP address")
	ErrInvalidWSPath      = errors.New("ws path must start with / and contain no braces or spaces")
	ErrInvalidBusCapacity = errors.New("bus capacity must be positive")
	ErrInvalidTimeout     = errors.New("write timeout must be positive")
	ErrInvalidReadLimit   = errors.New("read limit must not be negative")
	ErrReservedPath       = errors.New("ws path collides with a control route")
)

// reservedPaths are served by the control surface.
var reservedPaths = []string{"/messages", "/ping", "/pong", "/health", "/metrics"}

// Config is the resolved server configuration.
type Config struct {
	Port         int           `json:"port" yaml:"port"`
	Address      string        `json:"address" yaml:"address"`
	WSPath       string        `json:"wsPath" yaml:"wsPath"`
	LogLevel     string        `json:"logLevel" yaml:"logLevel"`
	LogFormat    string        `json:"logFormat" yaml:"logFormat"`
	BusCapacity  int           `json:"busCapacity" yaml:"busCapacity"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	// ReadLimit caps inbound frame size in bytes; 0 means unlimited.
	ReadLimit  int64  `json:"readLimit" yaml:"readLimit"`
	ConfigFile string `json:"configFile,omitempty" yaml:"configFile,omitempty"`

	// Sources tracks where each value came from, keyed by field key.
	Sources map[string]string `json:"-" yaml:"-"`
}

// Field keys used in Sources, flags and config files.
const (
	KeyPort         = "port"
	KeyAddress      = "address"
	KeyWSPath       = "wsPath"
	KeyLogLevel     = "logLevel"
	KeyLogFormat    = "logFormat"
	KeyBusCapacity  = "busCapacity"
	KeyWriteTimeout = "writeTimeout"
	KeyReadLimit    = "readLimit"
	KeyConfigFile   = "configFile"
)

// Keys lists every field key in display order.
var Keys = []string{
	KeyPort, KeyAddress, KeyWSPath, KeyLogLevel, KeyLogFormat,
	KeyBusCapacity, KeyWriteTimeout, KeyReadLimit,
}

// NewDefault returns a Config populated with defaults.
func NewDefault() *Config {
	cfg := &Config{
		Port:         DefaultPort,
		Address:      DefaultAddress,
		WSPath:       DefaultWSPath,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		BusCapacity:  DefaultBusCapacity,
		WriteTimeout: DefaultWriteTimeout,
		Sources:      make(map[string]string, len(Keys)),
	}
	for _, k := range Keys {
		cfg.Sources[k] = SourceDefault
	}
	return cfg
}

// Load resolves configuration from defaults, the config file at path (if
// non-empty, or named by WEBMOCKET_CONFIG) and the environment.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	if path == "" {
		path = lookupEnv(EnvConfig)
	}
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := Merge(cfg, f, SourceFile); err != nil {
			return nil, &ConfigError{Path: path, Message: err.Error()}
		}
		cfg.ConfigFile = path
	}

	LoadEnv(cfg)
	return cfg, nil
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Logging returns the logging configuration derived from c.
func (c *Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.LogLevel)
	lc.Format = logging.ParseFormat(c.LogFormat)
	return lc
}

// Set assigns a field from its string form and records source.
// It is used for flag and environment overrides.
func (c *Config) Set(key, value, source string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyPort:
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		c.Port = port
	case KeyAddress:
		if net.ParseIP(value) == nil {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, value)
		}
		c.Address = value
	case KeyWSPath:
		if value == "" {
			return fmt.Errorf("%w: empty", ErrInvalidWSPath)
		}
		if !literalPath(value) {
			return fmt.Errorf("%w: %q", ErrInvalidWSPath, value)
		}
		c.WSPath = NormalizePath(value)
	case KeyLogLevel:
		c.LogLevel = strings.ToLower(value)
	case KeyLogFormat:
		c.LogFormat = strings.ToLower(value)
	case KeyBusCapacity:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidBusCapacity, value)
		}
		c.BusCapacity = n
	case KeyWriteTimeout:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidTimeout, value)
		}
		c.WriteTimeout = d
	case KeyReadLimit:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidReadLimit, value)
		}
		c.ReadLimit = n
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	c.markSource(key, source)
	return nil
}

func (c *Config) markSource(key, source string) {
	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[key] = source
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if net.ParseIP(c.Address) == nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidAddress, c.Address))
	}
	if !strings.HasPrefix(c.WSPath, "/") || !literalPath(c.WSPath) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidWSPath, c.WSPath))
	}
	for _, p := range reservedPaths {
		if c.WSPath == p {
			errs = append(errs, fmt.Errorf("%w: %q", ErrReservedPath, c.WSPath))
		}
	}
	if c.BusCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidBusCapacity, c.BusCapacity))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTimeout, c.WriteTimeout))
	}
	if c.ReadLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidReadLimit, c.ReadLimit))
	}
	return errors.Join(errs...)
}

// NormalizePath ensures p starts with a slash.
func NormalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// literalPath reports whether p is free of route wildcards and whitespace.
func literalPath(p string) bool {
	return !strings.ContainsFunc(p, func(r rune) bool {
		return r == '{' || r == '}' || unicode.IsSpace(r)
	})
}

// parsePort accepts 0, which asks the OS for an ephemeral port.
func parsePort(s string) (int, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return int(port), nil
}
