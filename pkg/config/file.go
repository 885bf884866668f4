package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat indicates a config file extension that is not
// .yaml, .yml or .toml.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// File is the on-disk configuration. Nil fields were not set in the file.
type File struct {
	Port         *int    `yaml:"port" toml:"port"`
	Address      *string `yaml:"address" toml:"address"`
	WSPath       *string `yaml:"wsPath" toml:"ws_path"`
	LogLevel     *string `yaml:"logLevel" toml:"log_level"`
	LogFormat    *string `yaml:"logFormat" toml:"log_format"`
	BusCapacity  *int    `yaml:"busCapacity" toml:"bus_capacity"`
	WriteTimeout *string `yaml:"writeTimeout" toml:"write_timeout"`
	ReadLimit    *int64  `yaml:"readLimit" toml:"read_limit"`
}

// ConfigError reports a config file that could not be used.
type ConfigError struct {
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Path + ": " + e.Message
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) config file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	default:
		return nil, &ConfigError{Path: path, Message: ErrUnsupportedFormat.Error()}
	}
	if err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	return &f, nil
}
