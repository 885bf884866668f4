package config

import (
	"errors"
	"fmt"
	"strconv"
)

// Merge applies every field set in f to cfg, recording source.
// Values that fail to parse are reported together; valid ones still apply.
func Merge(cfg *Config, f *File, source string) error {
	if f == nil {
		return nil
	}

	var errs []error
	set := func(key, value string) {
		if err := cfg.Set(key, value, source); err != nil {
			errs = append(errs, err)
		}
	}

	if f.Port != nil {
		set(KeyPort, strconv.Itoa(*f.Port))
	}
	if f.Address != nil {
		set(KeyAddress, *f.Address)
	}
	if f.WSPath != nil {
		set(KeyWSPath, *f.WSPath)
	}
	if f.LogLevel != nil {
		set(KeyLogLevel, *f.LogLevel)
	}
	if f.LogFormat != nil {
		set(KeyLogFormat, *f.LogFormat)
	}
	if f.BusCapacity != nil {
		set(KeyBusCapacity, strconv.Itoa(*f.BusCapacity))
	}
	if f.WriteTimeout != nil {
		set(KeyWriteTimeout, *f.WriteTimeout)
	}
	if f.ReadLimit != nil {
		set(KeyReadLimit, strconv.FormatInt(*f.ReadLimit, 10))
	}

	if len(errs) > 0 {
		return fmt.Errorf("merge %s config: %w", source, errors.Join(errs...))
	}
	return nil
}
