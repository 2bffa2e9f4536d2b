// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package config loads CLI configuration with viper: explicit flags win over
// environment variables (prefix QUIVER_), which win over the config file,
// which wins over defaults.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/quiverdb/quiver/backend"
	qerr "github.com/quiverdb/quiver/pkg/errors"
)

// Config is the top-level quiver CLI configuration.
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Query   QueryConfig   `mapstructure:"query"`
	Verbose bool          `mapstructure:"verbose"`
}

// BackendConfig selects and tunes the engine used by `quiver build`.
type BackendConfig struct {
	// Type is one of the registered backend identifiers.
	Type string `mapstructure:"type"`

	// Params is passed through to the backend builder as keyword
	// configuration (metric, index_type, nlist, ...). Unknown keys fail
	// at build time, not here.
	Params map[string]any `mapstructure:"params"`
}

// QueryConfig sets defaults for `quiver query`.
type QueryConfig struct {
	K         int     `mapstructure:"k"`
	Threshold float64 `mapstructure:"threshold"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("backend.type", string(backend.TypeBasic))
	v.SetDefault("query.k", 10)
	v.SetDefault("query.threshold", 0.0)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix("QUIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, qerr.Wrapf(err, qerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, qerr.Wrap(err, qerr.CodeConfigLoadReadFailure, "unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, qerr.Wrap(errors.Join(errs...), qerr.CodeCLIInputInvalid, "validating config")
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting all
// issues rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.Backend.Type == "" {
		errs = append(errs, qerr.New(qerr.CodeCLIInputInvalid, "config: backend.type must not be empty"))
	}

	if c.Query.K <= 0 {
		errs = append(errs, qerr.Errorf(qerr.CodeCLIInputInvalid,
			"config: query.k must be greater than 0, got %d", c.Query.K))
	}

	if c.Query.Threshold < 0 {
		errs = append(errs, qerr.Errorf(qerr.CodeCLIInputInvalid,
			"config: query.threshold must not be negative, got %g", c.Query.Threshold))
	}

	return errs
}
