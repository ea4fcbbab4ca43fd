// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "plenum.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DatabasePath     string `yaml:"databasePath"                                             split_words:"true"`
	ApiListenAddress string `yaml:"apiListenAddress" envconfig:"PLENUM_API_LISTEN_ADDRESS"`
	IdentitySecret   string `yaml:"identitySecret"   envconfig:"PLENUM_IDENTITY_SECRET"`
	TokenTTL         string `yaml:"tokenTtl"         envconfig:"PLENUM_TOKEN_TTL"`
	ShutdownTimeout  string `yaml:"shutdownTimeout"                                          split_words:"true"`
	Tracing          bool   `yaml:"tracing"`
	TracingStdout    bool   `yaml:"tracingStdout"                                            split_words:"true"`
	SeedCountries    bool   `yaml:"seedCountries"                                            split_words:"true"`
}

var globalConfig = &Config{
	DatabasePath:     ".plenum",
	ApiListenAddress: ":8080",
	TokenTTL:         "24h",
	ShutdownTimeout:  DefaultShutdownTimeout,
	SeedCountries:    true,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.plenum/plenum.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".plenum", "plenum.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/plenum/plenum.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/plenum/plenum.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Overlay config values onto existing defaults
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Load config values from environment variables
	err := envconfig.Process("plenum", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	// Validate durations up front so a typo fails at startup
	if _, err := globalConfig.TokenTTLDuration(); err != nil {
		return nil, err
	}
	if _, err := globalConfig.ShutdownTimeoutDuration(); err != nil {
		return nil, err
	}

	return globalConfig, nil
}

func (c *Config) TokenTTLDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid token TTL %q: %w", c.TokenTTL, err)
	}
	return d, nil
}

func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid shutdown timeout %q: %w",
			c.ShutdownTimeout,
			err,
		)
	}
	return d, nil
}
