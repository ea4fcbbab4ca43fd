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

package plenum

import (
	"io"
	"log/slog"
	"time"

	"github.com/plenum-io/plenum/declaration"
	"github.com/plenum-io/plenum/extract"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     *prometheus.Registry
	logger           *slog.Logger
	drafter          declaration.Drafter
	extractor        extract.Extractor
	dataDir          string
	apiListenAddress string
	identitySecret   []byte
	identityTokenTTL time.Duration
	tracing          bool
	tracingStdout    bool
	seedCountries    bool
	shutdownTimeout  time.Duration
}

type ConfigOptionFunc func(*Config)

func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:           slog.New(slog.NewJSONHandler(io.Discard, nil)),
		apiListenAddress: ":8080",
		identityTokenTTL: 24 * time.Hour,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

func WithPrometheusRegistry(registry *prometheus.Registry) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

func WithIdentitySecret(secret []byte) ConfigOptionFunc {
	return func(c *Config) {
		c.identitySecret = secret
	}
}

func WithIdentityTokenTTL(ttl time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.identityTokenTTL = ttl
	}
}

func WithDrafter(drafter declaration.Drafter) ConfigOptionFunc {
	return func(c *Config) {
		c.drafter = drafter
	}
}

func WithExtractor(extractor extract.Extractor) ConfigOptionFunc {
	return func(c *Config) {
		c.extractor = extractor
	}
}

func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

func WithSeedCountries(seed bool) ConfigOptionFunc {
	return func(c *Config) {
		c.seedCountries = seed
	}
}

func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
