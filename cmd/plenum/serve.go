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

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/plenum-io/plenum"
	"github.com/plenum-io/plenum/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func serveRun(_ *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()

	tokenTTL, err := cfg.TokenTTLDuration()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	opts := []plenum.ConfigOptionFunc{
		plenum.WithLogger(logger),
		plenum.WithDatabasePath(cfg.DatabasePath),
		plenum.WithApiListenAddress(cfg.ApiListenAddress),
		plenum.WithPrometheusRegistry(prometheus.NewRegistry()),
		plenum.WithIdentityTokenTTL(tokenTTL),
		plenum.WithTracing(cfg.Tracing),
		plenum.WithTracingStdout(cfg.TracingStdout),
		plenum.WithSeedCountries(cfg.SeedCountries),
		plenum.WithShutdownTimeout(shutdownTimeout),
	}
	if cfg.IdentitySecret != "" {
		opts = append(
			opts,
			plenum.WithIdentitySecret([]byte(cfg.IdentitySecret)),
		)
	}

	node, err := plenum.New(plenum.NewConfig(opts...))
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	// Shut down cleanly on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := node.Stop(); err != nil {
			slog.Error(err.Error())
		}
	}()

	if err := node.Run(ctx); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session engine",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			serveRun(cmd, args, cfg)
		},
	}
}
