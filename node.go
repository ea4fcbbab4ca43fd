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
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plenum-io/plenum/api"
	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/declaration"
	"github.com/plenum-io/plenum/event"
	"github.com/plenum-io/plenum/identity"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/membership"
	"github.com/plenum-io/plenum/submission"
	"github.com/plenum-io/plenum/voting"
)

type Node struct {
	router        *database.Router
	eventBus      *event.EventBus
	states        *meeting.StateMachine
	members       *membership.Manager
	votes         *voting.Engine
	submissions   *submission.Service
	declarations  *declaration.Service
	identity      identity.Provider
	api           *api.Api
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
	return n, nil
}

func (n *Node) configValidate() error {
	if n.config.identityTokenTTL <= 0 {
		return fmt.Errorf(
			"invalid identity token TTL: %s",
			n.config.identityTokenTTL,
		)
	}
	if n.config.apiListenAddress == "" {
		return errors.New("no API listen address defined")
	}
	return nil
}

func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Open stores
	router, err := database.NewRouter(
		n.config.dataDir,
		n.config.logger,
		n.config.promRegistry,
	)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.router = router
	// Build services
	n.states = meeting.NewStateMachine(n.router, n.eventBus, n.config.logger)
	n.members = membership.NewManager(n.router, n.eventBus, n.config.logger)
	n.votes = voting.NewEngine(
		n.router,
		n.eventBus,
		n.states,
		n.config.logger,
	)
	n.submissions = submission.NewService(
		n.router,
		n.eventBus,
		n.config.extractor,
		n.config.logger,
	)
	n.declarations = declaration.NewService(
		n.router,
		n.config.drafter,
		n.config.logger,
	)
	// Token provider
	secret := n.config.identitySecret
	if len(secret) == 0 {
		// An ephemeral secret keeps single-node deployments working, but
		// tokens do not survive a restart
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate token secret: %w", err)
		}
		n.config.logger.Warn(
			"no identity secret configured, using ephemeral secret",
			"component", "node",
		)
	}
	tokens, err := identity.NewJWT(secret, n.config.identityTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to configure token provider: %w", err)
	}
	n.identity = tokens
	// Seed country master data
	if n.config.seedCountries {
		if err := n.members.SeedCountries(defaultCountries); err != nil {
			return fmt.Errorf("failed to seed countries: %w", err)
		}
	}
	// Start API listener
	n.api = api.New(
		api.Config{
			ListenAddress: n.config.apiListenAddress,
			States:        n.states,
			Members:       n.members,
			Votes:         n.votes,
			Submissions:   n.submissions,
			Declarations:  n.declarations,
			Identity:      n.identity,
			Bus:           n.eventBus,
			PromRegistry:  n.config.promRegistry,
		},
		n.config.logger,
	)
	if err := n.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API: %w", err)
	}

	// Wait for shutdown
	<-n.done
	return nil
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Stop accepting new requests
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	// Flush and close stores last
	if n.router != nil {
		if closeErr := n.router.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("database close: %w", closeErr),
			)
		}
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}

// defaultCountries is the master data seeded when country seeding is
// enabled. Codes follow ISO 3166-1 alpha-2.
var defaultCountries = []models.Country{
	{Code: "AR", Name: "Argentina", Flag: "🇦🇷"},
	{Code: "AU", Name: "Australia", Flag: "🇦🇺"},
	{Code: "BR", Name: "Brazil", Flag: "🇧🇷"},
	{Code: "CA", Name: "Canada", Flag: "🇨🇦"},
	{Code: "CH", Name: "Switzerland", Flag: "🇨🇭"},
	{Code: "CN", Name: "China", Flag: "🇨🇳"},
	{Code: "DE", Name: "Germany", Flag: "🇩🇪"},
	{Code: "EG", Name: "Egypt", Flag: "🇪🇬"},
	{Code: "FR", Name: "France", Flag: "🇫🇷"},
	{Code: "GB", Name: "United Kingdom", Flag: "🇬🇧"},
	{Code: "IN", Name: "India", Flag: "🇮🇳"},
	{Code: "ID", Name: "Indonesia", Flag: "🇮🇩"},
	{Code: "IT", Name: "Italy", Flag: "🇮🇹"},
	{Code: "JP", Name: "Japan", Flag: "🇯🇵"},
	{Code: "KE", Name: "Kenya", Flag: "🇰🇪"},
	{Code: "KR", Name: "South Korea", Flag: "🇰🇷"},
	{Code: "MX", Name: "Mexico", Flag: "🇲🇽"},
	{Code: "NG", Name: "Nigeria", Flag: "🇳🇬"},
	{Code: "RU", Name: "Russia", Flag: "🇷🇺"},
	{Code: "SA", Name: "Saudi Arabia", Flag: "🇸🇦"},
	{Code: "SG", Name: "Singapore", Flag: "🇸🇬"},
	{Code: "TR", Name: "Turkey", Flag: "🇹🇷"},
	{Code: "US", Name: "United States", Flag: "🇺🇸"},
	{Code: "ZA", Name: "South Africa", Flag: "🇿🇦"},
}
