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

package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MasterStoreName is the name of the shared store. Isolated stores are
// named deterministically as "<master>_<session_id>".
const MasterStoreName = "plenum"

// isolatedSessionPattern matches session ids that get a dedicated store.
var isolatedSessionPattern = regexp.MustCompile(`^\d{5}$`)

// Router resolves a session identifier to its storage scope. Five-digit
// numeric session ids get an isolated store; everything else falls
// closed into the shared store, which is a safe default for malformed
// ids. The router is constructed once and injected into every component;
// there is no process-wide mutable store handle.
type Router struct {
	dataDir      string
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	shared       *Store
	isolated     map[string]*Store
	mu           sync.Mutex
	closed       bool
}

// NewRouter opens the shared store and returns a router over it.
func NewRouter(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Router, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	shared, err := NewStore(MasterStoreName, dataDir, logger, promRegistry)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared store: %w", err)
	}
	return &Router{
		dataDir:      dataDir,
		logger:       logger,
		promRegistry: promRegistry,
		shared:       shared,
		isolated:     make(map[string]*Store),
	}, nil
}

// IsIsolated returns true if the session id routes to a dedicated store.
func IsIsolated(sessionID string) bool {
	return isolatedSessionPattern.MatchString(sessionID)
}

// Shared returns the shared store. Rooms, join records, and the country
// master list always live here regardless of routing tier.
func (r *Router) Shared() *Store {
	return r.shared
}

// Resolve returns the storage scope for the given session id, opening
// the isolated store on first use. Opening provisions the store's
// schema and uniqueness constraints idempotently.
func (r *Router) Resolve(sessionID string) (*Store, error) {
	if !IsIsolated(sessionID) {
		return r.shared, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("router is closed")
	}
	if store, ok := r.isolated[sessionID]; ok {
		return store, nil
	}
	name := fmt.Sprintf("%s_%s", MasterStoreName, sessionID)
	store, err := NewStore(name, r.dataDir, r.logger, r.promRegistry)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to open isolated store %s: %w",
			name,
			err,
		)
	}
	r.logger.Debug(
		"provisioned isolated store",
		"component", "database",
		"store", name,
	)
	r.isolated[sessionID] = store
	return store, nil
}

// Close cleans up the shared store and all isolated stores.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	for _, store := range r.isolated {
		err = errors.Join(err, store.Close())
	}
	err = errors.Join(err, r.shared.Close())
	return err
}
