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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/plenum-io/plenum/database/models"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store is one storage scope: a relational store for the session
// collections plus a blob store for raw uploaded documents. The shared
// store and every isolated per-session store are each a Store.
type Store struct {
	name         string
	dataDir      string
	db           *gorm.DB
	blob         *BlobStore
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	closed       bool
}

// NewStore opens (or creates) the named storage scope. Uses in-memory
// backends if dataDir is empty, useful for testing. Schema and
// uniqueness constraints are (re)created idempotently on every open,
// which is what provisions a fresh isolated store on first use.
func NewStore(
	name string,
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	if name == "" {
		return nil, errors.New("store name must not be empty")
	}
	var metadataDb *gorm.DB
	var err error
	if dataDir == "" {
		// Use a named in-memory database so separate scopes stay isolated
		// while multiple connections within a scope share state
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(
			dataDir,
			fmt.Sprintf("%s.sqlite", name),
		)
		// WAL journal mode, disable sync on write, increase cache size to 50MB (from 2MB)
		connOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)&_pragma=cache_size(-50000)"
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", dbPath, connOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	s := &Store{
		name:         name,
		dataDir:      dataDir,
		db:           metadataDb,
		logger:       logger,
		promRegistry: promRegistry,
	}
	if err := s.init(); err != nil {
		return s, err
	}
	// Create table schemas and uniqueness constraints
	for _, model := range models.MigrateModels {
		s.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := s.db.AutoMigrate(model); err != nil {
			return s, err
		}
	}
	// Open blob store for raw document bytes
	blob, err := NewBlobStore(name, dataDir, s.logger)
	if err != nil {
		return s, err
	}
	s.blob = blob
	return s, nil
}

func (s *Store) init() error {
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	return nil
}

// Name returns the scope name, e.g. "plenum" or "plenum_12345"
func (s *Store) Name() string {
	return s.name
}

// DB returns the underlying gorm DB handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Blob returns the blob store for raw uploaded documents
func (s *Store) Blob() *BlobStore {
	return s.blob
}

// Transaction runs fn inside a single database transaction. Mutations to
// the session document go through here so concurrent chairman and
// participant requests cannot interleave between read and write.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// Close cleans up the database connections
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.blob != nil {
		err = errors.Join(err, s.blob.Close())
	}
	if sqlDB, dbErr := s.db.DB(); dbErr == nil {
		err = errors.Join(err, sqlDB.Close())
	}
	return err
}
