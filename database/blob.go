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
	"log/slog"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrBlobNotFound is returned when a document blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds the raw bytes of uploaded documents for one storage
// scope. Metadata about the documents lives in the relational store;
// only the opaque content goes here.
type BlobStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBlobStore opens the badger-backed blob store for the named scope.
// Uses an in-memory database if dataDir is empty.
func NewBlobStore(
	name string,
	dataDir string,
	logger *slog.Logger,
) (*BlobStore, error) {
	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		blobDir := filepath.Join(dataDir, fmt.Sprintf("%s_blob", name))
		opts = badger.DefaultOptions(blobDir)
	}
	// badger logs at INFO by default, which is too chatty for a side store
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return &BlobStore{
		db:     db,
		logger: logger,
	}, nil
}

func blobKey(sessionID, fileID string) []byte {
	return fmt.Appendf(nil, "file:%s:%s", sessionID, fileID)
}

// PutDocument stores the raw bytes of an uploaded document.
func (b *BlobStore) PutDocument(
	sessionID string,
	fileID string,
	data []byte,
) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobKey(sessionID, fileID), data)
	})
}

// GetDocument returns the raw bytes of an uploaded document, or
// ErrBlobNotFound if no blob exists for the key.
func (b *BlobStore) GetDocument(
	sessionID string,
	fileID string,
) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(sessionID, fileID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBlobNotFound
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close cleans up the blob store
func (b *BlobStore) Close() error {
	return b.db.Close()
}
