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

package voting

import (
	"errors"

	"github.com/plenum-io/plenum/database"
	"gorm.io/gorm"
)

// fileMetadata is what the passed-files projection needs to know about a
// file beyond its tally: display names and the owning country.
type fileMetadata struct {
	FileID       string
	FileName     string
	OriginalName string
	CountryID    string
}

// metadataResolver is one lookup strategy for file metadata. Resolvers
// return ok=false when they know nothing about the file; hard storage
// errors are returned separately.
type metadataResolver struct {
	name    string
	resolve func(store *database.Store, sessionID, fileID string) (fileMetadata, bool, error)
}

// metadataResolvers is the ordered strategy chain. Files can enter a
// session through several paths (direct upload, chairman assignment,
// ledger-only, position paper), so the chain is tried in order of
// metadata quality and the first hit wins.
var metadataResolvers = []metadataResolver{
	{name: "temp_file", resolve: resolveFromTempFile},
	{name: "assignment", resolve: resolveFromAssignment},
	{name: "vote_ledger", resolve: resolveFromLedger},
	{name: "submission", resolve: resolveFromSubmission},
}

func resolveFromTempFile(
	store *database.Store,
	sessionID, fileID string,
) (fileMetadata, bool, error) {
	tempFile, err := store.GetTempFile(sessionID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fileMetadata{}, false, nil
		}
		return fileMetadata{}, false, err
	}
	return fileMetadata{
		FileID:       fileID,
		FileName:     tempFile.FileName,
		OriginalName: tempFile.OriginalName,
		CountryID:    tempFile.CountryID,
	}, true, nil
}

func resolveFromAssignment(
	store *database.Store,
	sessionID, fileID string,
) (fileMetadata, bool, error) {
	assignment, err := store.GetFileAssignment(sessionID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fileMetadata{}, false, nil
		}
		return fileMetadata{}, false, err
	}
	return fileMetadata{
		FileID:       fileID,
		FileName:     assignment.FileName,
		OriginalName: assignment.OriginalName,
		CountryID:    assignment.CountryID,
	}, true, nil
}

// resolveFromLedger recovers the owning country by reverse lookup on the
// vote ledger. It can only identify the country, not display names.
func resolveFromLedger(
	store *database.Store,
	sessionID, fileID string,
) (fileMetadata, bool, error) {
	vote, err := store.GetVoteDetailForFile(sessionID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fileMetadata{}, false, nil
		}
		return fileMetadata{}, false, err
	}
	return fileMetadata{
		FileID:    fileID,
		CountryID: vote.CountryID,
	}, true, nil
}

func resolveFromSubmission(
	store *database.Store,
	sessionID, fileID string,
) (fileMetadata, bool, error) {
	submissions, err := store.ListSubmissions(sessionID)
	if err != nil {
		return fileMetadata{}, false, err
	}
	for _, submission := range submissions {
		if submission.FileID == fileID {
			return fileMetadata{
				FileID:    fileID,
				FileName:  submission.FileName,
				CountryID: submission.CountryID,
			}, true, nil
		}
	}
	return fileMetadata{}, false, nil
}

// resolveFileMetadata walks the strategy chain and returns the first
// hit, logging which strategy served the file. When every strategy
// misses, the file still gets a projection row under its bare id.
func (e *Engine) resolveFileMetadata(
	store *database.Store,
	sessionID, fileID string,
) (fileMetadata, error) {
	for _, resolver := range metadataResolvers {
		meta, ok, err := resolver.resolve(store, sessionID, fileID)
		if err != nil {
			return fileMetadata{}, err
		}
		if ok {
			e.logger.Debug(
				"resolved file metadata",
				"session_id", sessionID,
				"file_id", fileID,
				"resolver", resolver.name,
			)
			return meta, nil
		}
	}
	e.logger.Warn(
		"no metadata found for file, using bare id",
		"session_id", sessionID,
		"file_id", fileID,
	)
	return fileMetadata{FileID: fileID}, nil
}
