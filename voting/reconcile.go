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
	"sort"
	"time"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/result"
)

// ReconcilePassedFiles recomputes the passed-files projection from the
// vote ledger: every file with a strict agree majority gets a row,
// everything else is removed. The operation is idempotent; running it
// twice against an unchanged ledger leaves an identical projection,
// which is why row timestamps derive from the ledger rather than the
// wall clock.
func (e *Engine) ReconcilePassedFiles(
	sessionID string,
) ([]models.PassedFile, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	votes, err := store.ListVoteDetails(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to list votes", err)
	}
	tallies := tallyVotes(votes)
	passedAt := passedAtByFile(votes)
	forced := forcedByFile(votes)
	keep := make([]string, 0, len(tallies))
	for fileID, tally := range tallies {
		if !tally.Passed() {
			continue
		}
		meta, err := e.resolveFileMetadata(store, sessionID, fileID)
		if err != nil {
			return nil, result.NewInternalError(
				"failed to resolve file metadata",
				err,
			)
		}
		row := models.PassedFile{
			SessionID:    sessionID,
			FileID:       fileID,
			FileName:     meta.FileName,
			OriginalName: meta.OriginalName,
			CountryID:    meta.CountryID,
			VoteAgree:    tally.Agree,
			VoteDisagree: tally.Disagree,
			VoteAbstain:  tally.Abstain,
			PassedAt:     passedAt[fileID],
			Status:       "passed",
			ForcePassed:  forced[fileID],
		}
		if err := store.UpsertPassedFile(&row); err != nil {
			return nil, result.NewInternalError(
				"failed to write passed file",
				err,
			)
		}
		keep = append(keep, fileID)
	}
	sort.Strings(keep)
	// Drop files that no longer pass after vote changes
	if err := store.DeletePassedFilesExcept(sessionID, keep); err != nil {
		return nil, result.NewInternalError(
			"failed to prune passed files",
			err,
		)
	}
	passed, err := store.ListPassedFiles(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list passed files",
			err,
		)
	}
	e.logger.Info(
		"reconciled passed files",
		"session_id", sessionID,
		"passed", len(passed),
		"tallied", len(tallies),
	)
	return passed, nil
}

// passedAtByFile derives each file's passed-at timestamp from its latest
// ledger write. Using ledger time instead of the wall clock keeps
// reconciliation byte-identical across repeated runs.
func passedAtByFile(votes []models.VoteDetail) map[string]time.Time {
	latest := make(map[string]time.Time)
	for _, vote := range votes {
		if vote.VotedAt.After(latest[vote.FileID]) {
			latest[vote.FileID] = vote.VotedAt
		}
	}
	return latest
}

// forcedByFile marks files whose tally includes synthesized abstentions.
func forcedByFile(votes []models.VoteDetail) map[string]bool {
	forced := make(map[string]bool)
	for _, vote := range votes {
		if vote.Forced {
			forced[vote.FileID] = true
		}
	}
	return forced
}

// knownFileIDs collects every file id in play for the session: direct
// uploads, chairman assignments, and files already voted on.
func knownFileIDs(
	store *database.Store,
	sessionID string,
) ([]string, error) {
	seen := make(map[string]bool)
	tempFiles, err := store.ListTempFiles(sessionID)
	if err != nil {
		return nil, err
	}
	for _, tempFile := range tempFiles {
		seen[tempFile.FileID] = true
	}
	assignments, err := store.ListFileAssignments(sessionID)
	if err != nil {
		return nil, err
	}
	for _, assignment := range assignments {
		seen[assignment.FileID] = true
	}
	votes, err := store.ListVoteDetails(sessionID)
	if err != nil {
		return nil, err
	}
	for _, vote := range votes {
		seen[vote.FileID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
