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
	"time"

	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/result"
)

// RunSummary reports the outcome of a completed voting run.
type RunSummary struct {
	SessionID        string                      `json:"session_id"`
	FileResults      map[string]models.FileTally `json:"file_results"`
	PassedFiles      []models.PassedFile         `json:"passed_files"`
	ForceEnded       bool                        `json:"force_ended"`
	SynthesizedVotes int                         `json:"synthesized_votes"`
	CompletedAt      time.Time                   `json:"completed_at"`
}

// FinalizeVoting merges a chairman-supplied vote matrix (country -> file
// -> choice) into the ledger and finalizes the run without forcing.
// Matrix entries overwrite any earlier votes for the same keys.
func (e *Engine) FinalizeVoting(
	sessionID string,
	matrix map[string]map[string]models.VoteChoice,
) (*RunSummary, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	for countryID, row := range matrix {
		if countryID == "" {
			return nil, result.NewValidationError(
				"country_id",
				"must not be empty",
			)
		}
		for fileID, choice := range row {
			if fileID == "" {
				return nil, result.NewValidationError(
					"file_id",
					"must not be empty",
				)
			}
			if !choice.Valid() {
				return nil, result.NewValidationError(
					"vote_result",
					"unknown vote choice "+string(choice),
				)
			}
		}
	}
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	now := time.Now().UTC()
	for countryID, row := range matrix {
		for fileID, choice := range row {
			vote := models.VoteDetail{
				SessionID:  sessionID,
				CountryID:  countryID,
				FileID:     fileID,
				VoteResult: choice,
				VotedAt:    now,
				Forced:     false,
			}
			if err := store.UpsertVoteDetail(&vote); err != nil {
				return nil, result.NewInternalError(
					"failed to merge vote matrix",
					err,
				)
			}
		}
	}
	return e.completeRun(sessionID, false)
}

// ForceEnd terminates voting immediately. Every (active participant,
// known file) pair missing from the ledger gets a synthesized abstention
// marked forced, so the tally afterward covers the complete grid. The
// run is then finalized exactly like a natural completion: audit
// snapshot, submission outcome writeback, projection reconcile, and the
// advance to the declaration phase.
func (e *Engine) ForceEnd(sessionID string) (*RunSummary, error) {
	return e.completeRun(sessionID, true)
}

// Complete finalizes a voting run without synthesizing any votes.
// Delegations that never voted simply do not count toward any file.
func (e *Engine) Complete(sessionID string) (*RunSummary, error) {
	return e.completeRun(sessionID, false)
}

func (e *Engine) completeRun(
	sessionID string,
	force bool,
) (*RunSummary, error) {
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
	participants, err := e.activeParticipants(store, sessionID)
	if err != nil {
		return nil, err
	}
	fileIDs, err := knownFileIDs(store, sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to collect files", err)
	}
	votes, err := store.ListVoteDetails(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to list votes", err)
	}
	voted := make(map[string]map[string]bool, len(participants))
	for _, vote := range votes {
		if voted[vote.CountryID] == nil {
			voted[vote.CountryID] = make(map[string]bool)
		}
		voted[vote.CountryID][vote.FileID] = true
	}
	now := time.Now().UTC()
	var missing int
	for _, countryID := range participants {
		for _, fileID := range fileIDs {
			if voted[countryID][fileID] {
				continue
			}
			missing++
			if !force {
				continue
			}
			abstain := models.VoteDetail{
				SessionID:  sessionID,
				CountryID:  countryID,
				FileID:     fileID,
				VoteResult: models.VoteAbstain,
				VotedAt:    now,
				Forced:     true,
			}
			if err := store.UpsertVoteDetail(&abstain); err != nil {
				return nil, result.NewInternalError(
					"failed to synthesize abstention",
					err,
				)
			}
		}
	}
	if force && missing > 0 {
		e.logger.Info(
			"synthesized abstentions for force end",
			"session_id", sessionID,
			"count", missing,
		)
	}
	// Re-read the ledger so the snapshot includes synthesized rows
	votes, err = store.ListVoteDetails(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to list votes", err)
	}
	tallies := tallyVotes(votes)
	recordStatus := "completed"
	if force {
		recordStatus = "force_ended"
	}
	record := models.VotingRecord{
		SessionID:        sessionID,
		VoteMatrix:       voteMatrix(votes),
		FileResults:      tallies,
		CompletedAt:      now,
		Status:           recordStatus,
		ForceEnded:       force,
		UncompletedCount: missing,
	}
	if err := store.CreateVotingRecord(&record); err != nil {
		return nil, result.NewInternalError(
			"failed to write voting record",
			err,
		)
	}
	// Write outcomes back onto submissions by the owning country
	submissions, err := store.ListSubmissions(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list submissions",
			err,
		)
	}
	for _, submission := range submissions {
		tally, ok := tallies[submission.FileID]
		if !ok {
			continue
		}
		err := store.MarkSubmissionOutcome(
			sessionID,
			submission.CountryID,
			tally,
			now,
			force,
		)
		if err != nil {
			return nil, result.NewInternalError(
				"failed to mark submission outcome",
				err,
			)
		}
	}
	passed, err := e.ReconcilePassedFiles(sessionID)
	if err != nil {
		return nil, err
	}
	// Move the meeting on to declaration. A concurrent advance by the
	// chairman is tolerated; the run itself already finished.
	if e.states != nil {
		_, err := e.states.Advance(sessionID, meeting.PhaseDeclaration)
		if err != nil {
			var conflictErr result.ConflictError
			if !errors.As(err, &conflictErr) {
				return nil, err
			}
			e.logger.Warn(
				"voting run finished but phase advance conflicted",
				"session_id", sessionID,
				"error", err,
			)
		}
	}
	e.broadcast(sessionID, map[string]any{
		"session_id":  sessionID,
		"status":      recordStatus,
		"force_ended": force,
		"passed":      len(passed),
	})
	return &RunSummary{
		SessionID:        sessionID,
		FileResults:      tallies,
		PassedFiles:      passed,
		ForceEnded:       force,
		SynthesizedVotes: missing,
		CompletedAt:      now,
	}, nil
}
