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

// Package voting implements the vote ledger and tally engine. The ledger
// is the single source of truth: one row per (session, country, file)
// with last-write-wins semantics. Everything else (per-file tallies, the
// passed-files projection, submission outcome fields, audit snapshots)
// is derived from it and must stay reproducible by replaying it.
package voting

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/event"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/result"
)

type Engine struct {
	router *database.Router
	bus    *event.EventBus
	states *meeting.StateMachine
	logger *slog.Logger
}

// NewEngine returns a vote engine over the given storage router. The
// state machine is used to advance the meeting to the declaration phase
// when a voting run completes.
func NewEngine(
	router *database.Router,
	bus *event.EventBus,
	states *meeting.StateMachine,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Engine{
		router: router,
		bus:    bus,
		states: states,
		logger: logger.With("component", "voting"),
	}
}

// CastVote records one delegation's vote on one file. A repeat vote for
// the same (session, country, file) key overwrites the earlier one; the
// ledger keeps no history. A manual vote always clears the forced flag.
func (e *Engine) CastVote(
	sessionID string,
	countryID string,
	fileID string,
	choice models.VoteChoice,
) error {
	if sessionID == "" {
		return result.NewValidationError("session_id", "must not be empty")
	}
	if countryID == "" {
		return result.NewValidationError("country_id", "must not be empty")
	}
	if fileID == "" {
		return result.NewValidationError("file_id", "must not be empty")
	}
	if !choice.Valid() {
		return result.NewValidationError(
			"vote_result",
			fmt.Sprintf("unknown vote choice %q", choice),
		)
	}
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return result.NewInternalError("failed to resolve store", err)
	}
	vote := models.VoteDetail{
		SessionID:  sessionID,
		CountryID:  countryID,
		FileID:     fileID,
		VoteResult: choice,
		VotedAt:    time.Now().UTC(),
		Forced:     false,
	}
	if err := store.UpsertVoteDetail(&vote); err != nil {
		return result.NewInternalError("failed to record vote", err)
	}
	e.broadcast(sessionID, map[string]any{
		"session_id":  sessionID,
		"country_id":  countryID,
		"file_id":     fileID,
		"vote_result": string(choice),
	})
	return nil
}

// SubmitCountryVotes records one delegation's votes across several files
// in one call, as the client does when the delegate confirms a ballot.
func (e *Engine) SubmitCountryVotes(
	sessionID string,
	countryID string,
	votes map[string]models.VoteChoice,
) error {
	if sessionID == "" {
		return result.NewValidationError("session_id", "must not be empty")
	}
	if countryID == "" {
		return result.NewValidationError("country_id", "must not be empty")
	}
	if len(votes) == 0 {
		return result.NewValidationError("votes", "must not be empty")
	}
	for fileID, choice := range votes {
		if fileID == "" {
			return result.NewValidationError("file_id", "must not be empty")
		}
		if !choice.Valid() {
			return result.NewValidationError(
				"vote_result",
				fmt.Sprintf("unknown vote choice %q for file %s", choice, fileID),
			)
		}
	}
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return result.NewInternalError("failed to resolve store", err)
	}
	now := time.Now().UTC()
	for fileID, choice := range votes {
		vote := models.VoteDetail{
			SessionID:  sessionID,
			CountryID:  countryID,
			FileID:     fileID,
			VoteResult: choice,
			VotedAt:    now,
			Forced:     false,
		}
		if err := store.UpsertVoteDetail(&vote); err != nil {
			return result.NewInternalError("failed to record vote", err)
		}
	}
	e.broadcast(sessionID, map[string]any{
		"session_id": sessionID,
		"country_id": countryID,
		"files":      len(votes),
	})
	return nil
}

// Votes returns all ledger rows for the session.
func (e *Engine) Votes(sessionID string) ([]models.VoteDetail, error) {
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	votes, err := store.ListVoteDetails(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to list votes", err)
	}
	return votes, nil
}

// PassedFiles returns the current passed-files projection.
func (e *Engine) PassedFiles(
	sessionID string,
) ([]models.PassedFile, error) {
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	passed, err := store.ListPassedFiles(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list passed files",
			err,
		)
	}
	return passed, nil
}

// VotingRecords returns the audit snapshots for the session.
func (e *Engine) VotingRecords(
	sessionID string,
) ([]models.VotingRecord, error) {
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	records, err := store.ListVotingRecords(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list voting records",
			err,
		)
	}
	return records, nil
}

// activeParticipants returns the country ids seated in the session with
// active status.
func (e *Engine) activeParticipants(
	store *database.Store,
	sessionID string,
) ([]string, error) {
	session, err := store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, result.NewNotFoundError("session", sessionID)
		}
		return nil, result.NewInternalError("failed to load session", err)
	}
	ids := make([]string, 0, len(session.Participants))
	for _, p := range session.Participants {
		if p.Status == models.ParticipantStatusActive {
			ids = append(ids, p.CountryID)
		}
	}
	return ids, nil
}

func (e *Engine) broadcast(sessionID string, payload any) {
	if e.bus == nil {
		return
	}
	roomID := sessionID
	if room, err := e.router.Shared().GetRoomBySession(sessionID); err == nil {
		roomID = room.RoomID
	}
	e.bus.PublishAsync(
		roomID,
		event.NewEvent(roomID, event.EventTypeVote, payload),
	)
}
