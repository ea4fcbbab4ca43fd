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

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/identity"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/result"
)

const apiVersion = "0.1.0"

// maxUploadSize caps document uploads at 10 MiB.
const maxUploadSize = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeOK writes a success envelope.
func (a *Api) writeOK(
	w http.ResponseWriter,
	route string,
	message string,
	data any,
) {
	a.countRequest(route, http.StatusOK)
	writeJSON(w, http.StatusOK, result.OK(message, data))
}

// writeErr writes the error envelope for a classified error. Internal
// detail never reaches the client.
func (a *Api) writeErr(w http.ResponseWriter, route string, err error) {
	envelope := result.FromError(err)
	if envelope.Code >= http.StatusInternalServerError {
		a.logger.Error("request failed", "route", route, "error", err)
	}
	a.countRequest(route, envelope.Code)
	writeJSON(w, envelope.Code, envelope)
}

// decodeBody unmarshals the request body, rejecting malformed JSON as a
// validation error.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return result.NewValidationError("body", "malformed JSON")
	}
	return nil
}

func (a *Api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Name:    "plenum",
		Version: apiVersion,
	})
}

func (a *Api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Healthy: true})
}

func (a *Api) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	const route = "auth_token"
	var req issueTokenRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	if a.config.Identity == nil {
		a.writeErr(w, route, result.NewInternalError(
			"token issuing is not configured",
			nil,
		))
		return
	}
	if req.UserID == "" {
		a.writeErr(w, route, result.NewValidationError(
			"user_id",
			"must not be empty",
		))
		return
	}
	token, err := a.config.Identity.IssueToken(identity.Claims{
		UserID:    req.UserID,
		Role:      req.Role,
		SessionID: req.SessionID,
	})
	if err != nil {
		a.writeErr(w, route, result.NewInternalError(
			"failed to issue token",
			err,
		))
		return
	}
	a.writeOK(w, route, "token issued", map[string]string{"token": token})
}

func (a *Api) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	const route = "auth_verify"
	if a.config.Identity == nil {
		a.writeErr(w, route, result.NewInternalError(
			"token verification is not configured",
			nil,
		))
		return
	}
	token := strings.TrimPrefix(
		r.Header.Get("Authorization"),
		"Bearer ",
	)
	claims, err := a.config.Identity.VerifyToken(token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			a.countRequest(route, http.StatusUnauthorized)
			writeJSON(w, http.StatusUnauthorized, result.Result{
				Code:    http.StatusUnauthorized,
				Message: "invalid token",
			})
			return
		}
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "token valid", map[string]string{
		"user_id":    claims.UserID,
		"role":       claims.Role,
		"session_id": claims.SessionID,
	})
}

func (a *Api) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	const route = "create_session"
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	session, err := a.config.States.CreateSession(
		req.SessionID,
		req.CommitteeName,
		req.Agenda,
		req.CreatedBy,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "session created", session)
}

func (a *Api) handleGetSession(w http.ResponseWriter, r *http.Request) {
	const route = "get_session"
	session, err := a.config.States.GetSession(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "session", session)
}

func (a *Api) handlePhaseStatus(w http.ResponseWriter, r *http.Request) {
	const route = "phase_status"
	status, err := a.config.States.Status(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "phase status", status)
}

func (a *Api) handleAdvance(w http.ResponseWriter, r *http.Request) {
	const route = "advance_phase"
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	sessionID := r.PathValue("id")
	previous, err := a.config.States.Advance(
		sessionID,
		meeting.Phase(req.TargetPhase),
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "phase advanced", map[string]string{
		"session_id":     sessionID,
		"previous_phase": string(previous),
		"current_phase":  req.TargetPhase,
	})
}

func (a *Api) handleLockPhase(w http.ResponseWriter, r *http.Request) {
	const route = "lock_phase"
	var req lockPhaseRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	err := a.config.States.LockPhase(
		r.PathValue("id"),
		meeting.Phase(req.Phase),
		req.Locked,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "phase lock updated", nil)
}

func (a *Api) handlePause(w http.ResponseWriter, r *http.Request) {
	const route = "pause_meeting"
	if err := a.config.States.Pause(r.PathValue("id")); err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "meeting paused", nil)
}

func (a *Api) handleResume(w http.ResponseWriter, r *http.Request) {
	const route = "resume_meeting"
	if err := a.config.States.Resume(r.PathValue("id")); err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "meeting resumed", nil)
}

func (a *Api) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	const route = "create_room"
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	room, err := a.config.Members.CreateRoom(
		req.SessionID,
		req.CommitteeName,
		req.Agenda,
		req.MaxParticipants,
		req.CreatedBy,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "room created", room)
}

func (a *Api) handleListRooms(w http.ResponseWriter, r *http.Request) {
	const route = "list_rooms"
	var statuses []models.RoomStatus
	if status := r.URL.Query().Get("status"); status != "" {
		statuses = append(statuses, models.RoomStatus(status))
	}
	rooms, err := a.config.Members.ListRooms(statuses...)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "rooms", rooms)
}

func (a *Api) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	const route = "get_room"
	room, err := a.config.Members.GetRoom(r.PathValue("roomId"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "room", room)
}

func (a *Api) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	const route = "join_room"
	var req joinRoomRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	room, err := a.config.Members.JoinRoom(
		r.PathValue("roomId"),
		req.UserID,
		models.Role(req.Role),
		req.CountryID,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "joined room", room)
}

func (a *Api) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	const route = "leave_room"
	var req leaveRoomRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	err := a.config.Members.LeaveRoom(r.PathValue("roomId"), req.UserID)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "left room", nil)
}

func (a *Api) handleListCountries(w http.ResponseWriter, _ *http.Request) {
	const route = "list_countries"
	countries, err := a.config.Members.Countries()
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "countries", countries)
}

func (a *Api) handleSelectCountry(w http.ResponseWriter, r *http.Request) {
	const route = "select_country"
	var req selectCountryRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	participant, err := a.config.Members.SelectCountry(
		r.PathValue("id"),
		req.CountryID,
		req.CountryName,
		req.CountryFlag,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "country selected", participant)
}

func (a *Api) handleParticipants(w http.ResponseWriter, r *http.Request) {
	const route = "participants"
	participants, err := a.config.Members.Participants(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "participants", participants)
}

func (a *Api) handleUpdateRollCall(w http.ResponseWriter, r *http.Request) {
	const route = "update_rollcall"
	var req rollCallRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	sessionID := r.PathValue("id")
	if len(req.Arrivals) > 0 {
		if err := a.config.Members.BatchRollCall(sessionID, req.Arrivals); err != nil {
			a.writeErr(w, route, err)
			return
		}
		a.writeOK(w, route, "rollcall updated", map[string]int{
			"updated": len(req.Arrivals),
		})
		return
	}
	err := a.config.Members.UpdateRollCall(
		sessionID,
		req.CountryID,
		req.Arrived,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "rollcall updated", nil)
}

func (a *Api) handleRollCallStats(w http.ResponseWriter, r *http.Request) {
	const route = "rollcall_stats"
	stats, err := a.config.Members.RollCallStats(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "rollcall statistics", stats)
}

func (a *Api) handleClearRollCall(w http.ResponseWriter, r *http.Request) {
	const route = "clear_rollcall"
	removed, err := a.config.Members.ClearRollCall(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "rollcall cleared", map[string]int64{
		"removed": removed,
	})
}

func (a *Api) handleSubmitPosition(w http.ResponseWriter, r *http.Request) {
	const route = "submit_position"
	var req submitPositionRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	submission, err := a.config.Submissions.SubmitPosition(
		r.PathValue("id"),
		req.CountryID,
		req.FileID,
		req.FileName,
		req.Text,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "position submitted", submission)
}

func (a *Api) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	const route = "list_submissions"
	submissions, err := a.config.Submissions.ListSubmissions(
		r.PathValue("id"),
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "submissions", submissions)
}

func (a *Api) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	const route = "upload_file"
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize+1))
	if err != nil {
		a.writeErr(w, route, result.NewInternalError(
			"failed to read upload",
			err,
		))
		return
	}
	if len(data) > maxUploadSize {
		a.writeErr(w, route, result.NewValidationError(
			"file",
			"document exceeds the upload size limit",
		))
		return
	}
	tempFile, err := a.config.Submissions.UploadDocument(
		r.PathValue("id"),
		r.URL.Query().Get("country_id"),
		r.URL.Query().Get("name"),
		data,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "document uploaded", tempFile)
}

func (a *Api) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	const route = "download_file"
	data, err := a.config.Submissions.Document(
		r.PathValue("id"),
		r.PathValue("fileId"),
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.countRequest(route, http.StatusOK)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(data)
}

func (a *Api) handleAssignFile(w http.ResponseWriter, r *http.Request) {
	const route = "assign_file"
	var req assignFileRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	assignment, err := a.config.Submissions.AssignFile(
		r.PathValue("id"),
		req.FileID,
		req.CountryID,
		req.FileName,
		req.OriginalName,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "file assigned", assignment)
}

func (a *Api) handleCastVote(w http.ResponseWriter, r *http.Request) {
	const route = "cast_vote"
	var req castVoteRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	sessionID := r.PathValue("id")
	// A batch body records the full ballot in one call
	if len(req.Votes) > 0 {
		err := a.config.Votes.SubmitCountryVotes(
			sessionID,
			req.CountryID,
			req.Votes,
		)
		if err != nil {
			a.writeErr(w, route, err)
			return
		}
		a.writeOK(w, route, "votes recorded", map[string]int{
			"recorded": len(req.Votes),
		})
		return
	}
	err := a.config.Votes.CastVote(
		sessionID,
		req.CountryID,
		req.FileID,
		req.VoteResult,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "vote recorded", nil)
}

func (a *Api) handleListVotes(w http.ResponseWriter, r *http.Request) {
	const route = "list_votes"
	votes, err := a.config.Votes.Votes(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "votes", votes)
}

func (a *Api) handleTally(w http.ResponseWriter, r *http.Request) {
	const route = "tally"
	tallies, err := a.config.Votes.Tally(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "tally", tallies)
}

func (a *Api) handleFinalizeVoting(w http.ResponseWriter, r *http.Request) {
	const route = "finalize_voting"
	var req finalizeVotingRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	summary, err := a.config.Votes.FinalizeVoting(
		r.PathValue("id"),
		req.Matrix,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "voting finalized", summary)
}

func (a *Api) handleForceEnd(w http.ResponseWriter, r *http.Request) {
	const route = "force_end_voting"
	summary, err := a.config.Votes.ForceEnd(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "voting force ended", summary)
}

func (a *Api) handleCompleteVoting(w http.ResponseWriter, r *http.Request) {
	const route = "complete_voting"
	summary, err := a.config.Votes.Complete(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "voting completed", summary)
}

func (a *Api) handlePassedFiles(w http.ResponseWriter, r *http.Request) {
	const route = "passed_files"
	passed, err := a.config.Votes.PassedFiles(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "passed files", passed)
}

func (a *Api) handleReconcile(w http.ResponseWriter, r *http.Request) {
	const route = "reconcile_passed_files"
	passed, err := a.config.Votes.ReconcilePassedFiles(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "passed files reconciled", passed)
}

func (a *Api) handleVotingRecords(w http.ResponseWriter, r *http.Request) {
	const route = "voting_records"
	records, err := a.config.Votes.VotingRecords(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "voting records", records)
}

func (a *Api) handleGenerateDeclaration(
	w http.ResponseWriter,
	r *http.Request,
) {
	const route = "generate_declaration"
	decl, err := a.config.Declarations.Generate(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "declaration generated", decl)
}

func (a *Api) handleFinalizeDeclaration(
	w http.ResponseWriter,
	r *http.Request,
) {
	const route = "finalize_declaration"
	var req finalizeDeclarationRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	decl, err := a.config.Declarations.Finalize(
		r.PathValue("id"),
		req.Text,
		req.ParticipatingCountries,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "declaration finalized", decl)
}

func (a *Api) handleConfirmDeclaration(
	w http.ResponseWriter,
	r *http.Request,
) {
	const route = "confirm_declaration"
	var req confirmDeclarationRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeErr(w, route, err)
		return
	}
	decl, err := a.config.Declarations.Confirm(
		r.PathValue("id"),
		req.CountryID,
	)
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "participation confirmed", decl)
}

func (a *Api) handleFinalizedDeclaration(
	w http.ResponseWriter,
	r *http.Request,
) {
	const route = "finalized_declaration"
	decl, err := a.config.Declarations.Finalized(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "finalized declaration", decl)
}

func (a *Api) handleDeclarationHistory(
	w http.ResponseWriter,
	r *http.Request,
) {
	const route = "declaration_history"
	decls, err := a.config.Declarations.History(r.PathValue("id"))
	if err != nil {
		a.writeErr(w, route, err)
		return
	}
	a.writeOK(w, route, "declaration history", decls)
}
