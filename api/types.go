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

import "github.com/plenum-io/plenum/database/models"

// RootResponse is the response for GET /
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Healthy bool `json:"healthy"`
}

type issueTokenRequest struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
}

type createSessionRequest struct {
	SessionID     string `json:"session_id"`
	CommitteeName string `json:"committee_name"`
	Agenda        string `json:"agenda,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
}

type advanceRequest struct {
	TargetPhase string `json:"target_phase"`
}

type lockPhaseRequest struct {
	Phase  string `json:"phase"`
	Locked bool   `json:"locked"`
}

type createRoomRequest struct {
	SessionID       string `json:"session_id"`
	CommitteeName   string `json:"committee_name"`
	Agenda          string `json:"agenda,omitempty"`
	MaxParticipants int    `json:"max_participants"`
	CreatedBy       string `json:"created_by,omitempty"`
}

type joinRoomRequest struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	CountryID string `json:"country_id,omitempty"`
}

type leaveRoomRequest struct {
	UserID string `json:"user_id"`
}

type selectCountryRequest struct {
	CountryID   string `json:"country_id"`
	CountryName string `json:"country_name,omitempty"`
	CountryFlag string `json:"country_flag,omitempty"`
}

type rollCallRequest struct {
	CountryID string          `json:"country_id,omitempty"`
	Arrived   bool            `json:"arrived,omitempty"`
	Arrivals  map[string]bool `json:"arrivals,omitempty"`
}

type submitPositionRequest struct {
	CountryID string `json:"country_id"`
	FileID    string `json:"file_id,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	Text      string `json:"text,omitempty"`
}

type assignFileRequest struct {
	FileID       string `json:"file_id"`
	CountryID    string `json:"country_id,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
}

type castVoteRequest struct {
	CountryID  string                       `json:"country_id"`
	FileID     string                       `json:"file_id,omitempty"`
	VoteResult models.VoteChoice            `json:"vote_result,omitempty"`
	Votes      map[string]models.VoteChoice `json:"votes,omitempty"`
}

type finalizeVotingRequest struct {
	Matrix map[string]map[string]models.VoteChoice `json:"matrix"`
}

type finalizeDeclarationRequest struct {
	Text                   string   `json:"text"`
	ParticipatingCountries []string `json:"participating_countries,omitempty"`
}

type confirmDeclarationRequest struct {
	CountryID string `json:"country_id"`
}
