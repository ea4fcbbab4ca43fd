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

package models

import "time"

// SessionStatus represents the lifecycle status of a meeting session.
// Sessions are never physically deleted; they are soft-ended.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusPaused SessionStatus = "paused"
	SessionStatusEnded  SessionStatus = "ended"
)

// ParticipantStatus represents whether a delegation is currently seated.
type ParticipantStatus string

const (
	ParticipantStatusActive   ParticipantStatus = "active"
	ParticipantStatusInactive ParticipantStatus = "inactive"
)

// Participant is one country delegation seated in a session. It is
// embedded in the session document so participant changes are a single
// atomic document update.
type Participant struct {
	CountryID   string            `json:"country_id"`
	CountryName string            `json:"country_name"`
	CountryFlag string            `json:"country_flag"`
	JoinedAt    time.Time         `json:"joined_at"`
	Status      ParticipantStatus `json:"status"`
}

// PhaseRecord is one entry in a session's ordered phase history. The
// record for the current phase has a nil CompletedAt.
type PhaseRecord struct {
	Phase       string     `json:"phase"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// MeetingState tracks the lifecycle phase of a session along with the
// full phase history and the per-phase lock flags.
type MeetingState struct {
	CurrentPhase string          `json:"current_phase"`
	PhaseHistory []PhaseRecord   `json:"phase_history"`
	PhaseLocks   map[string]bool `json:"phase_locks"`
}

// ChairmanControls holds the capability flags granted to the chairman.
type ChairmanControls struct {
	CanAdvancePhase       bool `json:"can_advance_phase"`
	CanGoBack             bool `json:"can_go_back"`
	CanPauseMeeting       bool `json:"can_pause_meeting"`
	CanModifyParticipants bool `json:"can_modify_participants"`
}

// Session is the primary shared mutable document for one meeting. All
// mutations to it (phase, participants, locks) must be expressed as
// single atomic row updates keyed by SessionID to avoid lost updates
// between the chairman's and participants' concurrent requests.
type Session struct {
	ID               uint             `gorm:"primarykey"`
	SessionID        string           `gorm:"uniqueIndex;size:64;not null"`
	CommitteeName    string           `gorm:"size:256"`
	Agenda           string           `gorm:"size:1024"`
	Status           SessionStatus    `gorm:"size:16;not null"`
	CreatedBy        string           `gorm:"size:64"`
	CreatedAt        time.Time        `gorm:"not null"`
	Participants     []Participant    `gorm:"serializer:json"`
	MeetingState     MeetingState     `gorm:"serializer:json"`
	ChairmanControls ChairmanControls `gorm:"serializer:json"`
}

func (Session) TableName() string {
	return "sessions"
}
