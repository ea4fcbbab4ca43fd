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

// RoomStatus represents the lifecycle status of a joinable room.
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusActive    RoomStatus = "active"
	RoomStatusCompleted RoomStatus = "completed"
)

// Role tags a user as chairman or participant. Authorization policy
// beyond this tagging is out of scope.
type Role string

const (
	RoleChairman    Role = "chairman"
	RoleParticipant Role = "participant"
)

// RoomParticipant is one join entry embedded in the room document.
type RoomParticipant struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CountryID string    `json:"country_id,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Room is the joinable lobby wrapping a session for initial entry. It is
// distinct from the Session document. CurrentParticipants is incremented
// atomically on join together with the participant append; it is never
// decremented on leave.
type Room struct {
	ID                  uint              `gorm:"primarykey"`
	RoomID              string            `gorm:"uniqueIndex;size:64;not null"`
	SessionID           string            `gorm:"uniqueIndex;size:64;not null"`
	CommitteeName       string            `gorm:"size:256"`
	Agenda              string            `gorm:"size:1024"`
	MaxParticipants     int               `gorm:"not null"`
	CurrentParticipants int               `gorm:"not null"`
	RoomStatus          RoomStatus        `gorm:"size:16;not null"`
	CreatedBy           string            `gorm:"size:64"`
	CreatedAt           time.Time         `gorm:"not null"`
	Participants        []RoomParticipant `gorm:"serializer:json"`
}

func (Room) TableName() string {
	return "rooms"
}

// UserSession is a persisted join record tying a user to a room. It acts
// as the idempotency guard against double-joins and is independent of
// broadcast-channel subscriptions.
type UserSession struct {
	ID         uint      `gorm:"primarykey"`
	UserID     string    `gorm:"uniqueIndex:idx_user_room,priority:1;size:64;not null"`
	RoomID     string    `gorm:"uniqueIndex:idx_user_room,priority:2;size:64;not null"`
	SessionID  string    `gorm:"index;size:64;not null"`
	Role       Role      `gorm:"size:16;not null"`
	CountryID  string    `gorm:"size:8"`
	JoinedAt   time.Time `gorm:"not null"`
	LastActive time.Time `gorm:"not null"`
	Status     string    `gorm:"size:16;not null"`
}

func (UserSession) TableName() string {
	return "user_sessions"
}

// Country is a row in the authoritative country reference list. Country
// master data always lives in the shared store and is never partitioned.
type Country struct {
	ID   uint   `gorm:"primarykey"`
	Code string `gorm:"uniqueIndex;size:8;not null"`
	Name string `gorm:"size:128;not null"`
	Flag string `gorm:"size:256"`
}

func (Country) TableName() string {
	return "countries"
}

// RollCall is one per-country attendance record for a session.
type RollCall struct {
	ID        uint      `gorm:"primarykey"`
	SessionID string    `gorm:"uniqueIndex:idx_rollcall_session_country,priority:1;size:64;not null"`
	CountryID string    `gorm:"uniqueIndex:idx_rollcall_session_country,priority:2;size:8;not null"`
	Arrived   bool      `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RollCall) TableName() string {
	return "rollcall"
}
