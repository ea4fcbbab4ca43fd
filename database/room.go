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
	"encoding/json"
	"errors"
	"time"

	"github.com/plenum-io/plenum/database/models"
	"gorm.io/gorm"
)

var (
	// ErrRoomNotFound is returned when no room exists for a room id.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a join would exceed the room capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrAlreadyJoined is returned when the user already holds an active
	// join record for the room.
	ErrAlreadyJoined = errors.New("user already joined room")
	// ErrNotJoined is returned when the room exists but the user holds no
	// join record for it.
	ErrNotJoined = errors.New("user has not joined room")
)

// GetRoom returns the room document for the given room id.
func (s *Store) GetRoom(roomID string) (*models.Room, error) {
	var room models.Room
	result := s.db.Where("room_id = ?", roomID).First(&room)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, result.Error
	}
	return &room, nil
}

// GetRoomBySession returns the room wrapping the given session, if any.
func (s *Store) GetRoomBySession(sessionID string) (*models.Room, error) {
	var room models.Room
	result := s.db.Where("session_id = ?", sessionID).First(&room)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, result.Error
	}
	return &room, nil
}

// CreateRoom inserts a new room. The unique index on session_id enforces
// one room per session.
func (s *Store) CreateRoom(room *models.Room) error {
	result := s.db.Create(room)
	return result.Error
}

// ListRooms returns rooms in the given statuses, newest first.
func (s *Store) ListRooms(
	statuses ...models.RoomStatus,
) ([]models.Room, error) {
	var rooms []models.Room
	query := s.db.Order("created_at DESC")
	if len(statuses) > 0 {
		query = query.Where("room_status IN ?", statuses)
	}
	result := query.Find(&rooms)
	if result.Error != nil {
		return nil, result.Error
	}
	return rooms, nil
}

// JoinRoom admits a user into a room. The capacity check, the counter
// increment, and the participant append happen inside one transaction so
// two concurrent joins against the last seat cannot both succeed. The
// join record insert doubles as the idempotency guard against
// double-joins.
func (s *Store) JoinRoom(
	roomID string,
	entry models.RoomParticipant,
) (*models.Room, error) {
	var joined models.Room
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var room models.Room
		result := tx.Where("room_id = ?", roomID).First(&room)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return result.Error
		}
		if room.CurrentParticipants >= room.MaxParticipants {
			return ErrRoomFull
		}
		var existing int64
		result = tx.Model(&models.UserSession{}).
			Where("user_id = ? AND room_id = ?", entry.UserID, roomID).
			Count(&existing)
		if result.Error != nil {
			return result.Error
		}
		if existing > 0 {
			return ErrAlreadyJoined
		}
		userSession := models.UserSession{
			UserID:     entry.UserID,
			RoomID:     roomID,
			SessionID:  room.SessionID,
			Role:       entry.Role,
			CountryID:  entry.CountryID,
			JoinedAt:   entry.JoinedAt,
			LastActive: entry.JoinedAt,
			Status:     "active",
		}
		if result := tx.Create(&userSession); result.Error != nil {
			return result.Error
		}
		// The json serializer only runs for struct-based updates, so the
		// embedded participant list is marshalled by hand for the map form
		participantsJSON, err := json.Marshal(
			append(room.Participants, entry),
		)
		if err != nil {
			return err
		}
		// Guarded increment: the WHERE clause re-checks capacity so a
		// concurrent join committed since our read cannot over-admit
		update := tx.Model(&models.Room{}).
			Where(
				"room_id = ? AND current_participants < max_participants",
				roomID,
			).
			Updates(map[string]any{
				"current_participants": gorm.Expr(
					"current_participants + 1",
				),
				"participants": string(participantsJSON),
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrRoomFull
		}
		result = tx.Where("room_id = ?", roomID).First(&joined)
		return result.Error
	})
	if err != nil {
		return nil, err
	}
	return &joined, nil
}

// LeaveRoom marks the user's join record inactive. The room's
// participant counter is intentionally not decremented; rooms never
// shrink in the current design.
func (s *Store) LeaveRoom(roomID, userID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var rooms int64
		result := tx.Model(&models.Room{}).
			Where("room_id = ?", roomID).
			Count(&rooms)
		if result.Error != nil {
			return result.Error
		}
		if rooms == 0 {
			return ErrRoomNotFound
		}
		result = tx.Model(&models.UserSession{}).
			Where("user_id = ? AND room_id = ?", userID, roomID).
			Updates(map[string]any{
				"status":      "inactive",
				"last_active": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotJoined
		}
		return nil
	})
}

// GetUserSession returns the join record for a user in a room.
func (s *Store) GetUserSession(
	roomID, userID string,
) (*models.UserSession, error) {
	var userSession models.UserSession
	result := s.db.
		Where("user_id = ? AND room_id = ?", userID, roomID).
		First(&userSession)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &userSession, nil
}

// ListCountries returns the authoritative country reference list.
func (s *Store) ListCountries() ([]models.Country, error) {
	var countries []models.Country
	result := s.db.Order("code").Find(&countries)
	if result.Error != nil {
		return nil, result.Error
	}
	return countries, nil
}

// InsertCountry adds a country to the master list. The unique index on
// code rejects duplicates.
func (s *Store) InsertCountry(country *models.Country) error {
	result := s.db.Create(country)
	return result.Error
}
