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

	"github.com/plenum-io/plenum/database/models"
	"gorm.io/gorm"
)

// ErrSessionNotFound is returned when no session document exists for a
// session id in this store.
var ErrSessionNotFound = errors.New("session not found")

// GetSession returns the session document for the given session id, or
// ErrSessionNotFound.
func (s *Store) GetSession(sessionID string) (*models.Session, error) {
	var session models.Session
	result := s.db.Where("session_id = ?", sessionID).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &session, nil
}

// SessionExists reports whether a session document exists without
// loading it.
func (s *Store) SessionExists(sessionID string) (bool, error) {
	var count int64
	result := s.db.Model(&models.Session{}).
		Where("session_id = ?", sessionID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// CreateSession inserts a new session document. The unique index on
// session_id rejects duplicates.
func (s *Store) CreateSession(session *models.Session) error {
	result := s.db.Create(session)
	return result.Error
}

// UpdateSession applies fn to the session document inside a single
// transaction and writes the result back as one atomic row update. This
// is the only mutation path for phase, participants, locks, and status,
// which keeps concurrent chairman and participant requests from losing
// each other's updates.
func (s *Store) UpdateSession(
	sessionID string,
	fn func(*models.Session) error,
) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		result := tx.Where("session_id = ?", sessionID).First(&session)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return result.Error
		}
		if err := fn(&session); err != nil {
			return err
		}
		if result := tx.Save(&session); result.Error != nil {
			return fmt.Errorf("failed to update session: %w", result.Error)
		}
		return nil
	})
}

// ListSessions returns all session documents in this store.
func (s *Store) ListSessions() ([]models.Session, error) {
	var sessions []models.Session
	result := s.db.Order("created_at DESC").Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}
