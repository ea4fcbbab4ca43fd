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
	"time"

	"github.com/plenum-io/plenum/database/models"
	"gorm.io/gorm"
)

// CreateDeclaration inserts a new declaration draft.
func (s *Store) CreateDeclaration(decl *models.Declaration) error {
	result := s.db.Create(decl)
	return result.Error
}

// FinalizeDeclaration marks the declaration text as the authoritative
// finalized record for the session. Any previously finalized record is
// demoted back to draft so at most one finalized record exists; drafts
// are retained as history.
func (s *Store) FinalizeDeclaration(
	sessionID string,
	text string,
	participating []string,
	finalizedAt time.Time,
) (*models.Declaration, error) {
	decl := models.Declaration{
		SessionID:              sessionID,
		Text:                   text,
		Status:                 models.DeclarationStatusFinalized,
		ParticipatingCountries: participating,
		Method:                 "finalized",
		GeneratedAt:            finalizedAt,
		FinalizedAt:            &finalizedAt,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Declaration{}).
			Where(
				"session_id = ? AND status = ?",
				sessionID,
				models.DeclarationStatusFinalized,
			).
			Update("status", models.DeclarationStatusDraft)
		if result.Error != nil {
			return result.Error
		}
		result = tx.Create(&decl)
		return result.Error
	})
	if err != nil {
		return nil, err
	}
	return &decl, nil
}

// GetLatestDeclaration returns the most recently generated declaration
// for the session, draft or finalized.
func (s *Store) GetLatestDeclaration(
	sessionID string,
) (*models.Declaration, error) {
	var decl models.Declaration
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("generated_at DESC, id DESC").
		First(&decl)
	if result.Error != nil {
		return nil, result.Error
	}
	return &decl, nil
}

// ConfirmParticipation adds a country to the latest declaration's
// participating list. Confirming twice is a no-op.
func (s *Store) ConfirmParticipation(
	sessionID string,
	countryID string,
) (*models.Declaration, error) {
	var decl models.Declaration
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("session_id = ?", sessionID).
			Order("generated_at DESC, id DESC").
			First(&decl)
		if result.Error != nil {
			return result.Error
		}
		for _, existing := range decl.ParticipatingCountries {
			if existing == countryID {
				return nil
			}
		}
		decl.ParticipatingCountries = append(
			decl.ParticipatingCountries,
			countryID,
		)
		result = tx.Save(&decl)
		return result.Error
	})
	if err != nil {
		return nil, err
	}
	return &decl, nil
}

// GetFinalizedDeclaration returns the authoritative finalized
// declaration for the session, if one exists.
func (s *Store) GetFinalizedDeclaration(
	sessionID string,
) (*models.Declaration, error) {
	var decl models.Declaration
	result := s.db.
		Where(
			"session_id = ? AND status = ?",
			sessionID,
			models.DeclarationStatusFinalized,
		).
		First(&decl)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &decl, nil
}

// ListDeclarations returns the session's declarations, newest first.
func (s *Store) ListDeclarations(
	sessionID string,
) ([]models.Declaration, error) {
	var decls []models.Declaration
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("generated_at DESC").
		Find(&decls)
	if result.Error != nil {
		return nil, result.Error
	}
	return decls, nil
}
