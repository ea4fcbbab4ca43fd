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
	"github.com/plenum-io/plenum/database/models"
	"gorm.io/gorm/clause"
)

// UpsertRollCall records a country's attendance, overwriting any earlier
// record for the same (session, country).
func (s *Store) UpsertRollCall(record *models.RollCall) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"},
			{Name: "country_id"},
		},
		DoUpdates: clause.AssignmentColumns(
			[]string{"arrived", "updated_at"},
		),
	}).Create(record)
	return result.Error
}

// ListArrivedCountries returns the ids of countries marked arrived.
func (s *Store) ListArrivedCountries(sessionID string) ([]string, error) {
	var ids []string
	result := s.db.Model(&models.RollCall{}).
		Where("session_id = ? AND arrived = ?", sessionID, true).
		Order("country_id").
		Pluck("country_id", &ids)
	if result.Error != nil {
		return nil, result.Error
	}
	return ids, nil
}

// CountRollCall returns the number of rollcall records for the session
// with the given arrived value.
func (s *Store) CountRollCall(
	sessionID string,
	arrived bool,
) (int64, error) {
	var count int64
	result := s.db.Model(&models.RollCall{}).
		Where("session_id = ? AND arrived = ?", sessionID, arrived).
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// ClearRollCall removes all rollcall records for the session.
func (s *Store) ClearRollCall(sessionID string) (int64, error) {
	result := s.db.
		Where("session_id = ?", sessionID).
		Delete(&models.RollCall{})
	return result.RowsAffected, result.Error
}
