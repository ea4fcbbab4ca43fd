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

// UpsertVoteDetail records a vote, overwriting any earlier vote for the
// same (session, country, file) key. Last write wins; the ledger keeps
// no append-only history.
func (s *Store) UpsertVoteDetail(vote *models.VoteDetail) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"},
			{Name: "country_id"},
			{Name: "file_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"vote_result",
			"voted_at",
			"forced",
		}),
	}).Create(vote)
	return result.Error
}

// ListVoteDetails returns all ledger rows for the session.
func (s *Store) ListVoteDetails(
	sessionID string,
) ([]models.VoteDetail, error) {
	var votes []models.VoteDetail
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("file_id, country_id").
		Find(&votes)
	if result.Error != nil {
		return nil, result.Error
	}
	return votes, nil
}

// GetVoteDetailForFile returns one ledger row for the file, used by the
// reverse-lookup resolver to recover the owning country.
func (s *Store) GetVoteDetailForFile(
	sessionID, fileID string,
) (*models.VoteDetail, error) {
	var vote models.VoteDetail
	result := s.db.
		Where("session_id = ? AND file_id = ?", sessionID, fileID).
		Order("country_id").
		First(&vote)
	if result.Error != nil {
		return nil, result.Error
	}
	return &vote, nil
}

// UpsertPassedFile writes one row of the passed-files projection,
// overwriting any existing row for the (session, file) key.
func (s *Store) UpsertPassedFile(passed *models.PassedFile) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"},
			{Name: "file_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_name",
			"original_name",
			"country_id",
			"vote_agree",
			"vote_disagree",
			"vote_abstain",
			"passed_at",
			"status",
			"force_passed",
		}),
	}).Create(passed)
	return result.Error
}

// ListPassedFiles returns the projection rows for the session in stable
// file-id order.
func (s *Store) ListPassedFiles(
	sessionID string,
) ([]models.PassedFile, error) {
	var passed []models.PassedFile
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("file_id").
		Find(&passed)
	if result.Error != nil {
		return nil, result.Error
	}
	return passed, nil
}

// DeletePassedFilesExcept removes projection rows whose file id is not
// in keep. Reconciliation uses this to drop files that no longer pass.
func (s *Store) DeletePassedFilesExcept(
	sessionID string,
	keep []string,
) error {
	query := s.db.Where("session_id = ?", sessionID)
	if len(keep) > 0 {
		query = query.Where("file_id NOT IN ?", keep)
	}
	result := query.Delete(&models.PassedFile{})
	return result.Error
}

// CreateVotingRecord writes the audit snapshot for a completed tally run.
func (s *Store) CreateVotingRecord(record *models.VotingRecord) error {
	result := s.db.Create(record)
	return result.Error
}

// ListVotingRecords returns the audit snapshots for the session, newest
// first.
func (s *Store) ListVotingRecords(
	sessionID string,
) ([]models.VotingRecord, error) {
	var records []models.VotingRecord
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("completed_at DESC").
		Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}
