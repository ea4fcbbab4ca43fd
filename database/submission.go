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
	"strings"
	"time"

	"github.com/plenum-io/plenum/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicateSubmission is returned when a country already submitted
	// for the session. Submissions never overwrite.
	ErrDuplicateSubmission = errors.New(
		"country already submitted for this session",
	)
	// ErrSubmissionNotFound is returned when no submission matches.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// isUniqueViolation reports whether err is a uniqueness constraint
// failure from the sqlite driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateSubmission inserts a country's submission. The uniqueness
// constraint on (country_id, session_id) rejects a second attempt with
// ErrDuplicateSubmission, leaving the first submission unchanged.
func (s *Store) CreateSubmission(submission *models.Submission) error {
	result := s.db.Create(submission)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrDuplicateSubmission
		}
		return result.Error
	}
	return nil
}

// GetSubmission returns a country's submission for the session.
func (s *Store) GetSubmission(
	sessionID, countryID string,
) (*models.Submission, error) {
	var submission models.Submission
	result := s.db.
		Where("session_id = ? AND country_id = ?", sessionID, countryID).
		First(&submission)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, result.Error
	}
	return &submission, nil
}

// ListSubmissions returns all submissions for the session.
func (s *Store) ListSubmissions(
	sessionID string,
) ([]models.Submission, error) {
	var submissions []models.Submission
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&submissions)
	if result.Error != nil {
		return nil, result.Error
	}
	return submissions, nil
}

// MarkSubmissionOutcome writes the vote outcome back onto a country's
// submission after a completed tally run. Missing submissions are not an
// error; files can enter a session without one.
func (s *Store) MarkSubmissionOutcome(
	sessionID string,
	countryID string,
	tally models.FileTally,
	completedAt time.Time,
	forced bool,
) error {
	result := s.db.Model(&models.Submission{}).
		Where("session_id = ? AND country_id = ?", sessionID, countryID).
		Updates(map[string]any{
			"vote_passed":         tally.Passed(),
			"vote_status":         submissionVoteStatus(tally),
			"vote_agree_count":    tally.Agree,
			"vote_disagree_count": tally.Disagree,
			"vote_abstain_count":  tally.Abstain,
			"vote_completed_at":   completedAt,
			"force_passed":        forced && tally.Passed(),
		})
	return result.Error
}

func submissionVoteStatus(tally models.FileTally) string {
	if tally.Passed() {
		return "passed"
	}
	return "rejected"
}

// CreateTempFile records a directly-uploaded document.
func (s *Store) CreateTempFile(tempFile *models.TempFile) error {
	result := s.db.Create(tempFile)
	return result.Error
}

// GetTempFile returns the uploaded-file record for a file id, if any.
func (s *Store) GetTempFile(
	sessionID, fileID string,
) (*models.TempFile, error) {
	var tempFile models.TempFile
	result := s.db.
		Where("session_id = ? AND file_id = ?", sessionID, fileID).
		First(&tempFile)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &tempFile, nil
}

// UpsertFileAssignment records or updates a file-to-country assignment.
func (s *Store) UpsertFileAssignment(
	assignment *models.FileAssignment,
) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"},
			{Name: "file_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"country_id",
			"file_name",
			"original_name",
			"assigned_at",
		}),
	}).Create(assignment)
	return result.Error
}

// GetFileAssignment returns the assignment record for a file id, if any.
func (s *Store) GetFileAssignment(
	sessionID, fileID string,
) (*models.FileAssignment, error) {
	var assignment models.FileAssignment
	result := s.db.
		Where("session_id = ? AND file_id = ?", sessionID, fileID).
		First(&assignment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &assignment, nil
}

// ListFileAssignments returns all assignments for the session.
func (s *Store) ListFileAssignments(
	sessionID string,
) ([]models.FileAssignment, error) {
	var assignments []models.FileAssignment
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("file_id").
		Find(&assignments)
	if result.Error != nil {
		return nil, result.Error
	}
	return assignments, nil
}

// ListTempFiles returns all uploaded-file records for the session.
func (s *Store) ListTempFiles(
	sessionID string,
) ([]models.TempFile, error) {
	var tempFiles []models.TempFile
	result := s.db.
		Where("session_id = ?", sessionID).
		Order("file_id").
		Find(&tempFiles)
	if result.Error != nil {
		return nil, result.Error
	}
	return tempFiles, nil
}
