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

// Submission is a country's position paper for a session. A country may
// submit at most once per session; the uniqueness constraint rejects a
// second attempt rather than overwriting the first.
type Submission struct {
	ID        uint      `gorm:"primarykey"`
	SessionID string    `gorm:"uniqueIndex:idx_submission_country_session,priority:2;size:64;not null"`
	CountryID string    `gorm:"uniqueIndex:idx_submission_country_session,priority:1;size:8;not null"`
	FileID    string    `gorm:"index;size:64"`
	FileName  string    `gorm:"size:256"`
	Text      string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
	// Vote outcome fields, written back when a tally run completes.
	VotePassed        bool       `gorm:"not null;default:false"`
	VoteStatus        string     `gorm:"size:16"`
	VoteAgreeCount    int        `gorm:"not null;default:0"`
	VoteDisagreeCount int        `gorm:"not null;default:0"`
	VoteAbstainCount  int        `gorm:"not null;default:0"`
	VoteCompletedAt   *time.Time
	ForcePassed       bool `gorm:"not null;default:false"`
}

func (Submission) TableName() string {
	return "submissions"
}

// TempFile is the record of a directly-uploaded document. The raw bytes
// live in the blob store keyed by FileID; this row carries the metadata
// the passed-file resolvers need.
type TempFile struct {
	ID           uint      `gorm:"primarykey"`
	FileID       string    `gorm:"uniqueIndex:idx_tempfile_session_file,priority:2;size:64;not null"`
	SessionID    string    `gorm:"uniqueIndex:idx_tempfile_session_file,priority:1;size:64;not null"`
	CountryID    string    `gorm:"size:8"`
	FileName     string    `gorm:"size:256"`
	OriginalName string    `gorm:"size:256"`
	Size         int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (TempFile) TableName() string {
	return "temp_files"
}

// FileAssignment maps a file put up for voting to the country that owns
// it. Files can enter a session without a direct upload (for example,
// assigned by the chairman), so the resolvers also consult this table.
type FileAssignment struct {
	ID           uint      `gorm:"primarykey"`
	SessionID    string    `gorm:"uniqueIndex:idx_assignment_session_file,priority:1;size:64;not null"`
	FileID       string    `gorm:"uniqueIndex:idx_assignment_session_file,priority:2;size:64;not null"`
	CountryID    string    `gorm:"size:8"`
	FileName     string    `gorm:"size:256"`
	OriginalName string    `gorm:"size:256"`
	AssignedAt   time.Time `gorm:"not null"`
}

func (FileAssignment) TableName() string {
	return "file_assignments"
}
