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

// VoteChoice represents a delegation's vote on a file.
type VoteChoice string

const (
	VoteAgree    VoteChoice = "agree"
	VoteDisagree VoteChoice = "disagree"
	VoteAbstain  VoteChoice = "abstain"
)

// Valid returns true if the VoteChoice is a known vote option.
func (v VoteChoice) Valid() bool {
	switch v {
	case VoteAgree, VoteDisagree, VoteAbstain:
		return true
	default:
		return false
	}
}

// VoteDetail is one row in the vote ledger. Rows are unique per
// (session, country, file); later votes overwrite earlier ones for the
// same key. Forced marks abstentions synthesized by a force-end.
type VoteDetail struct {
	ID         uint       `gorm:"primarykey"`
	SessionID  string     `gorm:"uniqueIndex:idx_vote_session_country_file,priority:1;size:64;not null"`
	CountryID  string     `gorm:"uniqueIndex:idx_vote_session_country_file,priority:2;size:8;not null"`
	FileID     string     `gorm:"uniqueIndex:idx_vote_session_country_file,priority:3;index:idx_vote_file;size:64;not null"`
	VoteResult VoteChoice `gorm:"size:16;not null"`
	VotedAt    time.Time  `gorm:"not null"`
	Forced     bool       `gorm:"not null;default:false"`
}

func (VoteDetail) TableName() string {
	return "vote_details"
}

// FileTally holds the aggregated vote counts for one file.
type FileTally struct {
	Agree    int `json:"agree"`
	Disagree int `json:"disagree"`
	Abstain  int `json:"abstain"`
}

// Passed returns true if the file carries a strict majority of agrees
// over disagrees. Ties fail; abstentions never count toward either side.
func (t FileTally) Passed() bool {
	return t.Agree > t.Disagree
}

// PassedFile is one row in the derived passed-files projection. It is a
// materialized view over the vote ledger and must always be reproducible
// by replaying the ledger for the session.
type PassedFile struct {
	ID           uint      `gorm:"primarykey"`
	SessionID    string    `gorm:"uniqueIndex:idx_passed_session_file,priority:1;size:64;not null"`
	FileID       string    `gorm:"uniqueIndex:idx_passed_session_file,priority:2;size:64;not null"`
	FileName     string    `gorm:"size:256"`
	OriginalName string    `gorm:"size:256"`
	CountryID    string    `gorm:"size:8"`
	VoteAgree    int       `gorm:"not null"`
	VoteDisagree int       `gorm:"not null"`
	VoteAbstain  int       `gorm:"not null"`
	PassedAt     time.Time `gorm:"not null"`
	Status       string    `gorm:"size:16;not null"`
	ForcePassed  bool      `gorm:"not null;default:false"`
}

func (PassedFile) TableName() string {
	return "passed_files"
}

// VotingRecord is the audit snapshot written once per completed tally
// run. It preserves the full vote matrix and per-file results as seen at
// completion time.
type VotingRecord struct {
	ID               uint                             `gorm:"primarykey"`
	SessionID        string                           `gorm:"index;size:64;not null"`
	VoteMatrix       map[string]map[string]VoteChoice `gorm:"serializer:json"`
	FileResults      map[string]FileTally             `gorm:"serializer:json"`
	CompletedAt      time.Time                        `gorm:"not null"`
	Status           string                           `gorm:"size:16;not null"`
	ForceEnded       bool                             `gorm:"not null;default:false"`
	UncompletedCount int                              `gorm:"not null"`
}

func (VotingRecord) TableName() string {
	return "voting_records"
}
