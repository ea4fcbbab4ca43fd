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

// DeclarationStatus represents whether a declaration is a working draft
// or the finalized text.
type DeclarationStatus string

const (
	DeclarationStatusDraft     DeclarationStatus = "draft"
	DeclarationStatusFinalized DeclarationStatus = "finalized"
)

// Declaration is one generated or finalized joint declaration. Drafts
// are retained as history; at most one finalized record is authoritative
// per session.
type Declaration struct {
	ID                     uint              `gorm:"primarykey"`
	SessionID              string            `gorm:"index;size:64;not null"`
	Text                   string            `gorm:"type:text"`
	Status                 DeclarationStatus `gorm:"size:16;not null"`
	ParticipatingCountries []string          `gorm:"serializer:json"`
	Method                 string            `gorm:"size:64"`
	GeneratedAt            time.Time         `gorm:"not null"`
	FinalizedAt            *time.Time
}

func (Declaration) TableName() string {
	return "declarations"
}
