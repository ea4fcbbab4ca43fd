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

package membership

import (
	"errors"
	"time"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/event"
	"github.com/plenum-io/plenum/result"
)

// RollCallStatistics summarizes attendance for a session.
type RollCallStatistics struct {
	SessionID string   `json:"session_id"`
	Total     int64    `json:"total"`
	Arrived   int64    `json:"arrived"`
	Absent    int64    `json:"absent"`
	Countries []string `json:"arrived_countries"`
}

// UpdateRollCall records a country's attendance. Re-marking the same
// country overwrites the earlier record rather than duplicating it.
func (m *Manager) UpdateRollCall(
	sessionID string,
	countryID string,
	arrived bool,
) error {
	if sessionID == "" {
		return result.NewValidationError("session_id", "must not be empty")
	}
	if countryID == "" {
		return result.NewValidationError("country_id", "must not be empty")
	}
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return result.NewInternalError("failed to resolve store", err)
	}
	record := models.RollCall{
		SessionID: sessionID,
		CountryID: countryID,
		Arrived:   arrived,
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.UpsertRollCall(&record); err != nil {
		return result.NewInternalError("failed to record attendance", err)
	}
	m.broadcastForSession(sessionID, event.EventTypeRollCall, map[string]any{
		"session_id": sessionID,
		"country_id": countryID,
		"arrived":    arrived,
	})
	return nil
}

// BatchRollCall records attendance for several countries at once, as the
// chairman does when closing the roll call phase.
func (m *Manager) BatchRollCall(
	sessionID string,
	arrivals map[string]bool,
) error {
	if sessionID == "" {
		return result.NewValidationError("session_id", "must not be empty")
	}
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return result.NewInternalError("failed to resolve store", err)
	}
	now := time.Now().UTC()
	for countryID, arrived := range arrivals {
		record := models.RollCall{
			SessionID: sessionID,
			CountryID: countryID,
			Arrived:   arrived,
			UpdatedAt: now,
		}
		if err := store.UpsertRollCall(&record); err != nil {
			return result.NewInternalError(
				"failed to record attendance",
				err,
			)
		}
	}
	m.broadcastForSession(sessionID, event.EventTypeRollCall, map[string]any{
		"session_id": sessionID,
		"updated":    len(arrivals),
	})
	return nil
}

// ArrivedCountries returns the ids of countries marked present.
func (m *Manager) ArrivedCountries(sessionID string) ([]string, error) {
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	ids, err := store.ListArrivedCountries(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list arrived countries",
			err,
		)
	}
	return ids, nil
}

// RollCallStats returns attendance counts for a session.
func (m *Manager) RollCallStats(
	sessionID string,
) (*RollCallStatistics, error) {
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	arrived, err := store.CountRollCall(sessionID, true)
	if err != nil {
		return nil, result.NewInternalError("failed to count arrivals", err)
	}
	absent, err := store.CountRollCall(sessionID, false)
	if err != nil {
		return nil, result.NewInternalError("failed to count absences", err)
	}
	ids, err := store.ListArrivedCountries(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list arrived countries",
			err,
		)
	}
	return &RollCallStatistics{
		SessionID: sessionID,
		Total:     arrived + absent,
		Arrived:   arrived,
		Absent:    absent,
		Countries: ids,
	}, nil
}

// ClearRollCall removes all attendance records for a session so the roll
// call can be retaken.
func (m *Manager) ClearRollCall(sessionID string) (int64, error) {
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return 0, result.NewInternalError("failed to resolve store", err)
	}
	removed, err := store.ClearRollCall(sessionID)
	if err != nil {
		return 0, result.NewInternalError("failed to clear rollcall", err)
	}
	m.broadcastForSession(sessionID, event.EventTypeRollCall, map[string]any{
		"session_id": sessionID,
		"cleared":    removed,
	})
	return removed, nil
}

// UserSessionFor returns the persisted join record for a user in a room.
func (m *Manager) UserSessionFor(
	roomID, userID string,
) (*models.UserSession, error) {
	userSession, err := m.router.Shared().GetUserSession(roomID, userID)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return nil, result.NewNotFoundError("room", roomID)
		}
		return nil, result.NewNotFoundError("join record", userID)
	}
	return userSession, nil
}
