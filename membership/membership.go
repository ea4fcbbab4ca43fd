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

// Package membership manages rooms, joins, country selection, and roll
// call. Rooms and join records always live in the shared store so a
// client can join before the routing tier of its session is known;
// country selection and roll call operate on the session's routed store.
package membership

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/event"
	"github.com/plenum-io/plenum/result"
)

type Manager struct {
	router *database.Router
	bus    *event.EventBus
	logger *slog.Logger
}

func NewManager(
	router *database.Router,
	bus *event.EventBus,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Manager{
		router: router,
		bus:    bus,
		logger: logger.With("component", "membership"),
	}
}

// CreateRoom creates the joinable lobby for a session. At most one room
// exists per session; a second create for the same session is a
// conflict. The room id is a fresh random identifier distinct from the
// session id.
func (m *Manager) CreateRoom(
	sessionID string,
	committeeName string,
	agenda string,
	maxParticipants int,
	createdBy string,
) (*models.Room, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	if maxParticipants <= 0 {
		return nil, result.NewValidationError(
			"max_participants",
			"must be positive",
		)
	}
	shared := m.router.Shared()
	if _, err := shared.GetRoomBySession(sessionID); err == nil {
		return nil, result.NewConflictError(
			"room already exists for session %s",
			sessionID,
		)
	} else if !errors.Is(err, database.ErrRoomNotFound) {
		return nil, result.NewInternalError("failed to check room", err)
	}
	room := models.Room{
		RoomID:          uuid.NewString(),
		SessionID:       sessionID,
		CommitteeName:   committeeName,
		Agenda:          agenda,
		MaxParticipants: maxParticipants,
		RoomStatus:      models.RoomStatusWaiting,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now().UTC(),
		Participants:    []models.RoomParticipant{},
	}
	if err := shared.CreateRoom(&room); err != nil {
		return nil, result.NewInternalError("failed to create room", err)
	}
	m.logger.Info(
		"room created",
		"room_id", room.RoomID,
		"session_id", sessionID,
		"max_participants", maxParticipants,
	)
	return &room, nil
}

// GetRoom returns the room document for a room id.
func (m *Manager) GetRoom(roomID string) (*models.Room, error) {
	room, err := m.router.Shared().GetRoom(roomID)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return nil, result.NewNotFoundError("room", roomID)
		}
		return nil, result.NewInternalError("failed to load room", err)
	}
	return room, nil
}

// GetRoomBySession returns the room wrapping a session.
func (m *Manager) GetRoomBySession(
	sessionID string,
) (*models.Room, error) {
	room, err := m.router.Shared().GetRoomBySession(sessionID)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return nil, result.NewNotFoundError("room for session", sessionID)
		}
		return nil, result.NewInternalError("failed to load room", err)
	}
	return room, nil
}

// ListRooms returns joinable rooms, newest first.
func (m *Manager) ListRooms(
	statuses ...models.RoomStatus,
) ([]models.Room, error) {
	rooms, err := m.router.Shared().ListRooms(statuses...)
	if err != nil {
		return nil, result.NewInternalError("failed to list rooms", err)
	}
	return rooms, nil
}

// JoinRoom admits a user into a room. Capacity enforcement and the
// double-join guard happen atomically in the store. A successful join
// broadcasts a connection event to the room.
func (m *Manager) JoinRoom(
	roomID string,
	userID string,
	role models.Role,
	countryID string,
) (*models.Room, error) {
	if roomID == "" {
		return nil, result.NewValidationError("room_id", "must not be empty")
	}
	if userID == "" {
		return nil, result.NewValidationError("user_id", "must not be empty")
	}
	if role != models.RoleChairman && role != models.RoleParticipant {
		return nil, result.NewValidationError("role", "must be chairman or participant")
	}
	entry := models.RoomParticipant{
		UserID:    userID,
		Role:      role,
		CountryID: countryID,
		JoinedAt:  time.Now().UTC(),
	}
	room, err := m.router.Shared().JoinRoom(roomID, entry)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrRoomNotFound):
			return nil, result.NewNotFoundError("room", roomID)
		case errors.Is(err, database.ErrRoomFull):
			return nil, result.NewConflictError("room %s is full", roomID)
		case errors.Is(err, database.ErrAlreadyJoined):
			return nil, result.NewConflictError(
				"user %s already joined room %s",
				userID,
				roomID,
			)
		default:
			return nil, result.NewInternalError("failed to join room", err)
		}
	}
	m.logger.Info(
		"user joined room",
		"room_id", roomID,
		"user_id", userID,
		"role", role,
		"participants", room.CurrentParticipants,
	)
	m.publish(roomID, event.EventTypeConnection, map[string]any{
		"room_id":              roomID,
		"user_id":              userID,
		"role":                 string(role),
		"current_participants": room.CurrentParticipants,
		"action":               "joined",
	})
	return room, nil
}

// LeaveRoom marks the user's join record inactive. The room's counter is
// not decremented and the seat is not reclaimed.
func (m *Manager) LeaveRoom(roomID, userID string) error {
	err := m.router.Shared().LeaveRoom(roomID, userID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrRoomNotFound):
			return result.NewNotFoundError("room", roomID)
		case errors.Is(err, database.ErrNotJoined):
			return result.NewNotFoundError("join record for user", userID)
		default:
			return result.NewInternalError("failed to leave room", err)
		}
	}
	m.publish(roomID, event.EventTypeConnection, map[string]any{
		"room_id": roomID,
		"user_id": userID,
		"action":  "left",
	})
	return nil
}

// SelectCountry seats a delegation in the session. Country selection is
// session-level: the participant entry is appended to the routed session
// document, and a second selection of the same country is a conflict
// even when it comes through a different room or device. For isolated
// sessions the shared-store mirror is updated as well so lobby views
// stay current.
func (m *Manager) SelectCountry(
	sessionID string,
	countryID string,
	countryName string,
	countryFlag string,
) (*models.Participant, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	if countryID == "" {
		return nil, result.NewValidationError(
			"country_id",
			"must not be empty",
		)
	}
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	participant := models.Participant{
		CountryID:   countryID,
		CountryName: countryName,
		CountryFlag: countryFlag,
		JoinedAt:    time.Now().UTC(),
		Status:      models.ParticipantStatusActive,
	}
	appendParticipant := func(session *models.Session) error {
		for _, existing := range session.Participants {
			if existing.CountryID == countryID &&
				existing.Status == models.ParticipantStatusActive {
				return result.NewConflictError(
					"country %s is already seated in session %s",
					countryID,
					sessionID,
				)
			}
		}
		session.Participants = append(session.Participants, participant)
		return nil
	}
	if err := store.UpdateSession(sessionID, appendParticipant); err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, result.NewNotFoundError("session", sessionID)
		}
		var conflictErr result.ConflictError
		if errors.As(err, &conflictErr) {
			return nil, err
		}
		return nil, result.NewInternalError("failed to seat country", err)
	}
	// Keep the shared mirror in sync for isolated sessions. A missing
	// mirror is recreated lazily from the isolated document so lobby
	// views stay current even when the create-time copy was lost.
	if store != m.router.Shared() {
		err := m.router.Shared().UpdateSession(sessionID, appendParticipant)
		switch {
		case err == nil:
		case errors.Is(err, database.ErrSessionNotFound):
			if mirrorErr := m.ensureSharedMirror(store, sessionID); mirrorErr != nil {
				m.logger.Warn(
					"failed to recreate shared mirror for session",
					"session_id", sessionID,
					"error", mirrorErr,
				)
			}
		default:
			var conflictErr result.ConflictError
			if !errors.As(err, &conflictErr) {
				m.logger.Warn(
					"failed to sync country selection to shared store",
					"session_id", sessionID,
					"country_id", countryID,
					"error", err,
				)
			}
		}
	}
	m.logger.Info(
		"country seated",
		"session_id", sessionID,
		"country_id", countryID,
	)
	m.broadcastForSession(sessionID, event.EventTypeConnection, map[string]any{
		"session_id": sessionID,
		"country_id": countryID,
		"action":     "country_selected",
	})
	return &participant, nil
}

// ensureSharedMirror copies the isolated session document into the
// shared store. The copy carries the full document, participants
// included, so the lobby view matches the routed state.
func (m *Manager) ensureSharedMirror(
	store *database.Store,
	sessionID string,
) error {
	session, err := store.GetSession(sessionID)
	if err != nil {
		return err
	}
	mirror := *session
	mirror.ID = 0
	return m.router.Shared().CreateSession(&mirror)
}

// Participants returns the delegations currently seated in a session.
func (m *Manager) Participants(
	sessionID string,
) ([]models.Participant, error) {
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	session, err := store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, result.NewNotFoundError("session", sessionID)
		}
		return nil, result.NewInternalError("failed to load session", err)
	}
	return session.Participants, nil
}

// ActiveParticipants returns only the delegations with active status.
func (m *Manager) ActiveParticipants(
	sessionID string,
) ([]models.Participant, error) {
	participants, err := m.Participants(sessionID)
	if err != nil {
		return nil, err
	}
	active := make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Status == models.ParticipantStatusActive {
			active = append(active, p)
		}
	}
	return active, nil
}

// Countries returns the country reference list from the shared store.
// The master list is never partitioned.
func (m *Manager) Countries() ([]models.Country, error) {
	countries, err := m.router.Shared().ListCountries()
	if err != nil {
		return nil, result.NewInternalError("failed to list countries", err)
	}
	return countries, nil
}

// SeedCountries loads the country reference list, skipping codes that
// already exist.
func (m *Manager) SeedCountries(countries []models.Country) error {
	shared := m.router.Shared()
	existing, err := shared.ListCountries()
	if err != nil {
		return result.NewInternalError("failed to list countries", err)
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.Code] = true
	}
	for _, c := range countries {
		if known[c.Code] {
			continue
		}
		country := c
		if err := shared.InsertCountry(&country); err != nil {
			return result.NewInternalError("failed to insert country", err)
		}
	}
	return nil
}

func (m *Manager) publish(
	roomID string,
	eventType event.EventType,
	payload any,
) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(roomID, event.NewEvent(roomID, eventType, payload))
}

// broadcastForSession publishes to the session's room if one exists,
// falling back to the session id as the room key.
func (m *Manager) broadcastForSession(
	sessionID string,
	eventType event.EventType,
	payload any,
) {
	if m.bus == nil {
		return
	}
	roomID := sessionID
	if room, err := m.router.Shared().GetRoomBySession(sessionID); err == nil {
		roomID = room.RoomID
	}
	m.bus.PublishAsync(roomID, event.NewEvent(roomID, eventType, payload))
}
