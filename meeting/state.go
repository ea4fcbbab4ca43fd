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

package meeting

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/event"
	"github.com/plenum-io/plenum/result"
)

// StateMachine tracks and validates the lifecycle phase of sessions. All
// mutations go through the routed session document as single atomic row
// updates so concurrent advances cannot lose a history close or open.
type StateMachine struct {
	router *database.Router
	bus    *event.EventBus
	logger *slog.Logger
}

// NewStateMachine returns a StateMachine over the given storage router.
// The event bus is optional; without one no phase-change events are
// broadcast.
func NewStateMachine(
	router *database.Router,
	bus *event.EventBus,
	logger *slog.Logger,
) *StateMachine {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &StateMachine{
		router: router,
		bus:    bus,
		logger: logger.With("component", "meeting"),
	}
}

// CreateSession creates a new meeting session in its routed store,
// starting in the init phase with an open history entry. For isolated
// sessions a copy of the settings document is also written to the shared
// store so clients that only know the shared store can find the meeting.
func (m *StateMachine) CreateSession(
	sessionID string,
	committeeName string,
	agenda string,
	createdBy string,
) (*models.Session, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	exists, err := store.SessionExists(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to check session", err)
	}
	if exists {
		return nil, result.NewConflictError(
			"session %s already exists",
			sessionID,
		)
	}
	now := time.Now().UTC()
	locks := make(map[string]bool, len(LockablePhases))
	for _, phase := range LockablePhases {
		locks[string(phase)] = false
	}
	session := models.Session{
		SessionID:     sessionID,
		CommitteeName: committeeName,
		Agenda:        agenda,
		Status:        models.SessionStatusActive,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		Participants:  []models.Participant{},
		MeetingState: models.MeetingState{
			CurrentPhase: string(PhaseInit),
			PhaseHistory: []models.PhaseRecord{
				{
					Phase:     string(PhaseInit),
					StartedAt: now,
				},
			},
			PhaseLocks: locks,
		},
		ChairmanControls: models.ChairmanControls{
			CanAdvancePhase:       true,
			CanGoBack:             false,
			CanPauseMeeting:       true,
			CanModifyParticipants: true,
		},
	}
	if err := store.CreateSession(&session); err != nil {
		return nil, result.NewInternalError("failed to create session", err)
	}
	// Mirror isolated sessions into the shared store for cross-device
	// joins. Failure here must not block session creation.
	if store != m.router.Shared() {
		sharedCopy := session
		sharedCopy.ID = 0
		if err := m.router.Shared().CreateSession(&sharedCopy); err != nil {
			m.logger.Warn(
				"failed to mirror session into shared store",
				"session_id", sessionID,
				"error", err,
			)
		}
	}
	return &session, nil
}

// GetSession returns the routed session document.
func (m *StateMachine) GetSession(
	sessionID string,
) (*models.Session, error) {
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
	return session, nil
}

// Advance moves the session to target, which must be the unique
// permitted successor of the current phase. On success the open history
// entry for the current phase is closed and a new one opened for the
// target, all in one atomic document update. Any other target is
// rejected and the document is unchanged.
func (m *StateMachine) Advance(
	sessionID string,
	target Phase,
) (Phase, error) {
	if target == "" {
		return "", result.NewValidationError(
			"target_phase",
			"must not be empty",
		)
	}
	if !target.Valid() {
		return "", result.NewValidationError(
			"target_phase",
			fmt.Sprintf("unknown phase %q", target),
		)
	}
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return "", result.NewInternalError("failed to resolve store", err)
	}
	var previous Phase
	err = store.UpdateSession(sessionID, func(session *models.Session) error {
		current := Phase(session.MeetingState.CurrentPhase)
		if current == "" {
			current = PhaseInit
		}
		if !CanTransition(current, target) {
			return result.NewConflictError(
				"cannot transition from %s to %s",
				current,
				target,
			)
		}
		previous = current
		now := time.Now().UTC()
		// Close the open history entry for the current phase
		history := session.MeetingState.PhaseHistory
		for i := range history {
			if history[i].Phase == string(current) &&
				history[i].CompletedAt == nil {
				history[i].CompletedAt = &now
				break
			}
		}
		// Open a new entry for the target phase
		history = append(history, models.PhaseRecord{
			Phase:     string(target),
			StartedAt: now,
		})
		session.MeetingState.CurrentPhase = string(target)
		session.MeetingState.PhaseHistory = history
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return "", result.NewNotFoundError("session", sessionID)
		}
		var conflictErr result.ConflictError
		if errors.As(err, &conflictErr) {
			return "", err
		}
		return "", result.NewInternalError("failed to advance phase", err)
	}
	m.logger.Info(
		"phase advanced",
		"session_id", sessionID,
		"previous", previous,
		"current", target,
	)
	m.broadcast(sessionID, event.EventTypePhase, map[string]any{
		"session_id":     sessionID,
		"previous_phase": string(previous),
		"current_phase":  string(target),
	})
	return previous, nil
}

// LockPhase toggles the lock flag for one phase. Locking never changes
// the current phase; it only prevents the phase's UI controls from being
// used while still allowing inspection.
func (m *StateMachine) LockPhase(
	sessionID string,
	phase Phase,
	locked bool,
) error {
	if phase == "" {
		return result.NewValidationError("phase", "must not be empty")
	}
	if !phase.Valid() {
		return result.NewValidationError(
			"phase",
			fmt.Sprintf("unknown phase %q", phase),
		)
	}
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return result.NewInternalError("failed to resolve store", err)
	}
	err = store.UpdateSession(sessionID, func(session *models.Session) error {
		if session.MeetingState.PhaseLocks == nil {
			session.MeetingState.PhaseLocks = make(map[string]bool)
		}
		session.MeetingState.PhaseLocks[string(phase)] = locked
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return result.NewNotFoundError("session", sessionID)
		}
		return result.NewInternalError("failed to update phase lock", err)
	}
	return nil
}

// Pause suspends an active meeting. Resume reverses it.
func (m *StateMachine) Pause(sessionID string) error {
	return m.setStatus(sessionID, models.SessionStatusPaused)
}

// Resume reactivates a paused meeting.
func (m *StateMachine) Resume(sessionID string) error {
	return m.setStatus(sessionID, models.SessionStatusActive)
}

func (m *StateMachine) setStatus(
	sessionID string,
	status models.SessionStatus,
) error {
	store, err := m.router.Resolve(sessionID)
	if err != nil {
		return result.NewInternalError("failed to resolve store", err)
	}
	err = store.UpdateSession(sessionID, func(session *models.Session) error {
		session.Status = status
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return result.NewNotFoundError("session", sessionID)
		}
		return result.NewInternalError("failed to update status", err)
	}
	return nil
}

// PhaseStatus is a read-only snapshot of a session's phase state used to
// drive chairman and delegate UIs.
type PhaseStatus struct {
	SessionID        string               `json:"session_id"`
	CurrentPhase     Phase                `json:"current_phase"`
	AvailableActions []string             `json:"available_actions"`
	PhaseLocks       map[string]bool      `json:"phase_locks"`
	PhaseProgress    map[Phase]int        `json:"phase_progress"`
	Status           models.SessionStatus `json:"status"`
}

// Status returns the phase snapshot for a session.
func (m *StateMachine) Status(sessionID string) (*PhaseStatus, error) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	current := Phase(session.MeetingState.CurrentPhase)
	if current == "" {
		current = PhaseInit
	}
	return &PhaseStatus{
		SessionID:        sessionID,
		CurrentPhase:     current,
		AvailableActions: AvailableActions(current),
		PhaseLocks:       session.MeetingState.PhaseLocks,
		PhaseProgress:    PhaseProgress(current),
		Status:           session.Status,
	}, nil
}

// broadcast publishes a room event for the session. The room id for a
// session's broadcast room is resolved through the shared store; when no
// room exists the session id doubles as the room key.
func (m *StateMachine) broadcast(
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
