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
	"testing"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *database.Router) {
	t.Helper()
	router, err := database.NewRouter("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		router.Close()
	})
	return NewManager(router, nil, nil), router
}

func TestCreateRoomOnePerSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	room, err := mgr.CreateRoom(
		"member-room-1",
		"Trade Committee",
		"tariffs",
		10,
		"chair-1",
	)
	require.NoError(t, err)
	assert.NotEmpty(t, room.RoomID)
	assert.NotEqual(t, "member-room-1", room.RoomID)
	assert.Equal(t, models.RoomStatusWaiting, room.RoomStatus)
	// Second room for the same session conflicts
	_, err = mgr.CreateRoom("member-room-1", "Committee", "", 10, "chair-1")
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestJoinRoomCapacity(t *testing.T) {
	mgr, _ := newTestManager(t)
	room, err := mgr.CreateRoom(
		"member-cap-1",
		"Committee",
		"",
		1,
		"chair-1",
	)
	require.NoError(t, err)
	joined, err := mgr.JoinRoom(
		room.RoomID,
		"user-1",
		models.RoleParticipant,
		"FR",
	)
	require.NoError(t, err)
	assert.Equal(t, 1, joined.CurrentParticipants)
	// Capacity 1: a second distinct user is rejected
	_, err = mgr.JoinRoom(room.RoomID, "user-2", models.RoleParticipant, "DE")
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	// Counter never exceeded capacity
	reloaded, err := mgr.GetRoom(room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentParticipants)
}

func TestJoinRoomPersistsParticipantList(t *testing.T) {
	mgr, _ := newTestManager(t)
	room, err := mgr.CreateRoom(
		"member-persist-1",
		"Committee",
		"",
		1,
		"chair-1",
	)
	require.NoError(t, err)
	// First join into an empty room must succeed and the embedded
	// participant list must survive the write path
	joined, err := mgr.JoinRoom(
		room.RoomID,
		"user-1",
		models.RoleParticipant,
		"FR",
	)
	require.NoError(t, err)
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, "user-1", joined.Participants[0].UserID)
	assert.Equal(t, "FR", joined.Participants[0].CountryID)
	reloaded, err := mgr.GetRoom(room.RoomID)
	require.NoError(t, err)
	require.Len(t, reloaded.Participants, 1)
	assert.Equal(t, "user-1", reloaded.Participants[0].UserID)
}

func TestJoinRoomIdempotencyGuard(t *testing.T) {
	mgr, _ := newTestManager(t)
	room, err := mgr.CreateRoom(
		"member-idem-1",
		"Committee",
		"",
		10,
		"chair-1",
	)
	require.NoError(t, err)
	_, err = mgr.JoinRoom(room.RoomID, "user-1", models.RoleParticipant, "FR")
	require.NoError(t, err)
	// Same user joining again is rejected and does not consume a seat
	_, err = mgr.JoinRoom(room.RoomID, "user-1", models.RoleParticipant, "FR")
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	reloaded, err := mgr.GetRoom(room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentParticipants)
}

func TestLeaveRoomKeepsCounter(t *testing.T) {
	mgr, _ := newTestManager(t)
	room, err := mgr.CreateRoom(
		"member-leave-1",
		"Committee",
		"",
		10,
		"chair-1",
	)
	require.NoError(t, err)
	_, err = mgr.JoinRoom(room.RoomID, "user-1", models.RoleParticipant, "FR")
	require.NoError(t, err)
	require.NoError(t, mgr.LeaveRoom(room.RoomID, "user-1"))
	// Leaving marks the join record inactive but never reclaims the seat
	reloaded, err := mgr.GetRoom(room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentParticipants)
	userSession, err := mgr.UserSessionFor(room.RoomID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "inactive", userSession.Status)
}

func TestLeaveRoomWithoutJoin(t *testing.T) {
	mgr, _ := newTestManager(t)
	room, err := mgr.CreateRoom(
		"member-leave-2",
		"Committee",
		"",
		10,
		"chair-1",
	)
	require.NoError(t, err)
	// Leaving a room the user never joined reports the missing join
	// record, not a missing room
	err = mgr.LeaveRoom(room.RoomID, "user-1")
	var notFoundErr result.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, "join record for user", notFoundErr.Entity)
	assert.Equal(t, "user-1", notFoundErr.Key)
	// An unknown room is still reported as such
	err = mgr.LeaveRoom("no-such-room", "user-1")
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, "room", notFoundErr.Entity)
}

func TestJoinUnknownRoom(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.JoinRoom(
		"no-such-room",
		"user-1",
		models.RoleParticipant,
		"",
	)
	var notFoundErr result.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestSelectCountrySessionLevel(t *testing.T) {
	mgr, router := newTestManager(t)
	sm := meeting.NewStateMachine(router, nil, nil)
	sessionID := "member-select-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	participant, err := mgr.SelectCountry(sessionID, "FR", "France", "fr.svg")
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusActive, participant.Status)
	// Duplicate selection of the same country conflicts even from a
	// different client
	_, err = mgr.SelectCountry(sessionID, "FR", "France", "fr.svg")
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	// A different country is fine
	_, err = mgr.SelectCountry(sessionID, "DE", "Germany", "de.svg")
	require.NoError(t, err)
	seated, err := mgr.Participants(sessionID)
	require.NoError(t, err)
	assert.Len(t, seated, 2)
}

func TestSelectCountryIsolatedSessionSyncsShared(t *testing.T) {
	mgr, router := newTestManager(t)
	sm := meeting.NewStateMachine(router, nil, nil)
	// Five-digit numeric id routes to a dedicated store
	sessionID := "54321"
	require.True(t, database.IsIsolated(sessionID))
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	_, err = mgr.SelectCountry(sessionID, "JP", "Japan", "jp.svg")
	require.NoError(t, err)
	// The routed store holds the seat
	store, err := router.Resolve(sessionID)
	require.NoError(t, err)
	session, err := store.GetSession(sessionID)
	require.NoError(t, err)
	require.Len(t, session.Participants, 1)
	assert.Equal(t, "JP", session.Participants[0].CountryID)
	// The shared mirror is kept in sync for lobby views
	mirror, err := router.Shared().GetSession(sessionID)
	require.NoError(t, err)
	require.Len(t, mirror.Participants, 1)
	assert.Equal(t, "JP", mirror.Participants[0].CountryID)
}

func TestSelectCountryRecreatesMissingMirror(t *testing.T) {
	mgr, router := newTestManager(t)
	sm := meeting.NewStateMachine(router, nil, nil)
	sessionID := "67890"
	require.True(t, database.IsIsolated(sessionID))
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	// Drop the shared copy to simulate a lost mirror
	dropped := router.Shared().DB().
		Where("session_id = ?", sessionID).
		Delete(&models.Session{})
	require.NoError(t, dropped.Error)
	require.Equal(t, int64(1), dropped.RowsAffected)
	_, err = mgr.SelectCountry(sessionID, "BR", "Brazil", "br.svg")
	require.NoError(t, err)
	// The mirror is recreated from the isolated document, seat included
	mirror, err := router.Shared().GetSession(sessionID)
	require.NoError(t, err)
	require.Len(t, mirror.Participants, 1)
	assert.Equal(t, "BR", mirror.Participants[0].CountryID)
}

func TestIsolatedSessionDoesNotLeakIntoShared(t *testing.T) {
	mgr, router := newTestManager(t)
	sm := meeting.NewStateMachine(router, nil, nil)
	// "12345" is isolated, "default" is shared
	_, err := sm.CreateSession("12345", "Committee A", "", "chair-1")
	require.NoError(t, err)
	_, err = sm.CreateSession("default", "Committee B", "", "chair-2")
	require.NoError(t, err)
	_, err = mgr.SelectCountry("12345", "FR", "France", "fr.svg")
	require.NoError(t, err)
	// The shared session has no participants of its own
	seated, err := mgr.Participants("default")
	require.NoError(t, err)
	assert.Empty(t, seated)
	// And the isolated store knows nothing about the shared session
	store, err := router.Resolve("12345")
	require.NoError(t, err)
	_, err = store.GetSession("default")
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
}

func TestRollCallLifecycle(t *testing.T) {
	mgr, router := newTestManager(t)
	sm := meeting.NewStateMachine(router, nil, nil)
	sessionID := "member-rollcall-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	require.NoError(t, mgr.UpdateRollCall(sessionID, "FR", true))
	require.NoError(t, mgr.UpdateRollCall(sessionID, "DE", false))
	require.NoError(t, mgr.UpdateRollCall(sessionID, "JP", true))
	// Re-marking overwrites rather than duplicating
	require.NoError(t, mgr.UpdateRollCall(sessionID, "DE", true))
	stats, err := mgr.RollCallStats(sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.Arrived)
	assert.Equal(t, int64(0), stats.Absent)
	assert.Equal(t, []string{"DE", "FR", "JP"}, stats.Countries)
	// Clearing removes all records
	removed, err := mgr.ClearRollCall(sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	stats, err = mgr.RollCallStats(sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}

func TestBatchRollCall(t *testing.T) {
	mgr, router := newTestManager(t)
	sm := meeting.NewStateMachine(router, nil, nil)
	sessionID := "member-batch-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	err = mgr.BatchRollCall(sessionID, map[string]bool{
		"FR": true,
		"DE": true,
		"JP": false,
	})
	require.NoError(t, err)
	arrived, err := mgr.ArrivedCountries(sessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE", "FR"}, arrived)
}

func TestSeedCountriesSkipsExisting(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.SeedCountries([]models.Country{
		{Code: "FR", Name: "France", Flag: "fr.svg"},
		{Code: "DE", Name: "Germany", Flag: "de.svg"},
	})
	require.NoError(t, err)
	// Re-seeding with an overlap inserts only the new code
	err = mgr.SeedCountries([]models.Country{
		{Code: "DE", Name: "Germany", Flag: "de.svg"},
		{Code: "JP", Name: "Japan", Flag: "jp.svg"},
	})
	require.NoError(t, err)
	countries, err := mgr.Countries()
	require.NoError(t, err)
	require.Len(t, countries, 3)
	assert.Equal(t, "DE", countries[0].Code)
	assert.Equal(t, "FR", countries[1].Code)
	assert.Equal(t, "JP", countries[2].Code)
}
