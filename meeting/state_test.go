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
	"testing"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateMachine(t *testing.T) *StateMachine {
	t.Helper()
	router, err := database.NewRouter("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		router.Close()
	})
	return NewStateMachine(router, nil, nil)
}

func TestCreateSessionStartsInInit(t *testing.T) {
	sm := newTestStateMachine(t)
	session, err := sm.CreateSession(
		"state-create-1",
		"Trade Committee",
		"tariff schedules",
		"chair-1",
	)
	require.NoError(t, err)
	assert.Equal(t, string(PhaseInit), session.MeetingState.CurrentPhase)
	require.Len(t, session.MeetingState.PhaseHistory, 1)
	assert.Equal(
		t,
		string(PhaseInit),
		session.MeetingState.PhaseHistory[0].Phase,
	)
	assert.Nil(t, session.MeetingState.PhaseHistory[0].CompletedAt)
	// Every lockable phase starts unlocked
	for _, phase := range LockablePhases {
		locked, ok := session.MeetingState.PhaseLocks[string(phase)]
		require.True(t, ok)
		assert.False(t, locked)
	}
	assert.True(t, session.ChairmanControls.CanAdvancePhase)
	assert.False(t, session.ChairmanControls.CanGoBack)
}

func TestCreateSessionDuplicate(t *testing.T) {
	sm := newTestStateMachine(t)
	_, err := sm.CreateSession("state-dup-1", "Committee", "", "chair-1")
	require.NoError(t, err)
	_, err = sm.CreateSession("state-dup-1", "Committee", "", "chair-1")
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestAdvanceThroughLifecycle(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-lifecycle-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	for _, target := range []Phase{
		PhaseRollCall,
		PhaseFileSubmission,
		PhaseMotion,
		PhaseVoting,
		PhaseDeclaration,
		PhaseCompleted,
	} {
		_, err := sm.Advance(sessionID, target)
		require.NoError(t, err, "advance to %s", target)
	}
	session, err := sm.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(
		t,
		string(PhaseCompleted),
		session.MeetingState.CurrentPhase,
	)
	// Full history: init plus six advances, all closed except the last
	history := session.MeetingState.PhaseHistory
	require.Len(t, history, 7)
	for i := 0; i < len(history)-1; i++ {
		assert.NotNil(
			t,
			history[i].CompletedAt,
			"history entry %s should be closed", history[i].Phase,
		)
	}
	assert.Nil(t, history[len(history)-1].CompletedAt)
}

func TestAdvanceRejectsSkip(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-skip-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	_, err = sm.Advance(sessionID, PhaseVoting)
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	// Rejected advance leaves the document unchanged
	session, err := sm.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, string(PhaseInit), session.MeetingState.CurrentPhase)
	assert.Len(t, session.MeetingState.PhaseHistory, 1)
}

func TestAdvanceRejectsBackward(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-back-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	_, err = sm.Advance(sessionID, PhaseRollCall)
	require.NoError(t, err)
	_, err = sm.Advance(sessionID, PhaseFileSubmission)
	require.NoError(t, err)
	_, err = sm.Advance(sessionID, PhaseRollCall)
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestAdvanceUnknownSession(t *testing.T) {
	sm := newTestStateMachine(t)
	_, err := sm.Advance("state-missing-1", PhaseRollCall)
	var notFoundErr result.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestAdvanceInvalidTarget(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-invalid-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	_, err = sm.Advance(sessionID, Phase("intermission"))
	var validationErr result.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestLockPhaseDoesNotAdvance(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-lock-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	_, err = sm.Advance(sessionID, PhaseRollCall)
	require.NoError(t, err)
	err = sm.LockPhase(sessionID, PhaseRollCall, true)
	require.NoError(t, err)
	session, err := sm.GetSession(sessionID)
	require.NoError(t, err)
	assert.True(t, session.MeetingState.PhaseLocks[string(PhaseRollCall)])
	assert.Equal(t, string(PhaseRollCall), session.MeetingState.CurrentPhase)
	// Unlock
	err = sm.LockPhase(sessionID, PhaseRollCall, false)
	require.NoError(t, err)
	session, err = sm.GetSession(sessionID)
	require.NoError(t, err)
	assert.False(t, session.MeetingState.PhaseLocks[string(PhaseRollCall)])
}

func TestPauseResume(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-pause-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	require.NoError(t, sm.Pause(sessionID))
	session, err := sm.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "paused", string(session.Status))
	require.NoError(t, sm.Resume(sessionID))
	session, err = sm.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "active", string(session.Status))
}

func TestStatusSnapshot(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-status-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	_, err = sm.Advance(sessionID, PhaseRollCall)
	require.NoError(t, err)
	status, err := sm.Status(sessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseRollCall, status.CurrentPhase)
	assert.Equal(
		t,
		[]string{"complete_rollcall", "pause_meeting"},
		status.AvailableActions,
	)
	assert.Equal(t, 0, status.PhaseProgress[PhaseRollCall])
}

func TestRepeatedAdvanceSingleWinner(t *testing.T) {
	sm := newTestStateMachine(t)
	sessionID := "state-race-1"
	_, err := sm.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	// Two chairman clients racing to the same target: the first advance
	// wins, the retry sees the new current phase and conflicts
	previous, err := sm.Advance(sessionID, PhaseRollCall)
	require.NoError(t, err)
	assert.Equal(t, PhaseInit, previous)
	_, err = sm.Advance(sessionID, PhaseRollCall)
	var conflictErr result.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	// Only one history entry was opened for the phase
	session, err := sm.GetSession(sessionID)
	require.NoError(t, err)
	var rollcallEntries int
	for _, record := range session.MeetingState.PhaseHistory {
		if record.Phase == string(PhaseRollCall) {
			rollcallEntries++
		}
	}
	assert.Equal(t, 1, rollcallEntries)
}
