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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseSuccessorOrder(t *testing.T) {
	expectedOrder := []Phase{
		PhaseInit,
		PhaseRollCall,
		PhaseFileSubmission,
		PhaseMotion,
		PhaseVoting,
		PhaseDeclaration,
		PhaseCompleted,
	}
	for i := 0; i < len(expectedOrder)-1; i++ {
		next, ok := expectedOrder[i].Successor()
		require.True(t, ok, "phase %s should have a successor", expectedOrder[i])
		assert.Equal(t, expectedOrder[i+1], next)
	}
	// Terminal phase has no successor
	_, ok := PhaseCompleted.Successor()
	assert.False(t, ok)
}

func TestCanTransition(t *testing.T) {
	testDefs := []struct {
		current  Phase
		target   Phase
		expected bool
	}{
		{PhaseInit, PhaseRollCall, true},
		{PhaseRollCall, PhaseFileSubmission, true},
		{PhaseFileSubmission, PhaseMotion, true},
		{PhaseMotion, PhaseVoting, true},
		{PhaseVoting, PhaseDeclaration, true},
		{PhaseDeclaration, PhaseCompleted, true},
		// No skipping
		{PhaseInit, PhaseVoting, false},
		{PhaseRollCall, PhaseMotion, false},
		{PhaseFileSubmission, PhaseVoting, false},
		// No going back
		{PhaseVoting, PhaseMotion, false},
		{PhaseCompleted, PhaseDeclaration, false},
		{PhaseRollCall, PhaseInit, false},
		// Self-transition rejected
		{PhaseVoting, PhaseVoting, false},
		// Terminal phase rejects everything
		{PhaseCompleted, PhaseCompleted, false},
		// Unknown phases
		{Phase("bogus"), PhaseRollCall, false},
		{PhaseInit, Phase("bogus"), false},
	}
	for _, testDef := range testDefs {
		assert.Equal(
			t,
			testDef.expected,
			CanTransition(testDef.current, testDef.target),
			"transition %s -> %s", testDef.current, testDef.target,
		)
	}
}

func TestPhaseValid(t *testing.T) {
	for _, phase := range []Phase{
		PhaseInit, PhaseRollCall, PhaseFileSubmission,
		PhaseMotion, PhaseVoting, PhaseDeclaration, PhaseCompleted,
	} {
		assert.True(t, phase.Valid(), "phase %s should be valid", phase)
	}
	assert.False(t, Phase("").Valid())
	assert.False(t, Phase("intermission").Valid())
}

func TestAvailableActions(t *testing.T) {
	testDefs := []struct {
		phase    Phase
		expected []string
	}{
		{PhaseInit, []string{"start_rollcall"}},
		{PhaseRollCall, []string{"complete_rollcall", "pause_meeting"}},
		{PhaseFileSubmission, []string{"start_motion", "pause_meeting"}},
		{PhaseMotion, []string{"start_voting", "pause_meeting"}},
		{PhaseVoting, []string{"generate_declaration", "pause_meeting"}},
		{PhaseDeclaration, []string{"complete_meeting", "pause_meeting"}},
		{PhaseCompleted, []string{}},
		{Phase("bogus"), []string{}},
	}
	for _, testDef := range testDefs {
		assert.Equal(
			t,
			testDef.expected,
			AvailableActions(testDef.phase),
			"actions for phase %s", testDef.phase,
		)
	}
}

func TestPhaseProgress(t *testing.T) {
	// From voting, every earlier phase reports its completion value
	progress := PhaseProgress(PhaseVoting)
	assert.Equal(t, 80, progress[PhaseRollCall])
	assert.Equal(t, 60, progress[PhaseFileSubmission])
	assert.Equal(t, 70, progress[PhaseMotion])
	assert.Equal(t, 0, progress[PhaseVoting])
	assert.Equal(t, 0, progress[PhaseDeclaration])
	// From completed, everything is done
	progress = PhaseProgress(PhaseCompleted)
	assert.Equal(t, 90, progress[PhaseVoting])
	assert.Equal(t, 100, progress[PhaseDeclaration])
	// From init, nothing is done
	progress = PhaseProgress(PhaseInit)
	for phase, value := range progress {
		assert.Equal(t, 0, value, "phase %s should report no progress", phase)
	}
}
