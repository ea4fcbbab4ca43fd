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

// Package meeting implements the meeting-phase state machine: a strict
// total order of lifecycle phases with lookup-table transitions,
// per-phase lock flags, and chairman control permissions.
package meeting

// Phase represents one stage of the meeting lifecycle.
type Phase string

const (
	PhaseInit           Phase = "init"
	PhaseRollCall       Phase = "rollcall"
	PhaseFileSubmission Phase = "file_submission"
	PhaseMotion         Phase = "motion"
	PhaseVoting         Phase = "voting"
	PhaseDeclaration    Phase = "declaration"
	PhaseCompleted      Phase = "completed"
)

// phaseSuccessor is the transition lookup table. Each phase has exactly
// one permitted successor; there is no skipping and no going back.
var phaseSuccessor = map[Phase]Phase{
	PhaseInit:           PhaseRollCall,
	PhaseRollCall:       PhaseFileSubmission,
	PhaseFileSubmission: PhaseMotion,
	PhaseMotion:         PhaseVoting,
	PhaseVoting:         PhaseDeclaration,
	PhaseDeclaration:    PhaseCompleted,
}

// Valid returns true if the Phase is a known lifecycle phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInit, PhaseRollCall, PhaseFileSubmission, PhaseMotion,
		PhaseVoting, PhaseDeclaration, PhaseCompleted:
		return true
	default:
		return false
	}
}

// Successor returns the unique permitted next phase, or false from the
// terminal phase.
func (p Phase) Successor() (Phase, bool) {
	next, ok := phaseSuccessor[p]
	return next, ok
}

// CanTransition reports whether target is the permitted successor of
// current.
func CanTransition(current, target Phase) bool {
	next, ok := phaseSuccessor[current]
	return ok && next == target
}

// LockablePhases are the phases that carry an independent lock flag.
var LockablePhases = []Phase{
	PhaseRollCall,
	PhaseFileSubmission,
	PhaseMotion,
	PhaseVoting,
	PhaseDeclaration,
}

// AvailableActions returns the chairman actions available in a phase:
// one action advances the meeting forward and one pauses it. Pure
// function of the phase, used to drive client button state.
func AvailableActions(p Phase) []string {
	switch p {
	case PhaseInit:
		return []string{"start_rollcall"}
	case PhaseRollCall:
		return []string{"complete_rollcall", "pause_meeting"}
	case PhaseFileSubmission:
		return []string{"start_motion", "pause_meeting"}
	case PhaseMotion:
		return []string{"start_voting", "pause_meeting"}
	case PhaseVoting:
		return []string{"generate_declaration", "pause_meeting"}
	case PhaseDeclaration:
		return []string{"complete_meeting", "pause_meeting"}
	default:
		return []string{}
	}
}

// phaseOrder maps each phase to its position in the lifecycle.
var phaseOrder = map[Phase]int{
	PhaseInit:           0,
	PhaseRollCall:       1,
	PhaseFileSubmission: 2,
	PhaseMotion:         3,
	PhaseVoting:         4,
	PhaseDeclaration:    5,
	PhaseCompleted:      6,
}

// phaseCompletionProgress is the UI progress value a phase reports once
// the meeting has moved past it.
var phaseCompletionProgress = map[Phase]int{
	PhaseRollCall:       80,
	PhaseFileSubmission: 60,
	PhaseMotion:         70,
	PhaseVoting:         90,
	PhaseDeclaration:    100,
}

// PhaseProgress returns per-phase progress values given the current
// phase: a phase reports its completion value once the meeting is past
// it and zero otherwise.
func PhaseProgress(current Phase) map[Phase]int {
	progress := make(map[Phase]int, len(phaseCompletionProgress))
	currentIdx, ok := phaseOrder[current]
	if !ok {
		currentIdx = 0
	}
	for phase, value := range phaseCompletionProgress {
		if phaseOrder[phase] < currentIdx {
			progress[phase] = value
		} else {
			progress[phase] = 0
		}
	}
	return progress
}
