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

package voting

import (
	"fmt"
	"testing"
	"time"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/membership"
	"github.com/plenum-io/plenum/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHarness struct {
	router  *database.Router
	states  *meeting.StateMachine
	members *membership.Manager
	engine  *Engine
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	router, err := database.NewRouter("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		router.Close()
	})
	states := meeting.NewStateMachine(router, nil, nil)
	return &testHarness{
		router:  router,
		states:  states,
		members: membership.NewManager(router, nil, nil),
		engine:  NewEngine(router, nil, states, nil),
	}
}

// startVotingSession creates a session, seats the given countries, and
// walks the meeting into the voting phase.
func (h *testHarness) startVotingSession(
	t *testing.T,
	sessionID string,
	countries ...string,
) {
	t.Helper()
	_, err := h.states.CreateSession(sessionID, "Committee", "", "chair-1")
	require.NoError(t, err)
	for _, countryID := range countries {
		_, err := h.members.SelectCountry(sessionID, countryID, countryID, "")
		require.NoError(t, err)
	}
	for _, phase := range []meeting.Phase{
		meeting.PhaseRollCall,
		meeting.PhaseFileSubmission,
		meeting.PhaseMotion,
		meeting.PhaseVoting,
	} {
		_, err := h.states.Advance(sessionID, phase)
		require.NoError(t, err)
	}
}

func TestCastVoteOverwrites(t *testing.T) {
	h := newTestHarness(t)
	h.startVotingSession(t, "vote-overwrite-1", "FR")
	sessionID := "vote-overwrite-1"
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "FR", "file-1", models.VoteAgree),
	)
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "FR", "file-1", models.VoteDisagree),
	)
	votes, err := h.engine.Votes(sessionID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, models.VoteDisagree, votes[0].VoteResult)
	assert.False(t, votes[0].Forced)
}

func TestCastVoteValidation(t *testing.T) {
	h := newTestHarness(t)
	var validationErr result.ValidationError
	err := h.engine.CastVote("s", "FR", "file-1", models.VoteChoice("yes"))
	require.ErrorAs(t, err, &validationErr)
	err = h.engine.CastVote("s", "", "file-1", models.VoteAgree)
	require.ErrorAs(t, err, &validationErr)
	err = h.engine.CastVote("s", "FR", "", models.VoteAgree)
	require.ErrorAs(t, err, &validationErr)
}

func TestTallyStrictMajority(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-majority-1"
	countries := []string{"C1", "C2", "C3", "C4", "C5", "C6", "C7"}
	h.startVotingSession(t, sessionID, countries...)
	// 3-3 with one abstention: a tie fails
	for i, choice := range []models.VoteChoice{
		models.VoteAgree, models.VoteAgree, models.VoteAgree,
		models.VoteDisagree, models.VoteDisagree, models.VoteDisagree,
		models.VoteAbstain,
	} {
		require.NoError(
			t,
			h.engine.CastVote(sessionID, countries[i], "file-tie", choice),
		)
	}
	tally, err := h.engine.TallyFile(sessionID, "file-tie")
	require.NoError(t, err)
	assert.Equal(t, models.FileTally{Agree: 3, Disagree: 3, Abstain: 1}, tally)
	assert.False(t, tally.Passed())
	// 4-3: a strict majority passes
	for i, choice := range []models.VoteChoice{
		models.VoteAgree, models.VoteAgree, models.VoteAgree,
		models.VoteAgree,
		models.VoteDisagree, models.VoteDisagree, models.VoteDisagree,
	} {
		require.NoError(
			t,
			h.engine.CastVote(sessionID, countries[i], "file-pass", choice),
		)
	}
	tally, err = h.engine.TallyFile(sessionID, "file-pass")
	require.NoError(t, err)
	assert.Equal(t, models.FileTally{Agree: 4, Disagree: 3}, tally)
	assert.True(t, tally.Passed())
}

func TestReconcilePassedFiles(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-reconcile-1"
	h.startVotingSession(t, sessionID, "C1", "C2", "C3")
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C1", "file-1", models.VoteAgree),
	)
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C2", "file-1", models.VoteAgree),
	)
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C3", "file-1", models.VoteDisagree),
	)
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C1", "file-2", models.VoteDisagree),
	)
	passed, err := h.engine.ReconcilePassedFiles(sessionID)
	require.NoError(t, err)
	require.Len(t, passed, 1)
	assert.Equal(t, "file-1", passed[0].FileID)
	assert.Equal(t, 2, passed[0].VoteAgree)
	assert.Equal(t, 1, passed[0].VoteDisagree)
	// A vote change flips the file out of the projection
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C2", "file-1", models.VoteDisagree),
	)
	passed, err = h.engine.ReconcilePassedFiles(sessionID)
	require.NoError(t, err)
	assert.Empty(t, passed)
}

func TestReconcileIdempotent(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-idem-1"
	h.startVotingSession(t, sessionID, "C1", "C2")
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C1", "file-1", models.VoteAgree),
	)
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C2", "file-1", models.VoteAgree),
	)
	first, err := h.engine.ReconcilePassedFiles(sessionID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	// Unchanged ledger: a second run produces the identical projection,
	// including timestamps
	time.Sleep(10 * time.Millisecond)
	second, err := h.engine.ReconcilePassedFiles(sessionID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].FileID, second[0].FileID)
	assert.Equal(t, first[0].PassedAt, second[0].PassedAt)
	assert.Equal(t, first[0].VoteAgree, second[0].VoteAgree)
	assert.Equal(t, first[0].Status, second[0].Status)
}

func TestForceEndSynthesizesAbstentions(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-force-1"
	h.startVotingSession(t, sessionID, "C1", "C2", "C3")
	store, err := h.router.Resolve(sessionID)
	require.NoError(t, err)
	// Two files in play via chairman assignment
	for _, fileID := range []string{"file-1", "file-2"} {
		err := store.UpsertFileAssignment(&models.FileAssignment{
			SessionID:  sessionID,
			FileID:     fileID,
			CountryID:  "C1",
			FileName:   fileID + ".pdf",
			AssignedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
	// Only C1 voted, and only on file-1: 5 of the 6 grid cells are empty
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C1", "file-1", models.VoteAgree),
	)
	summary, err := h.engine.ForceEnd(sessionID)
	require.NoError(t, err)
	assert.True(t, summary.ForceEnded)
	assert.Equal(t, 5, summary.SynthesizedVotes)
	// The ledger now covers the complete grid
	votes, err := h.engine.Votes(sessionID)
	require.NoError(t, err)
	require.Len(t, votes, 6)
	var forcedCount int
	for _, vote := range votes {
		if vote.Forced {
			forcedCount++
			assert.Equal(t, models.VoteAbstain, vote.VoteResult)
		}
	}
	assert.Equal(t, 5, forcedCount)
	// file-1 passes 1-0, file-2 is all abstentions and fails
	assert.True(t, summary.FileResults["file-1"].Passed())
	assert.False(t, summary.FileResults["file-2"].Passed())
	require.Len(t, summary.PassedFiles, 1)
	assert.Equal(t, "file-1", summary.PassedFiles[0].FileID)
	assert.True(t, summary.PassedFiles[0].ForcePassed)
	// The meeting moved on to declaration
	session, err := h.states.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(
		t,
		string(meeting.PhaseDeclaration),
		session.MeetingState.CurrentPhase,
	)
	// The audit snapshot recorded the forced run
	records, err := h.engine.VotingRecords(sessionID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].ForceEnded)
	assert.Equal(t, 5, records[0].UncompletedCount)
}

func TestForceEndDoesNotOverwriteRealVotes(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-force-keep-1"
	h.startVotingSession(t, sessionID, "C1", "C2")
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C1", "file-1", models.VoteAgree),
	)
	_, err := h.engine.ForceEnd(sessionID)
	require.NoError(t, err)
	votes, err := h.engine.Votes(sessionID)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	for _, vote := range votes {
		if vote.CountryID == "C1" {
			assert.Equal(t, models.VoteAgree, vote.VoteResult)
			assert.False(t, vote.Forced)
		} else {
			assert.Equal(t, models.VoteAbstain, vote.VoteResult)
			assert.True(t, vote.Forced)
		}
	}
}

func TestCompleteWithoutForcing(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-complete-1"
	h.startVotingSession(t, sessionID, "C1", "C2", "C3")
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C1", "file-1", models.VoteAgree),
	)
	require.NoError(
		t,
		h.engine.CastVote(sessionID, "C2", "file-1", models.VoteAgree),
	)
	summary, err := h.engine.Complete(sessionID)
	require.NoError(t, err)
	assert.False(t, summary.ForceEnded)
	// C3 never voted but no abstention was synthesized
	votes, err := h.engine.Votes(sessionID)
	require.NoError(t, err)
	assert.Len(t, votes, 2)
	assert.Equal(t, 1, summary.SynthesizedVotes) // C3 x file-1 missing
	require.Len(t, summary.PassedFiles, 1)
	assert.False(t, summary.PassedFiles[0].ForcePassed)
}

func TestSubmitCountryVotesBatch(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-batch-1"
	h.startVotingSession(t, sessionID, "C1")
	err := h.engine.SubmitCountryVotes(sessionID, "C1", map[string]models.VoteChoice{
		"file-1": models.VoteAgree,
		"file-2": models.VoteDisagree,
		"file-3": models.VoteAbstain,
	})
	require.NoError(t, err)
	votes, err := h.engine.Votes(sessionID)
	require.NoError(t, err)
	assert.Len(t, votes, 3)
}

func TestResolverChainOrder(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-resolver-1"
	h.startVotingSession(t, sessionID, "C1", "C2")
	store, err := h.router.Resolve(sessionID)
	require.NoError(t, err)
	now := time.Now().UTC()
	// file-a has an uploaded-file record: best metadata wins
	require.NoError(t, store.CreateTempFile(&models.TempFile{
		FileID:       "file-a",
		SessionID:    sessionID,
		CountryID:    "C1",
		FileName:     "stored-a.pdf",
		OriginalName: "position-a.pdf",
		CreatedAt:    now,
	}))
	// file-b only has an assignment
	require.NoError(t, store.UpsertFileAssignment(&models.FileAssignment{
		SessionID:  sessionID,
		FileID:     "file-b",
		CountryID:  "C2",
		FileName:   "assigned-b.pdf",
		AssignedAt: now,
	}))
	// file-c exists only in the ledger
	for _, fileID := range []string{"file-a", "file-b", "file-c"} {
		for _, countryID := range []string{"C1", "C2"} {
			require.NoError(t, h.engine.CastVote(
				sessionID,
				countryID,
				fileID,
				models.VoteAgree,
			))
		}
	}
	passed, err := h.engine.ReconcilePassedFiles(sessionID)
	require.NoError(t, err)
	require.Len(t, passed, 3)
	byFile := make(map[string]models.PassedFile)
	for _, row := range passed {
		byFile[row.FileID] = row
	}
	assert.Equal(t, "stored-a.pdf", byFile["file-a"].FileName)
	assert.Equal(t, "position-a.pdf", byFile["file-a"].OriginalName)
	assert.Equal(t, "C1", byFile["file-a"].CountryID)
	assert.Equal(t, "assigned-b.pdf", byFile["file-b"].FileName)
	assert.Equal(t, "C2", byFile["file-b"].CountryID)
	// Ledger reverse lookup recovers only the country (first by order)
	assert.Empty(t, byFile["file-c"].FileName)
	assert.Equal(t, "C1", byFile["file-c"].CountryID)
}

func TestForceEndLargeGrid(t *testing.T) {
	h := newTestHarness(t)
	sessionID := "vote-grid-1"
	countries := make([]string, 10)
	for i := range countries {
		countries[i] = fmt.Sprintf("C%02d", i)
	}
	h.startVotingSession(t, sessionID, countries...)
	store, err := h.router.Resolve(sessionID)
	require.NoError(t, err)
	for i := range 4 {
		err := store.UpsertFileAssignment(&models.FileAssignment{
			SessionID:  sessionID,
			FileID:     fmt.Sprintf("file-%d", i),
			AssignedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
	summary, err := h.engine.ForceEnd(sessionID)
	require.NoError(t, err)
	// 10 participants x 4 files, nobody voted
	assert.Equal(t, 40, summary.SynthesizedVotes)
	votes, err := h.engine.Votes(sessionID)
	require.NoError(t, err)
	assert.Len(t, votes, 40)
	assert.Empty(t, summary.PassedFiles)
}
