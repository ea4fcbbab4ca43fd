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

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/declaration"
	"github.com/plenum-io/plenum/identity"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/membership"
	"github.com/plenum-io/plenum/result"
	"github.com/plenum-io/plenum/submission"
	"github.com/plenum-io/plenum/voting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApi(t *testing.T) *Api {
	t.Helper()
	router, err := database.NewRouter("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		router.Close()
	})
	states := meeting.NewStateMachine(router, nil, nil)
	tokens, err := identity.NewJWT([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	return New(Config{
		States:       states,
		Members:      membership.NewManager(router, nil, nil),
		Votes:        voting.NewEngine(router, nil, states, nil),
		Submissions:  submission.NewService(router, nil, nil, nil),
		Declarations: declaration.NewService(router, nil, nil),
		Identity:     tokens,
	}, nil)
}

func doRequest(
	t *testing.T,
	handler http.Handler,
	method, path string,
	body any,
) (*httptest.ResponseRecorder, result.Result) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var envelope result.Result
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(
			t,
			json.Unmarshal(rec.Body.Bytes(), &envelope),
		)
	}
	return rec, envelope
}

func TestCreateSessionEnvelope(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	rec, envelope := doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions",
		createSessionRequest{
			SessionID:     "api-create-1",
			CommitteeName: "Trade Committee",
		},
	)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, envelope.Code)
	assert.Equal(t, "session created", envelope.Message)
	require.NotNil(t, envelope.Data)
	// Duplicate creation maps to a 409 envelope
	rec, envelope = doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions",
		createSessionRequest{SessionID: "api-create-1"},
	)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, envelope.Code)
}

func TestAdvanceRejectsSkipWith409(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	_, _ = doRequest(t, mux, http.MethodPost, "/api/v1/sessions",
		createSessionRequest{SessionID: "api-advance-1"})
	rec, envelope := doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions/api-advance-1/advance",
		advanceRequest{TargetPhase: "voting"},
	)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, envelope.Message, "cannot transition")
	// The permitted successor works
	rec, _ = doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions/api-advance-1/advance",
		advanceRequest{TargetPhase: "rollcall"},
	)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	rec, envelope := doRequest(
		t,
		mux,
		http.MethodGet,
		"/api/v1/sessions/no-such-session",
		nil,
	)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, envelope.Code)
}

func TestMalformedBodyIs400(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	req := httptest.NewRequest(
		http.MethodPost,
		"/api/v1/sessions",
		bytes.NewReader([]byte("{not json")),
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoomJoinFlow(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	_, envelope := doRequest(t, mux, http.MethodPost, "/api/v1/rooms",
		createRoomRequest{
			SessionID:       "api-room-1",
			CommitteeName:   "Committee",
			MaxParticipants: 2,
		})
	require.Equal(t, http.StatusOK, envelope.Code)
	room, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	roomID, _ := room["RoomID"].(string)
	require.NotEmpty(t, roomID)
	rec, _ := doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/rooms/"+roomID+"/join",
		joinRoomRequest{UserID: "user-1", Role: "participant"},
	)
	assert.Equal(t, http.StatusOK, rec.Code)
	// Double join is a conflict
	rec, _ = doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/rooms/"+roomID+"/join",
		joinRoomRequest{UserID: "user-1", Role: "participant"},
	)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadAndDownloadDocument(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	content := []byte("position paper content")
	req := httptest.NewRequest(
		http.MethodPost,
		"/api/v1/sessions/api-file-1/files?country_id=FR&name=paper.txt",
		bytes.NewReader(content),
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var envelope result.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	tempFile, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	fileID, _ := tempFile["FileID"].(string)
	require.NotEmpty(t, fileID)
	// Raw bytes come back unchanged
	req = httptest.NewRequest(
		http.MethodGet,
		"/api/v1/sessions/api-file-1/files/"+fileID,
		nil,
	)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestVoteAndTallyFlow(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	sessionID := "api-vote-1"
	_, _ = doRequest(t, mux, http.MethodPost, "/api/v1/sessions",
		createSessionRequest{SessionID: sessionID})
	for _, country := range []string{"FR", "DE", "JP"} {
		rec, _ := doRequest(
			t,
			mux,
			http.MethodPost,
			"/api/v1/sessions/"+sessionID+"/countries",
			selectCountryRequest{CountryID: country, CountryName: country},
		)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions/"+sessionID+"/votes",
		castVoteRequest{CountryID: "FR", FileID: "file-1", VoteResult: "agree"},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions/"+sessionID+"/votes",
		castVoteRequest{CountryID: "DE", FileID: "file-1", VoteResult: "disagree"},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	// Batch ballot for the third delegation
	rec, _ = doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions/"+sessionID+"/votes",
		castVoteRequest{
			CountryID: "JP",
			Votes:     map[string]models.VoteChoice{"file-1": "agree"},
		},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	_, envelope := doRequest(
		t,
		mux,
		http.MethodGet,
		"/api/v1/sessions/"+sessionID+"/tally",
		nil,
	)
	require.Equal(t, http.StatusOK, envelope.Code)
	tally, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	fileTally, ok := tally["file-1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), fileTally["agree"])
	assert.Equal(t, float64(1), fileTally["disagree"])
	// An invalid vote choice is a 400
	rec, _ = doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/sessions/"+sessionID+"/votes",
		castVoteRequest{CountryID: "FR", FileID: "file-1", VoteResult: "yes"},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenIssueAndVerify(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	_, envelope := doRequest(
		t,
		mux,
		http.MethodPost,
		"/api/v1/auth/token",
		issueTokenRequest{UserID: "user-1", Role: "chairman"},
	)
	require.Equal(t, http.StatusOK, envelope.Code)
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)
	req := httptest.NewRequest(
		http.MethodGet,
		"/api/v1/auth/verify",
		nil,
	)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	// A tampered token is a 401
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndRoot(t *testing.T) {
	a := newTestApi(t)
	mux := a.routes()
	rec, _ := doRequest(t, mux, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doRequest(t, mux, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
