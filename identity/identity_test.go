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

package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	provider, err := NewJWT([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	token, err := provider.IssueToken(Claims{
		UserID:    "user-1",
		Role:      "chairman",
		SessionID: "12345",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := provider.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "chairman", claims.Role)
	assert.Equal(t, "12345", claims.SessionID)
}

func TestVerifyRejectsTampered(t *testing.T) {
	provider, err := NewJWT([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	token, err := provider.IssueToken(Claims{UserID: "user-1"})
	require.NoError(t, err)
	_, err = provider.VerifyToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = provider.VerifyToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, err := NewJWT([]byte("secret-a"), time.Hour)
	require.NoError(t, err)
	verifier, err := NewJWT([]byte("secret-b"), time.Hour)
	require.NoError(t, err)
	token, err := issuer.IssueToken(Claims{UserID: "user-1"})
	require.NoError(t, err)
	_, err = verifier.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	provider, err := NewJWT([]byte("test-secret"), time.Nanosecond)
	require.NoError(t, err)
	token, err := provider.IssueToken(Claims{UserID: "user-1"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = provider.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRequiresUser(t *testing.T) {
	provider, err := NewJWT([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	_, err = provider.IssueToken(Claims{})
	assert.Error(t, err)
}

func TestNewJWTRequiresSecret(t *testing.T) {
	_, err := NewJWT(nil, time.Hour)
	assert.Error(t, err)
}
