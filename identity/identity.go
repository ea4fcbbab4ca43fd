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

// Package identity issues and verifies the bearer tokens that tie HTTP
// clients to their user id and role. Tokens are opaque to clients;
// authorization policy beyond role tagging lives with the callers.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired, or tampered tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID    string
	Role      string
	SessionID string
}

// Provider issues and verifies identity tokens.
type Provider interface {
	IssueToken(claims Claims) (string, error)
	VerifyToken(token string) (*Claims, error)
}

type tokenClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// JWT is the HMAC-signed Provider implementation.
type JWT struct {
	secret []byte
	ttl    time.Duration
}

// NewJWT returns a provider signing tokens with the given secret. A zero
// ttl defaults to 24 hours.
func NewJWT(secret []byte, ttl time.Duration) (*JWT, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWT{
		secret: secret,
		ttl:    ttl,
	}, nil
}

func (j *JWT) IssueToken(claims Claims) (string, error) {
	if claims.UserID == "" {
		return "", errors.New("user id must not be empty")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role:      claims.Role,
		SessionID: claims.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	})
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (j *JWT) VerifyToken(tokenString string) (*Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf(
					"unexpected signing method: %v",
					token.Header["alg"],
				)
			}
			return j.secret, nil
		},
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &Claims{
		UserID:    claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}
