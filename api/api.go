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

// Package api exposes the session engine over HTTP. Every mutation
// returns the structured result envelope; realtime updates stream over
// server-sent events per room.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/plenum-io/plenum/declaration"
	"github.com/plenum-io/plenum/event"
	"github.com/plenum-io/plenum/identity"
	"github.com/plenum-io/plenum/meeting"
	"github.com/plenum-io/plenum/membership"
	"github.com/plenum-io/plenum/submission"
	"github.com/plenum-io/plenum/voting"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config carries the API server's settings and collaborators.
type Config struct {
	ListenAddress string
	States        *meeting.StateMachine
	Members       *membership.Manager
	Votes         *voting.Engine
	Submissions   *submission.Service
	Declarations  *declaration.Service
	Identity      identity.Provider
	Bus           *event.EventBus
	PromRegistry  *prometheus.Registry
}

// Api is the HTTP API server.
type Api struct {
	config     Config
	logger     *slog.Logger
	httpServer *http.Server
	requests   *prometheus.CounterVec
	mu         sync.Mutex
}

// New creates a new API server instance.
func New(cfg Config, logger *slog.Logger) *Api {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	a := &Api{
		config: cfg,
		logger: logger,
	}
	if cfg.PromRegistry != nil {
		a.requests = promauto.With(cfg.PromRegistry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_requests_total",
				Help: "API requests by route and status class",
			},
			[]string{"route", "status"},
		)
	}
	return a
}

func (a *Api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	if a.config.PromRegistry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(
			a.config.PromRegistry,
			promhttp.HandlerOpts{},
		))
	}
	// Auth
	mux.HandleFunc("POST /api/v1/auth/token", a.handleIssueToken)
	mux.HandleFunc("GET /api/v1/auth/verify", a.handleVerifyToken)
	// Sessions and meeting phases
	mux.HandleFunc("POST /api/v1/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/status", a.handlePhaseStatus)
	mux.HandleFunc("POST /api/v1/sessions/{id}/advance", a.handleAdvance)
	mux.HandleFunc("POST /api/v1/sessions/{id}/lock", a.handleLockPhase)
	mux.HandleFunc("POST /api/v1/sessions/{id}/pause", a.handlePause)
	mux.HandleFunc("POST /api/v1/sessions/{id}/resume", a.handleResume)
	// Rooms
	mux.HandleFunc("POST /api/v1/rooms", a.handleCreateRoom)
	mux.HandleFunc("GET /api/v1/rooms", a.handleListRooms)
	mux.HandleFunc("GET /api/v1/rooms/{roomId}", a.handleGetRoom)
	mux.HandleFunc("POST /api/v1/rooms/{roomId}/join", a.handleJoinRoom)
	mux.HandleFunc("POST /api/v1/rooms/{roomId}/leave", a.handleLeaveRoom)
	mux.HandleFunc("GET /api/v1/rooms/{roomId}/events", a.handleRoomEvents)
	// Countries and participants
	mux.HandleFunc("GET /api/v1/countries", a.handleListCountries)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/countries",
		a.handleSelectCountry,
	)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/participants",
		a.handleParticipants,
	)
	// Roll call
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/rollcall",
		a.handleUpdateRollCall,
	)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/rollcall",
		a.handleRollCallStats,
	)
	mux.HandleFunc(
		"DELETE /api/v1/sessions/{id}/rollcall",
		a.handleClearRollCall,
	)
	// Submissions and files
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/submissions",
		a.handleSubmitPosition,
	)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/submissions",
		a.handleListSubmissions,
	)
	mux.HandleFunc("POST /api/v1/sessions/{id}/files", a.handleUploadFile)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/files/{fileId}",
		a.handleDownloadFile,
	)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/assignments",
		a.handleAssignFile,
	)
	// Voting
	mux.HandleFunc("POST /api/v1/sessions/{id}/votes", a.handleCastVote)
	mux.HandleFunc("GET /api/v1/sessions/{id}/votes", a.handleListVotes)
	mux.HandleFunc("GET /api/v1/sessions/{id}/tally", a.handleTally)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/votes/finalize",
		a.handleFinalizeVoting,
	)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/votes/force-end",
		a.handleForceEnd,
	)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/votes/complete",
		a.handleCompleteVoting,
	)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/passed-files",
		a.handlePassedFiles,
	)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/passed-files/reconcile",
		a.handleReconcile,
	)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/voting-records",
		a.handleVotingRecords,
	)
	// Declaration
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/declaration/generate",
		a.handleGenerateDeclaration,
	)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/declaration/finalize",
		a.handleFinalizeDeclaration,
	)
	mux.HandleFunc(
		"POST /api/v1/sessions/{id}/declaration/confirm",
		a.handleConfirmDeclaration,
	)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/declaration",
		a.handleFinalizedDeclaration,
	)
	mux.HandleFunc(
		"GET /api/v1/sessions/{id}/declaration/history",
		a.handleDeclarationHistory,
	)
	return mux
}

// Start starts the HTTP server in a background goroutine.
func (a *Api) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           a.routes(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}
	a.logger.Info("API listener started on " + a.config.ListenAddress)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()
		if srv != nil {
			a.logger.Debug("context cancelled, shutting down API server")
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (a *Api) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()
	if srv != nil {
		a.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown API server: %w", err)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// detected immediately, then serves in a background goroutine.
func (a *Api) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

func (a *Api) countRequest(route string, status int) {
	if a.requests == nil {
		return
	}
	a.requests.WithLabelValues(
		route,
		fmt.Sprintf("%dxx", status/100),
	).Inc()
}
