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

// Package declaration generates and finalizes the joint declaration that
// closes a meeting. Drafting is pluggable; the built-in template drafter
// produces deterministic text from the session's passed files so the
// flow works without any external service.
package declaration

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/result"
	"gorm.io/gorm"
)

// DraftInput is everything a drafter may draw on.
type DraftInput struct {
	SessionID     string
	CommitteeName string
	Agenda        string
	Participants  []models.Participant
	PassedFiles   []models.PassedFile
}

// Drafter produces declaration text from the session's voting outcome.
type Drafter interface {
	// Name identifies the drafting method in the stored record.
	Name() string
	Draft(input DraftInput) (string, error)
}

// Template is the deterministic built-in drafter. Identical input always
// produces identical text.
type Template struct{}

func NewTemplate() *Template {
	return &Template{}
}

func (d *Template) Name() string {
	return "template"
}

func (d *Template) Draft(input DraftInput) (string, error) {
	var b strings.Builder
	title := input.CommitteeName
	if title == "" {
		title = "the committee"
	}
	fmt.Fprintf(&b, "Joint Declaration of %s\n\n", title)
	if input.Agenda != "" {
		fmt.Fprintf(&b, "Regarding: %s\n\n", input.Agenda)
	}
	countries := make([]string, 0, len(input.Participants))
	for _, p := range input.Participants {
		if p.Status == models.ParticipantStatusActive {
			countries = append(countries, p.CountryName)
		}
	}
	sort.Strings(countries)
	if len(countries) > 0 {
		fmt.Fprintf(
			&b,
			"The delegations of %s, having convened and voted,\n",
			strings.Join(countries, ", "),
		)
	}
	if len(input.PassedFiles) == 0 {
		b.WriteString("record that no proposal carried a majority.\n")
		return b.String(), nil
	}
	b.WriteString("hereby adopt the following proposals:\n\n")
	files := make([]models.PassedFile, len(input.PassedFiles))
	copy(files, input.PassedFiles)
	sort.Slice(files, func(i, j int) bool {
		return files[i].FileID < files[j].FileID
	})
	for i, file := range files {
		name := file.OriginalName
		if name == "" {
			name = file.FileName
		}
		if name == "" {
			name = file.FileID
		}
		fmt.Fprintf(
			&b,
			"%d. %s (%d in favour, %d against, %d abstentions)\n",
			i+1,
			name,
			file.VoteAgree,
			file.VoteDisagree,
			file.VoteAbstain,
		)
	}
	return b.String(), nil
}

type Service struct {
	router  *database.Router
	drafter Drafter
	logger  *slog.Logger
}

func NewService(
	router *database.Router,
	drafter Drafter,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if drafter == nil {
		drafter = NewTemplate()
	}
	return &Service{
		router:  router,
		drafter: drafter,
		logger:  logger.With("component", "declaration"),
	}
}

// Generate drafts a new declaration from the session's voting outcome
// and stores it as a draft. When the configured drafter fails, the
// deterministic template takes over so generation never blocks the
// meeting.
func (s *Service) Generate(sessionID string) (*models.Declaration, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	store, err := s.router.Resolve(sessionID)
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
	passed, err := store.ListPassedFiles(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list passed files",
			err,
		)
	}
	input := DraftInput{
		SessionID:     sessionID,
		CommitteeName: session.CommitteeName,
		Agenda:        session.Agenda,
		Participants:  session.Participants,
		PassedFiles:   passed,
	}
	method := s.drafter.Name()
	text, err := s.drafter.Draft(input)
	if err != nil {
		s.logger.Warn(
			"drafter failed, falling back to template",
			"session_id", sessionID,
			"drafter", method,
			"error", err,
		)
		fallback := NewTemplate()
		method = fallback.Name()
		text, err = fallback.Draft(input)
		if err != nil {
			return nil, result.NewInternalError(
				"failed to draft declaration",
				err,
			)
		}
	}
	decl := models.Declaration{
		SessionID:   sessionID,
		Text:        text,
		Status:      models.DeclarationStatusDraft,
		Method:      method,
		GeneratedAt: time.Now().UTC(),
	}
	if err := store.CreateDeclaration(&decl); err != nil {
		return nil, result.NewInternalError(
			"failed to store declaration",
			err,
		)
	}
	s.logger.Info(
		"declaration generated",
		"session_id", sessionID,
		"method", method,
		"passed_files", len(passed),
	)
	return &decl, nil
}

// Finalize stores text as the authoritative declaration. Finalizing
// again replaces the previous finalized record, which is demoted back to
// a draft.
func (s *Service) Finalize(
	sessionID string,
	text string,
	participating []string,
) (*models.Declaration, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	if text == "" {
		return nil, result.NewValidationError("text", "must not be empty")
	}
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	decl, err := store.FinalizeDeclaration(
		sessionID,
		text,
		participating,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to finalize declaration",
			err,
		)
	}
	s.logger.Info("declaration finalized", "session_id", sessionID)
	return decl, nil
}

// Confirm records a country's participation in the latest declaration.
// Confirming twice is a no-op.
func (s *Service) Confirm(
	sessionID string,
	countryID string,
) (*models.Declaration, error) {
	if countryID == "" {
		return nil, result.NewValidationError(
			"country_id",
			"must not be empty",
		)
	}
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	decl, err := store.ConfirmParticipation(sessionID, countryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, result.NewNotFoundError("declaration", sessionID)
		}
		return nil, result.NewInternalError(
			"failed to confirm participation",
			err,
		)
	}
	return decl, nil
}

// Finalized returns the authoritative finalized declaration.
func (s *Service) Finalized(
	sessionID string,
) (*models.Declaration, error) {
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	decl, err := store.GetFinalizedDeclaration(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, result.NewNotFoundError(
				"finalized declaration",
				sessionID,
			)
		}
		return nil, result.NewInternalError(
			"failed to load declaration",
			err,
		)
	}
	return decl, nil
}

// History returns the session's declarations, newest first.
func (s *Service) History(
	sessionID string,
) ([]models.Declaration, error) {
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	decls, err := store.ListDeclarations(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list declarations",
			err,
		)
	}
	return decls, nil
}
