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

// Package submission manages position papers and document uploads. Each
// country submits at most once per session; raw document bytes go to the
// blob store while metadata and extracted text stay relational.
package submission

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plenum-io/plenum/database"
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/event"
	"github.com/plenum-io/plenum/extract"
	"github.com/plenum-io/plenum/result"
	"gorm.io/gorm"
)

type Service struct {
	router    *database.Router
	bus       *event.EventBus
	extractor extract.Extractor
	logger    *slog.Logger
}

func NewService(
	router *database.Router,
	bus *event.EventBus,
	extractor extract.Extractor,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if extractor == nil {
		extractor = extract.NewPlainText()
	}
	return &Service{
		router:    router,
		bus:       bus,
		extractor: extractor,
		logger:    logger.With("component", "submission"),
	}
}

// UploadDocument stores an uploaded document: raw bytes in the blob
// store, metadata in the uploaded-file record. The returned record
// carries the generated file id used for later voting and resolution.
func (s *Service) UploadDocument(
	sessionID string,
	countryID string,
	originalName string,
	data []byte,
) (*models.TempFile, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	if len(data) == 0 {
		return nil, result.NewValidationError("file", "must not be empty")
	}
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	fileID := uuid.NewString()
	if err := store.Blob().PutDocument(sessionID, fileID, data); err != nil {
		return nil, result.NewInternalError("failed to store document", err)
	}
	tempFile := models.TempFile{
		FileID:       fileID,
		SessionID:    sessionID,
		CountryID:    countryID,
		FileName:     fileID + "_" + originalName,
		OriginalName: originalName,
		Size:         int64(len(data)),
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateTempFile(&tempFile); err != nil {
		return nil, result.NewInternalError(
			"failed to record uploaded file",
			err,
		)
	}
	s.logger.Info(
		"document uploaded",
		"session_id", sessionID,
		"file_id", fileID,
		"size", len(data),
	)
	s.broadcast(sessionID, map[string]any{
		"session_id": sessionID,
		"country_id": countryID,
		"file_id":    fileID,
		"action":     "uploaded",
	})
	return &tempFile, nil
}

// SubmitPosition records a country's position paper for the session. The
// text is either supplied directly or extracted from a previously
// uploaded document referenced by fileID. A second submission by the
// same country is a conflict; the first submission stays untouched.
func (s *Service) SubmitPosition(
	sessionID string,
	countryID string,
	fileID string,
	fileName string,
	text string,
) (*models.Submission, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	if countryID == "" {
		return nil, result.NewValidationError(
			"country_id",
			"must not be empty",
		)
	}
	if text == "" && fileID == "" {
		return nil, result.NewValidationError(
			"text",
			"either text or file_id is required",
		)
	}
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	// Pull text out of the uploaded document when none was supplied
	if text == "" {
		data, err := store.Blob().GetDocument(sessionID, fileID)
		if err != nil {
			if errors.Is(err, database.ErrBlobNotFound) {
				return nil, result.NewNotFoundError("file", fileID)
			}
			return nil, result.NewInternalError(
				"failed to load document",
				err,
			)
		}
		extracted, err := s.extractor.Extract(fileName, data)
		if err != nil {
			s.logger.Warn(
				"text extraction failed, submitting without text",
				"session_id", sessionID,
				"file_id", fileID,
				"error", err,
			)
		} else {
			text = extracted
		}
	}
	submission := models.Submission{
		SessionID: sessionID,
		CountryID: countryID,
		FileID:    fileID,
		FileName:  fileName,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateSubmission(&submission); err != nil {
		if errors.Is(err, database.ErrDuplicateSubmission) {
			return nil, result.NewConflictError(
				"country %s already submitted for session %s",
				countryID,
				sessionID,
			)
		}
		return nil, result.NewInternalError(
			"failed to record submission",
			err,
		)
	}
	s.logger.Info(
		"position submitted",
		"session_id", sessionID,
		"country_id", countryID,
		"file_id", fileID,
	)
	s.broadcast(sessionID, map[string]any{
		"session_id": sessionID,
		"country_id": countryID,
		"file_id":    fileID,
		"action":     "submitted",
	})
	return &submission, nil
}

// GetSubmission returns a country's submission for the session.
func (s *Service) GetSubmission(
	sessionID, countryID string,
) (*models.Submission, error) {
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	submission, err := store.GetSubmission(sessionID, countryID)
	if err != nil {
		if errors.Is(err, database.ErrSubmissionNotFound) {
			return nil, result.NewNotFoundError("submission", countryID)
		}
		return nil, result.NewInternalError(
			"failed to load submission",
			err,
		)
	}
	return submission, nil
}

// ListSubmissions returns all submissions for the session in submission
// order.
func (s *Service) ListSubmissions(
	sessionID string,
) ([]models.Submission, error) {
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	submissions, err := store.ListSubmissions(sessionID)
	if err != nil {
		return nil, result.NewInternalError(
			"failed to list submissions",
			err,
		)
	}
	return submissions, nil
}

// Document returns the raw bytes of an uploaded document.
func (s *Service) Document(
	sessionID, fileID string,
) ([]byte, error) {
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	data, err := store.Blob().GetDocument(sessionID, fileID)
	if err != nil {
		if errors.Is(err, database.ErrBlobNotFound) {
			return nil, result.NewNotFoundError("file", fileID)
		}
		return nil, result.NewInternalError("failed to load document", err)
	}
	return data, nil
}

// ListUploads returns the uploaded-file records for the session.
func (s *Service) ListUploads(
	sessionID string,
) ([]models.TempFile, error) {
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	tempFiles, err := store.ListTempFiles(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to list uploads", err)
	}
	return tempFiles, nil
}

// AssignFile records a chairman assignment of a file to a country,
// putting the file in play for voting without a direct upload.
func (s *Service) AssignFile(
	sessionID string,
	fileID string,
	countryID string,
	fileName string,
	originalName string,
) (*models.FileAssignment, error) {
	if sessionID == "" {
		return nil, result.NewValidationError(
			"session_id",
			"must not be empty",
		)
	}
	if fileID == "" {
		return nil, result.NewValidationError("file_id", "must not be empty")
	}
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	assignment := models.FileAssignment{
		SessionID:    sessionID,
		FileID:       fileID,
		CountryID:    countryID,
		FileName:     fileName,
		OriginalName: originalName,
		AssignedAt:   time.Now().UTC(),
	}
	if err := store.UpsertFileAssignment(&assignment); err != nil {
		return nil, result.NewInternalError(
			"failed to record assignment",
			err,
		)
	}
	s.broadcast(sessionID, map[string]any{
		"session_id": sessionID,
		"country_id": countryID,
		"file_id":    fileID,
		"action":     "assigned",
	})
	return &assignment, nil
}

// Upload returns the uploaded-file record for a file id.
func (s *Service) Upload(
	sessionID, fileID string,
) (*models.TempFile, error) {
	store, err := s.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	tempFile, err := store.GetTempFile(sessionID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, result.NewNotFoundError("file", fileID)
		}
		return nil, result.NewInternalError("failed to load upload", err)
	}
	return tempFile, nil
}

func (s *Service) broadcast(sessionID string, payload any) {
	if s.bus == nil {
		return
	}
	roomID := sessionID
	if room, err := s.router.Shared().GetRoomBySession(sessionID); err == nil {
		roomID = room.RoomID
	}
	s.bus.PublishAsync(
		roomID,
		event.NewEvent(roomID, event.EventTypeSubmission, payload),
	)
}
