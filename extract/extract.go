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

// Package extract defines the document text extraction collaborator used
// by the submission service. Extraction is pluggable so richer document
// formats can be supported without touching submission logic.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Extractor pulls display text out of an uploaded document.
type Extractor interface {
	// Extract returns the text content of the document. Returning an
	// error marks the document as submitted without extractable text.
	Extract(fileName string, data []byte) (string, error)
}

// PlainText extracts text from plain-text documents. Binary content is
// rejected rather than garbled.
type PlainText struct{}

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (p *PlainText) Extract(fileName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf(
			"document %s is not valid text",
			fileName,
		)
	}
	text := string(data)
	// Normalize line endings and strip a UTF-8 BOM if present
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
