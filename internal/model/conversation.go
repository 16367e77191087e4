// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is one confirmed question/answer exchange about a document.
//
// A Conversation is only ever created from a successful answer; failed
// exchanges leave no ledger trace. Deletion happens exclusively through
// the ledger's clear-all operation.
type Conversation struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	FileName  string    `json:"file_name"`
	Timestamp time.Time `json:"timestamp"`
}

// NewConversation creates a conversation record with a generated ID.
func NewConversation(question, answer, fileName string) *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Question:  question,
		Answer:    answer,
		FileName:  fileName,
		Timestamp: time.Now(),
	}
}

// =============================================================================
// ACTIVE FILE TYPE
// =============================================================================

// ActiveFile is the document currently selected for questioning.
//
// The chat core does not own this value: it is supplied by the file
// collaborator and read-only here. ExtractedText is the server-side
// extraction result that gets sent along with every question.
type ActiveFile struct {
	ID            string `json:"id,omitempty"`
	FileName      string `json:"file_name"`
	ExtractedText string `json:"extracted_text"`
}

// HasText returns true if the file carries usable extracted text.
func (f *ActiveFile) HasText() bool {
	return f != nil && len(f.ExtractedText) > 0
}
