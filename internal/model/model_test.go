// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
)

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("What is this document about?")

	if msg.ID == "" {
		t.Error("Expected generated ID")
	}
	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.Text != "What is this document about?" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Expected non-zero timestamp")
	}
	if msg.IsError {
		t.Error("User message should not be marked as error")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("Something went wrong.")

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want %q", msg.Role, RoleAssistant)
	}
	if !msg.IsError {
		t.Error("Expected IsError to be set")
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg := NewAssistantMessage("hi")
		if seen[msg.ID] {
			t.Fatalf("Duplicate message ID %q", msg.ID)
		}
		seen[msg.ID] = true
	}
}

func TestMessagePreview(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"short text unchanged", "hello", 10, "hello"},
		{"long text truncated", "hello world", 8, "hello..."},
		{"exact length unchanged", "hello", 5, "hello"},
		{"unicode safe", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewUserMessage(tt.text)
			if got := msg.Preview(tt.maxLen); got != tt.want {
				t.Errorf("Preview(%d) = %q, want %q", tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestRoleDisplayName(t *testing.T) {
	if got := RoleUser.DisplayName(); got != "You" {
		t.Errorf("RoleUser.DisplayName() = %q, want You", got)
	}
	if got := RoleAssistant.DisplayName(); got != "Assistant" {
		t.Errorf("RoleAssistant.DisplayName() = %q, want Assistant", got)
	}
}

func TestNewConversation(t *testing.T) {
	conv := NewConversation("What is it?", "A report.", "report.pdf")

	if conv.ID == "" {
		t.Error("Expected generated ID")
	}
	if conv.Question != "What is it?" || conv.Answer != "A report." {
		t.Errorf("Unexpected fields: %+v", conv)
	}
	if conv.FileName != "report.pdf" {
		t.Errorf("FileName = %q, want report.pdf", conv.FileName)
	}
	if conv.Timestamp.IsZero() {
		t.Error("Expected non-zero timestamp")
	}
}

func TestActiveFileHasText(t *testing.T) {
	var nilFile *ActiveFile
	if nilFile.HasText() {
		t.Error("nil file should not have text")
	}

	empty := &ActiveFile{FileName: "a.txt"}
	if empty.HasText() {
		t.Error("empty extraction should not count as text")
	}

	full := &ActiveFile{FileName: "a.txt", ExtractedText: "content"}
	if !full.HasText() {
		t.Error("expected HasText for populated file")
	}
}
