// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"testing"

	"github.com/jeranaias/docgenius/internal/model"
)

func TestAppendPreservesOrder(t *testing.T) {
	s := New()

	first := model.NewUserMessage("first")
	second := model.NewAssistantMessage("second")
	third := model.NewUserMessage("third")

	for _, msg := range []*model.Message{first, second, third} {
		if err := s.Append(msg); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("Len = %d, want 3", len(all))
	}
	if all[0].ID != first.ID || all[1].ID != second.ID || all[2].ID != third.ID {
		t.Error("Messages not in insertion order")
	}
}

func TestAppendRejectsEmptyRole(t *testing.T) {
	s := New()

	err := s.Append(&model.Message{ID: "x", Text: "no role"})
	if !errors.Is(err, ErrEmptyRole) {
		t.Errorf("Expected ErrEmptyRole, got %v", err)
	}
	if err := s.Append(nil); !errors.Is(err, ErrEmptyRole) {
		t.Errorf("Expected ErrEmptyRole for nil message, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Rejected append must not grow the log, Len = %d", s.Len())
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := New()
	if err := s.Append(model.NewUserMessage("hello")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	all := s.All()
	all[0] = nil

	if got := s.All()[0]; got == nil {
		t.Error("Mutating the returned slice must not affect the store")
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Append(model.NewUserMessage("a"))
	s.Append(model.NewAssistantMessage("b"))

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", s.Len())
	}
	if s.Last() != nil {
		t.Error("Last after Clear should be nil")
	}
}

func TestOnAppendNotifies(t *testing.T) {
	s := New()

	var got []*model.Message
	s.OnAppend(func(m *model.Message) {
		got = append(got, m)
	})

	msg := model.NewUserMessage("notify me")
	s.Append(msg)

	if len(got) != 1 || got[0].ID != msg.ID {
		t.Errorf("Listener saw %d messages, want the appended one", len(got))
	}
}

func TestNearestUserBefore(t *testing.T) {
	s := New()

	q1 := model.NewUserMessage("question one")
	a1 := model.NewAssistantMessage("answer one")
	q2 := model.NewUserMessage("question two")
	a2 := model.NewErrorMessage("failed")

	for _, msg := range []*model.Message{q1, a1, q2, a2} {
		s.Append(msg)
	}

	if got := s.NearestUserBefore(a2.ID); got == nil || got.ID != q2.ID {
		t.Errorf("NearestUserBefore(a2) = %v, want q2", got)
	}
	if got := s.NearestUserBefore(a1.ID); got == nil || got.ID != q1.ID {
		t.Errorf("NearestUserBefore(a1) = %v, want q1", got)
	}
}

func TestNearestUserBeforeEdgeCases(t *testing.T) {
	s := New()

	// Assistant message with no preceding user message.
	orphan := model.NewAssistantMessage("welcome")
	s.Append(orphan)

	if got := s.NearestUserBefore(orphan.ID); got != nil {
		t.Errorf("Expected nil for orphan assistant message, got %v", got)
	}
	if got := s.NearestUserBefore("unknown-id"); got != nil {
		t.Errorf("Expected nil for unknown ID, got %v", got)
	}
}
