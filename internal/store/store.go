// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the in-memory, append-only message log for the
// active chat session.
//
// The store guarantees strict insertion order (insertion order is causal
// order) and never mutates an entry after it is appended. Rendering is
// not the store's concern: registered listeners are notified on append
// and the presentation layer reads the log back out.
package store

import (
	"errors"
	"sync"

	"github.com/jeranaias/docgenius/internal/model"
)

// ErrEmptyRole is returned when a message without a role is appended.
var ErrEmptyRole = errors.New("message role must not be empty")

// Listener is called after a message has been appended to the log.
type Listener func(*model.Message)

// MessageStore is an ordered, append-only log of session messages.
//
// Safe for concurrent use; the chat orchestrator and the UI event loop
// touch it from different goroutines.
type MessageStore struct {
	mu        sync.RWMutex
	messages  []*model.Message
	listeners []Listener
}

// New creates an empty message store.
func New() *MessageStore {
	return &MessageStore{
		messages: make([]*model.Message, 0),
	}
}

// Append adds a message to the end of the log and notifies listeners.
// The only validation is a non-empty role.
func (s *MessageStore) Append(msg *model.Message) error {
	if msg == nil || msg.Role == "" {
		return ErrEmptyRole
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
	return nil
}

// All returns the messages in insertion order. The returned slice is a
// copy; the entries themselves are shared and must not be mutated.
func (s *MessageStore) All() []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message, or nil if the log is empty.
func (s *MessageStore) Last() *model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

// Clear removes all messages from the log.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]*model.Message, 0)
}

// OnAppend registers a listener invoked for every appended message.
// Listeners run on the appending goroutine and should return quickly.
func (s *MessageStore) OnAppend(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// NearestUserBefore locates the closest user message preceding the
// message with the given ID, walking backward through the ordered log.
// Returns nil if the ID is unknown or no user message precedes it.
//
// This is the index-based replacement for scanning rendered siblings:
// retry/regenerate resolves its question text through the log itself.
func (s *MessageStore) NearestUserBefore(id string) *model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := -1
	for i, msg := range s.messages {
		if msg.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	for i := idx - 1; i >= 0; i-- {
		if s.messages[i].Role == model.RoleUser {
			return s.messages[i]
		}
	}
	return nil
}
