// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ledger maintains the durable record of confirmed
// question/answer exchanges per file.
//
// The ledger is a client of the conversation persistence service plus a
// local most-recent-first cache. History is best-effort, never on the
// critical path: a failed load leaves the chat fully functional with an
// empty history and a logged warning. The only durable write the
// persistence service accepts from here is a full clear — individual
// records are persisted server-side when an answer is produced, so
// Record is a purely optimistic local update.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/docgenius/internal/model"
)

// DefaultTimeout is the per-request timeout for persistence calls.
const DefaultTimeout = 15 * time.Second

// listResponse is the persistence service's GET payload.
type listResponse struct {
	Conversations []*model.Conversation `json:"conversations"`
	Count         int                   `json:"count"`
}

// Ledger caches conversation history backed by the persistence service.
//
// Safe for concurrent use.
type Ledger struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger

	mu    sync.RWMutex
	cache []*model.Conversation
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(l *Ledger) {
		if hc != nil {
			l.httpClient = hc
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a ledger backed by the persistence service at baseURL.
func New(baseURL string, opts ...Option) *Ledger {
	l := &Ledger{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Default(),
		cache:      make([]*model.Conversation, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Load fetches prior conversations, most recent first, and replaces the
// cache. Load fails soft: on any retrieval error the cache is left
// empty, a warning is logged, and the error is returned purely so the
// caller can surface a non-blocking notice.
func (l *Ledger) Load(ctx context.Context) ([]*model.Conversation, error) {
	conversations, err := l.fetch(ctx)
	if err != nil {
		l.logger.Warn("conversation history unavailable", "err", err)
		l.mu.Lock()
		l.cache = make([]*model.Conversation, 0)
		l.mu.Unlock()
		return []*model.Conversation{}, err
	}

	l.mu.Lock()
	l.cache = conversations
	l.mu.Unlock()

	return l.All(), nil
}

func (l *Ledger) fetch(ctx context.Context) ([]*model.Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.baseURL+"/api/conversations", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse conversations: %w", err)
	}
	if payload.Conversations == nil {
		payload.Conversations = make([]*model.Conversation, 0)
	}
	return payload.Conversations, nil
}

// Record prepends a confirmed exchange to the cache and returns it.
// The persistence service stores the record server-side when the answer
// is produced; no confirmation is awaited here. Fields must be
// non-empty, which the orchestrator guarantees by construction.
func (l *Ledger) Record(question, answer, fileName string) *model.Conversation {
	conv := model.NewConversation(question, answer, fileName)

	l.mu.Lock()
	l.cache = append([]*model.Conversation{conv}, l.cache...)
	l.mu.Unlock()

	return conv
}

// ClearAll deletes every stored conversation. Destructive and
// irreversible; the caller owns user confirmation. The cache is only
// dropped once the service confirms the delete.
func (l *Ledger) ClearAll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		l.baseURL+"/api/conversations", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("clear failed with status %d", resp.StatusCode)
	}

	l.mu.Lock()
	l.cache = make([]*model.Conversation, 0)
	l.mu.Unlock()

	l.logger.Info("conversation history cleared")
	return nil
}

// All returns a snapshot of the cached conversations, most recent first.
func (l *Ledger) All() []*model.Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*model.Conversation, len(l.cache))
	copy(out, l.cache)
	return out
}

// Len returns the number of cached conversations.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}
