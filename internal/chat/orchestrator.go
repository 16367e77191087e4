// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the request lifecycle for the document Q&A session.
//
// The orchestrator validates preconditions, drives the dispatcher,
// updates the message store and the conversation ledger, and manages the
// single awaiting-response flag the UI renders as a typing indicator.
// Past precondition checks it never surfaces raw errors: every dispatch
// outcome, success or failure, resolves into exactly one rendered
// assistant message.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jeranaias/docgenius/internal/dispatch"
	"github.com/jeranaias/docgenius/internal/ledger"
	"github.com/jeranaias/docgenius/internal/model"
	"github.com/jeranaias/docgenius/internal/store"
)

// =============================================================================
// STATE
// =============================================================================

// State is the orchestrator's lifecycle state.
type State int

const (
	// StateIdle accepts new submissions.
	StateIdle State = iota

	// StateAwaitingResponse has one request in flight; submissions and
	// retries are rejected until the exchange resolves.
	StateAwaitingResponse
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// Precondition errors, rejected before any message is created or any
// network activity starts.
var (
	ErrNoActiveFile  = errors.New("no document selected")
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrBusy          = errors.New("a request is already in flight")
)

// Friendly texts for failed exchanges, keyed to the error taxonomy.
// The user never sees raw technical detail.
const (
	errTextRateLimited = "The assistant is receiving too many requests right now. Please wait a moment and try again."
	errTextNetwork     = "Could not reach the assistant. Check your connection and try again."
	errTextService     = "Something went wrong while processing your question. Please try again."
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Dispatcher delivers one question request, absorbing transient faults.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Response, error)
}

// FileSource supplies the currently selected document, or nil when no
// document is selected. Owned by the file collaborator; read-only here.
type FileSource func() *model.ActiveFile

// StateListener observes orchestrator state transitions.
type StateListener func(State)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator coordinates the store, ledger, and dispatcher for one
// chat session. All collaborators are injected at construction.
type Orchestrator struct {
	store      *store.MessageStore
	ledger     *ledger.Ledger
	dispatcher Dispatcher
	files      FileSource

	mu        sync.Mutex
	state     State
	listeners []StateListener
}

// New creates an orchestrator with its injected collaborators.
func New(msgStore *store.MessageStore, led *ledger.Ledger, disp Dispatcher, files FileSource) *Orchestrator {
	return &Orchestrator{
		store:      msgStore,
		ledger:     led,
		dispatcher: disp,
		files:      files,
		state:      StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// OnStateChange registers a listener for state transitions.
func (o *Orchestrator) OnStateChange(fn StateListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// setState transitions the state and notifies listeners.
func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	listeners := o.listeners
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit runs one question/answer exchange.
//
// Preconditions: a document must be selected, the question must not be
// blank, and no other request may be in flight; violations return one of
// the precondition errors with no message created. On acceptance the
// user message is appended synchronously before any network activity.
// The call then blocks through the dispatcher (including its backoff
// waits) and always appends exactly one assistant message: the answer on
// success, or a taxonomy-mapped failure notice with IsError set. The
// ledger records confirmed answers only. The returned message is that
// assistant message.
func (o *Orchestrator) Submit(ctx context.Context, question string) (*model.Message, error) {
	question = strings.TrimSpace(question)

	file := o.files()
	if file == nil || file.FileName == "" {
		return nil, ErrNoActiveFile
	}
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.state = StateAwaitingResponse
	listeners := o.listeners
	o.mu.Unlock()
	for _, fn := range listeners {
		fn(StateAwaitingResponse)
	}
	defer o.setState(StateIdle)

	// The user's message lands in the log before the request leaves.
	if err := o.store.Append(model.NewUserMessage(question)); err != nil {
		return nil, err
	}

	resp, err := o.dispatcher.Dispatch(ctx, dispatch.Request{
		Question:          question,
		ExtractedFileText: file.ExtractedText,
		FileName:          file.FileName,
	})
	if err != nil {
		msg := model.NewErrorMessage(errorText(err))
		o.store.Append(msg)
		return msg, nil
	}

	msg := model.NewAssistantMessage(resp.Answer)
	o.store.Append(msg)
	o.ledger.Record(question, resp.Answer, file.FileName)
	return msg, nil
}

// Retry re-asks the question behind a prior assistant message.
//
// The question is resolved by walking backward through the ordered log
// for the nearest preceding user message. When no such message exists or
// no document is selected, Retry is a silent no-op: the affordance
// simply does nothing, matching the UI contract. A retry while a request
// is in flight is rejected with ErrBusy.
func (o *Orchestrator) Retry(ctx context.Context, assistantMessageID string) (*model.Message, error) {
	userMsg := o.store.NearestUserBefore(assistantMessageID)
	if userMsg == nil {
		return nil, nil
	}
	if file := o.files(); file == nil || file.FileName == "" {
		return nil, nil
	}
	return o.Submit(ctx, userMsg.Text)
}

// ClearAll wipes the conversation ledger and the session message log
// together. Destructive and irreversible; the caller must have obtained
// explicit user confirmation. The message log is only cleared once the
// ledger delete is confirmed, so the history view and the ledger never
// disagree after a clear.
func (o *Orchestrator) ClearAll(ctx context.Context) error {
	if err := o.ledger.ClearAll(ctx); err != nil {
		return err
	}
	o.store.Clear()
	return nil
}

// errorText maps a dispatch failure to the user-facing message text.
func errorText(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrRateLimited):
		return errTextRateLimited
	case errors.Is(err, dispatch.ErrNetwork):
		return errTextNetwork
	default:
		return errTextService
	}
}
