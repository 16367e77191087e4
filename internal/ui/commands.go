// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/docgenius/internal/model"
	"github.com/jeranaias/docgenius/internal/storage"
)

// requestTimeout bounds the slower UI-triggered operations; the
// dispatcher applies its own retry budget inside this window.
const requestTimeout = 5 * time.Minute

// =============================================================================
// MESSAGES
// =============================================================================

type answerMsg struct {
	message *model.Message
	err     error
}

type filesLoadedMsg struct {
	metas []storage.FileMeta
	err   error
}

type fileChosenMsg struct {
	file *model.ActiveFile
	err  error
}

type historyLoadedMsg struct {
	convs []*model.Conversation
	err   error
}

type historyClearedMsg struct {
	err error
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) submitCmd(question string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msg, err := orch.Submit(ctx, question)
		return answerMsg{message: msg, err: err}
	}
}

func (m Model) retryCmd(assistantMessageID string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msg, err := orch.Retry(ctx, assistantMessageID)
		return answerMsg{message: msg, err: err}
	}
}

func (m Model) loadFilesCmd() tea.Cmd {
	client := m.fileClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		metas, err := client.List(ctx)
		return filesLoadedMsg{metas: metas, err: err}
	}
}

func (m Model) chooseFileCmd(id string) tea.Cmd {
	client := m.fileClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		file, err := client.Fetch(ctx, id)
		return fileChosenMsg{file: file, err: err}
	}
}

func (m Model) loadHistoryCmd() tea.Cmd {
	led := m.ledger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		convs, err := led.Load(ctx)
		return historyLoadedMsg{convs: convs, err: err}
	}
}

func (m Model) clearHistoryCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return historyClearedMsg{err: orch.ClearAll(ctx)}
	}
}
