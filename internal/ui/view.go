// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/jeranaias/docgenius/internal/model"
	"github.com/jeranaias/docgenius/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Starting docgenius..."
	}

	switch m.mode {
	case viewFiles:
		return m.filesView()
	case viewHistory:
		return m.historyView()
	}
	return m.chatView()
}

// =============================================================================
// CHAT VIEW
// =============================================================================

func (m Model) chatView() string {
	var b strings.Builder

	b.WriteString(m.theme.Title.Render("DocGenius"))
	if f := m.activeFile.Get(); f != nil {
		b.WriteString("  ")
		b.WriteString(m.theme.ActiveFile.Render("📄 " + f.FileName))
	}
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.awaiting {
		b.WriteString(m.spinner.View())
		b.WriteString(m.theme.Timestamp.Render(" thinking..."))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	b.WriteString(m.statusBar())
	return b.String()
}

func (m Model) statusBar() string {
	if m.status != "" {
		return m.theme.StatusBar.Width(m.width).Render(m.status)
	}
	hints := strings.Join([]string{
		m.theme.KeyHint.Render("enter") + " ask",
		m.theme.KeyHint.Render("ctrl+f") + " files",
		m.theme.KeyHint.Render("ctrl+h") + " history",
		m.theme.KeyHint.Render("ctrl+r") + " retry",
		m.theme.KeyHint.Render("ctrl+c") + " quit",
	}, "  ")
	return m.theme.StatusBar.Width(m.width).Render(hints)
}

// refreshTranscript re-renders the message transcript into the viewport
// and scrolls to the bottom.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	msgs := m.store.All()
	if len(msgs) == 0 {
		return m.theme.Timestamp.Render("\n  Upload a document and ask away.\n")
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg *model.Message) string {
	label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	if msg.Role == model.RoleUser {
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	}
	if m.showTimestamps {
		label += " " + m.theme.Timestamp.Render(msg.Timestamp.Local().Format("15:04"))
	}

	body := msg.Text
	switch {
	case msg.IsError:
		body = m.theme.ErrorText.Render(body)
	case msg.Role == model.RoleAssistant && m.renderer != nil:
		if rendered, err := m.renderer.Render(body); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}

	return label + "\n" + body + "\n"
}

// =============================================================================
// FILE PICKER VIEW
// =============================================================================

func (m Model) filesView() string {
	var b strings.Builder
	b.WriteString(m.theme.ListHeader.Render("Documents"))
	b.WriteString("\n")

	if len(m.fileList) == 0 {
		b.WriteString(m.theme.Timestamp.Render("  No documents uploaded yet.\n"))
	}
	for i, meta := range m.fileList {
		line := fmt.Sprintf("%s  %s · %d words",
			meta.FileName,
			util.TruncateRunes(strings.ReplaceAll(meta.Preview, "\n", " "), 48),
			meta.WordCount,
		)
		if i == m.fileCursor {
			b.WriteString(m.theme.ListSelected.Render("❯ " + line))
		} else {
			b.WriteString(m.theme.ListItem.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.StatusBar.Width(m.width).Render(
		m.theme.KeyHint.Render("enter") + " select  " +
			m.theme.KeyHint.Render("esc") + " back"))
	return b.String()
}

// =============================================================================
// HISTORY VIEW
// =============================================================================

func (m Model) historyView() string {
	var b strings.Builder
	b.WriteString(m.theme.ListHeader.Render("Conversation History"))
	b.WriteString("\n")

	if len(m.history) == 0 {
		b.WriteString(m.theme.Timestamp.Render("  No conversations yet.\n"))
	}
	for _, conv := range m.history {
		header := conv.Timestamp.Local().Format("2006-01-02 15:04")
		if conv.FileName != "" {
			header += " · " + conv.FileName
		}
		b.WriteString(m.theme.Timestamp.Render(header))
		b.WriteString("\n")
		b.WriteString(m.theme.UserLabel.Render("Q: "))
		b.WriteString(util.TruncateRunes(conv.Question, 100))
		b.WriteString("\n")
		b.WriteString(m.theme.AssistantLabel.Render("A: "))
		b.WriteString(util.TruncateRunes(strings.ReplaceAll(conv.Answer, "\n", " "), 200))
		b.WriteString("\n\n")
	}

	footer := m.theme.KeyHint.Render("c") + " clear all  " +
		m.theme.KeyHint.Render("esc") + " back"
	if m.confirmClear {
		footer = m.theme.Warning.Render("Delete all conversation history? This cannot be undone.") +
			"  " + m.theme.KeyHint.Render("y") + " confirm  " +
			m.theme.KeyHint.Render("any key") + " cancel"
	}
	b.WriteString(m.theme.StatusBar.Width(m.width).Render(footer))
	return b.String()
}
