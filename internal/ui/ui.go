// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the Bubble Tea terminal interface for docgenius:
// a chat transcript over the active document, a file picker, and the
// conversation history view.
package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/docgenius/internal/chat"
	"github.com/jeranaias/docgenius/internal/files"
	"github.com/jeranaias/docgenius/internal/ledger"
	"github.com/jeranaias/docgenius/internal/model"
	"github.com/jeranaias/docgenius/internal/storage"
	"github.com/jeranaias/docgenius/internal/store"
	"github.com/jeranaias/docgenius/internal/ui/styles"
)

// =============================================================================
// ACTIVE FILE HOLDER
// =============================================================================

// ActiveFileHolder shares the selected document between the UI and the
// chat orchestrator. The orchestrator reads it through Get at submit
// time; the UI writes it when the user picks a file.
type ActiveFileHolder struct {
	mu   sync.RWMutex
	file *model.ActiveFile
}

// Set replaces the active file.
func (h *ActiveFileHolder) Set(f *model.ActiveFile) {
	h.mu.Lock()
	h.file = f
	h.mu.Unlock()
}

// Get returns the active file, or nil when none is selected.
func (h *ActiveFileHolder) Get() *model.ActiveFile {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.file
}

// =============================================================================
// MODEL
// =============================================================================

// view identifies which screen is showing.
type view int

const (
	viewChat view = iota
	viewFiles
	viewHistory
)

// Model is the Bubble Tea model for the docgenius client.
type Model struct {
	// Collaborators
	orch       *chat.Orchestrator
	store      *store.MessageStore
	ledger     *ledger.Ledger
	fileClient *files.Client
	activeFile *ActiveFileHolder

	// Styling
	theme    *styles.Theme
	renderer *glamour.TermRenderer

	// UI components
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	// State
	mode           view
	awaiting       bool
	confirmClear   bool
	status         string
	width          int
	height         int
	ready          bool
	showTimestamps bool

	// File picker
	fileList   []storage.FileMeta
	fileCursor int

	// History
	history []*model.Conversation
}

// Options configures the UI model.
type Options struct {
	Orchestrator   *chat.Orchestrator
	Store          *store.MessageStore
	Ledger         *ledger.Ledger
	FileClient     *files.Client
	ActiveFile     *ActiveFileHolder
	ShowTimestamps bool
	Theme          string
}

// New creates the chat UI model.
func New(opts Options) Model {
	theme := styles.New(opts.Theme)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your document..."
	ti.CharLimit = 1000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		orch:           opts.Orchestrator,
		store:          opts.Store,
		ledger:         opts.Ledger,
		fileClient:     opts.FileClient,
		activeFile:     opts.ActiveFile,
		theme:          theme,
		input:          ti,
		spinner:        sp,
		mode:           viewChat,
		showTimestamps: opts.ShowTimestamps,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistoryCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if !m.awaiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerMsg:
		m.awaiting = false
		if msg.err != nil {
			m.status = m.theme.ErrorText.Render(msg.err.Error())
		} else {
			m.status = ""
		}
		m.refreshTranscript()
		return m, nil

	case filesLoadedMsg:
		if msg.err != nil {
			m.status = m.theme.ErrorText.Render("failed to load files: " + msg.err.Error())
			m.mode = viewChat
			return m, nil
		}
		m.fileList = msg.metas
		m.fileCursor = 0
		m.mode = viewFiles
		return m, nil

	case fileChosenMsg:
		if msg.err != nil {
			m.status = m.theme.ErrorText.Render("failed to fetch file: " + msg.err.Error())
		} else {
			m.activeFile.Set(msg.file)
			m.status = ""
		}
		m.mode = viewChat
		return m, nil

	case historyLoadedMsg:
		if msg.err != nil {
			m.status = m.theme.Warning.Render("history unavailable: " + msg.err.Error())
		}
		m.history = msg.convs
		return m, nil

	case historyClearedMsg:
		if msg.err != nil {
			m.status = m.theme.ErrorText.Render("failed to clear history: " + msg.err.Error())
		} else {
			m.history = nil
			m.status = "History cleared."
		}
		m.refreshTranscript()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	chromeHeight := 5 // title, input, status bar
	if !m.ready {
		m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - chromeHeight
	}
	m.input.Width = msg.Width - 4

	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(msg.Width-2, 100)),
	); err == nil {
		m.renderer = r
	}

	m.refreshTranscript()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case viewFiles:
		return m.handleFilesKey(msg)
	case viewHistory:
		return m.handleHistoryKey(msg)
	}
	return m.handleChatKey(msg)
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		question := strings.TrimSpace(m.input.Value())
		if question == "" || m.awaiting {
			return m, nil
		}
		if m.activeFile.Get() == nil {
			m.status = m.theme.Warning.Render("Pick a document first (ctrl+f).")
			return m, nil
		}
		m.input.Reset()
		m.awaiting = true
		m.status = ""
		m.refreshTranscript()
		return m, tea.Batch(m.spinner.Tick, m.submitCmd(question))

	case tea.KeyCtrlF:
		return m, m.loadFilesCmd()

	case tea.KeyCtrlH:
		m.mode = viewHistory
		return m, m.loadHistoryCmd()

	case tea.KeyCtrlR:
		if m.awaiting {
			return m, nil
		}
		if id := m.lastErrorMessageID(); id != "" {
			m.awaiting = true
			m.refreshTranscript()
			return m, tea.Batch(m.spinner.Tick, m.retryCmd(id))
		}
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil
	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleFilesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = viewChat
		return m, nil
	case "up", "k":
		if m.fileCursor > 0 {
			m.fileCursor--
		}
		return m, nil
	case "down", "j":
		if m.fileCursor < len(m.fileList)-1 {
			m.fileCursor++
		}
		return m, nil
	case "enter":
		if len(m.fileList) == 0 {
			m.mode = viewChat
			return m, nil
		}
		return m, m.chooseFileCmd(m.fileList[m.fileCursor].ID)
	}
	return m, nil
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clearing history is irreversible, so the first press of "c" only
	// arms the prompt; nothing is deleted until the user confirms.
	if m.confirmClear {
		m.confirmClear = false
		switch msg.String() {
		case "y", "Y":
			return m, m.clearHistoryCmd()
		case "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q":
		m.mode = viewChat
		m.refreshTranscript()
		return m, nil
	case "c":
		m.confirmClear = true
		return m, nil
	}
	return m, nil
}

// lastErrorMessageID returns the ID of the most recent failed assistant
// message, or "" when the transcript holds none.
func (m Model) lastErrorMessageID() string {
	msgs := m.store.All()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsError {
			return msgs[i].ID
		}
	}
	return ""
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
