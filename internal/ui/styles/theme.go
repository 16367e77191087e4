// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the docgenius
// TUI. An explicit "dark" or "light" theme name pins the palette; any
// other name falls back to Lip Gloss AdaptiveColor auto-detection.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// COLORS
// =============================================================================

// Purple - Primary accent, assistant messages
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - Brand color, user highlights, key hints
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - Success states, active file indicator
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - Errors, failed exchanges
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings, transient status
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Overlay - Borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextMuted - Hints, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// PALETTES
// =============================================================================

// palette is the resolved color set a Theme is built from.
type palette struct {
	purple      lipgloss.TerminalColor
	cyan        lipgloss.TerminalColor
	emerald     lipgloss.TerminalColor
	rose        lipgloss.TerminalColor
	amber       lipgloss.TerminalColor
	overlay     lipgloss.TerminalColor
	textPrimary lipgloss.TerminalColor
	textMuted   lipgloss.TerminalColor
}

// paletteFor resolves a configured theme name to a palette. "dark" and
// "light" pin the corresponding side of the adaptive pairs; anything
// else keeps terminal auto-detection.
func paletteFor(name string) palette {
	switch strings.ToLower(name) {
	case "dark":
		return palette{
			purple:      lipgloss.Color(Purple.Dark),
			cyan:        lipgloss.Color(Cyan.Dark),
			emerald:     lipgloss.Color(Emerald.Dark),
			rose:        lipgloss.Color(Rose.Dark),
			amber:       lipgloss.Color(Amber.Dark),
			overlay:     lipgloss.Color(Overlay.Dark),
			textPrimary: lipgloss.Color(TextPrimary.Dark),
			textMuted:   lipgloss.Color(TextMuted.Dark),
		}
	case "light":
		return palette{
			purple:      lipgloss.Color(Purple.Light),
			cyan:        lipgloss.Color(Cyan.Light),
			emerald:     lipgloss.Color(Emerald.Light),
			rose:        lipgloss.Color(Rose.Light),
			amber:       lipgloss.Color(Amber.Light),
			overlay:     lipgloss.Color(Overlay.Light),
			textPrimary: lipgloss.Color(TextPrimary.Light),
			textMuted:   lipgloss.Color(TextMuted.Light),
		}
	}
	return palette{
		purple:      Purple,
		cyan:        Cyan,
		emerald:     Emerald,
		rose:        Rose,
		amber:       Amber,
		overlay:     Overlay,
		textPrimary: TextPrimary,
		textMuted:   TextMuted,
	}
}

// =============================================================================
// THEME
// =============================================================================

// Theme bundles the styles used across the docgenius views.
type Theme struct {
	// Message transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	ErrorText      lipgloss.Style
	Timestamp      lipgloss.Style

	// Chrome
	Title     lipgloss.Style
	StatusBar lipgloss.Style
	KeyHint   lipgloss.Style
	Warning   lipgloss.Style
	Spinner   lipgloss.Style

	// File picker / history
	ListItem     lipgloss.Style
	ListSelected lipgloss.Style
	ListHeader   lipgloss.Style
	ActiveFile   lipgloss.Style
}

// New creates the theme for the given configured name ("dark", "light",
// or "" for terminal auto-detection).
func New(name string) *Theme {
	p := paletteFor(name)
	return &Theme{
		UserLabel: lipgloss.NewStyle().
			Foreground(p.cyan).
			Bold(true),
		AssistantLabel: lipgloss.NewStyle().
			Foreground(p.purple).
			Bold(true),
		ErrorText: lipgloss.NewStyle().
			Foreground(p.rose),
		Timestamp: lipgloss.NewStyle().
			Foreground(p.textMuted),

		Title: lipgloss.NewStyle().
			Foreground(p.purple).
			Bold(true).
			Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(p.textMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(p.overlay),
		KeyHint: lipgloss.NewStyle().
			Foreground(p.cyan),
		Warning: lipgloss.NewStyle().
			Foreground(p.amber),
		Spinner: lipgloss.NewStyle().
			Foreground(p.purple),

		ListItem: lipgloss.NewStyle().
			Foreground(p.textPrimary).
			PaddingLeft(2),
		ListSelected: lipgloss.NewStyle().
			Foreground(p.cyan).
			Bold(true).
			PaddingLeft(0),
		ListHeader: lipgloss.NewStyle().
			Foreground(p.purple).
			Bold(true).
			Padding(0, 0, 1, 0),
		ActiveFile: lipgloss.NewStyle().
			Foreground(p.emerald),
	}
}
