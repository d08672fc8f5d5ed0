// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/ui/styles"
	"github.com/jeranaias/rigchat/internal/util"
)

var (
	// ErrNoSessions is returned when there is nothing to pick from.
	ErrNoSessions = errors.New("no sessions")

	// ErrPickCanceled is returned when the picker is closed without a choice.
	ErrPickCanceled = errors.New("selection canceled")
)

// =============================================================================
// KEY BINDINGS
// =============================================================================

type pickerKeys struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

var defaultPickerKeys = pickerKeys{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("up/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("down/j", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "q", "ctrl+c"),
		key.WithHelp("esc/q", "cancel"),
	),
}

func (k pickerKeys) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Up, k.Down, k.Select, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// =============================================================================
// PICKER MODEL
// =============================================================================

// pickerModel is a bubbletea model listing sessions.
type pickerModel struct {
	theme    *styles.Theme
	keys     pickerKeys
	sessions []session.Session
	current  string
	cursor   int
	width    int

	chosen   string
	canceled bool
}

func newPickerModel(theme *styles.Theme, sessions []session.Session, current string) pickerModel {
	m := pickerModel{
		theme:    theme,
		keys:     defaultPickerKeys,
		sessions: sessions,
		current:  current,
		width:    DefaultWidth,
	}
	for i, s := range sessions {
		if s.ID == current {
			m.cursor = i
			break
		}
	}
	return m
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.sessions)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Select):
			if len(m.sessions) > 0 {
				m.chosen = m.sessions[m.cursor].ID
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Quit):
			m.canceled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.chosen != "" || m.canceled {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.theme.Title.Render("Select a session"))
	sb.WriteString("\n\n")
	titleWidth := max(m.width-12, 10)
	for i, s := range m.sessions {
		title := util.TruncateWidth(util.FlattenLines(s.Title), titleWidth)
		if s.ID == m.current {
			title += m.theme.SessionCurrent.Render(" (current)")
		}
		line := fmt.Sprintf("%2d. %s", i+1, title)
		if i == m.cursor {
			sb.WriteString(m.theme.SessionItemSelected.Render("> " + line))
		} else {
			sb.WriteString(m.theme.SessionItem.Render(line))
		}
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	help := m.keys.help()
	if m.width > 0 {
		help = util.TruncateWidth(help, max(m.width, 10))
	}
	sb.WriteString(m.theme.Dim.Render(help))
	sb.WriteByte('\n')
	return sb.String()
}

// PickSession runs an interactive session picker on in/out and returns the
// chosen session id.
func PickSession(ctx context.Context, theme *styles.Theme, sessions []session.Session, current string, in io.Reader, out io.Writer) (string, error) {
	if len(sessions) == 0 {
		return "", ErrNoSessions
	}
	p := tea.NewProgram(
		newPickerModel(theme, sessions, current),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("session picker: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok || m.chosen == "" {
		return "", ErrPickCanceled
	}
	return m.chosen, nil
}
