// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styles used by the terminal client. Every style is bound
// to one lipgloss renderer, so two themes writing to different outputs can
// use different color profiles.
type Theme struct {
	Profile termenv.Profile

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style

	// ==========================================================================
	// MARKUP STYLES
	// ==========================================================================

	Heading  [3]lipgloss.Style
	Strong   lipgloss.Style
	Emphasis lipgloss.Style
	Code     lipgloss.Style
	Bullet   lipgloss.Style

	// ==========================================================================
	// STATUS STYLES
	// ==========================================================================

	Title     lipgloss.Style
	Indicator lipgloss.Style
	Dim       lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Info      lipgloss.Style

	// ==========================================================================
	// SESSION LIST STYLES
	// ==========================================================================

	SessionItem         lipgloss.Style
	SessionItemSelected lipgloss.Style
	SessionCurrent      lipgloss.Style
	SessionMeta         lipgloss.Style
}

// NewTheme builds a theme that renders for w with the given profile.
func NewTheme(w io.Writer, profile termenv.Profile) *Theme {
	r := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	r.SetColorProfile(profile)
	return newTheme(r, profile)
}

func newTheme(r *lipgloss.Renderer, profile termenv.Profile) *Theme {
	t := &Theme{Profile: profile}

	t.UserLabel = r.NewStyle().Bold(true).Foreground(Cyan)
	t.UserText = r.NewStyle().Foreground(TextPrimary)
	t.AssistantLabel = r.NewStyle().Bold(true).Foreground(Purple)

	t.Heading[0] = r.NewStyle().Bold(true).Underline(true).Foreground(Cyan)
	t.Heading[1] = r.NewStyle().Bold(true).Foreground(Cyan)
	t.Heading[2] = r.NewStyle().Bold(true).Foreground(TextSecondary)
	t.Strong = r.NewStyle().Bold(true)
	t.Emphasis = r.NewStyle().Italic(true)
	t.Code = r.NewStyle().Foreground(CodeFg).Background(CodeBg)
	t.Bullet = r.NewStyle().Foreground(Purple)

	t.Title = r.NewStyle().Bold(true).Foreground(Cyan)
	t.Indicator = r.NewStyle().Foreground(Amber)
	t.Dim = r.NewStyle().Foreground(TextMuted)
	t.Success = r.NewStyle().Bold(true).Foreground(Emerald)
	t.Error = r.NewStyle().Bold(true).Foreground(Rose)
	t.Warning = r.NewStyle().Bold(true).Foreground(Amber)
	t.Info = r.NewStyle().Foreground(Cyan)

	t.SessionItem = r.NewStyle().PaddingLeft(2)
	t.SessionItemSelected = r.NewStyle().PaddingLeft(1).Bold(true).Background(SelectionBg)
	t.SessionCurrent = r.NewStyle().Foreground(Emerald)
	t.SessionMeta = r.NewStyle().Foreground(TextMuted)
	return t
}

// Plain returns a theme without any color or attribute.
func Plain(w io.Writer) *Theme {
	return NewTheme(w, termenv.Ascii)
}

// =============================================================================
// STATUS HELPERS
// =============================================================================

// RenderSuccess renders a success message with its indicator.
func (t *Theme) RenderSuccess(msg string) string {
	return t.Success.Render(StatusIndicators.Success + " " + msg)
}

// RenderError renders an error message with its indicator.
func (t *Theme) RenderError(msg string) string {
	return t.Error.Render(StatusIndicators.Error + " " + msg)
}

// RenderWarning renders a warning with its indicator.
func (t *Theme) RenderWarning(msg string) string {
	return t.Warning.Render(StatusIndicators.Warning + " " + msg)
}

// RenderInfo renders an informational message with its indicator.
func (t *Theme) RenderInfo(msg string) string {
	return t.Info.Render(StatusIndicators.Info + " " + msg)
}
