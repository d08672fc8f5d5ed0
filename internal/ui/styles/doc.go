// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the color palette and lipgloss styles of the
terminal client.

All colors are lipgloss AdaptiveColor values, so they follow the terminal's
light or dark background. A Theme binds the styles to one output and one
color profile; termenv.Ascii yields plain text.

# Usage

	theme := styles.NewTheme(os.Stdout, termenv.ANSI256)
	fmt.Println(theme.RenderWarning("Failed to save message"))

Status helpers always include a text indicator ([OK], [X], [!], [i]) so the
meaning survives without color.
*/
package styles
