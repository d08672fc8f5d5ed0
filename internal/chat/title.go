// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigchat/internal/util"
)

// MaxTitleRunes bounds a generated session title.
const MaxTitleRunes = 50

// DefaultTitle names sessions created without a first message.
const DefaultTitle = "New chat"

// TitleFromMessage derives a session title from the first user message:
// NFC-normalized, flattened to one line and truncated to MaxTitleRunes.
func TitleFromMessage(msg string) string {
	title := util.FlattenLines(norm.NFC.String(msg))
	if title == "" {
		return DefaultTitle
	}
	return util.TruncateRunes(title, MaxTitleRunes)
}
