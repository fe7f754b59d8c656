package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

// bottomSlackLines is how close to the bottom the transcript may sit and
// still count as pinned. Appends re-pin only in that case, so a reader who
// has scrolled up to read history is never yanked back down.
const bottomSlackLines = 1

// transcriptPinned captures whether the viewport is at (or within the slack
// of) the bottom. Call it before appending, apply GotoBottom after when it
// held.
func transcriptPinned(vp viewport.Model) bool {
	return pinnedAt(vp.YOffset, vp.Height, vp.TotalLineCount())
}

func pinnedAt(offset, height, total int) bool {
	if total <= height {
		return true
	}
	return offset+height >= total-bottomSlackLines
}

// renderMessageLines turns one message into transcript lines. Ownership
// styling comes from comparing the author to the session user; an image
// message gets its own line wired to the open-image action, and a message
// carrying both text and an image renders both.
func renderMessageLines(msg Message, ownUserID int64) []string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", msg.CreatedAt.Format("15:04:05")))

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(msg.Username))
	if msg.UserID == ownUserID {
		nameStyle = ownUserStyle
	}
	name := nameStyle.Render(msg.Username)

	var lines []string
	if msg.HasText() {
		body := messageBodyStyle.Render(strings.ReplaceAll(msg.Content, "\n", "\n   "))
		lines = append(lines, fmt.Sprintf("%s %s: %s", timestamp, name, body))
	}
	if msg.HasImage() {
		tag := imageTagStyle.Render("[image]")
		lines = append(lines, fmt.Sprintf("%s %s: %s %s", timestamp, name, tag, imageURLStyle.Render(msg.ImageURL)))
	}
	return lines
}
