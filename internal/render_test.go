package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPinnedAt(t *testing.T) {
	r := require.New(t)

	// Short transcripts always count as pinned.
	r.True(pinnedAt(0, 10, 5))
	r.True(pinnedAt(0, 10, 10))

	// Exactly at the bottom.
	r.True(pinnedAt(10, 10, 20))
	// Within the slack.
	r.True(pinnedAt(9, 10, 20))
	// Scrolled up past the slack: reading history, do not re-pin.
	r.False(pinnedAt(8, 10, 20))
	r.False(pinnedAt(0, 10, 20))
}

func TestRenderMessageLines(t *testing.T) {
	r := require.New(t)
	at := Timestamp{time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}

	text := Message{ID: 1, Content: "hello", Username: "bob", UserID: 2, CreatedAt: at}
	lines := renderMessageLines(text, 1)
	r.Len(lines, 1)
	r.Contains(lines[0], "[09:30:00]")
	r.Contains(lines[0], "bob")
	r.Contains(lines[0], "hello")

	image := Message{ID: 2, ImageURL: "/static/uploads/x.png", Username: "bob", UserID: 2, CreatedAt: at}
	lines = renderMessageLines(image, 1)
	r.Len(lines, 1)
	r.Contains(lines[0], "[image]")
	r.Contains(lines[0], "/static/uploads/x.png")

	both := Message{ID: 3, Content: "look", ImageURL: "/static/uploads/y.png", Username: "bob", UserID: 2, CreatedAt: at}
	lines = renderMessageLines(both, 1)
	r.Len(lines, 2)
	r.Contains(lines[0], "look")
	r.Contains(lines[1], "[image]")
}
