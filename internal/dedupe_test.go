package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func msgs(ids ...int64) []Message {
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, Message{ID: id, Content: "m"})
	}
	return out
}

func msgIDs(messages []Message) []int64 {
	out := make([]int64, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestFilterNewOverlappingWindows(t *testing.T) {
	r := require.New(t)
	deduper := NewMessageDeduper()

	// Each poll returns the full history, so consecutive results overlap
	// almost entirely. Only the unseen tail may come through.
	first := deduper.FilterNew(msgs(1, 2, 3))
	r.Equal([]int64{1, 2, 3}, msgIDs(first))

	second := deduper.FilterNew(msgs(1, 2, 3, 4, 5))
	r.Equal([]int64{4, 5}, msgIDs(second))

	third := deduper.FilterNew(msgs(1, 2, 3, 4, 5))
	r.Empty(third)
	r.Equal(5, deduper.SeenCount())
}

func TestFilterNewPreservesOrder(t *testing.T) {
	r := require.New(t)
	deduper := NewMessageDeduper()
	deduper.FilterNew(msgs(2))

	fresh := deduper.FilterNew(msgs(1, 2, 3))
	r.Equal([]int64{1, 3}, msgIDs(fresh))
}

func TestResetForgetsEverything(t *testing.T) {
	r := require.New(t)
	deduper := NewMessageDeduper()
	deduper.FilterNew(msgs(1, 2, 3))
	deduper.Reset()
	r.Zero(deduper.SeenCount())

	// After a reset the same ids render again. Correct for a room switch:
	// the transcript was wiped, so nothing is duplicated on screen.
	fresh := deduper.FilterNew(msgs(1, 2, 3))
	r.Equal([]int64{1, 2, 3}, msgIDs(fresh))
}
