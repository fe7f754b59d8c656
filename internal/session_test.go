package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionSelection(t *testing.T) {
	r := require.New(t)
	session := NewRoomSession()

	r.False(session.Selected())
	r.False(session.Accepts(1))

	session.Select(1)
	r.True(session.Selected())
	r.Equal(int64(1), session.ActiveRoomID())
	r.True(session.Accepts(1))
	r.False(session.Accepts(2))
}

func TestAbsorbDropsStaleResults(t *testing.T) {
	r := require.New(t)
	session := NewRoomSession()
	session.Select(1)

	// A fetch issued for room 1 lands after the user moved to room 2. The
	// result must vanish; the most recent switch wins.
	session.Select(2)
	r.Empty(session.Absorb(1, msgs(10, 11)))

	fresh := session.Absorb(2, msgs(20, 21))
	r.Equal([]int64{20, 21}, msgIDs(fresh))
}

func TestSwitchResetsDedupSet(t *testing.T) {
	r := require.New(t)
	session := NewRoomSession()

	session.Select(1)
	r.Len(session.Absorb(1, msgs(1, 2)), 2)
	r.Empty(session.Absorb(1, msgs(1, 2)))

	// Leaving and returning replays the full history into a wiped
	// transcript, so previously seen ids render again.
	session.Select(2)
	session.Select(1)
	r.Len(session.Absorb(1, msgs(1, 2)), 2)
}
