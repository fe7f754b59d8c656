package internal

// RoomSession owns the currently selected room and the transition between
// rooms. There is no cancellation at the transport level: a fetch issued for
// room A keeps running after the user switches to room B, so every fetch
// result is tagged with the room id it was issued for and checked against
// the current selection before it is applied. The most recent switch always
// wins.
type RoomSession struct {
	activeRoomID int64
	deduper      *MessageDeduper
}

func NewRoomSession() *RoomSession {
	return &RoomSession{deduper: NewMessageDeduper()}
}

// ActiveRoomID returns the selected room id, or zero before any selection.
func (s *RoomSession) ActiveRoomID() int64 {
	return s.activeRoomID
}

// Selected reports whether a room has been selected at all.
func (s *RoomSession) Selected() bool {
	return s.activeRoomID != 0
}

// Select makes roomID the active room and drops all per-room state. The
// dedup set is always scoped to "current room", so it is cleared in full,
// never diffed. The caller must discard the rendered transcript in the same
// step.
func (s *RoomSession) Select(roomID int64) {
	s.activeRoomID = roomID
	s.deduper.Reset()
}

// Accepts reports whether a fetch result tagged with roomID still belongs to
// the current selection. Results from a room the user has already left are
// stale and must be dropped.
func (s *RoomSession) Accepts(roomID int64) bool {
	return s.Selected() && roomID == s.activeRoomID
}

// Absorb runs a tagged fetch result through the staleness check and the
// dedup set, returning only messages that should be rendered.
func (s *RoomSession) Absorb(roomID int64, messages []Message) []Message {
	if !s.Accepts(roomID) {
		return nil
	}
	return s.deduper.FilterNew(messages)
}
