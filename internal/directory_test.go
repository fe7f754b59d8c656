package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	r := require.New(t)

	joined := []Room{
		{ID: 1, Name: "Public Room", Type: RoomTypePublic},
		{ID: 3, Name: "alice-bob", Type: RoomTypePrivate},
		{ID: 4, Name: "carol-alice", Type: RoomTypePrivate},
	}
	public := []Room{
		{ID: 1, Name: "Public Room", Type: RoomTypePublic},
		{ID: 2, Name: "Announcements", Type: RoomTypePublic},
	}

	dir := Reconcile(joined, public, "alice")

	// Catalog rooms the user never joined stay out of the sidebar.
	r.Len(dir.PublicRooms, 1)
	r.Equal(int64(1), dir.PublicRooms[0].ID)

	r.Len(dir.Contacts, 2)
	r.Equal("bob", dir.Contacts[0].Label)
	r.Equal("carol", dir.Contacts[1].Label)

	r.Equal(int64(1), dir.DefaultRoomID)
	r.False(dir.Empty())
}

func TestReconcileNoPublicRooms(t *testing.T) {
	r := require.New(t)
	joined := []Room{{ID: 7, Name: "alice-bob", Type: RoomTypePrivate}}

	dir := Reconcile(joined, nil, "alice")
	r.Empty(dir.PublicRooms)
	r.Zero(dir.DefaultRoomID)
	r.False(dir.Empty())
}

func TestContactLabel(t *testing.T) {
	r := require.New(t)

	r.Equal("bob", ContactLabel("alice-bob", "alice"))
	r.Equal("carol", ContactLabel("carol-alice", "alice"))

	// A hyphenated counterpart keeps its own hyphens.
	r.Equal("mary-jane", ContactLabel("alice-mary-jane", "alice"))

	// Stripping that would leave nothing falls back to the raw name.
	r.Equal("alice-", ContactLabel("alice-", "alice"))
	r.Equal("-alice", ContactLabel("-alice", "alice"))

	// No recognizable pattern: raw name.
	r.Equal("general", ContactLabel("general", "alice"))
}

func TestMissingDefaultRoom(t *testing.T) {
	r := require.New(t)

	public := []Room{
		{ID: 2, Name: "Announcements", Type: RoomTypePublic},
		{ID: 1, Name: DefaultPublicRoomName, Type: RoomTypePublic},
	}

	id, missing := missingDefaultRoom(nil, public)
	r.True(missing)
	r.Equal(int64(1), id)

	_, missing = missingDefaultRoom([]Room{{ID: 1, Name: DefaultPublicRoomName, Type: RoomTypePublic}}, public)
	r.False(missing)

	_, missing = missingDefaultRoom(nil, []Room{{ID: 2, Name: "Announcements", Type: RoomTypePublic}})
	r.False(missing)
}

func TestRoomLabel(t *testing.T) {
	r := require.New(t)
	dir := Directory{
		PublicRooms: []Room{{ID: 1, Name: "Public Room"}},
		Contacts:    []ContactRoom{{Room: Room{ID: 3, Name: "alice-bob"}, Label: "bob"}},
	}
	r.Equal("Public Room", dir.RoomLabel(1))
	r.Equal("bob", dir.RoomLabel(3))
	r.Equal("", dir.RoomLabel(99))
}
