package internal

import (
	"strings"

	"github.com/samber/lo"
)

// ContactRoom is a private room presented under the contact's name instead
// of the raw "{owner}-{contact}" room name.
type ContactRoom struct {
	Room
	Label string
}

// Directory is the reconciled view of the user's rooms: the public rooms
// they belong to, their contact conversations, and the room to land in when
// nothing is selected yet. The zero value is the empty state shown when a
// room lookup fails.
type Directory struct {
	PublicRooms   []Room
	Contacts      []ContactRoom
	DefaultRoomID int64
}

// Reconcile merges the joined-room list with the public catalog. The public
// sidebar section only shows catalog rooms the user has actually joined;
// private rooms become contact entries with a derived label. The default
// room is the first joined public room, or zero when there is none.
func Reconcile(joined, public []Room, username string) Directory {
	joinedByID := lo.KeyBy(joined, func(r Room) int64 { return r.ID })

	publicRooms := lo.Filter(public, func(r Room, _ int) bool {
		_, ok := joinedByID[r.ID]
		return ok
	})

	contacts := lo.FilterMap(joined, func(r Room, _ int) (ContactRoom, bool) {
		if r.Type != RoomTypePrivate {
			return ContactRoom{}, false
		}
		return ContactRoom{Room: r, Label: ContactLabel(r.Name, username)}, true
	})

	var defaultID int64
	for _, r := range joined {
		if r.Type == RoomTypePublic {
			defaultID = r.ID
			break
		}
	}

	return Directory{
		PublicRooms:   publicRooms,
		Contacts:      contacts,
		DefaultRoomID: defaultID,
	}
}

// ContactLabel derives the display name for a private room by removing the
// current user's portion of the "{a}-{b}" naming convention. The creator
// sees their username as a prefix, the other party as a suffix. When
// stripping would leave nothing, or neither pattern matches, the raw room
// name is the fallback.
func ContactLabel(roomName, username string) string {
	if rest, ok := strings.CutPrefix(roomName, username+"-"); ok && rest != "" {
		return rest
	}
	if rest, ok := strings.CutSuffix(roomName, "-"+username); ok && rest != "" {
		return rest
	}
	return roomName
}

// missingDefaultRoom reports the id of the default public room when the
// catalog lists it but the user has not joined it yet.
func missingDefaultRoom(joined, public []Room) (int64, bool) {
	joinedByID := lo.KeyBy(joined, func(r Room) int64 { return r.ID })
	for _, r := range public {
		if r.Name != DefaultPublicRoomName {
			continue
		}
		if _, ok := joinedByID[r.ID]; !ok {
			return r.ID, true
		}
		return 0, false
	}
	return 0, false
}

// Empty reports whether the directory has nothing to show.
func (d Directory) Empty() bool {
	return len(d.PublicRooms) == 0 && len(d.Contacts) == 0
}

// RoomLabel resolves the display label for a room id, for the chat header.
func (d Directory) RoomLabel(roomID int64) string {
	for _, r := range d.PublicRooms {
		if r.ID == roomID {
			return r.Name
		}
	}
	for _, c := range d.Contacts {
		if c.ID == roomID {
			return c.Label
		}
	}
	return ""
}
