package internal

import (
	"encoding/json"
	"strings"
	"time"
)

// Room types as reported by the server.
const (
	RoomTypePublic  = "public"
	RoomTypePrivate = "private"
)

// DefaultPublicRoomName is the catch-all room every account is expected to
// end up in. The directory auto-joins it when the server lists it.
const DefaultPublicRoomName = "Public Room"

// timestampLayout is the wire format the server uses for all timestamps.
const timestampLayout = "2006-01-02 15:04:05"

// User is the session identity returned by /api/user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Room is a chat room the user can select. Private rooms back a contact
// conversation and carry the "{owner}-{contact}" naming convention.
type Room struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	MemberCount int       `json:"member_count"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Message is one entry of a room's history. A message carries text, an
// image, or both; the client rejects empty sends before they reach the wire.
type Message struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt Timestamp `json:"created_at"`
}

// HasText reports whether the message carries visible text.
func (m Message) HasText() bool {
	return strings.TrimSpace(m.Content) != ""
}

// HasImage reports whether the message carries an uploaded image.
func (m Message) HasImage() bool {
	return m.ImageURL != ""
}

// Contact is one entry of the user's contact list.
type Contact struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	UserID   int64     `json:"user_id"`
	RoomID   int64     `json:"room_id"`
	AddedAt  Timestamp `json:"added_at"`
}

// Timestamp wraps time.Time with the server's "YYYY-MM-DD HH:MM:SS" JSON
// encoding.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.Format(timestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
