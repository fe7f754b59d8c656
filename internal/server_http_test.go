package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"parlor/internal/storage"
)

type serverFixture struct {
	srv       *httptest.Server
	uploadDir string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	store, err := storage.NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	uploadDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(store, logger, uploadDir, 0)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", server.HandleRegister)
	mux.HandleFunc("/api/login", server.HandleLogin)
	mux.HandleFunc("/api/logout", server.HandleLogout)
	mux.HandleFunc("/api/user", server.HandleCurrentUser)
	mux.HandleFunc("/api/rooms", server.HandleRooms)
	mux.HandleFunc("/api/rooms/public", server.HandlePublicRooms)
	mux.HandleFunc("/api/rooms/", server.HandleRoomPath)
	mux.HandleFunc("/api/contacts", server.HandleContacts)
	mux.HandleFunc("/api/contacts/search", server.HandleContactSearch)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &serverFixture{srv: srv, uploadDir: uploadDir}
}

func (f *serverFixture) client(t *testing.T) *APIClient {
	t.Helper()
	api, err := NewAPIClient(f.srv.URL)
	require.NoError(t, err)
	return api
}

func TestRegisterLoginAndIdentity(t *testing.T) {
	r := require.New(t)
	fixture := newServerFixture(t)
	api := fixture.client(t)

	// No session yet.
	_, err := api.CurrentUser()
	r.ErrorIs(err, errUnauthorized)

	r.NoError(api.Register("alice", "secret"))
	user, err := api.CurrentUser()
	r.NoError(err)
	r.Equal("alice", user.Username)
	r.NotZero(user.ID)

	// Duplicate usernames are rejected with the canonical message.
	other := fixture.client(t)
	err = other.Register("alice", "different")
	r.Error(err)
	r.Contains(err.Error(), "Username already exists")

	// Wrong password.
	err = other.Login("alice", "wrong")
	r.ErrorIs(err, errUnauthorized)

	r.NoError(other.Login("alice", "secret"))

	r.NoError(api.Logout())
	_, err = api.CurrentUser()
	r.ErrorIs(err, errUnauthorized)
}

func TestRegistrationSeedsPublicRoom(t *testing.T) {
	r := require.New(t)
	fixture := newServerFixture(t)
	api := fixture.client(t)
	r.NoError(api.Register("alice", "secret"))

	public, err := api.PublicRooms()
	r.NoError(err)
	r.Len(public, 1)
	r.Equal(DefaultPublicRoomName, public[0].Name)

	// Fresh accounts are not members until the client auto-joins.
	joined, err := api.Rooms()
	r.NoError(err)
	r.Empty(joined)

	dir, err := api.LoadDirectory("alice")
	r.NoError(err)
	r.Equal(public[0].ID, dir.DefaultRoomID)
	r.Len(dir.PublicRooms, 1)
}

func TestRoomMessagesRoundTrip(t *testing.T) {
	r := require.New(t)
	fixture := newServerFixture(t)
	api := fixture.client(t)
	r.NoError(api.Register("alice", "secret"))

	dir, err := api.LoadDirectory("alice")
	r.NoError(err)
	roomID := dir.DefaultRoomID
	r.NotZero(roomID)

	r.NoError(api.SendMessage(roomID, "hello there", ""))
	messages, err := api.RoomMessages(roomID)
	r.NoError(err)
	r.Len(messages, 1)
	r.Equal("hello there", messages[0].Content)
	r.Equal("alice", messages[0].Username)
	r.False(messages[0].CreatedAt.IsZero())

	// Joining twice is an error the server reports explicitly.
	err = api.JoinRoom(roomID)
	r.Error(err)
	r.Contains(err.Error(), "Already member")

	// Non-members cannot read history.
	outsider := fixture.client(t)
	r.NoError(outsider.Register("mallory", "secret"))
	_, err = outsider.RoomMessages(roomID)
	r.Error(err)
	r.Contains(err.Error(), "Not member of this room")
}

func TestImageUpload(t *testing.T) {
	r := require.New(t)
	fixture := newServerFixture(t)
	api := fixture.client(t)
	r.NoError(api.Register("alice", "secret"))
	dir, err := api.LoadDirectory("alice")
	r.NoError(err)

	path := writeTestPNG(t, "cat.png")
	r.NoError(api.SendMessage(dir.DefaultRoomID, "", path))

	messages, err := api.RoomMessages(dir.DefaultRoomID)
	r.NoError(err)
	r.Len(messages, 1)
	r.True(messages[0].HasImage())
	r.True(strings.HasPrefix(messages[0].ImageURL, "/static/uploads/"))
	r.True(strings.HasSuffix(messages[0].ImageURL, "cat.png"))

	// The bytes landed in the upload directory under a unique name.
	stored := filepath.Base(messages[0].ImageURL)
	_, err = os.Stat(filepath.Join(fixture.uploadDir, stored))
	r.NoError(err)
}

func TestEmptyMessageRejectedByServer(t *testing.T) {
	r := require.New(t)
	fixture := newServerFixture(t)
	api := fixture.client(t)
	r.NoError(api.Register("alice", "secret"))
	dir, err := api.LoadDirectory("alice")
	r.NoError(err)

	// Client-side validation blocks this normally; the server enforces the
	// same rule for other callers.
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	r.NoError(writer.WriteField("content", "   "))
	r.NoError(writer.Close())

	endpoint := fmt.Sprintf("%s/api/rooms/%d/messages", fixture.srv.URL, dir.DefaultRoomID)
	req, err := http.NewRequest(http.MethodPost, endpoint, body)
	r.NoError(err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := api.http.Do(req)
	r.NoError(err)
	defer resp.Body.Close()
	r.Equal(http.StatusBadRequest, resp.StatusCode)
	r.Contains(readResponseError(resp.Body), "Message content or image required")
}

func TestContactFlow(t *testing.T) {
	r := require.New(t)
	fixture := newServerFixture(t)

	bob := fixture.client(t)
	r.NoError(bob.Register("bob", "secret"))
	alice := fixture.client(t)
	r.NoError(alice.Register("alice", "secret"))

	// Search: missing user, self, and a hit.
	_, err := alice.SearchContact("nobody")
	r.Error(err)
	r.Contains(err.Error(), "User not found")

	_, err = alice.SearchContact("alice")
	r.Error(err)
	r.Contains(err.Error(), "Cannot add yourself")

	found, err := alice.SearchContact("bob")
	r.NoError(err)
	r.Equal("bob", found.Username)

	r.NoError(alice.AddContact("bob"))
	err = alice.AddContact("bob")
	r.Error(err)
	r.Contains(err.Error(), "Already in contacts")

	contacts, err := alice.Contacts()
	r.NoError(err)
	r.Len(contacts, 1)
	r.Equal("bob", contacts[0].Username)
	r.NotZero(contacts[0].RoomID)

	// Both sides see the shared private room; the label hides the raw
	// "alice-bob" naming on each end.
	aliceDir, err := alice.LoadDirectory("alice")
	r.NoError(err)
	r.Equal("bob", aliceDir.Contacts[0].Label)

	bobDir, err := bob.LoadDirectory("bob")
	r.NoError(err)
	r.Equal("alice", bobDir.Contacts[0].Label)

	// The private conversation works over the normal message endpoints.
	roomID := contacts[0].RoomID
	r.NoError(alice.SendMessage(roomID, "hi bob", ""))
	messages, err := bob.RoomMessages(roomID)
	r.NoError(err)
	r.Len(messages, 1)
	r.Equal("hi bob", messages[0].Content)
}

func TestCreateRoom(t *testing.T) {
	r := require.New(t)
	fixture := newServerFixture(t)
	api := fixture.client(t)
	r.NoError(api.Register("alice", "secret"))

	room, err := api.CreateRoom("games", RoomTypePublic)
	r.NoError(err)
	r.Equal("games", room.Name)
	r.Equal(RoomTypePublic, room.Type)
	r.Equal(1, room.MemberCount)

	_, err = api.CreateRoom("games", RoomTypePublic)
	r.Error(err)
	r.Contains(err.Error(), "Room already exists")

	_, err = api.CreateRoom("  ", RoomTypePublic)
	r.Error(err)
	r.Contains(err.Error(), "Room name required")
}
