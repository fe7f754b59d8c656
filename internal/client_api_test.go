package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// directoryBackend fakes the rooms endpoints: the user starts outside the
// default public room, and the joined list only includes it after the join
// endpoint has been hit.
type directoryBackend struct {
	mu     sync.Mutex
	joined bool
	calls  []string
}

func (b *directoryBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rooms", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, "rooms")
		rooms := []Room{{ID: 3, Name: "alice-bob", Type: RoomTypePrivate}}
		if b.joined {
			rooms = append(rooms, Room{ID: 1, Name: DefaultPublicRoomName, Type: RoomTypePublic})
		}
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rooms)
	})
	mux.HandleFunc("/api/rooms/public", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, "public")
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Room{{ID: 1, Name: DefaultPublicRoomName, Type: RoomTypePublic}})
	})
	mux.HandleFunc("/api/rooms/1/join", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, "join")
		b.joined = true
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	return mux
}

func TestLoadDirectoryAutoJoinsDefaultRoom(t *testing.T) {
	r := require.New(t)
	backend := &directoryBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	api, err := NewAPIClient(srv.URL)
	r.NoError(err)

	dir, err := api.LoadDirectory("alice")
	r.NoError(err)

	// The join must land before the second joined-rooms fetch so the
	// reconciled directory already carries the fresh membership.
	r.Equal([]string{"rooms", "public", "join", "rooms"}, backend.calls)
	r.Equal(int64(1), dir.DefaultRoomID)
	r.Len(dir.PublicRooms, 1)
	r.Len(dir.Contacts, 1)
	r.Equal("bob", dir.Contacts[0].Label)
}

func TestLoadDirectorySkipsJoinWhenMember(t *testing.T) {
	r := require.New(t)
	backend := &directoryBackend{joined: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	api, err := NewAPIClient(srv.URL)
	r.NoError(err)

	dir, err := api.LoadDirectory("alice")
	r.NoError(err)
	r.Equal([]string{"rooms", "public"}, backend.calls)
	r.Equal(int64(1), dir.DefaultRoomID)
}

func TestAPIErrorsSurfaceServerMessage(t *testing.T) {
	r := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Room name required"})
	}))
	defer srv.Close()

	api, err := NewAPIClient(srv.URL)
	r.NoError(err)

	_, err = api.CreateRoom("", RoomTypePublic)
	r.Error(err)
	r.Contains(err.Error(), "Room name required")
}

func TestCurrentUserUnauthorized(t *testing.T) {
	r := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Not logged in"})
	}))
	defer srv.Close()

	api, err := NewAPIClient(srv.URL)
	r.NoError(err)

	_, err = api.CurrentUser()
	r.ErrorIs(err, errUnauthorized)
	r.Contains(err.Error(), "Not logged in")
}

func TestSendMessagePostsMultipart(t *testing.T) {
	r := require.New(t)
	var gotContent string
	var gotFile bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.Equal(http.MethodPost, req.Method)
		r.Equal("/api/rooms/7/messages", req.URL.Path)
		r.NoError(req.ParseMultipartForm(1 << 20))
		gotContent = req.FormValue("content")
		_, _, fileErr := req.FormFile("image")
		gotFile = fileErr == nil
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	api, err := NewAPIClient(srv.URL)
	r.NoError(err)

	r.NoError(api.SendMessage(7, "hello", ""))
	r.Equal("hello", gotContent)
	r.False(gotFile)

	path := writeTestPNG(t, "cat.png")
	r.NoError(api.SendMessage(7, "", path))
	r.True(gotFile)
}
