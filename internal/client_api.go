package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

var httpTimeout = 5 * time.Second

// errUnauthorized marks 401 responses. For the initial identity check it
// sends the client back to the login screen; everywhere else it surfaces as
// an inline error.
var errUnauthorized = errors.New("unauthorized")

// APIClient talks to the chat backend over plain HTTP. The session rides on
// a cookie, so the jar is the whole authentication state.
type APIClient struct {
	baseURL string
	http    *http.Client
}

func NewAPIClient(baseURL string) (*APIClient, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &APIClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: httpTimeout, Jar: jar},
	}, nil
}

// BaseURL returns the server address the client was built with.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// ResolveURL turns a server-relative path (like an uploaded image URL) into
// an absolute one.
func (c *APIClient) ResolveURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// CurrentUser fetches the session identity. errUnauthorized means there is
// no live session.
func (c *APIClient) CurrentUser() (User, error) {
	var user User
	err := c.doJSON(http.MethodGet, "/api/user", nil, &user)
	return user, err
}

func (c *APIClient) Register(username, password string) error {
	payload := map[string]string{"username": username, "password": password}
	return c.doJSON(http.MethodPost, "/api/register", payload, nil)
}

func (c *APIClient) Login(username, password string) error {
	payload := map[string]string{"username": username, "password": password}
	return c.doJSON(http.MethodPost, "/api/login", payload, nil)
}

func (c *APIClient) Logout() error {
	return c.doJSON(http.MethodPost, "/api/logout", nil, nil)
}

// Rooms lists the rooms the user is a member of.
func (c *APIClient) Rooms() ([]Room, error) {
	var rooms []Room
	err := c.doJSON(http.MethodGet, "/api/rooms", nil, &rooms)
	return rooms, err
}

// PublicRooms lists the global public-room catalog.
func (c *APIClient) PublicRooms() ([]Room, error) {
	var rooms []Room
	err := c.doJSON(http.MethodGet, "/api/rooms/public", nil, &rooms)
	return rooms, err
}

func (c *APIClient) CreateRoom(name, roomType string) (Room, error) {
	payload := map[string]string{"name": name, "type": roomType}
	var resp struct {
		Room Room `json:"room"`
	}
	if err := c.doJSON(http.MethodPost, "/api/rooms", payload, &resp); err != nil {
		return Room{}, err
	}
	return resp.Room, nil
}

func (c *APIClient) JoinRoom(roomID int64) error {
	return c.doJSON(http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", roomID), nil, nil)
}

// RoomMessages fetches the full message history for a room. Every poll tick
// re-fetches the complete list; the server offers no cursor.
func (c *APIClient) RoomMessages(roomID int64) ([]Message, error) {
	var messages []Message
	err := c.doJSON(http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", roomID), nil, &messages)
	return messages, err
}

// SendMessage posts a message with optional attached image as a multipart
// form. Validation (empty message, image type and size) happens in
// BuildMessageForm before anything goes on the wire.
func (c *APIClient) SendMessage(roomID int64, content, imagePath string) error {
	body, contentType, err := BuildMessageForm(content, imagePath)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/api/rooms/%d/messages", c.baseURL, roomID)
	req, err := http.NewRequest(http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", UserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// SearchContact looks a user up by exact username. A not-found or error
// response comes back as an error carrying the server's message.
func (c *APIClient) SearchContact(username string) (User, error) {
	var user User
	endpoint := "/api/contacts/search?username=" + url.QueryEscape(username)
	err := c.doJSON(http.MethodGet, endpoint, nil, &user)
	return user, err
}

func (c *APIClient) AddContact(username string) error {
	payload := map[string]string{"username": username}
	return c.doJSON(http.MethodPost, "/api/contacts", payload, nil)
}

// Contacts lists the user's saved contacts.
func (c *APIClient) Contacts() ([]Contact, error) {
	var contacts []Contact
	err := c.doJSON(http.MethodGet, "/api/contacts", nil, &contacts)
	return contacts, err
}

// LoadDirectory fetches joined and public rooms and reconciles them. When
// the catalog lists the default public room but the user has not joined it,
// the join is issued and the joined list re-fetched before reconciling, so
// default-room selection can see the fresh membership. A failed auto-join is
// not fatal; the directory is built from whatever was fetched.
func (c *APIClient) LoadDirectory(username string) (Directory, error) {
	joined, err := c.Rooms()
	if err != nil {
		return Directory{}, err
	}
	public, err := c.PublicRooms()
	if err != nil {
		return Directory{}, err
	}
	if roomID, ok := missingDefaultRoom(joined, public); ok {
		if err := c.JoinRoom(roomID); err == nil {
			if refreshed, err := c.Rooms(); err == nil {
				joined = refreshed
			}
		}
	}
	return Reconcile(joined, public, username), nil
}

func (c *APIClient) doJSON(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", UserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		// Keep the sentinel matchable but preserve the server's message.
		return fmt.Errorf("%w: %s", errUnauthorized, readResponseError(resp.Body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	return nil
}

// readResponseError pulls the "error" field out of a failure payload,
// falling back to the raw body or a generic message.
func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}
