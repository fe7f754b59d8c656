package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parlor/internal/storage"
)

// SessionCookieName carries the opaque session token between requests.
const SessionCookieName = "parlor_session"

// Server implements the JSON API the client polls. All state lives in the
// store; handlers are safe for concurrent use.
type Server struct {
	store        *storage.Store
	log          *slog.Logger
	metrics      *Metrics
	authLimiter  *RateLimiter
	uploadDir    string
	maxImageSize int64
	tokenTTL     time.Duration
}

// NewServer wires a Server around an open store. The upload directory must
// already exist.
func NewServer(store *storage.Store, logger *slog.Logger, uploadDir string, maxImageBytes int64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = maxImageSize
	}
	return &Server{
		store:        store,
		log:          logger,
		metrics:      NewMetrics(),
		authLimiter:  NewRateLimiter(10, time.Minute),
		uploadDir:    uploadDir,
		maxImageSize: maxImageBytes,
		tokenTTL:     30 * 24 * time.Hour,
	}
}

// MetricsHandler exposes the counters on /metrics.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authContext struct {
	Token    string
	UserID   int64
	Username string
}

// authenticateRequest resolves the session cookie into a user. Expired
// sessions are treated the same as missing ones.
func (s *Server) authenticateRequest(r *http.Request) (*authContext, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, errUnauthorized
	}
	sess, err := s.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if sess == nil || time.Now().After(sess.ExpiresAt) {
		return nil, errUnauthorized
	}
	user, err := s.store.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errUnauthorized
	}
	return &authContext{Token: sess.Token, UserID: user.ID, Username: user.Username}, nil
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) *authContext {
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			writeError(w, http.StatusUnauthorized, errors.New("Login required"))
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return nil
	}
	return authCtx
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	token := uuid.NewString()
	expiresAt := time.Now().Add(s.tokenTTL)
	if err := s.store.CreateSession(r.Context(), userID, token, expiresAt); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errors.New("Username and password required"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	userID, err := s.store.CreateUser(r.Context(), username, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			writeError(w, http.StatusBadRequest, errors.New("Username already exists"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// The default public room needs a creator, so it is seeded once the
	// first account exists.
	if _, err := s.store.EnsureRoom(r.Context(), DefaultPublicRoomName, RoomTypePublic, userID); err != nil {
		s.log.Warn("seed public room", "err", err)
	}
	if err := s.issueSession(w, r, userID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncSignup()
	s.log.Info("user registered", "username", username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User registered successfully"})
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := s.store.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, errors.New("Invalid username or password"))
		return
	}
	if err := s.issueSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncLogin()
	s.log.Info("user logged in", "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged in successfully"})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := s.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (s *Server) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			writeError(w, http.StatusUnauthorized, errors.New("Not logged in"))
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, User{ID: authCtx.UserID, Username: authCtx.Username})
}

func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJoinedRooms(w, r)
	case http.MethodPost:
		s.createRoom(w, r)
	default:
		methodNotAllowed(w, http.MethodGet+", "+http.MethodPost)
	}
}

func (s *Server) listJoinedRooms(w http.ResponseWriter, r *http.Request) {
	authCtx := s.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	rooms, err := s.store.ListRoomsForUser(r.Context(), authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, roomsToWire(rooms))
}

func (s *Server) HandlePublicRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if authCtx := s.requireAuth(w, r); authCtx == nil {
		return
	}
	rooms, err := s.store.ListPublicRooms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, roomsToWire(rooms))
}

type createRoomRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	authCtx := s.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("Room name required"))
		return
	}
	roomType := req.Type
	if roomType != RoomTypePublic {
		roomType = RoomTypePrivate
	}
	roomID, err := s.store.CreateRoom(r.Context(), name, roomType, authCtx.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrRoomExists) {
			writeError(w, http.StatusBadRequest, errors.New("Room already exists"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.AddMember(r.Context(), roomID, authCtx.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	room, err := s.store.GetRoomByID(r.Context(), roomID)
	if err != nil || room == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("room created", "room", room.Name, "type", room.Type, "creator", authCtx.Username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "room": roomToWire(*room)})
}

// HandleRoomPath dispatches /api/rooms/{id}/join and /api/rooms/{id}/messages.
func (s *Server) HandleRoomPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	roomID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	switch parts[1] {
	case "join":
		s.joinRoom(w, r, roomID)
	case "messages":
		switch r.Method {
		case http.MethodGet:
			s.listRoomMessages(w, r, roomID)
		case http.MethodPost:
			s.postRoomMessage(w, r, roomID)
		default:
			methodNotAllowed(w, http.MethodGet+", "+http.MethodPost)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request, roomID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx := s.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	room, err := s.store.GetRoomByID(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if room == nil {
		http.NotFound(w, r)
		return
	}
	member, err := s.store.IsMember(r.Context(), roomID, authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if member {
		writeError(w, http.StatusBadRequest, errors.New("Already member of this room"))
		return
	}
	if err := s.store.AddMember(r.Context(), roomID, authCtx.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("room joined", "room", room.Name, "user", authCtx.Username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Joined room successfully"})
}

// membership gate for both message operations; returns nil after writing the
// response when the caller may not proceed.
func (s *Server) requireRoomMember(w http.ResponseWriter, r *http.Request, roomID int64) *authContext {
	authCtx := s.requireAuth(w, r)
	if authCtx == nil {
		return nil
	}
	room, err := s.store.GetRoomByID(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil
	}
	if room == nil {
		http.NotFound(w, r)
		return nil
	}
	member, err := s.store.IsMember(r.Context(), roomID, authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil
	}
	if !member {
		writeError(w, http.StatusForbidden, errors.New("Not member of this room"))
		return nil
	}
	return authCtx
}

func (s *Server) listRoomMessages(w http.ResponseWriter, r *http.Request, roomID int64) {
	if s.requireRoomMember(w, r, roomID) == nil {
		return
	}
	messages, err := s.store.ListMessages(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesToWire(messages))
}

func (s *Server) postRoomMessage(w http.ResponseWriter, r *http.Request, roomID int64) {
	authCtx := s.requireRoomMember(w, r, roomID)
	if authCtx == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageSize+1024*1024)
	if err := r.ParseMultipartForm(s.maxImageSize); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("File size exceeds 10MB limit"))
		return
	}
	content := strings.TrimSpace(r.FormValue("content"))
	imageFile, imageHeader, err := r.FormFile("image")
	hasImage := err == nil
	if hasImage {
		defer imageFile.Close()
	}
	if content == "" && !hasImage {
		writeError(w, http.StatusBadRequest, errors.New("Message content or image required"))
		return
	}

	imageURL := ""
	if hasImage {
		if !allowedImageExt(imageHeader.Filename) {
			writeError(w, http.StatusBadRequest, errors.New("Invalid file type. Allowed: PNG, JPG, JPEG, GIF, WebP, BMP"))
			return
		}
		if imageHeader.Size > s.maxImageSize {
			writeError(w, http.StatusBadRequest, errors.New("File size exceeds 10MB limit"))
			return
		}
		imageURL, err = s.saveUpload(imageFile, imageHeader.Filename)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.metrics.IncUpload()
	}

	message, err := s.store.CreateMessage(r.Context(), roomID, authCtx.UserID, content, imageURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncMessage()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": messageToWire(*message)})
}

// saveUpload writes the image under a collision-proof name and returns the
// URL path it will be served from.
func (s *Server) saveUpload(file io.Reader, originalName string) (string, error) {
	uniqueName := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(originalName))
	dst, err := os.Create(filepath.Join(s.uploadDir, uniqueName))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return "/static/uploads/" + uniqueName, nil
}

func (s *Server) HandleContacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listContacts(w, r)
	case http.MethodPost:
		s.addContact(w, r)
	default:
		methodNotAllowed(w, http.MethodGet+", "+http.MethodPost)
	}
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	authCtx := s.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	contacts, err := s.store.ListContacts(r.Context(), authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	wire := make([]Contact, 0, len(contacts))
	for _, contact := range contacts {
		wire = append(wire, Contact{
			ID:       contact.ID,
			Username: contact.Username,
			UserID:   contact.ContactUserID,
			RoomID:   contact.RoomID,
			AddedAt:  Timestamp{contact.AddedAt},
		})
	}
	writeJSON(w, http.StatusOK, wire)
}

type addContactRequest struct {
	Username string `json:"username"`
}

func (s *Server) addContact(w http.ResponseWriter, r *http.Request) {
	authCtx := s.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	var req addContactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeError(w, http.StatusBadRequest, errors.New("Username required"))
		return
	}
	contactUser, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if contactUser == nil {
		writeError(w, http.StatusNotFound, errors.New("User not found"))
		return
	}
	if contactUser.ID == authCtx.UserID {
		writeError(w, http.StatusBadRequest, errors.New("Cannot add yourself"))
		return
	}
	exists, err := s.store.ContactExists(r.Context(), authCtx.UserID, contactUser.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, errors.New("Already in contacts"))
		return
	}

	// The shared private room is named "{owner}-{contact}" and both users
	// become members, which puts the conversation in each rooms listing.
	roomName := fmt.Sprintf("%s-%s", authCtx.Username, contactUser.Username)
	room, err := s.store.EnsureRoom(r.Context(), roomName, RoomTypePrivate, authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.AddMember(r.Context(), room.ID, authCtx.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.AddMember(r.Context(), room.ID, contactUser.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	contactID, err := s.store.CreateContact(r.Context(), authCtx.UserID, contactUser.ID, room.ID)
	if err != nil && !errors.Is(err, storage.ErrContactExists) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("contact added", "user", authCtx.Username, "contact", contactUser.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Added %s to contacts", contactUser.Username),
		"contact": map[string]any{
			"id":       contactID,
			"username": contactUser.Username,
			"user_id":  contactUser.ID,
			"room_id":  room.ID,
		},
	})
}

func (s *Server) HandleContactSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	authCtx := s.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, errors.New("Username required"))
		return
	}
	// Exact match only; the search box sends the whole name.
	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, errors.New("User not found"))
		return
	}
	if user.ID == authCtx.UserID {
		writeError(w, http.StatusBadRequest, errors.New("Cannot add yourself"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": Timestamp{user.CreatedAt},
	})
}

func roomToWire(room storage.Room) Room {
	return Room{
		ID:          room.ID,
		Name:        room.Name,
		Type:        room.Type,
		MemberCount: room.MemberCount,
		CreatedAt:   Timestamp{room.CreatedAt},
	}
}

func roomsToWire(rooms []storage.Room) []Room {
	wire := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		wire = append(wire, roomToWire(room))
	}
	return wire
}

func messageToWire(msg storage.Message) Message {
	return Message{
		ID:        msg.ID,
		Content:   msg.Content,
		ImageURL:  msg.ImageURL,
		UserID:    msg.UserID,
		Username:  msg.Username,
		CreatedAt: Timestamp{msg.CreatedAt},
	}
}

func messagesToWire(messages []storage.Message) []Message {
	wire := make([]Message, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, messageToWire(msg))
	}
	return wire
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
