package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and exposes helper methods used by the server.
type Store struct {
	db *sql.DB
}

// User represents a row in the users table.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Session captures persisted logins.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Room is a chat room. Type is either "public" or "private"; private rooms
// back a contact pair and are named after it.
type Room struct {
	ID          int64
	Name        string
	Type        string
	CreatorID   int64
	CreatedAt   time.Time
	MemberCount int
}

// Message is a stored chat message. Username is joined in on reads.
type Message struct {
	ID        int64
	Content   string
	ImageURL  string
	UserID    int64
	Username  string
	RoomID    int64
	CreatedAt time.Time
}

// Contact links a user to another user and to their shared private room.
type Contact struct {
	ID            int64
	UserID        int64
	ContactUserID int64
	Username      string
	RoomID        int64
	AddedAt       time.Time
}

// ErrUserExists is returned when attempting to insert a duplicate username.
var ErrUserExists = errors.New("user already exists")

// ErrRoomExists is returned when a room with the same name already exists.
var ErrRoomExists = errors.New("room already exists")

// ErrContactExists is returned on duplicate contact pairs.
var ErrContactExists = errors.New("contact already exists")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "parlor.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL DEFAULT 'public',
			creator_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(creator_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS room_members (
			room_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (room_id, user_id),
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			contact_user_id INTEGER NOT NULL,
			room_id INTEGER,
			added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, contact_user_id),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(contact_user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE SET NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			image_url TEXT,
			user_id INTEGER NOT NULL,
			room_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateUser inserts a new user. ErrUserExists is returned on conflicts.
func (s *Store) CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO users(username, password_hash) VALUES(?, ?)`, username, passwordHash)
	if err != nil {
		if isConstraintError(err) {
			return 0, ErrUserExists
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	var user User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID fetches a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	var user User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateSession stores a new session token for a user.
func (s *Store) CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(token, user_id, expires_at) VALUES(?, ?, ?)`, token, userID, expiresAt.UTC())
	return err
}

// GetSession returns a session if it exists.
func (s *Store) GetSession(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token)
	var sess Session
	if err := row.Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session token (used for logout).
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// EnsureRoom creates a room with the given name unless one already exists,
// and returns it either way. Used to seed the default public room.
func (s *Store) EnsureRoom(ctx context.Context, name, roomType string, creatorID int64) (*Room, error) {
	room, err := s.GetRoomByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}
	id, err := s.CreateRoom(ctx, name, roomType, creatorID)
	if err != nil {
		if errors.Is(err, ErrRoomExists) {
			return s.GetRoomByName(ctx, name)
		}
		return nil, err
	}
	return s.GetRoomByID(ctx, id)
}

// CreateRoom inserts a room. ErrRoomExists is returned on name conflicts.
func (s *Store) CreateRoom(ctx context.Context, name, roomType string, creatorID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO rooms(name, type, creator_id) VALUES(?, ?, ?)`, name, roomType, creatorID)
	if err != nil {
		if isConstraintError(err) {
			return 0, ErrRoomExists
		}
		return 0, err
	}
	return result.LastInsertId()
}

const roomColumns = `r.id, r.name, r.type, r.creator_id, r.created_at,
	(SELECT COUNT(1) FROM room_members m WHERE m.room_id = r.id) AS member_count`

func scanRoom(row interface{ Scan(...any) error }) (*Room, error) {
	var room Room
	if err := row.Scan(&room.ID, &room.Name, &room.Type, &room.CreatorID, &room.CreatedAt, &room.MemberCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// GetRoomByName fetches a room by its unique name.
func (s *Store) GetRoomByName(ctx context.Context, name string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.name = ?`, name)
	return scanRoom(row)
}

// GetRoomByID fetches a room by primary key.
func (s *Store) GetRoomByID(ctx context.Context, id int64) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = ?`, id)
	return scanRoom(row)
}

// ListRoomsForUser returns every room the user is a member of.
func (s *Store) ListRoomsForUser(ctx context.Context, userID int64) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM room_members rm
		JOIN rooms r ON r.id = rm.room_id
		WHERE rm.user_id = ?
		ORDER BY r.created_at ASC, r.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

// ListPublicRooms returns all rooms of type "public", joined or not.
func (s *Store) ListPublicRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms r
		WHERE r.type = 'public'
		ORDER BY r.created_at ASC, r.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func collectRooms(rows *sql.Rows) ([]Room, error) {
	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// AddMember adds a user to a room. Adding twice is a no-op.
func (s *Store) AddMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO room_members(room_id, user_id) VALUES(?, ?)`, roomID, userID)
	return err
}

// IsMember reports whether a user belongs to a room.
func (s *Store) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateMessage inserts a message and returns it with the author joined in.
func (s *Store) CreateMessage(ctx context.Context, roomID, userID int64, content, imageURL string) (*Message, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(content, image_url, user_id, room_id) VALUES(?, ?, ?, ?)`,
		content, nullableString(imageURL), userID, roomID)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.getMessage(ctx, id)
}

func (s *Store) getMessage(ctx context.Context, id int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT msg.id, msg.content, COALESCE(msg.image_url, ''), msg.user_id, u.username, msg.room_id, msg.created_at
		FROM messages msg
		JOIN users u ON u.id = msg.user_id
		WHERE msg.id = ?
	`, id)
	var msg Message
	if err := row.Scan(&msg.ID, &msg.Content, &msg.ImageURL, &msg.UserID, &msg.Username, &msg.RoomID, &msg.CreatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns the full history for a room in insertion order.
func (s *Store) ListMessages(ctx context.Context, roomID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT msg.id, msg.content, COALESCE(msg.image_url, ''), msg.user_id, u.username, msg.room_id, msg.created_at
		FROM messages msg
		JOIN users u ON u.id = msg.user_id
		WHERE msg.room_id = ?
		ORDER BY msg.created_at ASC, msg.id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Content, &msg.ImageURL, &msg.UserID, &msg.Username, &msg.RoomID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ContactExists reports whether the contact pair is already recorded.
func (s *Store) ContactExists(ctx context.Context, userID, contactUserID int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM contacts WHERE user_id = ? AND contact_user_id = ?`, userID, contactUserID)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateContact records the contact pair with its shared room.
func (s *Store) CreateContact(ctx context.Context, userID, contactUserID, roomID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts(user_id, contact_user_id, room_id) VALUES(?, ?, ?)`,
		userID, contactUserID, roomID)
	if err != nil {
		if isConstraintError(err) {
			return 0, ErrContactExists
		}
		return 0, err
	}
	return result.LastInsertId()
}

// ListContacts returns a user's contacts with the contact usernames joined in.
func (s *Store) ListContacts(ctx context.Context, userID int64) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.contact_user_id, u.username, COALESCE(c.room_id, 0), c.added_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_user_id
		WHERE c.user_id = ?
		ORDER BY c.added_at ASC, c.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contacts []Contact
	for rows.Next() {
		var contact Contact
		if err := rows.Scan(&contact.ID, &contact.UserID, &contact.ContactUserID, &contact.Username, &contact.RoomID, &contact.AddedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintCode
	}
	return false
}
