// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gdscnexus/nexus-chat/internal/store"
)

// Schema is applied on open.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	full_name     TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'USER',
	avatar_url    TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	team_id       TEXT,
	field_id      TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	visibility TEXT NOT NULL DEFAULT 'PUBLIC',
	is_group   BOOLEAN NOT NULL DEFAULT TRUE,
	team_id    TEXT,
	field_id   TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL REFERENCES rooms(id),
	user_id   TEXT NOT NULL REFERENCES users(id),
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	room_id    TEXT NOT NULL REFERENCES rooms(id),
	sender_id  TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'TEXT',
	content    TEXT NOT NULL DEFAULT '',
	file_url   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, seq);
`

// Store implements store.Store for PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to url, verifies the connection and applies the schema.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isPgDuplicateKeyError checks if error is a PostgreSQL unique violation.
func isPgDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (s *Store) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = store.RoleUser
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, full_name, role, avatar_url, password_hash, team_id, field_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.FullName, string(user.Role), user.AvatarURL, user.PasswordHash,
		user.TeamID, user.FieldID, user.CreatedAt,
	)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, full_name, role, avatar_url, password_hash, team_id, field_id, created_at`

func (s *Store) getUser(ctx context.Context, where string, arg string) (*store.User, error) {
	var user store.User
	var role string
	err := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg).Scan(
		&user.ID, &user.Email, &user.FullName, &role, &user.AvatarURL, &user.PasswordHash,
		&user.TeamID, &user.FieldID, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", arg, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Role = store.Role(role)
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role store.Role) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateRoom(ctx context.Context, room *store.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if room.Visibility == "" {
		room.Visibility = store.VisibilityPublic
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, visibility, is_group, team_id, field_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.ID, room.Name, string(room.Visibility), room.IsGroup, room.TeamID, room.FieldID, room.CreatedAt,
	)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return fmt.Errorf("insert room: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

const roomColumns = `id, name, visibility, is_group, team_id, field_id, created_at`

func scanRoom(row pgx.Row) (*store.Room, error) {
	var room store.Room
	var visibility string
	if err := row.Scan(&room.ID, &room.Name, &visibility, &room.IsGroup, &room.TeamID, &room.FieldID, &room.CreatedAt); err != nil {
		return nil, err
	}
	room.Visibility = store.Visibility(visibility)
	return &room, nil
}

func (s *Store) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]*store.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, userID, roomID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_members (user_id, room_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, roomID)
	if err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}
	return nil
}

func (s *Store) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM room_members WHERE user_id = $1 AND room_id = $2)`,
		userID, roomID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, sender_id, type, content, file_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Type, msg.Content, msg.FileURL, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages selects the newest rows first and flips them back into store order.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, m.type, m.content, m.file_url, m.created_at,
		       COALESCE(u.full_name, ''), COALESCE(u.role, ''), COALESCE(u.avatar_url, '')
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.seq DESC`
	args := []any{roomID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var role string
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Type, &msg.Content, &msg.FileURL, &msg.CreatedAt,
			&msg.Sender.FullName, &role, &msg.Sender.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Sender.ID = msg.SenderID
		msg.Sender.Role = store.Role(role)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
