package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned (wrapped) when a unique constraint is violated.
var ErrConflict = errors.New("already exists")

// Role is a community role. Roles are ordered: USER < MEMBER < LEAD < ADMIN.
type Role string

const (
	RoleUser   Role = "USER"
	RoleMember Role = "MEMBER"
	RoleLead   Role = "LEAD"
	RoleAdmin  Role = "ADMIN"
)

// Rank returns the position of the role in the hierarchy, -1 for unknown roles.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 0
	case RoleMember:
		return 1
	case RoleLead:
		return 2
	case RoleAdmin:
		return 3
	default:
		return -1
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

// User represents a community member.
type User struct {
	ID           string
	Email        string
	FullName     string
	Role         Role
	AvatarURL    string
	PasswordHash string
	TeamID       *string
	FieldID      *string
	CreatedAt    time.Time
}

// Visibility is the membership eligibility class of a room.
type Visibility string

const (
	VisibilityPublic      Visibility = "PUBLIC"
	VisibilityMembersOnly Visibility = "MEMBERS_ONLY"
	VisibilityLeadsOnly   Visibility = "LEADS_ONLY"
	VisibilityHidden      Visibility = "HIDDEN"
)

// Valid reports whether v is a known visibility class.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityMembersOnly, VisibilityLeadsOnly, VisibilityHidden:
		return true
	default:
		return false
	}
}

// Room represents a chat channel.
type Room struct {
	ID         string
	Name       string
	Visibility Visibility
	IsGroup    bool
	TeamID     *string
	FieldID    *string
	CreatedAt  time.Time
}

// Message represents a persisted chat message.
// Sender is populated by ListMessages from the users table.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Type      string
	Content   string
	FileURL   string
	CreatedAt time.Time
	Sender    Sender
}

// Sender is the public part of a user attached to messages.
type Sender struct {
	ID        string
	FullName  string
	Role      Role
	AvatarURL string
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a user. ID and CreatedAt are assigned when empty.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUserRole changes the role of a user.
	UpdateUserRole(ctx context.Context, id string, role Role) error
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom inserts a room. ID and CreatedAt are assigned when empty.
	CreateRoom(ctx context.Context, room *Room) error

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id string) (*Room, error)

	// ListRooms lists every room ordered by creation time.
	ListRooms(ctx context.Context) ([]*Room, error)

	// AddMember grants a user explicit membership of a room.
	AddMember(ctx context.Context, userID, roomID string) error

	// IsMember checks explicit membership.
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage appends a message. ID and CreatedAt are assigned when empty.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns messages of a room in store order.
	// A zero limit returns every message since room creation,
	// a positive limit returns only the newest limit messages.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
