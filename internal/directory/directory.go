// Package directory decides which rooms a user may see and join.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdscnexus/nexus-chat/internal/store"
)

var (
	// ErrRoomNotFound is returned when the room does not exist. It wraps store.ErrNotFound.
	ErrRoomNotFound = fmt.Errorf("room %w", store.ErrNotFound)
	// ErrUserNotFound is returned when the viewer does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Directory answers room listing and access questions from the store.
type Directory struct {
	users store.UserStore
	rooms store.RoomStore
}

// New creates a Directory.
func New(users store.UserStore, rooms store.RoomStore) *Directory {
	return &Directory{users: users, rooms: rooms}
}

// ListRooms returns the rooms userID may join, in store order.
func (d *Directory) ListRooms(ctx context.Context, userID string) ([]*store.Room, error) {
	user, err := d.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rooms, err := d.rooms.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	visible := make([]*store.Room, 0, len(rooms))
	for _, room := range rooms {
		member, err := d.rooms.IsMember(ctx, user.ID, room.ID)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if Eligible(user, room, member) {
			visible = append(visible, room)
		}
	}
	return visible, nil
}

// CanAccess reports whether userID may read and send in roomID.
// It returns ErrRoomNotFound for unknown rooms.
func (d *Directory) CanAccess(ctx context.Context, userID, roomID string) (bool, error) {
	room, err := d.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrRoomNotFound
		}
		return false, fmt.Errorf("load room: %w", err)
	}

	user, err := d.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}

	member, err := d.rooms.IsMember(ctx, user.ID, room.ID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return Eligible(user, room, member), nil
}

func (d *Directory) loadUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
