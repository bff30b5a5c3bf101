package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/gdscnexus/nexus-chat/internal/store"
	"github.com/gdscnexus/nexus-chat/internal/store/sqlite"
)

func newTestDirectory(t *testing.T) (*Directory, *sqlite.SQLiteStore) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, st), st
}

func TestListRoomsFiltersByVisibility(t *testing.T) {
	dir, st := newTestDirectory(t)
	ctx := context.Background()

	user := &store.User{Email: "u@example.com", FullName: "U", Role: store.RoleMember}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	rooms := map[string]*store.Room{
		"general": {Name: "general", Visibility: store.VisibilityPublic, IsGroup: true},
		"members": {Name: "members", Visibility: store.VisibilityMembersOnly, IsGroup: true},
		"leads":   {Name: "leads", Visibility: store.VisibilityLeadsOnly, IsGroup: true},
		"secret":  {Name: "secret", Visibility: store.VisibilityHidden, IsGroup: true},
		"invited": {Name: "invited", Visibility: store.VisibilityHidden, IsGroup: true},
	}
	for _, name := range []string{"general", "members", "leads", "secret", "invited"} {
		if err := st.CreateRoom(ctx, rooms[name]); err != nil {
			t.Fatalf("create room %s: %v", name, err)
		}
	}
	if err := st.AddMember(ctx, user.ID, rooms["invited"].ID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	got, err := dir.ListRooms(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	names := map[string]bool{}
	for _, r := range got {
		names[r.Name] = true
	}
	for _, want := range []string{"general", "members", "invited"} {
		if !names[want] {
			t.Fatalf("expected %s to be listed, got %v", want, names)
		}
	}
	for _, hidden := range []string{"leads", "secret"} {
		if names[hidden] {
			t.Fatalf("expected %s to be filtered, got %v", hidden, names)
		}
	}
}

func TestCanAccess(t *testing.T) {
	dir, st := newTestDirectory(t)
	ctx := context.Background()

	user := &store.User{Email: "u@example.com", FullName: "U"}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	leads := &store.Room{Name: "leads", Visibility: store.VisibilityLeadsOnly}
	if err := st.CreateRoom(ctx, leads); err != nil {
		t.Fatalf("create room: %v", err)
	}

	ok, err := dir.CanAccess(ctx, user.ID, leads.ID)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatalf("USER must not access leads-only room")
	}

	if err := st.UpdateUserRole(ctx, user.ID, store.RoleLead); err != nil {
		t.Fatalf("update role: %v", err)
	}
	ok, err = dir.CanAccess(ctx, user.ID, leads.ID)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if !ok {
		t.Fatalf("LEAD must access leads-only room")
	}

	if _, err := dir.CanAccess(ctx, user.ID, "missing"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := dir.CanAccess(ctx, "ghost", leads.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
