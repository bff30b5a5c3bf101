package directory

import "github.com/gdscnexus/nexus-chat/internal/store"

// Eligible applies the visibility policy of room to user.
// explicitMember is true when the user was added to the room by an administrator.
func Eligible(user *store.User, room *store.Room, explicitMember bool) bool {
	if user == nil || room == nil {
		return false
	}
	if user.Role == store.RoleAdmin || explicitMember {
		return true
	}

	switch room.Visibility {
	case store.VisibilityHidden:
		return false
	case store.VisibilityPublic:
	case store.VisibilityMembersOnly:
		if !user.Role.AtLeast(store.RoleMember) {
			return false
		}
	case store.VisibilityLeadsOnly:
		if !user.Role.AtLeast(store.RoleLead) {
			return false
		}
	default:
		return false
	}

	return matchesScope(user, room)
}

// matchesScope checks the optional field and team association of a room.
// A lead of the room's field may enter any team room of that field.
func matchesScope(user *store.User, room *store.Room) bool {
	fieldOK := room.FieldID == nil || sameID(user.FieldID, room.FieldID)
	if !fieldOK {
		return false
	}
	if room.TeamID == nil || sameID(user.TeamID, room.TeamID) {
		return true
	}
	return room.FieldID != nil && user.Role.AtLeast(store.RoleLead)
}

func sameID(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
