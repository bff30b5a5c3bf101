package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage notifies clients about a chat message in a room.
	EventRoomMessage EventKind = iota
	// EventUserTyping notifies clients that a user started composing.
	EventUserTyping
	// EventUserStoppedTyping notifies clients that a user stopped composing.
	EventUserStoppedTyping
	// EventUserJoined notifies clients about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving a room.
	EventUserLeft
	// EventAck confirms a command that carried a ref.
	EventAck
	// EventError notifies clients about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventRoomMessage:
		return "newMessage"
	case EventUserTyping:
		return "userTyping"
	case EventUserStoppedTyping:
		return "userStoppedTyping"
	case EventUserJoined:
		return "userJoined"
	case EventUserLeft:
		return "userLeft"
	case EventAck:
		return "ack"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Relayable reports whether the event is room scoped and may cross instances.
func (k EventKind) Relayable() bool {
	switch k {
	case EventRoomMessage, EventUserTyping, EventUserStoppedTyping, EventUserJoined, EventUserLeft:
		return true
	case EventAck, EventError:
		return false
	default:
		return false
	}
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after broadcast.
type Event struct {
	Kind    EventKind
	Ref     string
	Room    string
	User    User
	Message *Message // EventRoomMessage, or the stored message on a sendMessage ack
	Error   *CoreError
}
