package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate binds a resolved identity to the client.
	CommandAuthenticate CommandKind = iota
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
	// CommandTyping marks the user as composing in a room.
	CommandTyping
	// CommandStopTyping clears the composing mark.
	CommandStopTyping
)

func (k CommandKind) String() string {
	switch k {
	case CommandAuthenticate:
		return "authenticate"
	case CommandJoinRoom:
		return "joinRoom"
	case CommandLeaveRoom:
		return "leaveRoom"
	case CommandSendRoomMessage:
		return "sendMessage"
	case CommandTyping:
		return "typing"
	case CommandStopTyping:
		return "stopTyping"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// A non-empty Ref asks the hub for an ack or a correlated error.
type Command struct {
	Kind    CommandKind
	Ref     string
	Room    string
	Message Message
	User    *User // CommandAuthenticate only
}
