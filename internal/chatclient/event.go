// Package chatclient is the client side of the chat: a realtime channel with
// acknowledged requests, a REST client and the per-user session controller.
package chatclient

import (
	"encoding/json"
	"fmt"

	"github.com/gdscnexus/nexus-chat/internal/proto"
)

// Wire shapes shared with the server.
type (
	Message = proto.Message
	Room    = proto.Room
	User    = proto.User
)

// EventKind is an inbound notification from the channel.
type EventKind int

const (
	EventNewMessage EventKind = iota
	EventUserTyping
	EventUserStoppedTyping
	EventUserJoined
	EventUserLeft
	// EventError is an error frame that did not answer a pending request.
	EventError
	// EventDisconnected is the last event of a channel.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return proto.EventNewMessage
	case EventUserTyping:
		return proto.EventUserTyping
	case EventUserStoppedTyping:
		return proto.EventUserStoppedTyping
	case EventUserJoined:
		return proto.EventUserJoined
	case EventUserLeft:
		return proto.EventUserLeft
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a decoded server notification.
type Event struct {
	Kind     EventKind
	RoomID   string
	UserID   string
	UserName string
	Message  *proto.Message
	Err      error
}

// eventFromFrame decodes an "event" frame. ok is false for unknown events.
func eventFromFrame(frame proto.Frame) (Event, bool, error) {
	switch frame.Event {
	case proto.EventNewMessage:
		var msg proto.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		return Event{Kind: EventNewMessage, RoomID: msg.RoomID, UserID: msg.Sender.ID, UserName: msg.Sender.FullName, Message: &msg}, true, nil
	case proto.EventUserTyping:
		var data proto.UserTypingData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		return Event{Kind: EventUserTyping, RoomID: data.RoomID, UserID: data.UserID, UserName: data.UserName}, true, nil
	case proto.EventUserStoppedTyping:
		var data proto.UserStoppedTypingData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		return Event{Kind: EventUserStoppedTyping, RoomID: data.RoomID, UserID: data.UserID}, true, nil
	case proto.EventUserJoined, proto.EventUserLeft:
		var data proto.PresenceData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		kind := EventUserJoined
		if frame.Event == proto.EventUserLeft {
			kind = EventUserLeft
		}
		return Event{Kind: kind, RoomID: data.RoomID, UserID: data.UserID, UserName: data.UserName}, true, nil
	default:
		return Event{}, false, nil
	}
}
