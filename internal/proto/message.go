// Package proto defines the JSON shapes exchanged over the chat WebSocket and REST API.
package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewInbound encodes data into an Inbound envelope.
func NewInbound(typ, ref string, data any) (Inbound, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Type: typ, Ref: ref, Data: raw}, nil
}

const (
	ProtocolVersion = 1

	InboundTypeAuthenticate = "authenticate"
	InboundTypeJoinRoom     = "joinRoom"
	InboundTypeLeaveRoom    = "leaveRoom"
	InboundTypeSendMessage  = "sendMessage"
	InboundTypeTyping       = "typing"
	InboundTypeStopTyping   = "stopTyping"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventNewMessage        = "newMessage"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserJoined        = "userJoined"
	EventUserLeft          = "userLeft"
)

// AuthenticateData carries the bearer credential for the connection.
type AuthenticateData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// RoomData targets a room (joinRoom, leaveRoom).
type RoomData struct {
	RoomID string `json:"roomId"`
}

// SendMessageData is a chat message from the client.
// Sender fields are advisory; the server uses the authenticated identity.
type SendMessageData struct {
	RoomID     string `json:"roomId"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	FileURL    string `json:"fileUrl,omitempty"`
	SenderID   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
}

// TypingData announces composing in a room.
type TypingData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
}

// StopTypingData clears the composing mark.
type StopTypingData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Ref   string `json:"ref,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Frame is Outbound as seen by a decoder: Data stays raw until the event is known.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Sender is the public identity attached to a message.
type Sender struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Message is the wire shape of a chat message, shared by newMessage and history.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	FileURL   string    `json:"fileUrl,omitempty"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserTypingData is the payload of userTyping.
type UserTypingData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// UserStoppedTypingData is the payload of userStoppedTyping.
type UserStoppedTypingData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// PresenceData is the payload of userJoined and userLeft.
type PresenceData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// AckData confirms a command. Message is set for sendMessage.
type AckData struct {
	RoomID  string   `json:"roomId,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// Room is the REST shape of a chat room.
type Room struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Visibility string  `json:"visibility"`
	IsGroup    bool    `json:"isGroup"`
	TeamID     *string `json:"teamId,omitempty"`
	FieldID    *string `json:"fieldId,omitempty"`
}

// User is the REST shape of the current user.
type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"fullName"`
	Role      string  `json:"role"`
	AvatarURL string  `json:"avatarUrl,omitempty"`
	TeamID    *string `json:"teamId,omitempty"`
	FieldID   *string `json:"fieldId,omitempty"`
}

// UploadResult is returned by the upload endpoint.
type UploadResult struct {
	URL         string `json:"url"`
	SecureURL   string `json:"secure_url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}
