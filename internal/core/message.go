package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidMessage is returned when a message violates its type rules.
var ErrInvalidMessage = errors.New("invalid message")

// DefaultMaxTextLength bounds TEXT content in runes.
const DefaultMaxTextLength = 4000

// MessageType is the closed set of message kinds.
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageFile  MessageType = "FILE"
	MessageAudio MessageType = "AUDIO"
)

// ParseMessageType maps a wire value to a MessageType. Empty means TEXT.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", MessageText:
		return MessageText, nil
	case MessageImage:
		return MessageImage, nil
	case MessageFile:
		return MessageFile, nil
	case MessageAudio:
		return MessageAudio, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, s)
	}
}

// IsMedia reports whether the type carries a file URL.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageImage, MessageFile, MessageAudio:
		return true
	case MessageText:
		return false
	default:
		return false
	}
}

// Placeholder is the fixed content of media messages.
func (t MessageType) Placeholder() string {
	switch t {
	case MessageImage:
		return "Sent an image"
	case MessageFile:
		return "Sent a file"
	case MessageAudio:
		return "Sent a voice message"
	case MessageText:
		return ""
	default:
		return ""
	}
}

// Sender is the public identity attached to a message.
type Sender struct {
	ID        string
	FullName  string
	Role      string
	AvatarURL string
}

// Message is the domain model for a chat message.
type Message struct {
	ID        string
	Room      string
	Type      MessageType
	Content   string
	FileURL   string
	Sender    Sender
	CreatedAt time.Time
}

// Normalize validates m against its type and returns the canonical form:
// TEXT content is trimmed, media content is replaced by the placeholder.
func (m Message) Normalize(maxTextLength int) (Message, error) {
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}

	switch m.Type {
	case MessageText:
		m.Content = strings.TrimSpace(m.Content)
		if m.Content == "" {
			return m, fmt.Errorf("%w: empty content", ErrInvalidMessage)
		}
		if utf8.RuneCountInString(m.Content) > maxTextLength {
			return m, fmt.Errorf("%w: content longer than %d characters", ErrInvalidMessage, maxTextLength)
		}
		m.FileURL = ""
	case MessageImage, MessageFile, MessageAudio:
		m.FileURL = strings.TrimSpace(m.FileURL)
		if m.FileURL == "" {
			return m, fmt.Errorf("%w: %s requires fileUrl", ErrInvalidMessage, m.Type)
		}
		m.Content = m.Type.Placeholder()
	default:
		return m, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return m, nil
}
