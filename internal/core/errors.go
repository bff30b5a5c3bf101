package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeAlreadyJoined      = "already_joined"
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeInternal           = "internal"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadyJoined = errors.New("already joined")
	ErrNotInRoom     = errors.New("not in room")
	ErrBadRequest    = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError; transports use it for protocol level failures.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
