package chatclient

import (
	"maps"
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke stopTyping is sent.
const DefaultTypingIdle = 2 * time.Second

// TypingTracker is the observer side: who is composing in the active room.
// Entries are keyed by user id, so repeated userTyping overwrites.
// Expiry is the server's job; the tracker only follows events.
type TypingTracker struct {
	users map[string]string
}

// NewTypingTracker returns an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{users: make(map[string]string)}
}

// Apply folds a typing event into the map and reports whether it changed.
func (t *TypingTracker) Apply(ev Event) bool {
	switch ev.Kind {
	case EventUserTyping:
		return t.Start(ev.UserID, ev.UserName)
	case EventUserStoppedTyping, EventUserLeft:
		return t.Stop(ev.UserID)
	default:
		return false
	}
}

// Start marks userID as typing.
func (t *TypingTracker) Start(userID, userName string) bool {
	if userID == "" {
		return false
	}
	prev, ok := t.users[userID]
	t.users[userID] = userName
	return !ok || prev != userName
}

// Stop removes userID. Unknown users are a no-op.
func (t *TypingTracker) Stop(userID string) bool {
	if _, ok := t.users[userID]; !ok {
		return false
	}
	delete(t.users, userID)
	return true
}

// Reset forgets everyone.
func (t *TypingTracker) Reset() {
	clear(t.users)
}

// Len returns the number of users typing.
func (t *TypingTracker) Len() int {
	return len(t.users)
}

// Snapshot returns a copy of the map.
func (t *TypingTracker) Snapshot() map[string]string {
	return maps.Clone(t.users)
}

// typingSignaler is the sender side: every keystroke emits typing and re-arms
// an idle timer whose expiry emits stopTyping.
type typingSignaler struct {
	idle time.Duration
	emit func(roomID string, typing bool)

	mu    sync.Mutex
	timer *time.Timer
	room  string
	gen   uint64
}

func newTypingSignaler(idle time.Duration, emit func(roomID string, typing bool)) *typingSignaler {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &typingSignaler{idle: idle, emit: emit}
}

func (s *typingSignaler) keystroke(roomID string) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.room = roomID
	s.timer = time.AfterFunc(s.idle, func() { s.expire(gen) })
	s.mu.Unlock()

	s.emit(roomID, true)
}

func (s *typingSignaler) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	room := s.room
	s.mu.Unlock()

	s.emit(room, false)
}

// cancel disarms the timer without emitting stopTyping.
func (s *typingSignaler) cancel() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.mu.Unlock()
}

func (s *typingSignaler) armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
