package core

import (
	"sort"
	"time"
)

// DefaultTypingTimeout is how long a typing mark lives without a refresh.
const DefaultTypingTimeout = 3 * time.Second

type typingKey struct {
	Room   string
	UserID string
}

type typingEntry struct {
	name     string
	deadline time.Time
}

// typingTracker keeps one deadline per (room, user). Not safe for concurrent use;
// the hub goroutine owns it.
type typingTracker struct {
	timeout time.Duration
	entries map[typingKey]typingEntry
}

func newTypingTracker(timeout time.Duration) *typingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &typingTracker{
		timeout: timeout,
		entries: make(map[typingKey]typingEntry),
	}
}

// Touch refreshes the deadline. It reports whether the user was not typing before.
func (t *typingTracker) Touch(room, userID, name string, now time.Time) bool {
	key := typingKey{Room: room, UserID: userID}
	_, existed := t.entries[key]
	t.entries[key] = typingEntry{name: name, deadline: now.Add(t.timeout)}
	return !existed
}

// Stop removes the entry. It reports whether one existed.
func (t *typingTracker) Stop(room, userID string) bool {
	key := typingKey{Room: room, UserID: userID}
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

// Expire removes and returns every entry whose deadline is not after now.
func (t *typingTracker) Expire(now time.Time) []typingKey {
	var expired []typingKey
	for key, entry := range t.entries {
		if !entry.deadline.After(now) {
			expired = append(expired, key)
			delete(t.entries, key)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].Room != expired[j].Room {
			return expired[i].Room < expired[j].Room
		}
		return expired[i].UserID < expired[j].UserID
	})
	return expired
}

// Len returns the number of live entries.
func (t *typingTracker) Len() int {
	return len(t.entries)
}
