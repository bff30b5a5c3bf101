package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gdscnexus/nexus-chat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent asserts that no event of kind arrives within wait.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func startHub(t *testing.T, st MessageStore, access AccessChecker, opts ...Option) *Hub {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(st, access, opts...)
	go hub.Run(ctx)
	return hub
}

func newUserClient(hub *Hub, id, name string) *Client {
	c := NewClient("conn-"+id, &User{ID: id, Name: name, Role: "MEMBER"})
	hub.RegisterClient(c)
	return c
}

type memoryStore struct {
	mu       sync.Mutex
	messages []*store.Message
	fail     bool
}

func (m *memoryStore) SaveMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	msg.ID = "m" + string(rune('0'+len(m.messages)))
	msg.CreatedAt = time.Unix(1700000000, 0).UTC()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryStore) saved() []*store.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.Message(nil), m.messages...)
}

type mapAccess map[string]bool

func (a mapAccess) CanAccess(_ context.Context, _ string, roomID string) (bool, error) {
	allowed, ok := a[roomID]
	if !ok {
		return false, store.ErrNotFound
	}
	return allowed, nil
}

type recordingRelay struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recordingRelay) Publish(ev *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingRelay) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}
