package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gdscnexus/nexus-chat/internal/proto"
)

type call struct {
	op   string
	room string
}

// fakeRealtime records every request and lets tests inject events.
type fakeRealtime struct {
	mu      sync.Mutex
	calls   []call
	sent    []OutgoingMessage
	events  chan Event
	closed  bool
	echo    bool
	nextID  int
	joinErr error
	sendErr error
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{events: make(chan Event, 64)}
}

func (f *fakeRealtime) record(op, room string) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: op, room: room})
	f.mu.Unlock()
}

func (f *fakeRealtime) JoinRoom(_ context.Context, roomID string) error {
	f.record("join", roomID)
	return f.joinErr
}

func (f *fakeRealtime) LeaveRoom(_ context.Context, roomID string) error {
	f.record("leave", roomID)
	return nil
}

func (f *fakeRealtime) SendMessage(_ context.Context, msg OutgoingMessage) (*proto.Message, error) {
	f.record("send", msg.RoomID)
	if f.sendErr != nil {
		return nil, f.sendErr
	}

	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.nextID++
	stored := &proto.Message{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		RoomID:    msg.RoomID,
		Content:   msg.Content,
		Type:      msg.Type,
		FileURL:   msg.FileURL,
		Sender:    proto.Sender{ID: msg.SenderID, FullName: msg.SenderName},
		CreatedAt: time.Now(),
	}
	echo := f.echo
	f.mu.Unlock()

	if echo {
		f.push(Event{Kind: EventNewMessage, RoomID: stored.RoomID, UserID: stored.Sender.ID, Message: stored})
	}
	return stored, nil
}

func (f *fakeRealtime) Typing(_ context.Context, roomID string) error {
	f.record("typing", roomID)
	return nil
}

func (f *fakeRealtime) StopTyping(_ context.Context, roomID string) error {
	f.record("stopTyping", roomID)
	return nil
}

func (f *fakeRealtime) Events() <-chan Event {
	return f.events
}

func (f *fakeRealtime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeRealtime) push(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- ev
	}
}

// drop simulates a lost connection.
func (f *fakeRealtime) drop(err error) {
	f.push(Event{Kind: EventDisconnected, Err: err})
}

func (f *fakeRealtime) callsOf(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rooms []string
	for _, c := range f.calls {
		if c.op == op {
			rooms = append(rooms, c.room)
		}
	}
	return rooms
}

func (f *fakeRealtime) allCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeRealtime) sentMessages() []OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OutgoingMessage(nil), f.sent...)
}

// fakeBackend serves canned history and uploads.
type fakeBackend struct {
	mu         sync.Mutex
	history    map[string][]Message
	historyErr error
	uploads    []string
	uploadErr  error
	// gate, when set, blocks Upload until it is closed.
	gate chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{history: make(map[string][]Message)}
}

func (b *fakeBackend) History(_ context.Context, roomID string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	return append([]Message(nil), b.history[roomID]...), nil
}

func (b *fakeBackend) Upload(ctx context.Context, filename string, _ []byte) (string, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, filename)
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	return "http://media.test/" + filename, nil
}

func (b *fakeBackend) uploadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uploads)
}

type fakeRecorder struct {
	clip     []byte
	started  bool
	startErr error
}

func (r *fakeRecorder) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	return nil
}

func (r *fakeRecorder) Stop() ([]byte, error) {
	if !r.started {
		return nil, errors.New("not started")
	}
	r.started = false
	return r.clip, nil
}

// noticeLog collects notices from the session hooks.
type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) add(n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

func (l *noticeLog) texts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.notices))
	for _, n := range l.notices {
		out = append(out, n.Text)
	}
	return out
}
