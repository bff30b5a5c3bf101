package chatclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingTrackerOverwrites(t *testing.T) {
	tr := NewTypingTracker()

	assert.True(t, tr.Apply(Event{Kind: EventUserTyping, UserID: "a", UserName: "Alice"}))
	assert.False(t, tr.Apply(Event{Kind: EventUserTyping, UserID: "a", UserName: "Alice"}))
	assert.Equal(t, 1, tr.Len())

	assert.True(t, tr.Start("a", "Alice B."))
	assert.Equal(t, map[string]string{"a": "Alice B."}, tr.Snapshot())
}

func TestTypingTrackerStopUnknownIsNoop(t *testing.T) {
	tr := NewTypingTracker()
	tr.Start("a", "Alice")

	assert.False(t, tr.Apply(Event{Kind: EventUserStoppedTyping, UserID: "ghost"}))
	assert.Equal(t, 1, tr.Len())

	assert.True(t, tr.Apply(Event{Kind: EventUserStoppedTyping, UserID: "a"}))
	assert.Zero(t, tr.Len())
	assert.False(t, tr.Stop("a"))
}

func TestTypingTrackerLeaveClearsEntry(t *testing.T) {
	tr := NewTypingTracker()
	tr.Start("a", "Alice")
	assert.True(t, tr.Apply(Event{Kind: EventUserLeft, UserID: "a"}))
	assert.False(t, tr.Apply(Event{Kind: EventNewMessage, UserID: "a"}))
	assert.Zero(t, tr.Len())
}

func TestTypingTrackerSnapshotIsCopy(t *testing.T) {
	tr := NewTypingTracker()
	tr.Start("a", "Alice")
	snap := tr.Snapshot()
	snap["b"] = "Bob"
	tr.Reset()

	assert.Zero(t, tr.Len())
	assert.Len(t, snap, 2)
}

func TestTypingTrackerIgnoresEmptyID(t *testing.T) {
	tr := NewTypingTracker()
	assert.False(t, tr.Start("", "nobody"))
	assert.Zero(t, tr.Len())
}

type signalLog struct {
	mu      sync.Mutex
	signals []bool
}

func (l *signalLog) emit(_ string, typing bool) {
	l.mu.Lock()
	l.signals = append(l.signals, typing)
	l.mu.Unlock()
}

func (l *signalLog) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.signals...)
}

func TestTypingSignalerRearms(t *testing.T) {
	log := &signalLog{}
	s := newTypingSignaler(40*time.Millisecond, log.emit)

	s.keystroke("r")
	time.Sleep(20 * time.Millisecond)
	s.keystroke("r")
	time.Sleep(25 * time.Millisecond)
	// the second keystroke pushed expiry past the first deadline
	assert.Equal(t, []bool{true, true}, log.snapshot())
	assert.True(t, s.armed())

	require.Eventually(t, func() bool { return len(log.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, true, false}, log.snapshot())
	assert.False(t, s.armed())
}

func TestTypingSignalerCancel(t *testing.T) {
	log := &signalLog{}
	s := newTypingSignaler(20*time.Millisecond, log.emit)

	s.keystroke("r")
	s.cancel()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []bool{true}, log.snapshot())
	assert.False(t, s.armed())
}

func TestTypingSignalerDefaultIdle(t *testing.T) {
	s := newTypingSignaler(0, func(string, bool) {})
	assert.Equal(t, DefaultTypingIdle, s.idle)
}
