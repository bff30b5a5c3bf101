package chatclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/proto"
)

var self = User{ID: "u-self", FullName: "Self"}

type harness struct {
	session *Session
	rt      *fakeRealtime
	backend *fakeBackend
	notices *noticeLog
}

func newHarness(t *testing.T, mutate func(*SessionConfig)) *harness {
	t.Helper()

	h := &harness{
		rt:      newFakeRealtime(),
		backend: newFakeBackend(),
		notices: &noticeLog{},
	}
	cfg := SessionConfig{
		Dial:    func(context.Context) (Realtime, error) { return h.rt, nil },
		Backend: h.backend,
		Self:    self,
		Hooks:   Hooks{OnNotice: h.notices.add},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.session = NewSession(cfg)
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

func (h *harness) connectAndSelect(t *testing.T, room string) {
	t.Helper()
	require.NoError(t, h.session.Connect(context.Background()))
	require.NoError(t, h.session.SelectRoom(context.Background(), room))
	require.Equal(t, StateActiveRoom, h.session.State())
}

func contents(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func liveMessage(id, room, senderID, content string) Event {
	msg := &proto.Message{
		ID:      id,
		RoomID:  room,
		Content: content,
		Type:    string(core.MessageText),
		Sender:  proto.Sender{ID: senderID},
	}
	return Event{Kind: EventNewMessage, RoomID: room, UserID: senderID, Message: msg}
}

const eventually = time.Second
const tick = 5 * time.Millisecond

func TestSelectRoomClearsPreviousRoomState(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.history["r2"] = []Message{{ID: "h1", RoomID: "r2", Content: "old"}}
	h.connectAndSelect(t, "r1")

	h.rt.push(liveMessage("m1", "r1", "u-a", "in r1"))
	h.rt.push(Event{Kind: EventUserTyping, RoomID: "r1", UserID: "u-a", UserName: "A"})
	require.Eventually(t, func() bool {
		return len(h.session.Messages()) == 1 && len(h.session.Typing()) == 1
	}, eventually, tick)

	require.NoError(t, h.session.SelectRoom(context.Background(), "r2"))

	assert.Equal(t, []string{"old"}, contents(h.session.Messages()))
	assert.Empty(t, h.session.Typing())
	assert.Equal(t, "r2", h.session.Room())

	calls := h.rt.allCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, call{op: "join", room: "r1"}, calls[0])
	assert.Equal(t, call{op: "leave", room: "r1"}, calls[1])
	assert.Equal(t, call{op: "join", room: "r2"}, calls[2])

	// late events for r1 are ignored; r2 events go through
	h.rt.push(liveMessage("m2", "r1", "u-a", "late r1"))
	h.rt.push(Event{Kind: EventUserTyping, RoomID: "r1", UserID: "u-a", UserName: "A"})
	h.rt.push(liveMessage("m3", "r2", "u-b", "in r2"))
	require.Eventually(t, func() bool { return len(h.session.Messages()) == 2 }, eventually, tick)
	assert.Equal(t, []string{"old", "in r2"}, contents(h.session.Messages()))
	assert.Empty(t, h.session.Typing())
}

func TestSelectRoomBumpsGeneration(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "r1")
	g := h.session.Generation()
	require.NoError(t, h.session.SelectRoom(context.Background(), "r2"))
	assert.Equal(t, g+1, h.session.Generation())
}

func TestSelectRoomRequiresConnection(t *testing.T) {
	h := newHarness(t, nil)
	err := h.session.SelectRoom(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSelectRoomJoinFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.rt.joinErr = &proto.Error{Code: core.ErrCodeForbidden, Msg: "access denied"}
	require.NoError(t, h.session.Connect(context.Background()))

	err := h.session.SelectRoom(context.Background(), "secret")
	require.Error(t, err)
	var perr *proto.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, core.ErrCodeForbidden, perr.Code)
	assert.Equal(t, StateConnected, h.session.State())
	assert.Contains(t, h.notices.texts(), "could not join room")
}

func TestSelectRoomAcceptsAlreadyJoined(t *testing.T) {
	h := newHarness(t, nil)
	h.rt.joinErr = &proto.Error{Code: core.ErrCodeAlreadyJoined, Msg: "already joined"}
	h.connectAndSelect(t, "r1")
}

func TestHistoryFailureLeavesEmptyList(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.historyErr = errors.New("boom")
	h.connectAndSelect(t, "general")

	assert.Empty(t, h.session.Messages())
	assert.Equal(t, []string{"could not load history"}, h.notices.texts())
	assert.Equal(t, []string{"general"}, h.rt.callsOf("join"))
}

func TestMediaMessagesCarryPlaceholder(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")

	for _, typ := range []core.MessageType{core.MessageImage, core.MessageFile, core.MessageAudio} {
		require.NoError(t, h.session.SendMedia(context.Background(), typ, "f-"+string(typ), []byte("data")))
	}

	sent := h.rt.sentMessages()
	require.Len(t, sent, 3)
	for _, msg := range sent {
		typ := core.MessageType(msg.Type)
		assert.True(t, typ.IsMedia())
		assert.NotEmpty(t, msg.FileURL)
		assert.Equal(t, typ.Placeholder(), msg.Content)
		assert.Equal(t, "general", msg.RoomID)
	}
	assert.False(t, h.session.Uploading())
}

func TestSendMediaRejectsText(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")
	err := h.session.SendMedia(context.Background(), core.MessageText, "x", []byte("data"))
	assert.ErrorIs(t, err, ErrNotMedia)
	assert.Zero(t, h.backend.uploadCount())
}

func TestUploadFailureClearsFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.uploadErr = errors.New("disk full")
	h.connectAndSelect(t, "general")

	err := h.session.SendMedia(context.Background(), core.MessageImage, "a.png", []byte("data"))
	require.Error(t, err)
	assert.False(t, h.session.Uploading())
	assert.Empty(t, h.rt.sentMessages())
	assert.Equal(t, []string{"upload failed"}, h.notices.texts())
}

func TestRoundTripMessageAppearsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")

	require.NoError(t, h.session.SendText(context.Background(), "hello"))
	assert.Empty(t, h.session.Messages(), "no optimistic insert")

	echo := liveMessage("srv-1", "general", self.ID, "hello")
	h.rt.push(echo)
	h.rt.push(echo)
	h.rt.push(liveMessage("srv-2", "general", "u-b", "after"))

	require.Eventually(t, func() bool { return len(h.session.Messages()) == 2 }, eventually, tick)
	assert.Equal(t, []string{"hello", "after"}, contents(h.session.Messages()))
}

func TestEndToEndHi(t *testing.T) {
	h := newHarness(t, nil)
	h.rt.echo = true
	h.connectAndSelect(t, "general")
	require.Empty(t, h.session.Messages())

	require.NoError(t, h.session.SendText(context.Background(), "hi"))

	require.Eventually(t, func() bool { return len(h.session.Messages()) == 1 }, eventually, tick)
	msgs := h.session.Messages()
	assert.Equal(t, []string{"hi"}, contents(msgs))
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, self.ID, msgs[0].Sender.ID)
}

func TestSendTextValidation(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.session.SendText(context.Background(), "hi"), ErrNotConnected)

	require.NoError(t, h.session.Connect(context.Background()))
	assert.ErrorIs(t, h.session.SendText(context.Background(), "hi"), ErrNoActiveRoom)

	require.NoError(t, h.session.SelectRoom(context.Background(), "general"))
	assert.ErrorIs(t, h.session.SendText(context.Background(), "   "), ErrEmptyMessage)
	assert.Empty(t, h.rt.sentMessages())
}

func TestSendTextCarriesSelf(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")
	require.NoError(t, h.session.SendText(context.Background(), "  padded  "))

	sent := h.rt.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "padded", sent[0].Content)
	assert.Equal(t, string(core.MessageText), sent[0].Type)
	assert.Equal(t, self.ID, sent[0].SenderID)
	assert.Equal(t, self.FullName, sent[0].SenderName)
}

func TestSendErrorSurfacesNotice(t *testing.T) {
	h := newHarness(t, nil)
	h.rt.sendErr = ErrAckTimeout
	h.connectAndSelect(t, "general")

	err := h.session.SendText(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.Equal(t, []string{"message not sent"}, h.notices.texts())
}

func TestShortRecordingRejected(t *testing.T) {
	rec := &fakeRecorder{clip: make([]byte, MinRecordingBytes-1)}
	h := newHarness(t, func(cfg *SessionConfig) { cfg.Recorder = rec })
	h.connectAndSelect(t, "general")

	require.NoError(t, h.session.StartRecording())
	assert.True(t, h.session.Recording())

	err := h.session.StopRecording(context.Background())
	assert.ErrorIs(t, err, ErrRecordingTooShort)
	assert.False(t, h.session.Recording())
	assert.Zero(t, h.backend.uploadCount())
	assert.Empty(t, h.rt.sentMessages())
	assert.Equal(t, []string{"recording too short"}, h.notices.texts())
}

func TestRecordingSentAsAudio(t *testing.T) {
	rec := &fakeRecorder{clip: make([]byte, MinRecordingBytes)}
	h := newHarness(t, func(cfg *SessionConfig) { cfg.Recorder = rec })
	h.connectAndSelect(t, "general")

	require.NoError(t, h.session.StartRecording())
	assert.ErrorIs(t, h.session.StartRecording(), ErrAlreadyRecording)
	require.NoError(t, h.session.StopRecording(context.Background()))

	sent := h.rt.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, string(core.MessageAudio), sent[0].Type)
	assert.Equal(t, core.MessageAudio.Placeholder(), sent[0].Content)
	assert.NotEmpty(t, sent[0].FileURL)
}

func TestRecordingErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")
	assert.ErrorIs(t, h.session.StartRecording(), ErrNoRecorder)
	assert.ErrorIs(t, h.session.StopRecording(context.Background()), ErrNotRecording)
}

func TestObserverTypingIsNotExpiredLocally(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")

	h.rt.push(Event{Kind: EventUserTyping, RoomID: "general", UserID: "u-a", UserName: "A"})
	require.Eventually(t, func() bool { return len(h.session.Typing()) == 1 }, eventually, tick)

	time.Sleep(DefaultTypingIdle + 100*time.Millisecond)

	// observers keep the entry until the server says otherwise
	assert.Equal(t, map[string]string{"u-a": "A"}, h.session.Typing())

	h.rt.push(Event{Kind: EventUserStoppedTyping, RoomID: "general", UserID: "u-a"})
	require.Eventually(t, func() bool { return len(h.session.Typing()) == 0 }, eventually, tick)
}

func TestOwnTypingEventsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")

	h.rt.push(Event{Kind: EventUserTyping, RoomID: "general", UserID: self.ID, UserName: self.FullName})
	h.rt.push(Event{Kind: EventUserTyping, RoomID: "general", UserID: "u-b", UserName: "B"})
	require.Eventually(t, func() bool { return len(h.session.Typing()) == 1 }, eventually, tick)
	assert.Equal(t, map[string]string{"u-b": "B"}, h.session.Typing())
}

func TestKeystrokeSendsStopAfterIdle(t *testing.T) {
	h := newHarness(t, func(cfg *SessionConfig) { cfg.TypingIdle = 30 * time.Millisecond })
	h.connectAndSelect(t, "general")

	h.session.Keystroke()
	h.session.Keystroke()
	assert.Equal(t, []string{"general", "general"}, h.rt.callsOf("typing"))

	require.Eventually(t, func() bool { return len(h.rt.callsOf("stopTyping")) == 1 }, eventually, tick)
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, h.rt.callsOf("stopTyping"), 1)
}

func TestSendCancelsTypingTimer(t *testing.T) {
	h := newHarness(t, func(cfg *SessionConfig) { cfg.TypingIdle = 30 * time.Millisecond })
	h.connectAndSelect(t, "general")

	h.session.Keystroke()
	require.NoError(t, h.session.SendText(context.Background(), "done"))
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, h.rt.callsOf("stopTyping"))
}

func TestKeystrokeWithoutRoomIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Connect(context.Background()))
	h.session.Keystroke()
	assert.Empty(t, h.rt.callsOf("typing"))
}

func TestUploadRaceDeliversToOriginRoom(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.gate = make(chan struct{})
	h.connectAndSelect(t, "X")

	done := make(chan error, 1)
	go func() {
		done <- h.session.SendMedia(context.Background(), core.MessageImage, "cat.png", []byte("png"))
	}()
	require.Eventually(t, h.session.Uploading, eventually, tick)

	require.NoError(t, h.session.SelectRoom(context.Background(), "Y"))
	close(h.backend.gate)
	require.NoError(t, <-done)

	sent := h.rt.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "X", sent[0].RoomID)
	assert.Equal(t, "Y", h.session.Room())
}

func TestUploadRaceDropStale(t *testing.T) {
	h := newHarness(t, func(cfg *SessionConfig) { cfg.StalePolicy = DropStale })
	h.backend.gate = make(chan struct{})
	h.connectAndSelect(t, "X")

	done := make(chan error, 1)
	go func() {
		done <- h.session.SendMedia(context.Background(), core.MessageFile, "doc.pdf", []byte("pdf"))
	}()
	require.Eventually(t, h.session.Uploading, eventually, tick)

	require.NoError(t, h.session.SelectRoom(context.Background(), "Y"))
	close(h.backend.gate)

	assert.ErrorIs(t, <-done, ErrStaleUpload)
	assert.Empty(t, h.rt.sentMessages())
	assert.Contains(t, h.notices.texts(), "upload discarded: room changed")
}

func TestConnectionLossThenReconnect(t *testing.T) {
	first := newFakeRealtime()
	second := newFakeRealtime()
	var dials atomic.Int32
	states := make(chan State, 16)

	h := newHarness(t, func(cfg *SessionConfig) {
		cfg.Backoff = Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond, Attempts: 3}
		cfg.Hooks.OnState = func(s State) { states <- s }
		cfg.Dial = func(context.Context) (Realtime, error) {
			switch dials.Add(1) {
			case 1:
				return first, nil
			case 2:
				return nil, &ConnectionError{URL: "ws://test", Err: errors.New("refused")}
			default:
				return second, nil
			}
		}
	})
	h.connectAndSelect(t, "general")

	first.drop(errors.New("network down"))
	require.Eventually(t, func() bool { return h.session.State() == StateDisconnected }, eventually, tick)
	assert.Contains(t, h.notices.texts(), "connection lost")
	assert.Equal(t, "general", h.session.Room())

	require.NoError(t, h.session.Reconnect(context.Background()))
	assert.Equal(t, int32(3), dials.Load())
	assert.Equal(t, StateActiveRoom, h.session.State())
	assert.Equal(t, []string{"general"}, second.callsOf("join"))
	assert.Empty(t, second.callsOf("leave"), "the old subscription died with the old connection")

	// events from the dead channel no longer reach the session
	first.push(liveMessage("m-old", "general", "u-a", "ghost"))
	second.push(liveMessage("m-new", "general", "u-a", "fresh"))
	require.Eventually(t, func() bool { return len(h.session.Messages()) == 1 }, eventually, tick)
	assert.Equal(t, []string{"fresh"}, contents(h.session.Messages()))
}

func TestReconnectGivesUp(t *testing.T) {
	var dials atomic.Int32
	h := newHarness(t, func(cfg *SessionConfig) {
		cfg.Backoff = Backoff{Initial: time.Millisecond, Max: time.Millisecond, Attempts: 2}
		cfg.Dial = func(context.Context) (Realtime, error) {
			dials.Add(1)
			return nil, errors.New("refused")
		}
	})

	err := h.session.Reconnect(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), dials.Load())
	assert.Equal(t, StateDisconnected, h.session.State())
}

func TestServerErrorEventBecomesNotice(t *testing.T) {
	h := newHarness(t, nil)
	h.connectAndSelect(t, "general")

	h.rt.push(Event{Kind: EventError, Err: &proto.Error{Code: core.ErrCodeRateLimited, Msg: "slow down"}})
	require.Eventually(t, func() bool { return len(h.notices.texts()) == 1 }, eventually, tick)
	assert.Equal(t, []string{"server error"}, h.notices.texts())
}

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff
	assert.Equal(t, 250*time.Millisecond, b.delay(1))
	assert.Equal(t, 500*time.Millisecond, b.delay(2))
	assert.Equal(t, 4*time.Second, b.delay(5))
	assert.Equal(t, 5*time.Second, b.delay(6))
	assert.Equal(t, 5*time.Second, b.delay(20))
}
