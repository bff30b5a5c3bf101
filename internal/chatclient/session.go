package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/proto"
)

// MinRecordingBytes is the smallest clip accepted as a voice message.
const MinRecordingBytes = 500

const signalTimeout = 5 * time.Second

var (
	ErrNotConnected      = errors.New("not connected")
	ErrNoActiveRoom      = errors.New("no active room")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrEmptyFile         = errors.New("file is empty")
	ErrNotMedia          = errors.New("not a media type")
	ErrStaleUpload       = errors.New("upload finished after the room changed")
	ErrSuperseded        = errors.New("room selection superseded")
	ErrNoRecorder        = errors.New("no recorder configured")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNotRecording      = errors.New("not recording")
	ErrRecordingTooShort = errors.New("recording too short")
)

// State is where the session is in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateJoiningRoom
	StateActiveRoom
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateJoiningRoom:
		return "joining"
	case StateActiveRoom:
		return "active"
	default:
		return "unknown"
	}
}

// StaleUploadPolicy decides what happens to an upload that completes after
// the user moved to another room.
type StaleUploadPolicy int

const (
	// DeliverToOrigin sends the message to the room the upload started in.
	DeliverToOrigin StaleUploadPolicy = iota
	// DropStale discards the result and posts a notice.
	DropStale
)

// Realtime is the part of *Channel the session drives.
type Realtime interface {
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, msg OutgoingMessage) (*proto.Message, error)
	Typing(ctx context.Context, roomID string) error
	StopTyping(ctx context.Context, roomID string) error
	Events() <-chan Event
	Close() error
}

// Backend is the part of *API the session drives.
type Backend interface {
	History(ctx context.Context, roomID string) ([]Message, error)
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// Dialer opens an authenticated realtime connection.
type Dialer func(ctx context.Context) (Realtime, error)

// Recorder captures a voice clip between Start and Stop.
type Recorder interface {
	Start() error
	Stop() ([]byte, error)
}

// Notice is a transient, user-facing message.
type Notice struct {
	Text string
	Err  error
}

// Hooks receive session updates. Any may be nil. They run without the
// session lock held, on the goroutine that caused the change.
type Hooks struct {
	OnMessage func(Message)
	OnTyping  func(map[string]string)
	OnNotice  func(Notice)
	OnState   func(State)
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Dial     Dialer
	Backend  Backend
	Recorder Recorder
	// Self fills the advisory sender fields of outgoing messages and filters own typing events.
	Self        User
	Hooks       Hooks
	StalePolicy StaleUploadPolicy
	TypingIdle  time.Duration
	Backoff     Backoff
	Logger      *zerolog.Logger
}

// Session is one user's view into one room at a time.
type Session struct {
	dial        Dialer
	backend     Backend
	recorder    Recorder
	self        User
	hooks       Hooks
	stalePolicy StaleUploadPolicy
	backoff     Backoff
	log         zerolog.Logger
	signaler    *typingSignaler

	mu        sync.Mutex
	state     State
	rt        Realtime
	room      string
	joined    string
	gen       uint64
	history   []Message
	live      []Message
	seen      map[string]struct{}
	typing    *TypingTracker
	uploads   int
	recording bool
}

// NewSession creates a disconnected session.
func NewSession(cfg SessionConfig) *Session {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "session").Logger()
	}
	s := &Session{
		dial:        cfg.Dial,
		backend:     cfg.Backend,
		recorder:    cfg.Recorder,
		self:        cfg.Self,
		hooks:       cfg.Hooks,
		stalePolicy: cfg.StalePolicy,
		backoff:     cfg.Backoff.withDefaults(),
		log:         logger,
		seen:        make(map[string]struct{}),
		typing:      NewTypingTracker(),
	}
	s.signaler = newTypingSignaler(cfg.TypingIdle, s.signalTyping)
	return s
}

// Connect opens the realtime channel. It is a no-op when already connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.rt != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	rt, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.rt != nil {
		s.mu.Unlock()
		_ = rt.Close()
		return nil
	}
	s.rt = rt
	s.joined = ""
	s.state = StateConnected
	s.mu.Unlock()

	go s.pump(rt)
	s.log.Debug().Msg("connected")
	s.emitState(StateConnected)
	return nil
}

// Reconnect re-dials with backoff and re-selects the last room.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	connected := s.rt != nil
	room := s.room
	s.mu.Unlock()
	if connected {
		return nil
	}

	var err error
	for attempt := 1; attempt <= s.backoff.Attempts; attempt++ {
		if err = s.Connect(ctx); err == nil {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
		if attempt == s.backoff.Attempts {
			return fmt.Errorf("reconnect: %w", err)
		}
		if err := sleep(ctx, s.backoff.delay(attempt)); err != nil {
			return err
		}
	}

	if room == "" {
		return nil
	}
	return s.SelectRoom(ctx, room)
}

// Close drops the connection. The session may Connect again.
func (s *Session) Close() error {
	s.signaler.cancel()

	s.mu.Lock()
	rt := s.rt
	s.rt = nil
	s.joined = ""
	s.state = StateDisconnected
	s.typing.Reset()
	s.mu.Unlock()

	if rt == nil {
		return nil
	}
	s.emitState(StateDisconnected)
	return rt.Close()
}

// SelectRoom makes roomID the active room: previous state is cleared, history
// is loaded, then the room is joined. A newer SelectRoom supersedes this one.
func (s *Session) SelectRoom(ctx context.Context, roomID string) error {
	s.signaler.cancel()

	s.mu.Lock()
	rt := s.rt
	if rt == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	prev := s.joined
	s.gen++
	gen := s.gen
	s.room = roomID
	s.joined = ""
	s.history = nil
	s.live = nil
	clear(s.seen)
	s.typing.Reset()
	s.state = StateJoiningRoom
	s.mu.Unlock()

	s.emitState(StateJoiningRoom)
	s.emitTyping(map[string]string{})

	if prev != "" {
		if err := rt.LeaveRoom(ctx, prev); err != nil {
			s.log.Warn().Err(err).Str("room_id", prev).Msg("leave failed")
		}
	}

	history, err := s.backend.History(ctx, roomID)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err == nil {
		s.history = history
		for _, m := range history {
			s.seen[m.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("history fetch failed")
		s.notify(Notice{Text: "could not load history", Err: err})
	}

	if err := rt.JoinRoom(ctx, roomID); err != nil && !isCode(err, core.ErrCodeAlreadyJoined) {
		s.mu.Lock()
		if s.gen == gen {
			s.state = StateConnected
			s.room = ""
		}
		s.mu.Unlock()
		s.notify(Notice{Text: "could not join room", Err: err})
		s.emitState(StateConnected)
		return fmt.Errorf("join %s: %w", roomID, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		stillWanted := s.room == roomID
		s.mu.Unlock()
		if !stillWanted {
			_ = rt.LeaveRoom(ctx, roomID)
		}
		return ErrSuperseded
	}
	s.joined = roomID
	s.state = StateActiveRoom
	s.mu.Unlock()

	s.log.Debug().Str("room_id", roomID).Int("history", len(history)).Msg("room active")
	s.emitState(StateActiveRoom)
	return nil
}

// SendText posts a TEXT message. The message shows up when the server echoes it.
func (s *Session) SendText(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	rt, room, err := s.active()
	if err != nil {
		return err
	}
	s.signaler.cancel()

	_, err = rt.SendMessage(ctx, OutgoingMessage{
		RoomID:     room,
		Type:       string(core.MessageText),
		Content:    content,
		SenderID:   s.self.ID,
		SenderName: s.self.FullName,
	})
	if err != nil {
		s.notify(Notice{Text: "message not sent", Err: err})
		return err
	}
	return nil
}

// SendMedia uploads data and posts it as a message of type typ.
func (s *Session) SendMedia(ctx context.Context, typ core.MessageType, filename string, data []byte) error {
	if !typ.IsMedia() {
		return fmt.Errorf("%w: %s", ErrNotMedia, typ)
	}
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if _, _, err := s.active(); err != nil {
		return err
	}

	s.mu.Lock()
	room, gen := s.room, s.gen
	s.uploads++
	s.mu.Unlock()

	url, err := s.backend.Upload(ctx, filename, data)

	s.mu.Lock()
	s.uploads--
	rt := s.rt
	stale := s.gen != gen
	s.mu.Unlock()

	if err != nil {
		s.notify(Notice{Text: "upload failed", Err: err})
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	if stale && s.stalePolicy == DropStale {
		s.log.Info().Str("room_id", room).Msg("dropping stale upload")
		s.notify(Notice{Text: "upload discarded: room changed", Err: ErrStaleUpload})
		return ErrStaleUpload
	}
	if rt == nil {
		return ErrNotConnected
	}

	_, err = rt.SendMessage(ctx, OutgoingMessage{
		RoomID:     room,
		Type:       string(typ),
		Content:    typ.Placeholder(),
		FileURL:    url,
		SenderID:   s.self.ID,
		SenderName: s.self.FullName,
	})
	if err != nil {
		s.notify(Notice{Text: "message not sent", Err: err})
		return err
	}
	return nil
}

// StartRecording begins capturing a voice clip.
func (s *Session) StartRecording() error {
	if s.recorder == nil {
		return ErrNoRecorder
	}
	if _, _, err := s.active(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.recording = true
	s.mu.Unlock()

	if err := s.recorder.Start(); err != nil {
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
		s.notify(Notice{Text: "could not start recording", Err: err})
		return err
	}
	return nil
}

// StopRecording ends the capture and sends the clip as AUDIO.
func (s *Session) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.recording = false
	s.mu.Unlock()

	clip, err := s.recorder.Stop()
	if err != nil {
		s.notify(Notice{Text: "recording failed", Err: err})
		return err
	}
	if len(clip) < MinRecordingBytes {
		s.notify(Notice{Text: "recording too short", Err: ErrRecordingTooShort})
		return ErrRecordingTooShort
	}
	name := fmt.Sprintf("voice-%d.webm", time.Now().Unix())
	return s.SendMedia(ctx, core.MessageAudio, name, clip)
}

// Keystroke announces composing in the active room.
func (s *Session) Keystroke() {
	_, room, err := s.active()
	if err != nil {
		return
	}
	s.signaler.keystroke(room)
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the selected room id, or "".
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Generation increases on every room selection.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Messages returns history followed by live messages in arrival order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.history)+len(s.live))
	out = append(out, s.history...)
	return append(out, s.live...)
}

// Typing returns who is composing in the active room.
func (s *Session) Typing() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.Snapshot()
}

// Uploading reports whether an upload is in flight.
func (s *Session) Uploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads > 0
}

// Recording reports whether a clip is being captured.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Session) active() (Realtime, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt == nil {
		return nil, "", ErrNotConnected
	}
	if s.state != StateActiveRoom {
		return nil, "", ErrNoActiveRoom
	}
	return s.rt, s.room, nil
}

func (s *Session) pump(rt Realtime) {
	for ev := range rt.Events() {
		if ev.Kind == EventDisconnected {
			s.lost(rt, ev.Err)
			return
		}
		s.handle(rt, ev)
	}
	s.lost(rt, ErrDisconnected)
}

func (s *Session) handle(rt Realtime, ev Event) {
	s.mu.Lock()
	if s.rt != rt {
		s.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventNewMessage:
		if ev.Message == nil || ev.RoomID != s.room {
			s.mu.Unlock()
			return
		}
		if _, dup := s.seen[ev.Message.ID]; dup && ev.Message.ID != "" {
			s.mu.Unlock()
			return
		}
		s.seen[ev.Message.ID] = struct{}{}
		s.live = append(s.live, *ev.Message)
		msg := *ev.Message
		s.mu.Unlock()
		if s.hooks.OnMessage != nil {
			s.hooks.OnMessage(msg)
		}

	case EventUserTyping, EventUserStoppedTyping, EventUserLeft:
		if ev.RoomID != s.room || (ev.UserID == s.self.ID && s.self.ID != "") {
			s.mu.Unlock()
			return
		}
		changed := s.typing.Apply(ev)
		snap := s.typing.Snapshot()
		s.mu.Unlock()
		if changed {
			s.emitTyping(snap)
		}

	case EventError:
		s.mu.Unlock()
		s.notify(Notice{Text: "server error", Err: ev.Err})

	default:
		s.mu.Unlock()
	}
}

func (s *Session) lost(rt Realtime, err error) {
	s.mu.Lock()
	if s.rt != rt {
		s.mu.Unlock()
		return
	}
	s.rt = nil
	s.joined = ""
	s.state = StateDisconnected
	s.typing.Reset()
	s.mu.Unlock()

	s.signaler.cancel()
	_ = rt.Close()
	s.log.Warn().Err(err).Msg("connection lost")
	s.notify(Notice{Text: "connection lost", Err: err})
	s.emitState(StateDisconnected)
}

// signalTyping runs on the keystroke goroutine or the idle timer.
func (s *Session) signalTyping(roomID string, typing bool) {
	s.mu.Lock()
	rt := s.rt
	current := s.room == roomID
	s.mu.Unlock()
	if rt == nil || (!current && typing) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()
	var err error
	if typing {
		err = rt.Typing(ctx, roomID)
	} else {
		err = rt.StopTyping(ctx, roomID)
	}
	if err != nil {
		s.log.Debug().Err(err).Bool("typing", typing).Str("room_id", roomID).Msg("typing signal failed")
	}
}

func (s *Session) notify(n Notice) {
	if s.hooks.OnNotice != nil {
		s.hooks.OnNotice(n)
	}
}

func (s *Session) emitState(st State) {
	if s.hooks.OnState != nil {
		s.hooks.OnState(st)
	}
}

func (s *Session) emitTyping(m map[string]string) {
	if s.hooks.OnTyping != nil {
		s.hooks.OnTyping(m)
	}
}

func isCode(err error, code string) bool {
	var perr *proto.Error
	return errors.As(err, &perr) && perr.Code == code
}
