package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/proto"
)

// DefaultAckTimeout bounds how long a request waits for its ack.
const DefaultAckTimeout = 5 * time.Second

var (
	// ErrAckTimeout is returned when the server does not answer a request in time.
	ErrAckTimeout = errors.New("ack timeout")
	// ErrDisconnected is returned for requests that were pending when the connection ended.
	ErrDisconnected = errors.New("disconnected")
)

// ConnectionError reports a failed connect.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Options configure Dial.
type Options struct {
	// Token is sent in an authenticate message right after connecting.
	Token      string
	AckTimeout time.Duration
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// OutgoingMessage is the payload of sendMessage.
type OutgoingMessage struct {
	RoomID     string
	Type       string
	Content    string
	FileURL    string
	SenderID   string
	SenderName string
}

type reply struct {
	data json.RawMessage
	err  error
}

// Channel is one realtime connection. Request style calls wait for the
// matching ack; typing signals are fire and forget.
type Channel struct {
	conn       *websocket.Conn
	ackTimeout time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan reply
	err     error // set once the read loop ends

	events    chan Event
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the chat endpoint and, when opts.Token is set, authenticates.
func Dial(ctx context.Context, url string, opts Options) (*Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: opts.HTTPClient})
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}

	c := newChannel(conn, opts)
	go c.readLoop()

	if opts.Token != "" {
		if err := c.Authenticate(ctx, opts.Token); err != nil {
			_ = c.Close()
			return nil, &ConnectionError{URL: url, Err: err}
		}
	}
	return c, nil
}

func newChannel(conn *websocket.Conn, opts Options) *Channel {
	ackTimeout := opts.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "channel").Logger()
	}
	return &Channel{
		conn:       conn,
		ackTimeout: ackTimeout,
		log:        logger,
		pending:    make(map[string]chan reply),
		events:     make(chan Event, 64),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Events delivers server notifications. It ends with EventDisconnected and is then closed.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection has ended.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. Pending requests fail with ErrDisconnected.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.conn.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}

// Authenticate binds the connection to the identity behind token.
func (c *Channel) Authenticate(ctx context.Context, token string) error {
	_, err := c.request(ctx, proto.InboundTypeAuthenticate, proto.AuthenticateData{
		Token:    token,
		Protocol: proto.ProtocolVersion,
	})
	return err
}

// JoinRoom subscribes to a room.
func (c *Channel) JoinRoom(ctx context.Context, roomID string) error {
	_, err := c.request(ctx, proto.InboundTypeJoinRoom, proto.RoomData{RoomID: roomID})
	return err
}

// LeaveRoom unsubscribes from a room.
func (c *Channel) LeaveRoom(ctx context.Context, roomID string) error {
	_, err := c.request(ctx, proto.InboundTypeLeaveRoom, proto.RoomData{RoomID: roomID})
	return err
}

// SendMessage posts a message and returns it as stored by the server.
func (c *Channel) SendMessage(ctx context.Context, msg OutgoingMessage) (*proto.Message, error) {
	raw, err := c.request(ctx, proto.InboundTypeSendMessage, proto.SendMessageData{
		RoomID:     msg.RoomID,
		Content:    msg.Content,
		Type:       msg.Type,
		FileURL:    msg.FileURL,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
	})
	if err != nil {
		return nil, err
	}
	var ack proto.AckData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ack); err != nil {
			return nil, fmt.Errorf("decode ack: %w", err)
		}
	}
	return ack.Message, nil
}

// Typing announces composing in a room.
func (c *Channel) Typing(ctx context.Context, roomID string) error {
	return c.notify(ctx, proto.InboundTypeTyping, proto.TypingData{RoomID: roomID})
}

// StopTyping clears the composing mark.
func (c *Channel) StopTyping(ctx context.Context, roomID string) error {
	return c.notify(ctx, proto.InboundTypeStopTyping, proto.StopTypingData{RoomID: roomID})
}

func (c *Channel) notify(ctx context.Context, typ string, data any) error {
	inbound, err := proto.NewInbound(typ, "", data)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, c.conn, inbound); err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}
	return nil
}

// request sends a message with a fresh ref and waits for the ack or error carrying it.
func (c *Channel) request(ctx context.Context, typ string, data any) (json.RawMessage, error) {
	ref := uuid.NewString()
	inbound, err := proto.NewInbound(typ, ref, data)
	if err != nil {
		return nil, err
	}

	ch := make(chan reply, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[ref] = ch
	c.mu.Unlock()

	if err := wsjson.Write(ctx, c.conn, inbound); err != nil {
		c.forget(ref)
		return nil, fmt.Errorf("%s: %w", typ, err)
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-timer.C:
		c.forget(ref)
		return nil, fmt.Errorf("%s: %w", typ, ErrAckTimeout)
	case <-ctx.Done():
		c.forget(ref)
		return nil, ctx.Err()
	}
}

func (c *Channel) forget(ref string) {
	c.mu.Lock()
	delete(c.pending, ref)
	c.mu.Unlock()
}

// resolve completes a pending request. It reports false for unknown refs.
func (c *Channel) resolve(ref string, r reply) bool {
	if ref == "" {
		return false
	}
	c.mu.Lock()
	ch, ok := c.pending[ref]
	delete(c.pending, ref)
	c.mu.Unlock()
	if ok {
		ch <- r
	}
	return ok
}

func (c *Channel) readLoop() {
	err := c.read()

	c.mu.Lock()
	c.err = fmt.Errorf("%w: %v", ErrDisconnected, err)
	pending := c.pending
	c.pending = make(map[string]chan reply)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- reply{err: c.err}
	}

	c.emit(Event{Kind: EventDisconnected, Err: err})
	close(c.events)
	close(c.done)
}

func (c *Channel) read() error {
	ctx := context.Background()
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			return err
		}

		switch frame.Type {
		case proto.OutboundTypeAck:
			if !c.resolve(frame.Ref, reply{data: frame.Data}) {
				c.log.Debug().Str("ref", frame.Ref).Msg("ack for unknown request")
			}
		case proto.OutboundTypeError:
			var err error = &proto.Error{Code: "unknown", Msg: "unknown error"}
			if frame.Error != nil {
				err = frame.Error
			}
			if !c.resolve(frame.Ref, reply{err: err}) {
				c.emit(Event{Kind: EventError, Err: err})
			}
		case proto.OutboundTypeEvent:
			ev, ok, err := eventFromFrame(frame)
			if err != nil {
				c.log.Warn().Err(err).Msg("drop malformed event")
				continue
			}
			if !ok {
				c.log.Debug().Str("event", frame.Event).Msg("ignore unknown event")
				continue
			}
			c.emit(ev)
		default:
			c.log.Debug().Str("type", frame.Type).Msg("ignore unknown frame")
		}
	}
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closing:
	}
}
