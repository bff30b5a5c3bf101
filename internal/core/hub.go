package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/store"
)

// DefaultStoreTimeout bounds each access check and message save. Both run on
// the hub goroutine so that room order matches persisted order; a slow store
// stalls every room for at most this long per call.
const DefaultStoreTimeout = 5 * time.Second

// MessageStore persists room messages. The store assigns ID and CreatedAt.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
}

// AccessChecker decides whether a user may join a room.
// Errors wrapping store.ErrNotFound are reported as room_not_found.
type AccessChecker interface {
	CanAccess(ctx context.Context, userID, roomID string) (bool, error)
}

// Relay forwards room events to other hub instances.
// Publish must not block the caller.
type Relay interface {
	Publish(ev *Event)
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger.With().Str("component", "hub").Logger()
		}
	}
}

// WithRelay enables cross-instance fan-out.
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithTypingTimeout sets how long a typing mark lives without a refresh.
func WithTypingTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.typingTimeout = d
		}
	}
}

// WithStoreTimeout bounds each store call made from the hub loop.
func WithStoreTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.storeTimeout = d
		}
	}
}

// WithMaxTextLength bounds TEXT message content in runes.
func WithMaxTextLength(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxTextLength = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub owns rooms, clients and typing state. All state is touched only by the
// goroutine running Run.
type Hub struct {
	store  MessageStore
	access AccessChecker
	relay  Relay
	log    zerolog.Logger
	now    func() time.Time

	typingTimeout time.Duration
	storeTimeout  time.Duration
	maxTextLength int

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	remote     chan *Event
	done       chan struct{}

	clients map[*Client]struct{}
	rooms   map[string]*Room
	typing  *typingTracker
}

// NewHub creates a new chat hub instance. st and access may be nil: messages
// then get ephemeral ids and every room is open.
func NewHub(st MessageStore, access AccessChecker, opts ...Option) *Hub {
	h := &Hub{
		store:         st,
		access:        access,
		log:           zerolog.Nop(),
		now:           time.Now,
		typingTimeout: DefaultTypingTimeout,
		storeTimeout:  DefaultStoreTimeout,
		maxTextLength: DefaultMaxTextLength,
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		commands:      make(chan clientCommand, 64),
		remote:        make(chan *Event, 64),
		done:          make(chan struct{}),
		clients:       make(map[*Client]struct{}),
		rooms:         make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.typing = newTypingTracker(h.typingTimeout)
	return h
}

// RegisterClient attaches a client to the hub.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient detaches a client, removes it from its rooms and closes its Events.
// The caller must stop writing to c.Commands first.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// DeliverRemote broadcasts an event received from another instance to local members.
func (h *Hub) DeliverRemote(ev *Event) {
	select {
	case h.remote <- ev:
	case <-h.done:
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run processes hub events until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	interval := h.typingTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; !ok {
				continue
			}
			h.handleCommand(ctx, cc.client, cc.cmd)
		case ev := <-h.remote:
			h.handleRemote(ev)
		case <-ticker.C:
			h.expireTyping(h.now())
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = struct{}{}
	h.log.Debug().Str("client_id", c.ID).Msg("client registered")

	go h.pump(c)
}

// pump forwards client commands into the hub loop until Commands is closed.
func (h *Hub) pump(c *Client) {
	for cmd := range c.Commands {
		if cmd == nil {
			continue
		}
		select {
		case h.commands <- clientCommand{client: c, cmd: cmd}:
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for name := range c.rooms {
		h.removeFromRoom(c, name)
	}
	delete(h.clients, c)
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		close(c.Events)
	}
	clear(h.clients)
	clear(h.rooms)
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Kind != CommandAuthenticate && c.user == nil {
		h.sendError(c, cmd.Ref, coreError(ErrCodeUnauthorized, "authenticate first"))
		return
	}

	switch cmd.Kind {
	case CommandAuthenticate:
		h.handleAuthenticate(c, cmd)
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd)
	case CommandLeaveRoom:
		h.handleLeave(c, cmd)
	case CommandSendRoomMessage:
		h.handleSend(ctx, c, cmd)
	case CommandTyping:
		h.handleTyping(c, cmd)
	case CommandStopTyping:
		h.handleStopTyping(c, cmd)
	default:
		h.sendError(c, cmd.Ref, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) handleAuthenticate(c *Client, cmd *Command) {
	if cmd.User == nil || cmd.User.ID == "" {
		h.sendError(c, cmd.Ref, coreError(ErrCodeUnauthorized, "missing identity"))
		return
	}
	if c.user != nil && c.user.ID != cmd.User.ID {
		h.sendError(c, cmd.Ref, coreError(ErrCodeBadRequest, "connection already authenticated as another user"))
		return
	}
	u := *cmd.User
	c.user = &u
	h.log.Debug().Str("client_id", c.ID).Str("user_id", u.ID).Msg("client authenticated")
	h.sendAck(c, cmd.Ref, "", nil)
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Room == "" {
		h.sendError(c, cmd.Ref, coreError(ErrCodeBadRequest, "room is required"))
		return
	}
	if _, joined := c.rooms[cmd.Room]; joined {
		h.sendError(c, cmd.Ref, coreError(ErrCodeAlreadyJoined, ErrAlreadyJoined.Error()))
		return
	}

	if h.access != nil {
		checkCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
		ok, err := h.access.CanAccess(checkCtx, c.user.ID, cmd.Room)
		cancel()
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.sendError(c, cmd.Ref, coreError(ErrCodeRoomNotFound, ErrRoomNotFound.Error()))
			return
		case err != nil:
			h.log.Error().Err(err).Str("room_id", cmd.Room).Str("user_id", c.user.ID).Msg("access check failed")
			h.sendError(c, cmd.Ref, coreError(ErrCodeInternal, "access check failed"))
			return
		case !ok:
			h.sendError(c, cmd.Ref, coreError(ErrCodeForbidden, "not allowed to join this room"))
			return
		}
	}

	room, ok := h.rooms[cmd.Room]
	if !ok {
		room = NewRoom(cmd.Room)
		h.rooms[cmd.Room] = room
	}
	room.AddClient(c)
	c.rooms[cmd.Room] = struct{}{}

	h.sendAck(c, cmd.Ref, cmd.Room, nil)
	h.broadcast(room, &Event{Kind: EventUserJoined, Room: cmd.Room, User: *c.user}, nil)
}

func (h *Hub) handleLeave(c *Client, cmd *Command) {
	if _, ok := h.rooms[cmd.Room]; !ok {
		h.sendError(c, cmd.Ref, coreError(ErrCodeRoomNotFound, ErrRoomNotFound.Error()))
		return
	}
	if _, joined := c.rooms[cmd.Room]; !joined {
		h.sendError(c, cmd.Ref, coreError(ErrCodeNotInRoom, ErrNotInRoom.Error()))
		return
	}
	h.removeFromRoom(c, cmd.Room)
	h.sendAck(c, cmd.Ref, cmd.Room, nil)
}

// removeFromRoom drops c from a room. When it was the user's last connection
// there, the typing mark is cleared and the departure announced.
func (h *Hub) removeFromRoom(c *Client, name string) {
	delete(c.rooms, name)
	room, ok := h.rooms[name]
	if !ok {
		return
	}
	room.RemoveClient(c)

	// The user stays present while another of their connections is subscribed.
	if c.user != nil && !room.HasUser(c.user.ID) {
		if h.typing.Stop(name, c.user.ID) {
			h.broadcast(room, &Event{Kind: EventUserStoppedTyping, Room: name, User: *c.user}, nil)
		}
		h.broadcast(room, &Event{Kind: EventUserLeft, Room: name, User: *c.user}, nil)
	}

	if room.Empty() {
		delete(h.rooms, name)
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Room == "" {
		h.sendError(c, cmd.Ref, coreError(ErrCodeBadRequest, "room is required"))
		return
	}
	room, ok := h.rooms[cmd.Room]
	if !ok || !room.Has(c) {
		h.sendError(c, cmd.Ref, coreError(ErrCodeNotInRoom, ErrNotInRoom.Error()))
		return
	}

	msg, err := cmd.Message.Normalize(h.maxTextLength)
	if err != nil {
		h.sendError(c, cmd.Ref, coreError(ErrCodeInvalidMessage, err.Error()))
		return
	}
	msg.Room = cmd.Room
	msg.Sender = Sender{
		ID:        c.user.ID,
		FullName:  c.user.Name,
		Role:      c.user.Role,
		AvatarURL: c.user.AvatarURL,
	}

	if err := h.persist(ctx, &msg); err != nil {
		h.log.Error().Err(err).Str("room_id", cmd.Room).Str("user_id", c.user.ID).Msg("save message failed")
		h.sendError(c, cmd.Ref, coreError(ErrCodeInternal, "failed to save message"))
		return
	}

	if h.typing.Stop(cmd.Room, c.user.ID) {
		h.broadcast(room, &Event{Kind: EventUserStoppedTyping, Room: cmd.Room, User: *c.user}, c)
	}

	h.sendAck(c, cmd.Ref, cmd.Room, &msg)
	h.broadcast(room, &Event{Kind: EventRoomMessage, Room: cmd.Room, User: *c.user, Message: &msg}, nil)
}

func (h *Hub) persist(ctx context.Context, msg *Message) error {
	if h.store == nil {
		msg.ID = uuid.NewString()
		msg.CreatedAt = h.now().UTC()
		return nil
	}

	rec := &store.Message{
		RoomID:   msg.Room,
		SenderID: msg.Sender.ID,
		Type:     string(msg.Type),
		Content:  msg.Content,
		FileURL:  msg.FileURL,
	}
	saveCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	if err := h.store.SaveMessage(saveCtx, rec); err != nil {
		return err
	}
	msg.ID = rec.ID
	msg.CreatedAt = rec.CreatedAt
	return nil
}

func (h *Hub) handleTyping(c *Client, cmd *Command) {
	room, ok := h.rooms[cmd.Room]
	if !ok || !room.Has(c) {
		h.sendError(c, cmd.Ref, coreError(ErrCodeNotInRoom, ErrNotInRoom.Error()))
		return
	}
	if h.typing.Touch(cmd.Room, c.user.ID, c.user.Name, h.now()) {
		h.broadcast(room, &Event{Kind: EventUserTyping, Room: cmd.Room, User: *c.user}, c)
	}
	h.sendAck(c, cmd.Ref, cmd.Room, nil)
}

func (h *Hub) handleStopTyping(c *Client, cmd *Command) {
	room, ok := h.rooms[cmd.Room]
	if !ok || !room.Has(c) {
		h.sendError(c, cmd.Ref, coreError(ErrCodeNotInRoom, ErrNotInRoom.Error()))
		return
	}
	if h.typing.Stop(cmd.Room, c.user.ID) {
		h.broadcast(room, &Event{Kind: EventUserStoppedTyping, Room: cmd.Room, User: *c.user}, c)
	}
	h.sendAck(c, cmd.Ref, cmd.Room, nil)
}

func (h *Hub) expireTyping(now time.Time) {
	for _, key := range h.typing.Expire(now) {
		if room, ok := h.rooms[key.Room]; ok {
			h.broadcast(room, &Event{Kind: EventUserStoppedTyping, Room: key.Room, User: User{ID: key.UserID}}, nil)
		}
	}
}

func (h *Hub) handleRemote(ev *Event) {
	if ev == nil || !ev.Kind.Relayable() {
		return
	}
	room, ok := h.rooms[ev.Room]
	if !ok {
		return
	}
	if dropped := room.Broadcast(ev); dropped > 0 {
		h.log.Warn().Str("room_id", ev.Room).Int("dropped", dropped).Msg("slow consumers dropped remote event")
	}
}

// broadcast publishes ev to the relay and delivers it to local members except skip.
func (h *Hub) broadcast(room *Room, ev *Event, skip *Client) {
	if h.relay != nil {
		h.relay.Publish(ev)
	}
	if dropped := room.BroadcastExcept(ev, skip); dropped > 0 {
		h.log.Warn().Str("room_id", room.Name).Str("event", ev.Kind.String()).Int("dropped", dropped).Msg("slow consumers dropped event")
	}
}

func (h *Hub) sendAck(c *Client, ref, room string, msg *Message) {
	if ref == "" {
		return
	}
	h.deliver(c, &Event{Kind: EventAck, Ref: ref, Room: room, Message: msg})
}

// sendError always reaches the client; the ref correlates it when present.
func (h *Hub) sendError(c *Client, ref string, err *CoreError) {
	h.deliver(c, &Event{Kind: EventError, Ref: ref, Error: err})
}

func (h *Hub) deliver(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("client_id", c.ID).Str("event", ev.Kind.String()).Msg("slow consumer dropped event")
	}
}
