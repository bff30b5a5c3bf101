// Package relay fans hub events out to other server instances over Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/core"
)

const outboxSize = 256

// Sink receives events published by other instances.
type Sink interface {
	DeliverRemote(ev *core.Event)
}

// envelope is the JSON frame on the Redis channel.
type envelope struct {
	Origin  string       `json:"origin"`
	Kind    string       `json:"kind"`
	Room    string       `json:"room"`
	User    wireUser     `json:"user"`
	Message *wireMessage `json:"message,omitempty"`
}

type wireUser struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type wireMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	FileURL   string    `json:"fileUrl,omitempty"`
	Sender    wireUser  `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

var relayedKinds = map[string]core.EventKind{
	core.EventRoomMessage.String():       core.EventRoomMessage,
	core.EventUserTyping.String():        core.EventUserTyping,
	core.EventUserStoppedTyping.String(): core.EventUserStoppedTyping,
	core.EventUserJoined.String():        core.EventUserJoined,
	core.EventUserLeft.String():          core.EventUserLeft,
}

// RedisRelay implements core.Relay on a Redis channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	outbox  chan []byte
	log     zerolog.Logger
}

var _ core.Relay = (*RedisRelay)(nil)

// New creates a relay publishing on channel. Every instance gets a random origin id.
func New(client *redis.Client, channel string, logger *zerolog.Logger) *RedisRelay {
	r := &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		outbox:  make(chan []byte, outboxSize),
		log:     zerolog.Nop(),
	}
	if logger != nil {
		r.log = logger.With().Str("component", "relay").Str("origin", r.origin).Logger()
	}
	return r
}

// Origin returns the id stamped on events from this instance.
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Publish queues ev for publication. Full queues drop the event.
func (r *RedisRelay) Publish(ev *core.Event) {
	if ev == nil || !ev.Kind.Relayable() {
		return
	}
	payload, err := json.Marshal(r.encode(ev))
	if err != nil {
		r.log.Error().Err(err).Msg("encode relay event")
		return
	}
	select {
	case r.outbox <- payload:
	default:
		r.log.Warn().Str("room_id", ev.Room).Msg("relay outbox full, dropping event")
	}
}

// Run subscribes to the channel, publishes queued events and forwards foreign
// events to sink until ctx is canceled.
func (r *RedisRelay) Run(ctx context.Context, sink Sink) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so no early event is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Msg("relay subscribed")

	incoming := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-r.outbox:
			if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil && ctx.Err() == nil {
				r.log.Warn().Err(err).Msg("publish relay event")
			}
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			ev, ok := r.decode([]byte(msg.Payload))
			if !ok {
				continue
			}
			sink.DeliverRemote(ev)
		}
	}
}

func (r *RedisRelay) encode(ev *core.Event) envelope {
	env := envelope{
		Origin: r.origin,
		Kind:   ev.Kind.String(),
		Room:   ev.Room,
		User:   wireUser{ID: ev.User.ID, Name: ev.User.Name, Role: ev.User.Role, AvatarURL: ev.User.AvatarURL},
	}
	if m := ev.Message; m != nil {
		env.Message = &wireMessage{
			ID:      m.ID,
			Type:    string(m.Type),
			Content: m.Content,
			FileURL: m.FileURL,
			Sender: wireUser{
				ID:        m.Sender.ID,
				Name:      m.Sender.FullName,
				Role:      m.Sender.Role,
				AvatarURL: m.Sender.AvatarURL,
			},
			CreatedAt: m.CreatedAt,
		}
	}
	return env
}

// decode parses a frame and drops our own and malformed ones.
func (r *RedisRelay) decode(payload []byte) (*core.Event, bool) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.log.Warn().Err(err).Msg("decode relay event")
		return nil, false
	}
	if env.Origin == r.origin {
		return nil, false
	}
	kind, ok := relayedKinds[env.Kind]
	if !ok || env.Room == "" {
		return nil, false
	}

	ev := &core.Event{
		Kind: kind,
		Room: env.Room,
		User: core.User{ID: env.User.ID, Name: env.User.Name, Role: env.User.Role, AvatarURL: env.User.AvatarURL},
	}
	if kind == core.EventRoomMessage {
		if env.Message == nil {
			return nil, false
		}
		msgType, err := core.ParseMessageType(env.Message.Type)
		if err != nil {
			return nil, false
		}
		ev.Message = &core.Message{
			ID:      env.Message.ID,
			Room:    env.Room,
			Type:    msgType,
			Content: env.Message.Content,
			FileURL: env.Message.FileURL,
			Sender: core.Sender{
				ID:        env.Message.Sender.ID,
				FullName:  env.Message.Sender.Name,
				Role:      env.Message.Sender.Role,
				AvatarURL: env.Message.Sender.AvatarURL,
			},
			CreatedAt: env.Message.CreatedAt,
		}
	}
	return ev, true
}
