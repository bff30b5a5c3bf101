package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/auth"
	"github.com/gdscnexus/nexus-chat/internal/config"
	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/proto"
)

const resolveTimeout = 5 * time.Second

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub               *core.Hub
	resolver          auth.Resolver
	maxMessageBytes   int64
	messagesPerMinute int
	log               *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, resolver auth.Resolver, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:               hub,
		resolver:          resolver,
		maxMessageBytes:   cfg.MaxMessageBytes,
		messagesPerMinute: cfg.Chat.MessagesPerMinute,
		log:               logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// A credential at upgrade time authenticates the connection up front.
	var user *core.User
	if token := upgradeToken(r); token != "" {
		identity, err := h.resolver.Resolve(r.Context(), token)
		if err != nil {
			h.log.Debug().Err(err).Msg("ws upgrade rejected")
			stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
			return
		}
		user = userFromIdentity(identity)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), user)
	h.hub.RegisterClient(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	limiter := newRateLimiter(h.messagesPerMinute)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	close(client.Commands)
	h.hub.UnregisterClient(client)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("read ws inbound")
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(payload, &inbound); err != nil {
			if writeErr := h.writeError(ctx, conn, "", badRequest("malformed json")); writeErr != nil {
				return writeErr
			}
			continue
		}

		var (
			cmd      *core.Command
			protoErr *proto.Error
		)
		switch {
		case inbound.Type == proto.InboundTypeAuthenticate:
			cmd, protoErr = h.authenticate(ctx, inbound)
		case inbound.Type == proto.InboundTypeSendMessage && !limiter.allow():
			protoErr = &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages"}
		default:
			cmd, protoErr = inboundToCommand(inbound)
		}

		if protoErr != nil {
			if writeErr := h.writeError(ctx, conn, inbound.Ref, protoErr); writeErr != nil {
				return writeErr
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		case <-h.hub.Done():
			return errors.New("hub stopped")
		}
	}
}

// authenticate resolves the credential here so the hub never sees tokens.
func (h *WSHandler) authenticate(ctx context.Context, inbound proto.Inbound) (*core.Command, *proto.Error) {
	var data proto.AuthenticateData
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return nil, badRequest("invalid payload")
	}
	if data.Protocol != 0 && data.Protocol != proto.ProtocolVersion {
		return nil, &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}
	}
	if strings.TrimSpace(data.Token) == "" {
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"}
	}

	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	identity, err := h.resolver.Resolve(resolveCtx, data.Token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			h.log.Error().Err(err).Msg("resolve ws token")
		}
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
	}

	return &core.Command{
		Kind: core.CommandAuthenticate,
		Ref:  inbound.Ref,
		User: userFromIdentity(identity),
	}, nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, ref string, protoErr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Ref:   ref,
		Error: protoErr,
	})
}

func upgradeToken(r *stdhttp.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func userFromIdentity(identity *auth.Identity) *core.User {
	return &core.User{
		ID:        identity.UserID,
		Name:      identity.FullName,
		Role:      string(identity.Role),
		AvatarURL: identity.AvatarURL,
	}
}
