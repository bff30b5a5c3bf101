package http

import (
	"encoding/json"

	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/proto"
	"github.com/gdscnexus/nexus-chat/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// inboundToCommand maps room level inbound messages. authenticate is handled by the ws handler.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.RoomID == "" {
			return nil, badRequest("roomId is required")
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Ref: inbound.Ref, Room: data.RoomID}, nil
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.RoomID == "" {
			return nil, badRequest("roomId is required")
		}
		typ, err := core.ParseMessageType(data.Type)
		if err != nil {
			return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: err.Error()}
		}
		// Sender fields in the payload are ignored; the hub stamps the authenticated user.
		return &core.Command{
			Kind: core.CommandSendRoomMessage,
			Ref:  inbound.Ref,
			Room: data.RoomID,
			Message: core.Message{
				Room:    data.RoomID,
				Type:    typ,
				Content: data.Content,
				FileURL: data.FileURL,
			},
		}, nil
	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.RoomID == "" {
			return nil, badRequest("roomId is required")
		}
		return &core.Command{Kind: core.CommandTyping, Ref: inbound.Ref, Room: data.RoomID}, nil
	case proto.InboundTypeStopTyping:
		var data proto.StopTypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if data.RoomID == "" {
			return nil, badRequest("roomId is required")
		}
		return &core.Command{Kind: core.CommandStopTyping, Ref: inbound.Ref, Room: data.RoomID}, nil
	default:
		return nil, badRequest("unknown message type")
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		if event.Message == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "empty message event"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  messageToProto(event.Message),
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserTyping,
			Data: proto.UserTypingData{
				RoomID:   event.Room,
				UserID:   event.User.ID,
				UserName: event.User.Name,
			},
		}
	case core.EventUserStoppedTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserStoppedTyping,
			Data: proto.UserStoppedTypingData{
				RoomID: event.Room,
				UserID: event.User.ID,
			},
		}
	case core.EventUserJoined, core.EventUserLeft:
		name := proto.EventUserJoined
		if event.Kind == core.EventUserLeft {
			name = proto.EventUserLeft
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.PresenceData{
				RoomID:   event.Room,
				UserID:   event.User.ID,
				UserName: event.User.Name,
			},
		}
	case core.EventAck:
		ack := proto.AckData{RoomID: event.Room}
		if event.Message != nil {
			msg := messageToProto(event.Message)
			ack.Message = &msg
		}
		return proto.Outbound{Type: proto.OutboundTypeAck, Ref: event.Ref, Data: ack}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Ref: event.Ref, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Ref:   event.Ref,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func messageToProto(m *core.Message) proto.Message {
	return proto.Message{
		ID:      m.ID,
		RoomID:  m.Room,
		Content: m.Content,
		Type:    string(m.Type),
		FileURL: m.FileURL,
		Sender: proto.Sender{
			ID:        m.Sender.ID,
			FullName:  m.Sender.FullName,
			Role:      m.Sender.Role,
			AvatarURL: m.Sender.AvatarURL,
		},
		CreatedAt: m.CreatedAt,
	}
}

func storedMessageToProto(m *store.Message) proto.Message {
	return proto.Message{
		ID:      m.ID,
		RoomID:  m.RoomID,
		Content: m.Content,
		Type:    m.Type,
		FileURL: m.FileURL,
		Sender: proto.Sender{
			ID:        m.Sender.ID,
			FullName:  m.Sender.FullName,
			Role:      string(m.Sender.Role),
			AvatarURL: m.Sender.AvatarURL,
		},
		CreatedAt: m.CreatedAt,
	}
}

func roomToProto(r *store.Room) proto.Room {
	return proto.Room{
		ID:         r.ID,
		Name:       r.Name,
		Visibility: string(r.Visibility),
		IsGroup:    r.IsGroup,
		TeamID:     r.TeamID,
		FieldID:    r.FieldID,
	}
}
