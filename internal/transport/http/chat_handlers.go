package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/directory"
	"github.com/gdscnexus/nexus-chat/internal/proto"
	"github.com/gdscnexus/nexus-chat/internal/store"
)

// ChatHandlers provides HTTP handlers for room listing and history.
type ChatHandlers struct {
	directory    *directory.Directory
	rooms        store.RoomStore
	messages     store.MessageStore
	historyLimit int
	log          *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
// historyLimit is applied when the request carries no limit; zero means full history.
func NewChatHandlers(dir *directory.Directory, rooms store.RoomStore, messages store.MessageStore, historyLimit int, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		directory:    dir,
		rooms:        rooms,
		messages:     messages,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name       string   `json:"name" binding:"required,min=1,max=64"`
	Visibility string   `json:"visibility"`
	IsGroup    *bool    `json:"isGroup"`
	TeamID     *string  `json:"teamId"`
	FieldID    *string  `json:"fieldId"`
	Members    []string `json:"members"`
}

// CreateRoom handles room creation by administrators.
// POST /api/chat/rooms
func (h *ChatHandlers) CreateRoom(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		h.log.Error().Msg("identity not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if identity.Role != store.RoleAdmin {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin role required"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room := &store.Room{
		Name:       req.Name,
		Visibility: store.Visibility(req.Visibility),
		IsGroup:    req.IsGroup == nil || *req.IsGroup,
		TeamID:     req.TeamID,
		FieldID:    req.FieldID,
	}
	if room.Visibility == "" {
		room.Visibility = store.VisibilityPublic
	}
	if !room.Visibility.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid visibility"})
		return
	}

	ctx := c.Request.Context()
	if err := h.rooms.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", req.Name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	for _, userID := range req.Members {
		if err := h.rooms.AddMember(ctx, userID, room.ID); err != nil {
			h.log.Error().Err(err).Str("room_id", room.ID).Str("user_id", userID).Msg("failed to add member")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
	}

	h.log.Info().Str("room_name", room.Name).Str("room_id", room.ID).Str("owner_id", identity.UserID).Msg("room created successfully")
	c.JSON(http.StatusCreated, roomToProto(room))
}

// ListRooms handles listing rooms the user may join.
// GET /api/chat/rooms
func (h *ChatHandlers) ListRooms(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		h.log.Error().Msg("identity not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := h.directory.ListRooms(c.Request.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		h.log.Error().Err(err).Str("user_id", identity.UserID).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.Room, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomToProto(room))
	}

	h.log.Debug().Str("user_id", identity.UserID).Int("room_count", len(rooms)).Msg("rooms listed successfully")
	c.JSON(http.StatusOK, response)
}

// History returns the messages of a room in store order.
// GET /api/chat/:roomId/messages?limit=N
func (h *ChatHandlers) History(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		h.log.Error().Msg("identity not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	roomID := c.Param("roomId")
	allowed, err := h.directory.CanAccess(c.Request.Context(), identity.UserID, roomID)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		case errors.Is(err, directory.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		default:
			h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to check room access")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})
		return
	}

	messages, err := h.messages.ListMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.Message, 0, len(messages))
	for _, msg := range messages {
		response = append(response, storedMessageToProto(msg))
	}
	c.JSON(http.StatusOK, response)
}
