package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/media"
	"github.com/gdscnexus/nexus-chat/internal/proto"
)

// multipartOverhead leaves room for form boundaries and headers around the file part.
const multipartOverhead = 1 << 20

// MediaHandlers provides HTTP handlers for uploads and downloads.
type MediaHandlers struct {
	media *media.Service
	log   *zerolog.Logger
}

// NewMediaHandlers creates a new media handlers instance.
func NewMediaHandlers(svc *media.Service, logger *zerolog.Logger) *MediaHandlers {
	return &MediaHandlers{
		media: svc,
		log:   logger,
	}
}

// Upload stores the multipart "file" part and returns its public URL.
// POST /api/chat/upload
func (h *MediaHandlers) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.media.MaxBytes()+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: media.ErrTooLarge.Error()})
			return
		}
		h.log.Debug().Err(err).Msg("invalid upload request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	defer file.Close()

	obj, err := h.media.Upload(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
		case errors.Is(err, media.ErrEmpty):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("filename", fileHeader.Filename).Msg("failed to store upload")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("name", obj.Name).Int64("size", obj.Size).Str("content_type", obj.ContentType).Msg("file uploaded")
	c.JSON(http.StatusCreated, proto.UploadResult{
		URL:         obj.URL,
		SecureURL:   obj.URL,
		Name:        obj.Name,
		ContentType: obj.ContentType,
		Size:        obj.Size,
	})
}

// Serve streams a stored object.
// GET /media/:name
func (h *MediaHandlers) Serve(c *gin.Context) {
	name := c.Param("name")
	rc, info, err := h.media.Open(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		h.log.Error().Err(err).Str("name", name).Msg("failed to open object")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, nil)
}
