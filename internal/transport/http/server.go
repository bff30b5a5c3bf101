package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gdscnexus/nexus-chat/internal/auth"
	"github.com/gdscnexus/nexus-chat/internal/config"
	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/directory"
	"github.com/gdscnexus/nexus-chat/internal/media"
	"github.com/gdscnexus/nexus-chat/internal/store"
)

// Services are the collaborators behind the HTTP surface.
type Services struct {
	Hub       *core.Hub
	Auth      *auth.Service
	Directory *directory.Directory
	Store     store.Store
	Media     *media.Service
}

// NewServer builds the HTTP server with REST and WebSocket routes.
func NewServer(svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(svc, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter mounts the WebSocket endpoint on a plain mux and hands every
// other path to the gin engine. The upgrade must own the raw ResponseWriter:
// gin flushes headers before Hijack and then refuses it.
func NewRouter(svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.ServeMux {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws/chat", NewWSHandler(svc.Hub, svc.Auth, cfg, logger))
	mux.Handle("/", newEngine(svc, cfg, logger))
	return mux
}

// newEngine registers the REST routes.
func newEngine(svc Services, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(svc.Auth, logger)
	userHandlers := NewUserHandlers(svc.Auth, logger)
	chatHandlers := NewChatHandlers(svc.Directory, svc.Store, svc.Store, cfg.Chat.HistoryLimit, logger)
	mediaHandlers := NewMediaHandlers(svc.Media, logger)

	api := router.Group("/api")
	{
		api.POST("/auth/register", apiHandlers.Register)
		api.POST("/auth/login", apiHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(svc.Auth, logger))
		{
			protected.GET("/users/me", userHandlers.Me)
			protected.GET("/chat/rooms", chatHandlers.ListRooms)
			protected.POST("/chat/rooms", chatHandlers.CreateRoom)
			protected.GET("/chat/:roomId/messages", chatHandlers.History)
			protected.POST("/chat/upload", mediaHandlers.Upload)
		}
	}

	router.GET("/media/:name", mediaHandlers.Serve)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
