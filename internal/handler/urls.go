package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/config"
	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
	"github.com/alinorwa/nurse-assistant-management/pkg/sse"
	stores "github.com/alinorwa/nurse-assistant-management/pkg/storage"
	"github.com/alinorwa/nurse-assistant-management/pkg/websocket"
)

// Deps are the long-lived collaborators created at process start.
type Deps struct {
	Chat      *chat.Service
	Gateway   *chat.Gateway
	Publisher chat.Publisher
	Hub       *websocket.Hub
	Events    *sse.Hub
	Store     stores.Store
	Location  *time.Location
	// Keywords is invalidated on every keyword write
	Keywords *models.KeywordCache
	// MetricsHandler serves /metrics when set
	MetricsHandler http.Handler
}

type Handlers struct {
	db   *gorm.DB
	deps Deps
}

func NewHandlers(db *gorm.DB, deps Deps) *Handlers {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Handlers{
		db:   db,
		deps: deps,
	}
}

// Register expects middleware.Authenticate to be installed on engine already.
func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(config.GlobalConfig.APIPrefix)

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerChatRoutes(r)

	if config.GlobalConfig.AdminPrefix != "" {
		admin := r.Group(config.GlobalConfig.AdminPrefix, middleware.RequireStaff())
		h.RegisterAdmin(admin)
	}

	h.registerRealtimeRoutes(engine)

	if h.deps.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(h.deps.MetricsHandler))
	}
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

// Chat Module, used by refugees and staff alike
func (h *Handlers) registerChatRoutes(r *gin.RouterGroup) {
	chatGroup := r.Group("chat", middleware.RequireUser())
	{
		chatGroup.POST("/session", h.handleOpenSession)

		chatGroup.GET("/sessions/:id/messages", h.handleListMessages)

		chatGroup.POST("/sessions/:id/messages", h.handlePostMessage)
	}
}

func (h *Handlers) registerRealtimeRoutes(engine *gin.Engine) {
	if h.deps.Gateway == nil {
		return
	}
	ws := engine.Group("ws")
	{
		ws.GET("/chat/:session_id", h.deps.Gateway.ServeSession)

		ws.GET("/admin", h.deps.Gateway.ServeAdmin)
	}
}

func (h *Handlers) RegisterAdmin(router *gin.RouterGroup) {
	router.GET("/dashboard", h.handleDashboard)

	sessions := router.Group("sessions")
	{
		sessions.GET("", h.handleListSessions)

		sessions.GET("/:id/messages", h.handleListMessages)

		sessions.POST("/:id/messages", h.handlePostMessage)

		sessions.POST("/:id/assign", h.handleAssignSession)

		sessions.POST("/:id/close", h.handleCloseSession)
	}

	keywords := router.Group("keywords")
	{
		keywords.GET("", h.handleListKeywords)

		keywords.POST("", h.handleCreateKeyword)

		keywords.PUT("/:id", h.handleUpdateKeyword)

		keywords.DELETE("/:id", h.handleDeleteKeyword)
	}

	alerts := router.Group("alerts")
	{
		alerts.GET("", h.handleListAlerts)

		alerts.POST("/:id/resolve", h.handleResolveAlert)
	}

	if h.deps.Events != nil {
		router.GET("/events", h.handleAdminEvents)
	}
	if h.deps.Hub != nil {
		websocket.NewHandler(h.deps.Hub).RegisterRoutes(router.Group("ws"))
	}
}
