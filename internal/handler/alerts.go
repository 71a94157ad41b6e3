package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/response"
)

func (h *Handlers) handleListAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		response.Fail(c, "invalid limit", nil)
		return
	}
	alerts, err := models.RecentAlerts(h.db.WithContext(c.Request.Context()), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "success", gin.H{"alerts": alerts})
}

func (h *Handlers) handleResolveAlert(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.Fail(c, "invalid alert id", nil)
		return
	}
	if err := models.ResolveAlert(h.db.WithContext(c.Request.Context()), uint(id)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "alert resolved", nil)
}

// handleAdminEvents streams the admin channel as server-sent events.
func (h *Handlers) handleAdminEvents(c *gin.Context) {
	h.deps.Events.Serve(c, "admin-"+uuid.NewString(), chat.AdminGroup)
}
