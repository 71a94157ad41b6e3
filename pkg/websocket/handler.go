package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler WebSocket 运维接口
type Handler struct {
	hub *Hub
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes 注册统计和健康检查路由
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/stats", h.GetStats)
	r.GET("/health", h.HealthCheck)
	r.GET("/group/:group", h.GetGroupStats)
}

// GetStats 获取WebSocket统计信息
func (h *Handler) GetStats(c *gin.Context) {
	stats := GetConfigSummary(h.hub.config)
	stats["total_connections"] = h.hub.GetConnectionCount()
	c.JSON(http.StatusOK, stats)
}

// GetGroupStats 获取特定组的连接统计
func (h *Handler) GetGroupStats(c *gin.Context) {
	group := c.Param("group")
	c.JSON(http.StatusOK, gin.H{
		"group":            group,
		"connection_count": h.hub.GetGroupConnections(group),
		"clients":          h.hub.GroupClients(group),
	})
}

// HealthCheck WebSocket健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.hub.ctx.Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"error":   "WebSocket Hub已关闭",
			"details": err.Error(),
		})
		return
	}

	total := h.hub.GetConnectionCount()
	max := h.hub.config.MaxConnections
	status := "healthy"
	if total >= max*9/10 { // 90%以上认为警告
		status = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": total,
		"max_connections":   max,
		"connection_usage":  float64(total) / float64(max) * 100,
		"timestamp":         time.Now().Unix(),
	})
}
