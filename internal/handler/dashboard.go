package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/response"
)

const dashboardDays = 7

// handleDashboard 汇总 KPI、语言分布、近 7 天会话数和各症状类别的警报总数
func (h *Handlers) handleDashboard(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())

	kpis, err := models.CountSessionKPIs(db)
	if err != nil {
		response.Error(c, err)
		return
	}
	langs, err := models.LanguageDistribution(db)
	if err != nil {
		response.Error(c, err)
		return
	}
	days, err := models.SessionsPerDay(db, time.Now(), dashboardDays, h.deps.Location)
	if err != nil {
		response.Error(c, err)
		return
	}
	alerts, err := models.AlertTotals(db)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, "success", gin.H{
		"kpis":             kpis,
		"languages":        langs,
		"sessions_per_day": days,
		"alerts":           alerts,
	})
}
