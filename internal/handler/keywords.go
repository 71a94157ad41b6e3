package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/response"
)

type keywordRequest struct {
	Word     string `json:"word" binding:"required,max=100"`
	IsActive *bool  `json:"is_active"`
}

type keywordUpdateRequest struct {
	IsActive bool `json:"is_active"`
}

func (h *Handlers) handleListKeywords(c *gin.Context) {
	list, err := models.ListKeywords(h.db.WithContext(c.Request.Context()))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "success", gin.H{"keywords": list})
}

func (h *Handlers) handleCreateKeyword(c *gin.Context) {
	var req keywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	db := h.db.WithContext(c.Request.Context())

	var existing models.DangerKeyword
	err := db.Where("word = ?", models.NormalizeKeyword(req.Word)).First(&existing).Error
	if err == nil {
		response.Abort(c, http.StatusConflict, "keyword already exists", gin.H{"keyword": existing})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		response.Error(c, err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	k, err := models.CreateKeyword(db, req.Word, active)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.deps.Keywords.Invalidate(c.Request.Context())
	response.Success(c, "keyword created", gin.H{"keyword": k})
}

func (h *Handlers) handleUpdateKeyword(c *gin.Context) {
	var req keywordUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	if err := models.SetKeywordActive(h.db.WithContext(c.Request.Context()), c.Param("id"), req.IsActive); err != nil {
		response.Error(c, err)
		return
	}
	h.deps.Keywords.Invalidate(c.Request.Context())
	response.Success(c, "keyword updated", nil)
}

func (h *Handlers) handleDeleteKeyword(c *gin.Context) {
	if err := models.DeleteKeyword(h.db.WithContext(c.Request.Context()), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	h.deps.Keywords.Invalidate(c.Request.Context())
	response.Success(c, "keyword deleted", nil)
}
