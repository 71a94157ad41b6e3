package handlers

import (
	"context"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
	"github.com/alinorwa/nurse-assistant-management/pkg/response"
	stores "github.com/alinorwa/nurse-assistant-management/pkg/storage"
)

const (
	maxUploadSize   = 10 << 20
	defaultMsgLimit = 200
)

type postMessageRequest struct {
	Text         string `form:"text" json:"text"`
	LanguageCode string `form:"language_code" json:"language_code"`
}

// loadSession resolves :id and checks the caller may see it. It writes the
// error response itself.
func (h *Handlers) loadSession(c *gin.Context) (*models.Session, *middleware.Principal, bool) {
	p := middleware.CurrentUser(c)
	sess, err := models.GetSession(h.db.WithContext(c.Request.Context()), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	if !chat.CanAccess(sess, p) {
		response.Abort(c, http.StatusForbidden, "forbidden", nil)
		return nil, nil, false
	}
	return sess, p, true
}

// handleOpenSession returns the caller's active session, creating one if needed.
func (h *Handlers) handleOpenSession(c *gin.Context) {
	p := middleware.CurrentUser(c)
	sess, err := h.deps.Chat.OpenSession(c.Request.Context(), chat.UserFromPrincipal(p))
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindProtocol) {
			response.Abort(c, http.StatusForbidden, err.Error(), nil)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, "success", gin.H{
		"session": sessionView(sess),
		"ws_path": "/ws/chat/" + sess.ID,
	})
}

func (h *Handlers) handleListSessions(c *gin.Context) {
	list, err := models.ListActiveSessions(h.db.WithContext(c.Request.Context()))
	if err != nil {
		response.Error(c, err)
		return
	}
	views := make([]SessionView, 0, len(list))
	for i := range list {
		views = append(views, sessionView(&list[i]))
	}
	response.Success(c, "success", gin.H{"sessions": views})
}

func (h *Handlers) handleListMessages(c *gin.Context) {
	sess, p, ok := h.loadSession(c)
	if !ok {
		return
	}
	db := h.db.WithContext(c.Request.Context())
	msgs, err := models.ListSessionMessages(db, sess.ID, defaultMsgLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if p.IsStaff {
		if _, err := models.MarkSessionRead(db, sess.ID, p.ID); err != nil {
			logger.Warn("mark read failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	views := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, h.messageView(&msgs[i]))
	}
	response.Success(c, "success", gin.H{"session": sessionView(sess), "messages": views})
}

// handlePostMessage accepts JSON or multipart with an optional "image" file.
func (h *Handlers) handlePostMessage(c *gin.Context) {
	sess, p, ok := h.loadSession(c)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	imageKey := ""
	if fh, err := c.FormFile("image"); err == nil {
		imageKey, err = h.saveUpload(ctx, fh)
		if err != nil {
			response.Error(c, err)
			return
		}
	}

	sender := chat.UserFromPrincipal(p)
	msg, err := h.deps.Chat.Post(ctx, chat.PostInput{
		SessionID:    sess.ID,
		Sender:       sender,
		Text:         req.Text,
		ImageKey:     imageKey,
		LanguageCode: req.LanguageCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	msg.Sender = sender

	view := h.messageView(msg)
	if h.deps.Publisher != nil {
		event := chat.NewChatEvent(msg, h.deps.Location).WithSender(view.SenderName).WithImage(view.ImageURL)
		if err := h.deps.Publisher.Publish(ctx, sess.Group(), event); err != nil {
			logger.Warn("chat broadcast failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	h.deps.Chat.Enqueue(msg, sender)
	response.Success(c, "message stored", gin.H{"message": view})
}

func (h *Handlers) saveUpload(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if h.deps.Store == nil {
		return "", apperrors.New(apperrors.KindConfig, "image storage not configured")
	}
	if fh.Size > maxUploadSize {
		return "", apperrors.WithCode(http.StatusRequestEntityTooLarge, "image too large")
	}
	ct := fh.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "image/") {
		return "", apperrors.New(apperrors.KindProtocol, "only image uploads are accepted")
	}
	f, err := fh.Open()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindProtocol, "read upload")
	}
	defer f.Close()

	key := stores.ImageKey(fh.Filename, time.Now().UTC())
	if err := h.deps.Store.Write(ctx, key, f, fh.Size, ct); err != nil {
		return "", apperrors.Wrap(err, apperrors.KindInternal, "store upload")
	}
	return key, nil
}

func (h *Handlers) handleAssignSession(c *gin.Context) {
	sess, p, ok := h.loadSession(c)
	if !ok {
		return
	}
	if err := models.AssignNurse(h.db.WithContext(c.Request.Context()), sess.ID, p.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "session assigned", nil)
}

func (h *Handlers) handleCloseSession(c *gin.Context) {
	sess, _, ok := h.loadSession(c)
	if !ok {
		return
	}
	if err := models.CloseSession(h.db.WithContext(c.Request.Context()), sess.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "session closed", nil)
}
