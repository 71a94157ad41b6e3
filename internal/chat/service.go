// Package chat stores messages and relays them to session groups.
package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

var ErrEmptyMessage = apperrors.New(apperrors.KindProtocol, "message has neither text nor image")

type PostInput struct {
	SessionID    string
	Sender       *models.User
	Text         string
	ImageKey     string
	LanguageCode string
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) DB() *gorm.DB { return s.db }

// Post stores a message. A staff author resets the session to normal
// priority in the same transaction. Post does not start enrichment; callers
// publish the initial chat event first and then call Enqueue, so an enriched
// update can never reach a client ahead of the message it updates.
func (s *Service) Post(ctx context.Context, in PostInput) (*models.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.ImageKey == "" {
		return nil, ErrEmptyMessage
	}
	if in.Sender == nil {
		return nil, apperrors.New(apperrors.KindProtocol, "message without sender")
	}

	lang := in.LanguageCode
	if lang == "" {
		lang = in.Sender.NativeLanguage
	}
	now := s.now()
	msg := &models.Message{
		SessionID:    in.SessionID,
		SenderID:     in.Sender.ID,
		TextOriginal: text,
		Image:        in.ImageKey,
		LanguageCode: lang,
		Timestamp:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := models.GetSession(tx, in.SessionID); err != nil {
			return err
		}
		var err error
		if in.Sender.IsStaff {
			err = models.ResolveSession(tx, in.SessionID, now)
		} else {
			err = models.TouchSession(tx, in.SessionID, now)
		}
		if err != nil {
			return err
		}
		return models.CreateMessage(tx, msg)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("message stored",
		zap.String("message_id", msg.ID), zap.String("session_id", msg.SessionID), zap.Uint("sender_id", msg.SenderID))
	return msg, nil
}

// Enqueue emits models.SigMessageCreated for a committed message whose
// initial chat event has already been published.
func (s *Service) Enqueue(msg *models.Message, sender *models.User) {
	util.Sig().Emit(models.SigMessageCreated, msg, sender)
}

// NeedsEnrichment decides whether a freshly stored message goes to the pipeline.
func NeedsEnrichment(m *models.Message, sender *models.User) bool {
	textPending := m.TextOriginal != "" && m.TextTranslated == ""
	if sender.IsRefugee() {
		return textPending || (m.HasImage() && m.AIAnalysis == "")
	}
	if sender.IsStaff {
		return textPending
	}
	return false
}

// OpenSession returns the refugee's active session, creating one if needed.
func (s *Service) OpenSession(ctx context.Context, refugee *models.User) (*models.Session, error) {
	if !refugee.IsRefugee() {
		return nil, apperrors.New(apperrors.KindProtocol, "only refugees own sessions")
	}
	sess, created, err := models.GetOrCreateActiveSession(s.db.WithContext(ctx), refugee)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("session opened", zap.String("session_id", sess.ID), zap.Uint("refugee_id", refugee.ID))
	}
	return sess, nil
}

// CanAccess 医护人员可进入任意会话，难民只能进入自己的会话
func CanAccess(sess *models.Session, p *middleware.Principal) bool {
	if p == nil {
		return false
	}
	return p.IsStaff || sess.RefugeeID == p.ID
}

// UserFromPrincipal rebuilds the participant from the authenticated identity.
func UserFromPrincipal(p *middleware.Principal) *models.User {
	return &models.User{
		ID:             p.ID,
		Username:       p.Username,
		FullName:       p.FullName,
		Role:           models.Role(p.Role),
		IsStaff:        p.IsStaff,
		NativeLanguage: p.NativeLanguage,
	}
}
