package handlers

import (
	"time"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
)

type MessageView struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	SenderID       uint      `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	TextOriginal   string    `json:"text_original"`
	TextTranslated string    `json:"text_translated"`
	AIAnalysis     string    `json:"ai_analysis"`
	ImageURL       string    `json:"image_url,omitempty"`
	IsUrgent       bool      `json:"is_urgent"`
	IsRead         bool      `json:"is_read"`
	Timestamp      time.Time `json:"timestamp"`
	Time           string    `json:"time"`
}

func (h *Handlers) messageView(m *models.Message) MessageView {
	v := MessageView{
		ID:             m.ID,
		SessionID:      m.SessionID,
		SenderID:       m.SenderID,
		TextOriginal:   m.TextOriginal,
		TextTranslated: m.TextTranslated,
		AIAnalysis:     m.AIAnalysis,
		IsUrgent:       m.IsUrgent,
		IsRead:         m.IsRead,
		Timestamp:      m.Timestamp,
		Time:           m.Timestamp.In(h.deps.Location).Format(chat.TimestampLayout),
	}
	if m.Sender != nil {
		v.SenderName = m.Sender.DisplayName()
	}
	if m.HasImage() && h.deps.Store != nil {
		v.ImageURL = h.deps.Store.PublicURL(m.Image)
	}
	return v
}

type SessionView struct {
	ID             string    `json:"id"`
	RefugeeID      uint      `json:"refugee_id"`
	RefugeeName    string    `json:"refugee_name"`
	NativeLanguage string    `json:"native_language"`
	NurseID        *uint     `json:"nurse_id"`
	Priority       int       `json:"priority"`
	IsUrgent       bool      `json:"is_urgent"`
	IsActive       bool      `json:"is_active"`
	StartTime      time.Time `json:"start_time"`
	LastActivity   time.Time `json:"last_activity"`
}

func sessionView(s *models.Session) SessionView {
	v := SessionView{
		ID:           s.ID,
		RefugeeID:    s.RefugeeID,
		NurseID:      s.NurseID,
		Priority:     s.Priority,
		IsUrgent:     s.IsUrgent(),
		IsActive:     s.IsActive,
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
	}
	if s.Refugee != nil {
		v.RefugeeName = s.Refugee.DisplayName()
		v.NativeLanguage = s.Refugee.NativeLanguage
	}
	return v
}
