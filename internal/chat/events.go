package chat

import (
	"context"
	"errors"
	"time"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
)

const (
	EventChatMessage   = "chat_message"
	EventErrorAlert    = "error_alert"
	EventEpidemicAlert = "epidemic_alert"

	// AdminGroup 管理端频道
	AdminGroup = "admin"

	TimestampLayout = "15:04"
)

// Publisher delivers a payload to every member of a broadcast group.
// Publishing to an empty group is not an error.
type Publisher interface {
	Publish(ctx context.Context, group string, payload interface{}) error
}

// Fanout publishes to each publisher in turn and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, group string, payload interface{}) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, group, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChatEvent is sent to chat_<session>. Enrichment updates reuse the id of the
// message they refer to.
type ChatEvent struct {
	Type           string  `json:"type"`
	ID             string  `json:"id"`
	SenderID       uint    `json:"sender_id"`
	SenderName     string  `json:"sender_name,omitempty"`
	TextOriginal   string  `json:"text_original"`
	TextTranslated string  `json:"text_translated"`
	AIAnalysis     *string `json:"ai_analysis,omitempty"`
	ImageURL       *string `json:"image_url,omitempty"`
	IsUrgent       bool    `json:"is_urgent,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

// NewChatEvent renders the timestamp as HH:MM in loc.
func NewChatEvent(m *models.Message, loc *time.Location) ChatEvent {
	if loc == nil {
		loc = time.UTC
	}
	return ChatEvent{
		Type:           EventChatMessage,
		ID:             m.ID,
		SenderID:       m.SenderID,
		TextOriginal:   m.TextOriginal,
		TextTranslated: m.TextTranslated,
		IsUrgent:       m.IsUrgent,
		Timestamp:      m.Timestamp.In(loc).Format(TimestampLayout),
	}
}

// WithEnrichment adds the analysis and, when the message has an image, its URL.
func (e ChatEvent) WithEnrichment(m *models.Message, imageURL string) ChatEvent {
	analysis := m.AIAnalysis
	e.AIAnalysis = &analysis
	if m.HasImage() {
		return e.WithImage(imageURL)
	}
	return e
}

func (e ChatEvent) WithImage(url string) ChatEvent {
	if url != "" {
		e.ImageURL = &url
	}
	return e
}

func (e ChatEvent) WithSender(name string) ChatEvent {
	e.SenderName = name
	return e
}

// ErrorAlert goes only to the offending connection.
type ErrorAlert struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func NewErrorAlert(text string) ErrorAlert {
	return ErrorAlert{Error: text, Type: EventErrorAlert}
}

type EpidemicAlertEvent struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Count    int    `json:"count"`
	Message  string `json:"message,omitempty"`
}
