package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message 聊天消息，文本、翻译和 AI 分析字段均加密存储
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	SessionID      string    `json:"session_id" gorm:"size:36;index"`
	Session        *Session  `json:"-" gorm:"foreignKey:SessionID"`
	SenderID       uint      `json:"sender_id" gorm:"index"`
	Sender         *User     `json:"-" gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE"`
	TextOriginal   string    `json:"text_original" gorm:"type:text;serializer:encrypted"`
	TextTranslated string    `json:"text_translated" gorm:"type:text;serializer:encrypted"`
	AIAnalysis     string    `json:"ai_analysis" gorm:"type:text;serializer:encrypted"`
	Image          string    `json:"image" gorm:"size:255"`
	IsUrgent       bool      `json:"is_urgent"`
	IsRead         bool      `json:"is_read"`
	LanguageCode   string    `json:"language_code" gorm:"size:10"`
	Timestamp      time.Time `json:"timestamp" gorm:"index"`
}

func (Message) TableName() string { return "chat_messages" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = tx.NowFunc()
	}
	return nil
}

func (m *Message) HasImage() bool { return m.Image != "" }

// CreateMessage 只插入消息本身，不级联写关联
func CreateMessage(db *gorm.DB, m *Message) error {
	return db.Omit("Session", "Sender").Create(m).Error
}

// GetMessage 预加载发送者和会话(含难民)
func GetMessage(db *gorm.DB, id string) (*Message, error) {
	var m Message
	err := db.Preload("Sender").Preload("Session.Refugee").Where("id = ?", id).First(&m).Error
	if err != nil {
		return nil, notFound(err, "message")
	}
	return &m, nil
}

// UpdateMessageFields writes only the named columns of m.
func UpdateMessageFields(db *gorm.DB, m *Message, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	return db.Model(m).Select(columns).Omit("Session", "Sender").Updates(m).Error
}

// ListSessionMessages 按时间正序
func ListSessionMessages(db *gorm.DB, sessionID string, limit int) ([]Message, error) {
	var out []Message
	q := db.Preload("Sender").Where("session_id = ?", sessionID).Order("timestamp ASC")
	if limit > 0 {
		// keep the newest limit rows, still ascending
		sub := db.Model(&Message{}).Select("id").Where("session_id = ?", sessionID).
			Order("timestamp DESC").Limit(limit)
		q = db.Preload("Sender").Where("id IN (?)", sub).Order("timestamp ASC")
	}
	err := q.Find(&out).Error
	return out, err
}

// RefugeeMessagesSince 监测窗口内所有难民发出的消息
func RefugeeMessagesSince(db *gorm.DB, since time.Time) ([]Message, error) {
	var out []Message
	refugees := db.Model(&User{}).Select("id").Where("role = ?", RoleRefugee)
	err := db.Where("sender_id IN (?) AND timestamp >= ?", refugees, since).
		Order("timestamp ASC").Find(&out).Error
	return out, err
}

// MarkSessionRead flags every message in the session not sent by readerID.
func MarkSessionRead(db *gorm.DB, sessionID string, readerID uint) (int64, error) {
	res := db.Model(&Message{}).
		Where("session_id = ? AND sender_id <> ? AND is_read = ?", sessionID, readerID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
