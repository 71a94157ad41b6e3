package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TranslationCacheEntry is unique per (hash, source, target). Both texts are
// encrypted; lookups go through the plaintext hash only.
type TranslationCacheEntry struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	SourceHash     string    `json:"source_hash" gorm:"size:64;index;uniqueIndex:idx_translation_lookup,priority:1"`
	SourceLanguage string    `json:"source_language" gorm:"size:10;uniqueIndex:idx_translation_lookup,priority:2"`
	TargetLanguage string    `json:"target_language" gorm:"size:10;uniqueIndex:idx_translation_lookup,priority:3"`
	SourceText     string    `json:"-" gorm:"type:text;serializer:encrypted"`
	TranslatedText string    `json:"-" gorm:"type:text;serializer:encrypted"`
	CreatedAt      time.Time `json:"created_at"`
}

func (TranslationCacheEntry) TableName() string { return "translation_cache" }

func (e *TranslationCacheEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// TranslationHash 对去空白、小写后的文本做 SHA-256，大小写或首尾空白不同的文本共享同一条缓存
func TranslationHash(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

func FindTranslation(db *gorm.DB, hash, source, target string) (*TranslationCacheEntry, error) {
	var e TranslationCacheEntry
	err := db.Where("source_hash = ? AND source_language = ? AND target_language = ?", hash, source, target).
		First(&e).Error
	if err != nil {
		return nil, notFound(err, "translation")
	}
	return &e, nil
}

// StoreTranslation inserts e; a concurrent writer that got there first wins
// and this call is a no-op.
func StoreTranslation(db *gorm.DB, e *TranslationCacheEntry) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_hash"}, {Name: "source_language"}, {Name: "target_language"}},
		DoNothing: true,
	}).Create(e).Error
}
