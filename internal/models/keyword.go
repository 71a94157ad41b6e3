package models

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/pkg/cache"
	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
)

const (
	activeKeywordsKey = "active"
	KeywordCacheTTL   = 5 * time.Minute
)

// DangerKeyword 危险关键词，保存前统一小写并去除空白
type DangerKeyword struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	Word     string `json:"word" gorm:"size:100;uniqueIndex"`
	IsActive bool   `json:"is_active" gorm:"index"`
}

func (DangerKeyword) TableName() string { return "danger_keywords" }

func NormalizeKeyword(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

func (k *DangerKeyword) BeforeSave(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	k.Word = NormalizeKeyword(k.Word)
	if k.Word == "" {
		return apperrors.New(apperrors.KindProtocol, "keyword must not be empty")
	}
	if len(k.Word) > 100 {
		return apperrors.New(apperrors.KindProtocol, "keyword longer than 100 characters")
	}
	return nil
}

// ActiveKeywords returns the active words, already normalized.
func ActiveKeywords(db *gorm.DB) ([]string, error) {
	var words []string
	err := db.Model(&DangerKeyword{}).Where("is_active = ?", true).Order("word").Pluck("word", &words).Error
	return words, err
}

// KeywordCache holds the active keyword list between triage runs. Every
// keyword write must call Invalidate. A nil *KeywordCache reads through.
type KeywordCache struct {
	c cache.Cache
}

func NewKeywordCache(c cache.Cache) *KeywordCache {
	return &KeywordCache{c: c}
}

// Active returns the cached list, loading it from db on a miss.
func (k *KeywordCache) Active(ctx context.Context, db *gorm.DB) ([]string, error) {
	if k == nil || k.c == nil {
		return ActiveKeywords(db.WithContext(ctx))
	}
	if v, ok := k.c.Get(ctx, activeKeywordsKey); ok {
		if words, ok := keywordList(v); ok {
			return words, nil
		}
	}
	words, err := ActiveKeywords(db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if words == nil {
		words = []string{}
	}
	if err := k.c.Set(ctx, activeKeywordsKey, words, KeywordCacheTTL); err != nil {
		logger.Warn("caching danger keywords failed", zap.Error(err))
	}
	return words, nil
}

func (k *KeywordCache) Invalidate(ctx context.Context) {
	if k == nil || k.c == nil {
		return
	}
	if err := k.c.Delete(ctx, activeKeywordsKey); err != nil {
		logger.Warn("invalidating danger keywords failed", zap.Error(err))
	}
}

// keywordList accepts both the in-process form and the JSON-decoded form
// a redis cache hands back.
func keywordList(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, w := range t {
			s, ok := w.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func ListKeywords(db *gorm.DB) ([]DangerKeyword, error) {
	var out []DangerKeyword
	err := db.Order("word").Find(&out).Error
	return out, err
}

func CreateKeyword(db *gorm.DB, word string, active bool) (*DangerKeyword, error) {
	k := &DangerKeyword{Word: word, IsActive: active}
	if err := db.Create(k).Error; err != nil {
		return nil, err
	}
	return k, nil
}

func SetKeywordActive(db *gorm.DB, id string, active bool) error {
	res := db.Model(&DangerKeyword{}).Where("id = ?", id).UpdateColumn("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "keyword")
	}
	return nil
}

func DeleteKeyword(db *gorm.DB, id string) error {
	res := db.Where("id = ?", id).Delete(&DangerKeyword{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "keyword")
	}
	return nil
}
