// Package translation memoizes remote translations and degrades to the
// original text with a marker when the provider fails.
package translation

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/cache"
	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/metrics"
)

const hotTTL = 30 * time.Minute

// Cache is the translation table with an optional in-process layer in front.
// The hot layer holds plaintext and must not be a shared remote cache.
type Cache struct {
	db      *gorm.DB
	hot     cache.Cache
	metrics *metrics.Metrics
}

func NewCache(db *gorm.DB, hot cache.Cache, m *metrics.Metrics) *Cache {
	return &Cache{db: db, hot: hot, metrics: m}
}

func hotKey(hash, source, target string) string {
	return "tr:" + hash + ":" + source + ":" + target
}

// Lookup 只读，不产生副作用(热缓存回填除外)
func (c *Cache) Lookup(ctx context.Context, text, source, target string) (string, bool) {
	hash := models.TranslationHash(text)
	key := hotKey(hash, source, target)
	if c.hot != nil {
		if v, ok := c.hot.Get(ctx, key); ok {
			if s, ok := v.(string); ok {
				c.metrics.RecordTranslationCache("hit")
				return s, true
			}
		}
	}

	e, err := models.FindTranslation(c.db.WithContext(ctx), hash, source, target)
	if err != nil {
		if !apperrors.IsKind(err, apperrors.KindNotFound) {
			logger.Warn("translation cache lookup failed", zap.Error(err))
		}
		c.metrics.RecordTranslationCache("miss")
		return "", false
	}
	if c.hot != nil {
		_ = c.hot.Set(ctx, key, e.TranslatedText, hotTTL)
	}
	c.metrics.RecordTranslationCache("hit")
	return e.TranslatedText, true
}

// Store is best-effort. Failures are logged and swallowed.
func (c *Cache) Store(ctx context.Context, text, source, target, translated string) {
	hash := models.TranslationHash(text)
	err := models.StoreTranslation(c.db.WithContext(ctx), &models.TranslationCacheEntry{
		SourceHash:     hash,
		SourceLanguage: source,
		TargetLanguage: target,
		SourceText:     text,
		TranslatedText: translated,
	})
	if err != nil {
		c.metrics.RecordTranslationCache("store_error")
		logger.Warn("translation cache store failed",
			zap.String("source", source), zap.String("target", target), zap.Error(err))
		return
	}
	if c.hot != nil {
		_ = c.hot.Set(ctx, hotKey(hash, source, target), translated, hotTTL)
	}
}
