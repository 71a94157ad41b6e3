package translation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alinorwa/nurse-assistant-management/pkg/i18n"
	"github.com/alinorwa/nurse-assistant-management/pkg/llm"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
)

// DefaultSourceLanguage is assumed when a message carries no language code.
const DefaultSourceLanguage = "en"

const DefaultTimeout = 5 * time.Second

// Result 翻译结果，Degraded 表示返回的是带标记的原文
type Result struct {
	Text     string
	Degraded bool
	CacheHit bool
}

type Service struct {
	cache      *Cache
	translator llm.Translator
	timeout    time.Duration
}

// NewService wires the cache and provider. A nil translator degrades every
// miss with the config marker.
func NewService(c *Cache, translator llm.Translator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{cache: c, translator: translator, timeout: timeout}
}

// Translate never returns an error: provider failures come back as the
// original text with a marker appended.
func (s *Service) Translate(ctx context.Context, text, source, target string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: text}
	}
	if source == "" {
		source = DefaultSourceLanguage
	}
	if source == target {
		return Result{Text: text}
	}

	if s.cache != nil {
		if hit, ok := s.cache.Lookup(ctx, text, source, target); ok {
			return Result{Text: hit, CacheHit: true}
		}
	}

	if s.translator == nil {
		return Result{Text: text + i18n.Text(i18n.MarkerConfig), Degraded: true}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.translator.Translate(callCtx, text, source, target)
	if err == nil && strings.TrimSpace(out) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		marker := i18n.MarkerUnavailable
		switch {
		case llm.IsTimeout(err):
			marker = i18n.MarkerTimeout
		case llm.IsNotConfigured(err):
			marker = i18n.MarkerConfig
		}
		logger.Warn("translation degraded",
			zap.String("source", source), zap.String("target", target),
			zap.String("marker", marker), zap.Error(err))
		return Result{Text: text + i18n.Text(marker), Degraded: true}
	}

	if s.cache != nil {
		s.cache.Store(ctx, text, source, target, out)
	}
	return Result{Text: out}
}
