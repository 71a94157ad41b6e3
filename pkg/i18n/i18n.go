package i18n

import (
	"embed"
	"encoding/json"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
)

// 消息键
const (
	MarkerTimeout       = "marker.timeout"
	MarkerUnavailable   = "marker.unavailable"
	MarkerConfig        = "marker.config"
	VisionUnavailable   = "vision.unavailable"
	VisionNotConfigured = "vision.not_configured"
	VisionUnreadable    = "vision.unreadable"
	GatewayRateLimited  = "gateway.rate_limited"
	AlertEpidemic       = "alert.epidemic"
	SimulateSuffix      = "simulate.suffix"
)

//go:embed locales/*.json
var locales embed.FS

// I18nSupport 国际化支持结构体
type I18nSupport struct {
	bundle *i18n.Bundle
}

// NewI18nSupport 初始化国际化支持，语言文件内嵌在二进制中
func NewI18nSupport(defaultLang string) (*I18nSupport, error) {
	bundle := i18n.NewBundle(language.MustParse(defaultLang))
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		buf, err := locales.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, e.Name()); err != nil {
			return nil, err
		}
	}
	return &I18nSupport{bundle: bundle}, nil
}

// T 获取翻译文本，找不到时返回键名
func (i *I18nSupport) T(languageTag, key string, templateData map[string]interface{}) string {
	localizer := i18n.NewLocalizer(i.bundle, languageTag)

	translation, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		logger.Warn("i18n lookup failed", zap.String("key", key), zap.Error(err))
		return key
	}
	return translation
}

// TWithDefaultLang 使用默认语言获取翻译文本
func (i *I18nSupport) TWithDefaultLang(key string, templateData map[string]interface{}) string {
	return i.T("", key, templateData)
}

var (
	defaultOnce sync.Once
	defaultSup  *I18nSupport
)

// Default returns the process-wide English bundle.
func Default() *I18nSupport {
	defaultOnce.Do(func() {
		s, err := NewI18nSupport("en")
		if err != nil {
			panic(err)
		}
		defaultSup = s
	})
	return defaultSup
}

// Text resolves key in the default language. Stored markers and wire
// notices always use this so clients can match them literally.
func Text(key string) string {
	return Default().TWithDefaultLang(key, nil)
}
