// Package enrichment brings stored messages to their final state: image
// normalization, translation, vision analysis and keyword triage.
package enrichment

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/internal/translation"
	"github.com/alinorwa/nurse-assistant-management/pkg/i18n"
	"github.com/alinorwa/nurse-assistant-management/pkg/imaging"
	"github.com/alinorwa/nurse-assistant-management/pkg/llm"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/metrics"
	stores "github.com/alinorwa/nurse-assistant-management/pkg/storage"
)

const (
	StageImage     = "image"
	StageTranslate = "translate"
	StageVision    = "vision"
	StageTriage    = "triage"
	StageNotify    = "notify"

	DefaultCampLanguage  = "no"
	DefaultVisionTimeout = 20 * time.Second
)

// AlertKeywords in a vision report mark the message urgent.
var AlertKeywords = []string{"blood", "blod", "emergency", "akutt", "urgent"}

type Options struct {
	Translator    *translation.Service
	Vision        llm.VisionAnalyzer
	Store         stores.Store
	Publisher     chat.Publisher
	CampLanguage  string
	VisionTimeout time.Duration
	Location      *time.Location
	Metrics       *metrics.Metrics
	// Keywords caches the triage word list; nil reads the table every time
	Keywords *models.KeywordCache
}

type Pipeline struct {
	db   *gorm.DB
	opts Options
}

func NewPipeline(db *gorm.DB, opts Options) *Pipeline {
	if opts.CampLanguage == "" {
		opts.CampLanguage = DefaultCampLanguage
	}
	if opts.VisionTimeout <= 0 {
		opts.VisionTimeout = DefaultVisionTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{db: db, opts: opts}
}

// run is the state of one invocation.
type run struct {
	msg     *models.Message
	changed []string
	image   []byte
	// imageOK is false when the attached image could not be read
	imageOK bool
}

func (r *run) mark(col string) {
	for _, c := range r.changed {
		if c == col {
			return
		}
	}
	r.changed = append(r.changed, col)
}

// Process runs every applicable stage once. Only a missing message or a
// failure to persist is returned; provider failures degrade in place.
func (p *Pipeline) Process(ctx context.Context, messageID string) error {
	db := p.db.WithContext(ctx)
	msg, err := models.GetMessage(db, messageID)
	if err != nil {
		logger.Warn("enrichment skipped", zap.String("message_id", messageID), zap.Error(err))
		return err
	}
	if msg.Sender == nil || msg.Session == nil {
		logger.Warn("enrichment skipped: dangling references", zap.String("message_id", messageID))
		return nil
	}

	r := &run{msg: msg}
	p.stage(StageImage, func() string { return p.normalizeImage(ctx, r) })
	p.stage(StageTranslate, func() string { return p.translate(ctx, r) })
	p.stage(StageVision, func() string { return p.analyze(ctx, r) })
	p.stage(StageTriage, func() string { return p.triage(ctx, r) })

	if len(r.changed) == 0 {
		return nil
	}
	if err := models.UpdateMessageFields(db, msg, r.changed...); err != nil {
		logger.Error("enrichment persist failed", zap.String("message_id", msg.ID), zap.Error(err))
		p.opts.Metrics.RecordStage(StageNotify, "error", 0)
		return err
	}
	p.stage(StageNotify, func() string { return p.notify(ctx, r) })
	return nil
}

func (p *Pipeline) stage(name string, fn func() string) {
	start := time.Now()
	outcome := fn()
	p.opts.Metrics.RecordStage(name, outcome, time.Since(start))
}

func (p *Pipeline) normalizeImage(ctx context.Context, r *run) string {
	if !r.msg.HasImage() {
		return "skipped"
	}
	if p.opts.Store == nil {
		logger.Warn("no image store configured", zap.String("message_id", r.msg.ID))
		return "error"
	}
	data, err := imaging.NormalizeStored(ctx, p.opts.Store, r.msg.Image)
	if err != nil {
		logger.Warn("image normalization failed",
			zap.String("message_id", r.msg.ID), zap.String("image", r.msg.Image), zap.Error(err))
		return "error"
	}
	r.image, r.imageOK = data, true
	return "ok"
}

// translate: refugee → camp language, staff → the refugee's native language.
func (p *Pipeline) translate(ctx context.Context, r *run) string {
	m := r.msg
	if m.TextOriginal == "" || m.TextTranslated != "" {
		return "skipped"
	}
	target := p.opts.CampLanguage
	if !m.Sender.IsRefugee() {
		if m.Session.Refugee == nil || m.Session.Refugee.NativeLanguage == "" {
			logger.Warn("session refugee has no language", zap.String("session_id", m.SessionID))
			m.TextTranslated = m.TextOriginal + i18n.Text(i18n.MarkerConfig)
			r.mark("text_translated")
			return "degraded"
		}
		target = m.Session.Refugee.NativeLanguage
	}

	if p.opts.Translator == nil {
		m.TextTranslated = m.TextOriginal + i18n.Text(i18n.MarkerConfig)
		r.mark("text_translated")
		return "degraded"
	}
	res := p.opts.Translator.Translate(ctx, m.TextOriginal, m.LanguageCode, target)
	m.TextTranslated = res.Text
	r.mark("text_translated")
	if res.Degraded {
		return "degraded"
	}
	return "ok"
}

func (p *Pipeline) analyze(ctx context.Context, r *run) string {
	m := r.msg
	if !m.HasImage() || m.AIAnalysis != "" {
		return "skipped"
	}
	r.mark("ai_analysis")

	switch {
	case !r.imageOK:
		m.AIAnalysis = i18n.Text(i18n.VisionUnreadable)
		return "degraded"
	case p.opts.Vision == nil:
		m.AIAnalysis = i18n.Text(i18n.VisionNotConfigured)
		return "degraded"
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.VisionTimeout)
	defer cancel()
	report, err := p.opts.Vision.Analyze(callCtx, r.image)
	if err == nil && strings.TrimSpace(report) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		key := i18n.VisionUnavailable
		if llm.IsNotConfigured(err) {
			key = i18n.VisionNotConfigured
		}
		logger.Warn("vision analysis degraded", zap.String("message_id", m.ID),
			zap.Bool("timeout", llm.IsTimeout(err)), zap.Error(err))
		m.AIAnalysis = i18n.Text(key)
		return "degraded"
	}

	m.AIAnalysis = report
	if ContainsAny(report, AlertKeywords) {
		p.escalate(ctx, r, "vision")
	}
	return "ok"
}

func (p *Pipeline) triage(ctx context.Context, r *run) string {
	m := r.msg
	if !m.Sender.IsRefugee() || m.TextTranslated == "" {
		return "skipped"
	}
	words, err := p.opts.Keywords.Active(ctx, p.db)
	if err != nil {
		logger.Error("loading danger keywords failed", zap.Error(err))
		return "error"
	}
	if !ContainsAny(m.TextTranslated, words) {
		return "clear"
	}
	p.escalate(ctx, r, "keyword")
	return "urgent"
}

// escalate flags the message and raises the session in one targeted update.
func (p *Pipeline) escalate(ctx context.Context, r *run, reason string) {
	if !r.msg.IsUrgent {
		r.msg.IsUrgent = true
		r.mark("is_urgent")
	}
	if err := models.EscalateSession(p.db.WithContext(ctx), r.msg.SessionID); err != nil {
		logger.Error("session escalation failed", zap.String("session_id", r.msg.SessionID), zap.Error(err))
		return
	}
	logger.Info("session escalated",
		zap.String("session_id", r.msg.SessionID), zap.String("message_id", r.msg.ID), zap.String("reason", reason))
}

func (p *Pipeline) notify(ctx context.Context, r *run) string {
	if p.opts.Publisher == nil {
		return "skipped"
	}
	m := r.msg
	imageURL := ""
	if m.HasImage() && p.opts.Store != nil {
		imageURL = p.opts.Store.PublicURL(m.Image)
	}
	event := chat.NewChatEvent(m, p.opts.Location).
		WithEnrichment(m, imageURL).
		WithSender(m.Sender.DisplayName())
	if err := p.opts.Publisher.Publish(ctx, models.SessionGroup(m.SessionID), event); err != nil {
		logger.Warn("enrichment broadcast failed", zap.String("message_id", m.ID), zap.Error(err))
		return "error"
	}
	return "ok"
}

// ContainsAny reports whether any non-empty needle occurs in text, ignoring case.
func ContainsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
