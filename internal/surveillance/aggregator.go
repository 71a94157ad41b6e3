package surveillance

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/enrichment"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/metrics"
	"github.com/alinorwa/nurse-assistant-management/pkg/scheduler"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

const (
	DefaultWindow    = 60 * time.Minute
	DefaultThreshold = 5
)

type Config struct {
	Window     time.Duration
	Threshold  int
	Signatures []Signature
}

// Aggregator recomputes every category over the trailing window on each run.
// It keeps no state between runs.
type Aggregator struct {
	db      *gorm.DB
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewAggregator(db *gorm.DB, cfg Config, m *metrics.Metrics) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if len(cfg.Signatures) == 0 {
		cfg.Signatures = DefaultSignatures
	}
	return &Aggregator{db: db, cfg: cfg, now: func() time.Time { return time.Now().UTC() }, metrics: m}
}

// Report 一次扫描的结果：每个类别的去重人数及新建的警报
type Report struct {
	Since    time.Time
	Scanned  int
	Affected map[string]int
	Raised   []models.EpidemicAlert
}

// Run scans once. Matching counts distinct senders, not messages.
func (a *Aggregator) Run(ctx context.Context) (*Report, error) {
	db := a.db.WithContext(ctx)
	since := a.now().Add(-a.cfg.Window)

	msgs, err := models.RefugeeMessagesSince(db, since)
	if err != nil {
		a.metrics.RecordAggregatorRun("error")
		return nil, err
	}

	affected := make(map[string]map[uint]struct{}, len(a.cfg.Signatures))
	for _, m := range msgs {
		content := strings.ToLower(m.TextTranslated + " " + m.AIAnalysis)
		for _, sig := range a.cfg.Signatures {
			if !enrichment.ContainsAny(content, sig.Keywords) {
				continue
			}
			if affected[sig.Category] == nil {
				affected[sig.Category] = make(map[uint]struct{})
			}
			affected[sig.Category][m.SenderID] = struct{}{}
		}
	}

	rep := &Report{Since: since, Scanned: len(msgs), Affected: make(map[string]int, len(affected))}
	for _, sig := range a.cfg.Signatures {
		n := len(affected[sig.Category])
		rep.Affected[sig.Category] = n
		if n < a.cfg.Threshold {
			continue
		}
		exists, err := models.AlertExistsSince(db, sig.Category, since)
		if err != nil {
			logger.Error("alert dedup check failed", zap.String("category", sig.Category), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		alert := models.EpidemicAlert{SymptomCategory: sig.Category, CaseCount: n}
		if err := models.CreateAlert(db, &alert); err != nil {
			logger.Error("creating epidemic alert failed", zap.String("category", sig.Category), zap.Error(err))
			continue
		}
		logger.Warn("epidemic alert raised", zap.String("category", sig.Category), zap.Int("cases", n))
		rep.Raised = append(rep.Raised, alert)
		util.Sig().Emit(models.SigEpidemicAlert, &alert)
	}

	a.metrics.RecordAggregatorRun("ok")
	return rep, nil
}

// Job adapts Run for the cron scheduler. Errors are logged so the next tick
// still fires.
func (a *Aggregator) Job() scheduler.Job {
	return scheduler.FuncJob(func(ctx context.Context) {
		rep, err := a.Run(ctx)
		if err != nil {
			logger.Error("surveillance run failed", zap.Error(err))
			return
		}
		logger.Debug("surveillance run", zap.Int("scanned", rep.Scanned), zap.Int("raised", len(rep.Raised)))
	})
}
