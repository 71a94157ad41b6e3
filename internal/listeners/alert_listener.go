package listeners

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/i18n"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/metrics"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

// InitAlertListeners pushes every new epidemic alert to the admin channel.
func InitAlertListeners(pub chat.Publisher, m *metrics.Metrics) {
	util.Sig().Connect(models.SigEpidemicAlert, func(sender any, params ...any) {
		alert, ok := sender.(*models.EpidemicAlert)
		if !ok {
			return
		}
		m.RecordEpidemicAlert(alert.SymptomCategory)

		event := chat.EpidemicAlertEvent{
			Type:     chat.EventEpidemicAlert,
			Category: alert.SymptomCategory,
			Count:    alert.CaseCount,
			Message: i18n.Default().TWithDefaultLang(i18n.AlertEpidemic, map[string]interface{}{
				"Category": alert.SymptomCategory,
				"Count":    alert.CaseCount,
			}),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pub.Publish(ctx, chat.AdminGroup, event); err != nil {
			logger.Warn("alert broadcast failed", zap.String("category", alert.SymptomCategory), zap.Error(err))
		}
	})
}
