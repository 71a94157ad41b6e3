package listeners

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

const enqueueTimeout = 5 * time.Second

// Enqueuer accepts message ids for enrichment.
type Enqueuer interface {
	Submit(ctx context.Context, messageID string) error
}

// InitMessageListeners hands every committed message that still needs work
// to the enrichment pool.
func InitMessageListeners(q Enqueuer) {
	util.Sig().Connect(models.SigMessageCreated, func(sender any, params ...any) {
		msg, ok := sender.(*models.Message)
		if !ok || len(params) == 0 {
			return
		}
		author, ok := params[0].(*models.User)
		if !ok || !chat.NeedsEnrichment(msg, author) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()
		if err := q.Submit(ctx, msg.ID); err != nil {
			logger.Error("enqueue enrichment failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	})
}
