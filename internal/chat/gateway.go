package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/i18n"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/metrics"
	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
	"github.com/alinorwa/nurse-assistant-management/pkg/websocket"
)

const frameTimeout = 10 * time.Second

type inboundFrame struct {
	Message string `json:"message"`
}

// Gateway terminates session websockets. Outbound traffic is whatever the hub
// delivers to the session group; the gateway never rewrites it.
type Gateway struct {
	hub     *websocket.Hub
	svc     *Service
	limiter *middleware.SenderLimiter
	loc     *time.Location
	metrics *metrics.Metrics
}

func NewGateway(hub *websocket.Hub, svc *Service, limiter *middleware.SenderLimiter, loc *time.Location, m *metrics.Metrics) *Gateway {
	if loc == nil {
		loc = time.UTC
	}
	return &Gateway{hub: hub, svc: svc, limiter: limiter, loc: loc, metrics: m}
}

// ServeSession handles GET /ws/chat/:session_id.
func (g *Gateway) ServeSession(c *gin.Context) {
	p := middleware.CurrentUser(c)
	if p == nil {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	sess, err := models.GetSession(g.svc.DB().WithContext(c.Request.Context()), c.Param("session_id"))
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		logger.Error("gateway session lookup failed", zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if !CanAccess(sess, p) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	sender := UserFromPrincipal(p)
	group := sess.Group()
	_, err = g.hub.Serve(c.Writer, c.Request, websocket.ServeOptions{
		UserID:  strconv.FormatUint(uint64(p.ID), 10),
		Groups:  []string{group},
		OnFrame: g.onFrame(sess.ID, group, sender),
		OnClose: g.onClose,
	})
	if err != nil {
		g.metrics.RecordGatewayMessage("rejected_connection")
		return
	}
	g.metrics.SetGatewayConnections(int(g.hub.GetConnectionCount()))
}

// ServeAdmin handles GET /ws/admin for staff dashboards.
func (g *Gateway) ServeAdmin(c *gin.Context) {
	p := middleware.CurrentUser(c)
	if p == nil || !p.IsStaff {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	_, err := g.hub.Serve(c.Writer, c.Request, websocket.ServeOptions{
		UserID:  strconv.FormatUint(uint64(p.ID), 10),
		Groups:  []string{AdminGroup},
		OnClose: g.onClose,
	})
	if err == nil {
		g.metrics.SetGatewayConnections(int(g.hub.GetConnectionCount()))
	}
}

func (g *Gateway) onClose(_ *websocket.Connection) {
	g.metrics.SetGatewayConnections(int(g.hub.GetConnectionCount()))
}

func (g *Gateway) onFrame(sessionID, group string, sender *models.User) websocket.InboundHandler {
	return func(conn *websocket.Connection, data []byte) {
		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			logger.Debug("dropping malformed frame", zap.String("conn", conn.ID), zap.Error(err))
			g.metrics.RecordGatewayMessage("dropped")
			return
		}
		text := strings.TrimSpace(in.Message)
		if text == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		defer cancel()

		if !sender.IsStaff && g.limiter != nil {
			ok, err := g.limiter.Allow(ctx, "chat:"+strconv.FormatUint(uint64(sender.ID), 10))
			if err != nil {
				// store unavailable, the message goes through
				logger.Warn("rate limiter store failed", zap.Uint("sender_id", sender.ID), zap.Error(err))
			}
			if !ok {
				g.metrics.RecordGatewayMessage("throttled")
				logger.Warn("sender throttled", zap.Uint("sender_id", sender.ID), zap.String("session_id", sessionID))
				_ = conn.SendJSON(NewErrorAlert(i18n.Text(i18n.GatewayRateLimited)))
				return
			}
		}

		msg, err := g.svc.Post(ctx, PostInput{SessionID: sessionID, Sender: sender, Text: text})
		if err != nil {
			g.metrics.RecordGatewayMessage("dropped")
			logger.Error("gateway failed to store message",
				zap.String("session_id", sessionID), zap.Uint("sender_id", sender.ID), zap.Error(err))
			return
		}
		g.metrics.RecordGatewayMessage("accepted")

		if err := g.hub.Publish(ctx, group, NewChatEvent(msg, g.loc)); err != nil {
			logger.Warn("chat broadcast failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
		g.svc.Enqueue(msg, sender)
	}
}
