package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/internal/models/modeltest"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
	"github.com/alinorwa/nurse-assistant-management/pkg/websocket"
)

const testSecret = "gateway-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type gatewayFixture struct {
	db      *gorm.DB
	hub     *websocket.Hub
	srv     *httptest.Server
	refugee *models.User
	nurse   *models.User
	session *models.Session
}

func newGatewayFixture(t *testing.T, rate string) *gatewayFixture {
	lim, err := middleware.NewSenderLimiter(rate, nil, nil)
	require.NoError(t, err)
	return newGatewayFixtureWith(t, lim)
}

func newGatewayFixtureWith(t *testing.T, lim *middleware.SenderLimiter) *gatewayFixture {
	db := modeltest.NewDB(t)
	svc := NewService(db)
	f := &gatewayFixture{
		db:      db,
		refugee: modeltest.Refugee(t, db, "amal", "ar"),
		nurse:   modeltest.Nurse(t, db, "kari"),
	}
	var err error
	f.session, err = svc.OpenSession(context.Background(), f.refugee)
	require.NoError(t, err)

	f.hub = websocket.NewHub(websocket.DefaultConfig())
	t.Cleanup(f.hub.Close)
	gw := NewGateway(f.hub, svc, lim, time.UTC, nil)

	r := gin.New()
	r.Use(middleware.Authenticate(testSecret, models.PrincipalLoader(db)))
	r.GET("/ws/chat/:session_id", gw.ServeSession)
	r.GET("/ws/admin", gw.ServeAdmin)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, path string, u *models.User) (*gws.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
	if u != nil {
		token, err := middleware.SignToken(testSecret, u.ID, time.Hour)
		require.NoError(t, err)
		url += "?token=" + token
	}
	c, resp, err := gws.DefaultDialer.Dial(url, nil)
	if c != nil {
		t.Cleanup(func() { c.Close() })
	}
	return c, resp, err
}

func (f *gatewayFixture) join(t *testing.T, u *models.User) *gws.Conn {
	c, _, err := f.dial(t, "/ws/chat/"+f.session.ID, u)
	require.NoError(t, err)
	return c
}

func send(t *testing.T, c *gws.Conn, text string) {
	b, err := json.Marshal(map[string]string{"message": text})
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(gws.TextMessage, b))
}

func read(t *testing.T, c *gws.Conn) map[string]interface{} {
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestGatewayRejectsUnauthenticated(t *testing.T) {
	f := newGatewayFixture(t, "30-M")
	_, resp, err := f.dial(t, "/ws/chat/"+f.session.ID, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGatewayChecksSessionAccess(t *testing.T) {
	f := newGatewayFixture(t, "30-M")
	stranger := modeltest.Refugee(t, f.db, "other", "uk")

	_, resp, err := f.dial(t, "/ws/chat/"+f.session.ID, stranger)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = f.dial(t, "/ws/chat/does-not-exist", f.refugee)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = f.dial(t, "/ws/admin", f.refugee)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGatewayRelaysToSessionGroup(t *testing.T) {
	f := newGatewayFixture(t, "30-M")
	rc := f.join(t, f.refugee)
	nc := f.join(t, f.nurse)
	time.Sleep(50 * time.Millisecond)

	send(t, rc, "   ")
	send(t, rc, "  jeg har feber ")

	for _, c := range []*gws.Conn{rc, nc} {
		ev := read(t, c)
		assert.Equal(t, "chat_message", ev["type"])
		assert.Equal(t, "jeg har feber", ev["text_original"])
		assert.Equal(t, float64(f.refugee.ID), ev["sender_id"])
		assert.Regexp(t, `^\d\d:\d\d$`, ev["timestamp"])
	}

	msgs, err := models.ListSessionMessages(f.db, f.session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "blank frames are ignored")
}

func TestGatewayThrottlesRefugeeOnly(t *testing.T) {
	f := newGatewayFixture(t, "3-M")
	rc := f.join(t, f.refugee)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 4; i++ {
		send(t, rc, fmt.Sprintf("msg %d", i))
	}
	types := map[string]int{}
	for i := 0; i < 4; i++ {
		ev := read(t, rc)
		types[ev["type"].(string)]++
		if ev["type"] == "error_alert" {
			assert.Equal(t, "Please slow down. You are sending too fast.", ev["error"])
		}
	}
	assert.Equal(t, map[string]int{"chat_message": 3, "error_alert": 1}, types)

	nc := f.join(t, f.nurse)
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 4; i++ {
		send(t, nc, fmt.Sprintf("svar %d", i))
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, "chat_message", read(t, nc)["type"])
	}

	var n int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&n).Error)
	assert.Equal(t, int64(7), n)
}

func TestGatewayStaffMessageResetsPriority(t *testing.T) {
	f := newGatewayFixture(t, "30-M")
	require.NoError(t, models.EscalateSession(f.db, f.session.ID))
	nc := f.join(t, f.nurse)
	time.Sleep(50 * time.Millisecond)

	send(t, nc, "Vi kommer nå")
	read(t, nc)

	got, err := models.GetSession(f.db, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, got.Priority)
}

func TestGatewayInitialEventPrecedesEnrichedUpdate(t *testing.T) {
	f := newGatewayFixture(t, "30-M")
	// an enrichment worker that finishes instantly
	util.Sig().Connect(models.SigMessageCreated, func(sender any, params ...any) {
		m := *sender.(*models.Message)
		m.TextTranslated = "I have a fever"
		_ = f.hub.Publish(context.Background(), f.session.Group(), NewChatEvent(&m, time.UTC))
	})
	t.Cleanup(func() { util.Sig().Disconnect(models.SigMessageCreated) })

	rc := f.join(t, f.refugee)
	nc := f.join(t, f.nurse)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		send(t, rc, fmt.Sprintf("jeg har feber %d", i))
	}

	last := map[string]string{}
	order := map[string][]string{}
	for i := 0; i < 10; i++ {
		ev := read(t, nc)
		id := ev["id"].(string)
		order[id] = append(order[id], ev["text_translated"].(string))
		last[id] = ev["text_translated"].(string)
	}
	require.Len(t, order, 5)
	for id, seq := range order {
		assert.Equal(t, []string{"", "I have a fever"}, seq, "message %s", id)
		assert.Equal(t, "I have a fever", last[id])
	}
}

type brokenStore struct{}

var errStoreDown = errors.New("limiter store down")

func (brokenStore) Get(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func (brokenStore) Peek(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func (brokenStore) Reset(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func (brokenStore) Increment(context.Context, string, int64, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func TestGatewayFailsOpenAndLogsLimiterErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := logger.Lg
	logger.Lg = zap.New(core)
	t.Cleanup(func() { logger.Lg = prev })

	lim, err := middleware.NewSenderLimiter("1-M", brokenStore{}, nil)
	require.NoError(t, err)
	f := newGatewayFixtureWith(t, lim)
	rc := f.join(t, f.refugee)
	time.Sleep(50 * time.Millisecond)

	send(t, rc, "first")
	send(t, rc, "second")
	assert.Equal(t, "chat_message", read(t, rc)["type"])
	assert.Equal(t, "chat_message", read(t, rc)["type"])

	entries := logs.FilterMessage("rate limiter store failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(f.refugee.ID), int64(entries[0].ContextMap()["sender_id"].(uint64)))
}
