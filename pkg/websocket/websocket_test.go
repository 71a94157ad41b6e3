package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const androidUA = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Second
	cfg.ConnectionTimeout = 5 * time.Second
	cfg.ShardCount = 2
	return cfg
}

func serveGroups(t *testing.T, hub *Hub, opts func(r *http.Request) ServeOptions) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = hub.Serve(w, r, opts(r))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	c, _, err := gws.DefaultDialer.Dial(url, http.Header{"User-Agent": []string{androidUA}})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readJSON(t *testing.T, c *gws.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestPublishReachesOnlyGroupMembers(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Close()

	srv := serveGroups(t, hub, func(r *http.Request) ServeOptions {
		return ServeOptions{UserID: r.URL.Query().Get("u"), Groups: []string{r.URL.Query().Get("g")}}
	})

	a := dial(t, srv, "u=1&g=chat_a")
	b := dial(t, srv, "u=2&g=chat_b")
	require.Eventually(t, func() bool { return hub.GetConnectionCount() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "chat_a", map[string]string{"type": "chat_message", "id": "m1"}))

	got := readJSON(t, a)
	assert.Equal(t, "chat_message", got["type"])
	assert.Equal(t, "m1", got["id"])

	require.NoError(t, b.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "member of another group must not receive the event")
}

func TestInboundFramesAndReplyToSender(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Close()

	var closed int32
	srv := serveGroups(t, hub, func(r *http.Request) ServeOptions {
		return ServeOptions{
			UserID: "7",
			Groups: []string{"chat_x"},
			OnFrame: func(c *Connection, data []byte) {
				_ = c.SendJSON(map[string]string{"type": "echo", "body": string(data)})
			},
			OnClose: func(c *Connection) { atomic.StoreInt32(&closed, 1) },
		}
	})

	c := dial(t, srv, "")
	require.NoError(t, c.WriteMessage(gws.TextMessage, []byte(`{"message":"hei"}`)))
	got := readJSON(t, c)
	assert.Equal(t, "echo", got["type"])
	assert.Equal(t, `{"message":"hei"}`, got["body"])

	require.NoError(t, c.WriteMessage(gws.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readJSON(t, c)["type"])

	require.NoError(t, c.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&closed) == 1 && hub.GetConnectionCount() == 0 && hub.GetGroupConnections("chat_x") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	hub := NewHub(cfg)
	defer hub.Close()

	srv := serveGroups(t, hub, func(r *http.Request) ServeOptions { return ServeOptions{} })
	dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.GetConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	second := dial(t, srv, "")
	require.NoError(t, second.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := second.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseTryAgainLater))
	assert.EqualValues(t, 1, hub.GetConnectionCount())
}

func TestUnregisterClosesSendOnce(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Close()

	conn := &Connection{
		ID:     "test_conn_1",
		UserID: "test_user_1",
		Send:   make(chan []byte, 4),
		Groups: map[string]bool{"admin": true},
		Hub:    hub,
	}
	require.NoError(t, hub.register(conn))
	assert.Equal(t, 1, hub.GetGroupConnections("admin"))

	require.NoError(t, hub.Publish(context.Background(), "admin", map[string]int{"count": 5}))
	assert.JSONEq(t, `{"count":5}`, string(<-conn.Send))

	hub.unregister(conn)
	hub.unregister(conn)
	assert.Equal(t, 0, hub.GetGroupConnections("admin"))
	_, open := <-conn.Send
	assert.False(t, open)
	assert.ErrorIs(t, conn.SendJSON("late"), ErrClosed)
}

func TestGroupStatsListClientPlatform(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(testConfig())
	defer hub.Close()

	srv := serveGroups(t, hub, func(r *http.Request) ServeOptions {
		return ServeOptions{UserID: "12", Groups: []string{"chat_s1"}}
	})
	dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.GetGroupConnections("chat_s1") == 1 }, time.Second, 10*time.Millisecond)

	r := gin.New()
	NewHandler(hub).RegisterRoutes(r.Group("/ws"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/group/chat_s1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		ConnectionCount int                      `json:"connection_count"`
		Clients         []map[string]interface{} `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.ConnectionCount)
	require.Len(t, response.Clients, 1)
	assert.Equal(t, "12", response.Clients[0]["user_id"])
	assert.Equal(t, "Chrome", response.Clients[0]["browser"])
	assert.Equal(t, "Linux", response.Clients[0]["platform"])
}

func TestWebSocketHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(testConfig())
	defer hub.Close()

	r := gin.New()
	NewHandler(hub).RegisterRoutes(r.Group("/ws"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response, "total_connections")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultConfig()))
	assert.Error(t, ValidateConfig(nil))

	invalid := DefaultConfig()
	invalid.HeartbeatInterval = 60 * time.Second
	invalid.ConnectionTimeout = 30 * time.Second
	assert.Error(t, ValidateConfig(invalid))

	invalid = DefaultConfig()
	invalid.CompressionLevel = 12
	assert.Error(t, ValidateConfig(invalid))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(EnvWebSocketMaxConnections, "42")
	t.Setenv(EnvWebSocketHeartbeatInterval, "5")
	t.Setenv(EnvWebSocketDropOnFull, "false")
	t.Setenv(EnvWebSocketAllowedOrigins, "https://camp.example, https://staff.example")

	cfg := LoadConfigFromEnv()
	assert.EqualValues(t, 42, cfg.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.False(t, cfg.DropOnFull)
	assert.Equal(t, []string{"https://camp.example", "https://staff.example"}, cfg.AllowedOrigins)
}

func TestRedisRelayBetweenHubs(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	channel := "test:relay:" + time.Now().Format("150405.000")
	hubA, hubB := NewHub(testConfig()), NewHub(testConfig())
	defer hubA.Close()
	defer hubB.Close()
	require.NoError(t, hubA.UseRelay(NewRedisRelay(client, channel, "a")))
	require.NoError(t, hubB.UseRelay(NewRedisRelay(client, channel, "b")))

	conn := &Connection{ID: "c1", Send: make(chan []byte, 4), Groups: map[string]bool{"admin": true}, Hub: hubB}
	require.NoError(t, hubB.register(conn))

	require.NoError(t, hubA.Publish(context.Background(), "admin", map[string]string{"type": "epidemic_alert"}))
	select {
	case data := <-conn.Send:
		assert.JSONEq(t, `{"type":"epidemic_alert"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("relayed event not delivered")
	}
}
