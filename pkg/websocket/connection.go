package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mssola/user_agent"
	"github.com/sirupsen/logrus"
)

// InboundHandler 处理一条客户端文本帧，运行在该连接的读协程中
type InboundHandler func(c *Connection, data []byte)

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	UserID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	Groups   map[string]bool
	Metadata map[string]interface{}

	mu      sync.RWMutex
	pingAt  time.Time
	closed  bool
	onFrame InboundHandler
	onClose func(c *Connection)
}

// ServeOptions 描述一次升级：所属用户、初始组以及回调
type ServeOptions struct {
	UserID  string
	Groups  []string
	OnFrame InboundHandler
	OnClose func(c *Connection)
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		CheckOrigin:       checkOrigin(cfg.AllowedOrigins),
		EnableCompression: cfg.EnableCompression,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == origin {
				return true
			}
		}
		return false
	}
}

// Serve 升级HTTP连接并在后台运行读写协程
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, opts ServeOptions) (*Connection, error) {
	upgrader := newUpgrader(h.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return nil, err
	}

	if h.config.EnableCompression {
		conn.EnableWriteCompression(true)
		if h.config.CompressionLevel != 0 {
			_ = conn.SetCompressionLevel(h.config.CompressionLevel)
		}
	}

	c := &Connection{
		ID:       "conn_" + uuid.NewString(),
		UserID:   opts.UserID,
		Conn:     conn,
		Send:     make(chan []byte, h.config.MessageBufferSize),
		Hub:      h,
		Groups:   make(map[string]bool, len(opts.Groups)),
		Metadata: clientMetadata(r),
		pingAt:   time.Now(),
		onFrame:  opts.OnFrame,
		onClose:  opts.OnClose,
	}
	for _, g := range opts.Groups {
		c.Groups[g] = true
	}

	if err := h.register(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(time.Second))
		conn.Close()
		return nil, err
	}

	go c.writePump()
	go c.readPump()
	return c, nil
}

// clientMetadata 记录客户端平台信息，便于排查
func clientMetadata(r *http.Request) map[string]interface{} {
	ua := user_agent.New(r.UserAgent())
	browser, version := ua.Browser()
	return map[string]interface{}{
		"platform": ua.Platform(),
		"os":       ua.OS(),
		"browser":  browser,
		"version":  version,
		"mobile":   ua.Mobile(),
		"bot":      ua.Bot(),
	}
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		return nil
	})

	for {
		mt, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logrus.Warnf("WebSocket读取错误: %v", err)
			}
			return
		}
		c.touch()
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		if c.handleControl(message) {
			continue
		}
		if c.onFrame != nil {
			c.onFrame(c, message)
		}
	}
}

// writePump 发送消息的协程，每条消息一个帧
func (c *Connection) writePump() {
	var ticker *time.Ticker
	var tick <-chan time.Time
	if !c.Hub.config.EnableGlobalPing {
		interval := c.Hub.config.HeartbeatInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ticker = time.NewTicker(time.Duration(float64(interval) * 0.9))
		tick = ticker.C
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-tick:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleControl 处理应用层心跳，返回 true 表示已消费
func (c *Connection) handleControl(message []byte) bool {
	var frame struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(message, &frame) != nil || frame.Type != MessageTypePing {
		return false
	}
	_ = c.SendJSON(map[string]interface{}{"type": MessageTypePong, "timestamp": time.Now().Unix()})
	return true
}

// SendJSON 只发送给当前连接
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) groupList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groups := make([]string, 0, len(c.Groups))
	for g := range c.Groups {
		groups = append(groups, g)
	}
	return groups
}

func (c *Connection) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.pingAt = time.Now()
	c.mu.Unlock()
}

func (c *Connection) lastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pingAt
}

func (c *Connection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
