package websocket

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

var ErrConnectionLimit = apperrors.New(apperrors.KindProtocol, ErrConnectionLimitExceeded)

// Hub 管理所有WebSocket连接，按组广播
type Hub struct {
	// 注册的连接
	connections map[string]*Connection
	// 组到连接ID的映射
	groupConnections map[string]map[string]bool
	// 连接计数
	connectionCount int64
	// 配置
	config *Config
	// 互斥锁
	mu sync.RWMutex
	// 上下文
	ctx    context.Context
	cancel context.CancelFunc

	// shards and locks to reduce contention when fanout
	shardCount int
	shardConns []map[string]*Connection
	shardLocks []sync.RWMutex

	// global ping
	pingJobs chan int

	// 跨实例转发
	relay Relay
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections:      make(map[string]*Connection),
		groupConnections: make(map[string]map[string]bool),
		config:           config,
		ctx:              ctx,
		cancel:           cancel,
	}

	if hub.config.ShardCount <= 0 {
		hub.config.ShardCount = 1
	}
	hub.shardCount = hub.config.ShardCount
	hub.shardConns = make([]map[string]*Connection, hub.shardCount)
	hub.shardLocks = make([]sync.RWMutex, hub.shardCount)
	for i := 0; i < hub.shardCount; i++ {
		hub.shardConns[i] = make(map[string]*Connection)
	}

	if hub.config.EnableGlobalPing {
		if hub.config.PingWorkerCount <= 0 {
			hub.config.PingWorkerCount = 1
		}
		hub.pingJobs = make(chan int, hub.shardCount)
		for i := 0; i < hub.config.PingWorkerCount; i++ {
			go hub.pingWorker()
		}
	}

	go hub.run()
	return hub
}

// UseRelay 开启跨实例转发。收到其它实例的发布后只投递给本地连接
func (h *Hub) UseRelay(r Relay) error {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
	return r.Subscribe(h.ctx, h.deliverLocal)
}

// run Hub主循环，只负责心跳
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if h.config.EnableGlobalPing {
				for i := 0; i < h.shardCount; i++ {
					select {
					case h.pingJobs <- i:
					default:
					}
				}
			}
			h.checkHeartbeats()
		}
	}
}

// pingWorker 全局心跳worker
func (h *Hub) pingWorker() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case shard := <-h.pingJobs:
			h.shardLocks[shard].RLock()
			for _, conn := range h.shardConns[shard] {
				if conn.Alive() {
					_ = conn.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
				}
			}
			h.shardLocks[shard].RUnlock()
		}
	}
}

// register 同步注册，返回后连接已在所属组中可见
func (h *Hub) register(conn *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		return ErrConnectionLimit
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)

	sh := h.shardIndex(conn.ID)
	h.shardLocks[sh].Lock()
	h.shardConns[sh][conn.ID] = conn
	h.shardLocks[sh].Unlock()

	for _, group := range conn.groupList() {
		if h.groupConnections[group] == nil {
			h.groupConnections[group] = make(map[string]bool)
		}
		h.groupConnections[group][conn.ID] = true
	}

	logrus.WithFields(logrus.Fields{
		"platform": conn.Metadata["platform"],
		"browser":  conn.Metadata["browser"],
		"mobile":   conn.Metadata["mobile"],
	}).Infof("WebSocket连接已注册: %s, 用户: %s, 当前连接数: %d",
		conn.ID, conn.UserID, atomic.LoadInt64(&h.connectionCount))
	return nil
}

// unregister 注销连接并关闭发送通道，重复调用无副作用
func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn.ID]; !exists {
		return
	}
	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)

	sh := h.shardIndex(conn.ID)
	h.shardLocks[sh].Lock()
	delete(h.shardConns[sh], conn.ID)
	h.shardLocks[sh].Unlock()

	for _, group := range conn.groupList() {
		if h.groupConnections[group] != nil {
			delete(h.groupConnections[group], conn.ID)
			if len(h.groupConnections[group]) == 0 {
				delete(h.groupConnections, group)
			}
		}
	}

	conn.markClosed()
	close(conn.Send)
	logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d",
		conn.ID, atomic.LoadInt64(&h.connectionCount))
}

// Publish 序列化 payload 并发送给组内全部连接。
// 配置了转发时同时发布给其它实例。
func (h *Hub) Publish(ctx context.Context, group string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h.deliverLocal(group, data)

	h.mu.RLock()
	r := h.relay
	h.mu.RUnlock()
	if r != nil {
		if err := r.Publish(ctx, group, data); err != nil {
			logrus.Warnf("组 %s 跨实例转发失败: %v", group, err)
			return err
		}
	}
	return nil
}

func (h *Hub) deliverLocal(group string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.sendToGroup(group, data)
}

// sendToGroup 调用方持有 h.mu 读锁
func (h *Hub) sendToGroup(group string, data []byte) {
	if connections, exists := h.groupConnections[group]; exists {
		for connID := range connections {
			if conn, ok := h.connections[connID]; ok && conn.Alive() {
				h.trySend(conn, data, func() { logrus.Warnf("组 %s 的连接 %s 发送缓冲区已满", group, connID) })
			}
		}
	}
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		if now.Sub(conn.lastPing()) > h.config.ConnectionTimeout {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.markClosed()
			if conn.Conn != nil {
				conn.Conn.Close()
			}
		}
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetGroupConnections 获取组的连接数
func (h *Hub) GetGroupConnections(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groupConnections[group])
}

// GroupClients 返回组内每个连接的客户端信息
func (h *Hub) GroupClients(group string) []map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]map[string]interface{}, 0, len(h.groupConnections[group]))
	for connID := range h.groupConnections[group] {
		conn, ok := h.connections[connID]
		if !ok {
			continue
		}
		info := map[string]interface{}{"id": conn.ID, "user_id": conn.UserID}
		for k, v := range conn.Metadata {
			info[k] = v
		}
		clients = append(clients, info)
	}
	return clients
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for _, conn := range h.connections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}
	r := h.relay
	h.mu.Unlock()

	if r != nil {
		_ = r.Close()
	}
	logrus.Info("WebSocket Hub已关闭")
}

// shardIndex 计算分片索引
func (h *Hub) shardIndex(id string) int {
	if h.shardCount <= 1 {
		return 0
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(id))
	return int(hasher.Sum32() % uint32(h.shardCount))
}

// trySend 背压策略
func (h *Hub) trySend(conn *Connection, data []byte, onDrop func()) {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
		default:
			onDrop()
			if h.config.CloseOnBackpressure && conn.Conn != nil {
				conn.Conn.Close()
			}
		}
		return
	}
	timeout := h.config.SendTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case conn.Send <- data:
	case <-time.After(timeout):
		onDrop()
		if h.config.CloseOnBackpressure && conn.Conn != nil {
			conn.Conn.Close()
		}
	}
}
