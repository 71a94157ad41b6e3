package websocket

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 每个连接的发送缓冲
	MessageBufferSize int
	// 读缓冲区大小
	ReadBufferSize int
	// 写缓冲区大小
	WriteBufferSize int
	// 最大消息大小
	MaxMessageSize int
	// 是否启用压缩
	EnableCompression bool
	// 节点ID，跨实例转发时用于忽略自己发布的消息
	ClusterNodeID string
	// 分片数量
	ShardCount int
	// 发送缓冲区满时是否丢弃
	DropOnFull bool
	// 压缩等级（-2..9）
	CompressionLevel int
	// 慢消费者策略：背压触发时直接断开
	CloseOnBackpressure bool
	// 发送阻塞超时（用于非 DropOnFull 模式）
	SendTimeout time.Duration
	// 启用全局心跳
	EnableGlobalPing bool
	// 全局心跳workers
	PingWorkerCount int
	// 允许的 Origin，为空时不校验
	AllowedOrigins []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:      DefaultMaxConnections,
		HeartbeatInterval:   DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout:   DefaultConnectionTimeout * time.Second,
		MessageBufferSize:   DefaultMessageBufferSize,
		ReadBufferSize:      DefaultReadBufferSize,
		WriteBufferSize:     DefaultWriteBufferSize,
		MaxMessageSize:      DefaultMaxMessageSize,
		EnableCompression:   true,
		ClusterNodeID:       uuid.NewString(),
		ShardCount:          16,
		DropOnFull:          true,
		CompressionLevel:    -2,
		CloseOnBackpressure: false,
		SendTimeout:         50 * time.Millisecond,
		EnableGlobalPing:    false,
		PingWorkerCount:     4,
	}
}

// LoadConfigFromEnv 从环境变量加载WebSocket配置
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if v := util.GetIntEnv(EnvWebSocketMaxConnections); v > 0 {
		config.MaxConnections = v
	}
	if v := util.GetIntEnv(EnvWebSocketHeartbeatInterval); v > 0 {
		config.HeartbeatInterval = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvWebSocketConnectionTimeout); v > 0 {
		config.ConnectionTimeout = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvWebSocketMessageBufferSize); v > 0 {
		config.MessageBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketShardCount); v > 0 {
		config.ShardCount = int(v)
	}
	if util.GetEnv(EnvWebSocketEnableCompression) != "" {
		config.EnableCompression = util.GetBoolEnv(EnvWebSocketEnableCompression)
	}
	if v := util.GetEnv(EnvWebSocketClusterNodeID); v != "" {
		config.ClusterNodeID = v
	}
	if util.GetEnv(EnvWebSocketDropOnFull) != "" {
		config.DropOnFull = util.GetBoolEnv(EnvWebSocketDropOnFull)
	}
	if v := util.GetIntEnv(EnvWebSocketCompressionLevel); v != 0 {
		config.CompressionLevel = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketReadBufferSize); v > 0 {
		config.ReadBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketWriteBufferSize); v > 0 {
		config.WriteBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketMaxMessageSize); v > 0 {
		config.MaxMessageSize = int(v)
	}
	if util.GetEnv(EnvWebSocketCloseOnBackpressure) != "" {
		config.CloseOnBackpressure = util.GetBoolEnv(EnvWebSocketCloseOnBackpressure)
	}
	if v := util.GetIntEnv(EnvWebSocketSendTimeoutMs); v > 0 {
		config.SendTimeout = time.Duration(v) * time.Millisecond
	}
	if util.GetEnv(EnvWebSocketEnableGlobalPing) != "" {
		config.EnableGlobalPing = util.GetBoolEnv(EnvWebSocketEnableGlobalPing)
	}
	if v := util.GetIntEnv(EnvWebSocketPingWorkers); v > 0 {
		config.PingWorkerCount = int(v)
	}
	if v := util.GetEnv(EnvWebSocketAllowedOrigins); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	return config
}

// ValidateConfig 验证WebSocket配置
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("配置不能为空")
	}
	if config.MaxConnections <= 0 {
		return fmt.Errorf("最大连接数必须大于0")
	}
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("心跳间隔必须大于0")
	}
	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("连接超时时间必须大于0")
	}
	if config.MessageBufferSize <= 0 {
		return fmt.Errorf("消息缓冲区大小必须大于0")
	}
	if config.ShardCount <= 0 {
		return fmt.Errorf("分片数量必须大于0")
	}
	if config.CompressionLevel < -2 || config.CompressionLevel > 9 {
		return fmt.Errorf("压缩等级必须在-2到9之间")
	}
	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 {
		return fmt.Errorf("读/写缓冲区大小必须大于0")
	}
	if config.MaxMessageSize <= 0 {
		return fmt.Errorf("最大消息大小必须大于0")
	}
	// 心跳间隔应该小于连接超时时间
	if config.HeartbeatInterval >= config.ConnectionTimeout {
		return fmt.Errorf("心跳间隔必须小于连接超时时间")
	}
	if config.CloseOnBackpressure && config.SendTimeout <= 0 {
		return fmt.Errorf("启用背压断连时必须设置 send timeout")
	}
	if config.EnableGlobalPing && config.PingWorkerCount <= 0 {
		return fmt.Errorf("启用全局心跳时必须设置 PingWorkerCount > 0")
	}
	return nil
}

// GetConfigSummary 获取配置摘要
func GetConfigSummary(config *Config) map[string]interface{} {
	return map[string]interface{}{
		"max_connections":       config.MaxConnections,
		"heartbeat_interval":    config.HeartbeatInterval.String(),
		"connection_timeout":    config.ConnectionTimeout.String(),
		"message_buffer_size":   config.MessageBufferSize,
		"max_message_size":      config.MaxMessageSize,
		"enable_compression":    config.EnableCompression,
		"cluster_node_id":       config.ClusterNodeID,
		"shard_count":           config.ShardCount,
		"drop_on_full":          config.DropOnFull,
		"close_on_backpressure": config.CloseOnBackpressure,
		"send_timeout":          config.SendTimeout.String(),
	}
}
