package websocket

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Relay 在多个实例之间转发组消息（至少一次，不保证去重）
type Relay interface {
	Publish(ctx context.Context, group string, data []byte) error
	Subscribe(ctx context.Context, deliver func(group string, data []byte)) error
	Close() error
}

type relayEnvelope struct {
	Node    string          `json:"node"`
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay 基于 redis pub/sub 的实现
type RedisRelay struct {
	client  *redis.Client
	channel string
	nodeID  string
	pubsub  *redis.PubSub
}

func NewRedisRelay(client *redis.Client, channel, nodeID string) *RedisRelay {
	if channel == "" {
		channel = RelayChannel
	}
	return &RedisRelay{client: client, channel: channel, nodeID: nodeID}
}

func (r *RedisRelay) Publish(ctx context.Context, group string, data []byte) error {
	msg, err := json.Marshal(relayEnvelope{Node: r.nodeID, Group: group, Payload: data})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, msg).Err()
}

// Subscribe 订阅频道，跳过本节点发布的消息
func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(group string, data []byte)) error {
	r.pubsub = r.client.Subscribe(ctx, r.channel)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		return err
	}
	ch := r.pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					logrus.Warnf("转发消息解析失败: %v", err)
					continue
				}
				if env.Node == r.nodeID {
					continue
				}
				deliver(env.Group, env.Payload)
			}
		}
	}()
	return nil
}

func (r *RedisRelay) Close() error {
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Close()
}
