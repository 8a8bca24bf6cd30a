package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.chat/internal/config"
)

// SubjectPrefix 事件 Subject 前缀，完整格式: chat.events.{topic}
const SubjectPrefix = "chat.events."

// BuildSubject 构建事件 Subject
func BuildSubject(topic Topic) string {
	return SubjectPrefix + string(topic)
}

// Client NATS 客户端封装
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient 创建 NATS 客户端
func NewClient(cfg config.NATSConfig) (*Client, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:   conn,
		logger: slog.Default(),
	}, nil
}

// Conn 返回底层 NATS 连接
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Close 关闭连接
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// NATSBus 跨节点事件总线
// 本地订阅者直接由 LocalBus 投递，同时把事件发布到 NATS，其他节点收到后转发给各自的本地订阅者
type NATSBus struct {
	nc     *nats.Conn
	local  *LocalBus
	origin string
	sub    *nats.Subscription
	logger *slog.Logger
}

// NewNATSBus 创建跨节点总线，origin 为当前节点标识
func NewNATSBus(nc *nats.Conn, local *LocalBus, origin string) *NATSBus {
	return &NATSBus{
		nc:     nc,
		local:  local,
		origin: origin,
		logger: slog.Default(),
	}
}

// Start 订阅所有事件 Subject
func (b *NATSBus) Start() error {
	sub, err := b.nc.Subscribe(SubjectPrefix+">", b.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe events: %w", err)
	}
	b.sub = sub
	b.logger.Info("NATS event bus started", "subject", SubjectPrefix+">", "origin", b.origin)
	return nil
}

// Stop 取消 NATS 订阅
func (b *NATSBus) Stop() {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Warn("Failed to unsubscribe events", "error", err)
		}
	}
}

// Publish 投递给本地订阅者并广播到其他节点
func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	ev.Origin = b.origin
	if err := b.local.Publish(ctx, ev); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.nc.Publish(BuildSubject(ev.Topic), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe 订阅本节点事件流
func (b *NATSBus) Subscribe(topics ...Topic) *Subscription {
	return b.local.Subscribe(topics...)
}

func (b *NATSBus) handle(msg *nats.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.logger.Error("Failed to unmarshal event", "subject", msg.Subject, "error", err)
		return
	}
	// 本节点发布的事件已在本地投递
	if ev.Origin == b.origin {
		return
	}
	if err := b.local.Publish(context.Background(), ev); err != nil {
		b.logger.Error("Failed to forward event", "topic", ev.Topic, "error", err)
	}
}
