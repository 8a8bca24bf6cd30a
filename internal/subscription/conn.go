package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// ErrConnectionClosed 连接已关闭
var ErrConnectionClosed = errors.New("subscription: connection closed")

// Conn 一个 websocket 订阅连接，可承载多个订阅流
type Conn struct {
	id        int64
	ws        *websocket.Conn
	userID    atomic.Int64
	token     string
	keepAlive time.Duration
	logger    *slog.Logger

	send      chan OperationMessage
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	streams map[string]context.CancelFunc
}

func newConn(id int64, ws *websocket.Conn, keepAlive time.Duration, logger *slog.Logger) *Conn {
	c := &Conn{
		id:        id,
		ws:        ws,
		keepAlive: keepAlive,
		logger:    logger.With("conn_id", id),
		send:      make(chan OperationMessage, sendBufferSize),
		done:      make(chan struct{}),
		streams:   make(map[string]context.CancelFunc),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) ID() int64 {
	return c.id
}

// UserID 认证前为 0
func (c *Conn) UserID() int64 {
	return c.userID.Load()
}

func (c *Conn) bind(userID int64, token string) {
	c.token = token
	c.userID.Store(userID)
}

// Send 入队一帧，连接关闭后返回 ErrConnectionClosed
func (c *Conn) Send(msg OperationMessage) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	}
}

// Done 连接关闭时关闭
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) writeLoop() {
	var tick <-chan time.Time
	if c.keepAlive > 0 {
		ticker := time.NewTicker(c.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.logger.Debug("Write failed, closing connection", "error", err)
				c.Close()
				return
			}
			if msg.Type == TypeConnectionError {
				c.Close()
				return
			}
		case <-tick:
			// 认证前不发心跳
			if c.UserID() == 0 {
				continue
			}
			if err := c.write(OperationMessage{Type: TypeKeepAlive}); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) write(msg OperationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// addStream 注册订阅流，id 重复返回 false
func (c *Conn) addStream(id string, cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.streams[id]; ok {
		return false
	}
	c.streams[id] = cancel
	return true
}

// removeStream 取消并移除订阅流，流不存在返回 false
func (c *Conn) removeStream(id string) bool {
	c.mu.Lock()
	cancel, ok := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// StreamCount 活跃订阅流数量
func (c *Conn) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// Close 关闭连接并取消所有订阅流，可重复调用
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		for id, cancel := range c.streams {
			cancel()
			delete(c.streams, id)
		}
		c.mu.Unlock()

		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.ws.Close()
	})
}
