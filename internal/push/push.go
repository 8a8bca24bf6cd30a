// Package push 向外部推送服务发送新消息通知
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sudooom.im.chat/internal/workerpool"
)

// Notification 一次推送
type Notification struct {
	UserIDs   []int64 `json:"userIds"`
	GroupID   int64   `json:"groupId"`
	MessageID int64   `json:"messageId,omitempty"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
}

// Notifier 推送发送器
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Noop 未配置推送服务时使用
type Noop struct{}

// Notify 丢弃通知
func (Noop) Notify(context.Context, Notification) error { return nil }

// HTTPSender 以 JSON POST 调用推送服务
type HTTPSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSender 创建 HTTP 推送发送器
func NewHTTPSender(endpoint, apiKey string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Notify 发送通知，非 2xx 视为失败
func (s *HTTPSender) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Submitter 异步任务提交
type Submitter interface {
	TrySubmit(task workerpool.Task) error
}

// Dispatcher 在 worker pool 上异步发送通知，失败只记录日志
type Dispatcher struct {
	notifier Notifier
	pool     Submitter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher 创建异步分发器
func NewDispatcher(notifier Notifier, pool Submitter, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		pool:     pool,
		timeout:  timeout,
		logger:   slog.Default(),
	}
}

// Dispatch 提交通知，不等待结果
func (d *Dispatcher) Dispatch(n Notification) {
	if len(n.UserIDs) == 0 {
		return
	}

	err := d.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, n); err != nil {
			d.logger.Warn("Push notification failed",
				"group_id", n.GroupID,
				"recipients", len(n.UserIDs),
				"error", err)
		}
	})
	if err != nil {
		d.logger.Warn("Push notification dropped", "group_id", n.GroupID, "error", err)
	}
}
