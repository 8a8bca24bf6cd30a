// Package health 健康检查
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service       string `json:"service"`
	Store         string `json:"store"`
	NATS          string `json:"nats"`
	Redis         string `json:"redis"`
	Subscriptions int    `json:"subscriptions"`
}

// Healthy 已配置的依赖全部可用
func (s *Status) Healthy() bool {
	return s.Store == StateConnected &&
		s.Redis != StateDisconnected &&
		s.NATS != StateDisconnected
}

// Pinger 存储连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 函数适配 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// ConnectionCounter 连接计数器接口
type ConnectionCounter interface {
	Count() int
}

// Checker 健康检查器，redisClient、nc 为 nil 表示未启用
type Checker struct {
	service     string
	store       Pinger
	nc          *nats.Conn
	redisClient *redis.Client
	connCounter ConnectionCounter
}

// NewChecker 创建健康检查器
func NewChecker(service string, store Pinger, nc *nats.Conn, redisClient *redis.Client, connCounter ConnectionCounter) *Checker {
	return &Checker{
		service:     service,
		store:       store,
		nc:          nc,
		redisClient: redisClient,
		connCounter: connCounter,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service: h.service,
		Store:   StateNotConfigured,
		NATS:    StateNotConfigured,
		Redis:   StateNotConfigured,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if h.store != nil {
		status.Store = state(h.store.Ping(ctx) == nil)
	}

	if h.nc != nil {
		status.NATS = state(h.nc.IsConnected())
	}

	if h.redisClient != nil {
		status.Redis = state(h.redisClient.Ping(ctx).Err() == nil)
	}

	if h.connCounter != nil {
		status.Subscriptions = h.connCounter.Count()
	}

	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Healthy()
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Ready 就绪探针
func (h *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	if h.IsHealthy(r.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("Not Ready"))
}

// Handler 健康检查路由
func (h *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	mux.HandleFunc("/ready", h.Ready)
	return mux
}

func state(ok bool) string {
	if ok {
		return StateConnected
	}
	return StateDisconnected
}
