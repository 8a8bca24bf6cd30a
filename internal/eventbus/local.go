package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscription 单个订阅者的事件队列
type Subscription struct {
	id      uint64
	topics  map[Topic]struct{}
	ch      chan Event
	bus     *LocalBus
	evicted atomic.Bool
}

// C 事件通道，订阅关闭或被淘汰后关闭
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Evicted 是否因队列满被淘汰
func (s *Subscription) Evicted() bool {
	return s.evicted.Load()
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.bus.remove(s.id)
}

func (s *Subscription) wants(topic Topic) bool {
	_, ok := s.topics[topic]
	return ok
}

// LocalBus 进程内事件总线
// 每个订阅者独占一个有界队列，发布从不阻塞，队列满的订阅者被淘汰
type LocalBus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	logger     *slog.Logger
}

// NewLocalBus 创建进程内总线
func NewLocalBus(bufferSize int) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &LocalBus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
		logger:     slog.Default(),
	}
}

// Subscribe 订阅主题
func (b *LocalBus) Subscribe(topics ...Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		topics: make(map[Topic]struct{}, len(topics)),
		ch:     make(chan Event, b.bufferSize),
		bus:    b,
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish 投递事件
func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	var full []uint64

	b.mu.RLock()
	for id, sub := range b.subs {
		if !sub.wants(ev.Topic) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			full = append(full, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range full {
		b.logger.Warn("Subscriber queue full, evicting", "subscription_id", id, "topic", ev.Topic)
		b.evict(id)
	}
	return nil
}

// Len 当前订阅者数量
func (b *LocalBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *LocalBus) evict(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		sub.evicted.Store(true)
		delete(b.subs, id)
		close(sub.ch)
	}
}

func (b *LocalBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}
