// Package eventbus 群组与消息创建事件的广播
package eventbus

import (
	"context"

	"sudooom.im.chat/internal/model"
)

// Topic 事件主题
type Topic string

const (
	TopicMessageCreated Topic = "message_created"
	TopicGroupCreated   Topic = "group_created"
)

// Event 总线上的事件
// MessageCreated 携带 Message；GroupCreated 携带带成员列表的 Group
type Event struct {
	Topic   Topic          `json:"topic"`
	Message *model.Message `json:"message,omitempty"`
	Group   *model.Group   `json:"group,omitempty"`
	// Origin 发布节点，用于跨节点转发时去重
	Origin string `json:"origin,omitempty"`
}

// MessageCreated 构建消息创建事件
func MessageCreated(msg *model.Message) Event {
	return Event{Topic: TopicMessageCreated, Message: msg}
}

// GroupCreated 构建群组创建事件
func GroupCreated(group *model.Group) Event {
	return Event{Topic: TopicGroupCreated, Group: group}
}

// Bus 事件总线
type Bus interface {
	// Publish 非阻塞投递给当前所有订阅者，不重放历史事件
	Publish(ctx context.Context, ev Event) error
	// Subscribe 订阅一个或多个主题
	Subscribe(topics ...Topic) *Subscription
}
