// Package subscription 实时订阅：事件过滤与 websocket 推流
package subscription

import (
	"slices"

	"sudooom.im.chat/internal/eventbus"
)

// MessageAddedArgs messageAdded 订阅参数
type MessageAddedArgs struct {
	UserID   *int64  `json:"userId"`
	GroupIDs []int64 `json:"groupIds"`
}

// GroupAddedArgs groupAdded 订阅参数
type GroupAddedArgs struct {
	UserID *int64 `json:"userId"`
}

// MessageAdded 消息属于订阅的群，且发送者不是订阅者本人
func MessageAdded(ev eventbus.Event, args MessageAddedArgs, subscriberID int64) bool {
	if ev.Topic != eventbus.TopicMessageCreated || ev.Message == nil {
		return false
	}
	return slices.Contains(args.GroupIDs, ev.Message.GroupID) && ev.Message.SenderID != subscriberID
}

// GroupAdded 订阅的用户在新群成员中，且订阅者不是创建者（第一个成员）
func GroupAdded(ev eventbus.Event, args GroupAddedArgs, subscriberID int64) bool {
	if ev.Topic != eventbus.TopicGroupCreated || ev.Group == nil || args.UserID == nil {
		return false
	}
	return slices.Contains(ev.Group.MemberIDs(), *args.UserID) && subscriberID != ev.Group.CreatorID()
}
