package service

import (
	"context"
	"log/slog"
	"strings"

	"sudooom.im.chat/internal/auth"
	"sudooom.im.chat/internal/eventbus"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/push"
	appErrors "sudooom.im.chat/pkg/errors"
)

// MutationEngine 群组与消息的变更操作，全部要求已认证用户
type MutationEngine interface {
	CreateMessage(ctx context.Context, text string, groupID int64) (*model.Message, error)
	CreateGroup(ctx context.Context, req *CreateGroupRequest) (*model.Group, error)
	DeleteGroup(ctx context.Context, groupID int64) (*model.Group, error)
	LeaveGroup(ctx context.Context, groupID int64, userID *int64) (int64, error)
	UpdateGroup(ctx context.Context, groupID int64, update model.GroupUpdate) (*model.Group, error)
	MarkRead(ctx context.Context, groupID, messageID int64) (int64, error)
}

// CreateGroupRequest 创建群组请求
// UserID 若给出必须是调用者本人
type CreateGroupRequest struct {
	Name    string  `json:"name" binding:"required,max=100"`
	UserIDs []int64 `json:"userIds"`
	UserID  *int64  `json:"userId"`
	Icon    string  `json:"icon" binding:"max=512"`
}

// CreateMessageRequest 发送消息请求
type CreateMessageRequest struct {
	Text string `json:"text" binding:"required,max=4096"`
}

// LeaveGroupRequest 退群请求
type LeaveGroupRequest struct {
	UserID *int64 `json:"userId"`
}

// MarkReadRequest 标记已读请求
type MarkReadRequest struct {
	MessageID int64 `json:"messageId" binding:"required,gt=0"`
}

// ChatService MutationEngine 的实现
type ChatService struct {
	users     UserStore
	groups    GroupStore
	messages  MessageStore
	readState ReadStateStore
	bus       eventbus.Bus
	push      PushDispatcher
	logger    *slog.Logger
}

var _ MutationEngine = (*ChatService)(nil)

// NewChatService 创建变更服务，readState 与 pusher 可为 nil
func NewChatService(users UserStore, groups GroupStore, messages MessageStore, readState ReadStateStore, bus eventbus.Bus, pusher PushDispatcher) *ChatService {
	return &ChatService{
		users:     users,
		groups:    groups,
		messages:  messages,
		readState: readState,
		bus:       bus,
		push:      pusher,
		logger:    slog.Default(),
	}
}

// CreateMessage 发送消息，调用者必须是当前成员
func (s *ChatService) CreateMessage(ctx context.Context, text string, groupID int64) (*model.Message, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, appErrors.ErrInvalidParams.WithMessage("消息内容不能为空")
	}

	group, err := s.requireMember(ctx, groupID, user.ID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{GroupID: groupID, SenderID: user.ID, Text: text}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, translateStoreErr(err)
	}

	s.publish(ctx, eventbus.MessageCreated(msg))
	s.advanceOwnRead(ctx, groupID, user.ID, msg.ID)
	s.notifyMessage(ctx, group, user, msg)

	return msg, nil
}

// CreateGroup 创建群组，成员为调用者加上请求列表中的好友，非好友被忽略
func (s *ChatService) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*model.Group, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	if req.UserID != nil && *req.UserID != user.ID {
		return nil, appErrors.ErrForbidden
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, appErrors.ErrInvalidParams.WithMessage("群名称不能为空")
	}

	friendIDs, err := s.users.GetFriendIDs(ctx, user.ID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	friends := make(map[int64]struct{}, len(friendIDs))
	for _, id := range friendIDs {
		friends[id] = struct{}{}
	}

	// 创建者排第一位
	memberIDs := []int64{user.ID}
	seen := map[int64]struct{}{user.ID: {}}
	for _, id := range req.UserIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := friends[id]; !ok {
			continue
		}
		seen[id] = struct{}{}
		memberIDs = append(memberIDs, id)
	}

	group := &model.Group{Name: req.Name, Icon: req.Icon}
	if err := s.groups.Create(ctx, group, memberIDs); err != nil {
		return nil, translateStoreErr(err)
	}

	// 发布前挂上成员列表，订阅过滤依赖它
	members, err := s.groups.GetMembers(ctx, group.ID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	group.Members = members

	s.logger.Info("Group created",
		"group_id", group.ID,
		"creator_id", user.ID,
		"members", len(members),
		"requested", len(req.UserIDs))

	s.publish(ctx, eventbus.GroupCreated(group))
	s.dispatch(push.Notification{
		UserIDs: otherMembers(members, user.ID),
		GroupID: group.ID,
		Title:   group.Name,
		Body:    user.Username + " 邀请你加入群聊",
	})

	return group, nil
}

// DeleteGroup 删除群组及其全部成员关系和消息，任一成员均可执行
func (s *ChatService) DeleteGroup(ctx context.Context, groupID int64) (*model.Group, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.requireMember(ctx, groupID, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.groups.Delete(ctx, groupID); err != nil {
		return nil, translateStoreErr(err)
	}
	s.clearReadState(ctx, groupID)

	s.logger.Info("Group deleted", "group_id", groupID, "user_id", user.ID)
	return group, nil
}

// LeaveGroup 退出群组，最后一个成员退出时删除群组；返回群组 ID
func (s *ChatService) LeaveGroup(ctx context.Context, groupID int64, userID *int64) (int64, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return 0, err
	}
	if userID != nil && *userID != user.ID {
		return 0, appErrors.ErrForbidden
	}

	deleted, err := s.groups.RemoveMember(ctx, groupID, user.ID)
	if err != nil {
		return 0, translateStoreErr(err)
	}

	if deleted {
		s.clearReadState(ctx, groupID)
		s.logger.Info("Group deleted after last member left", "group_id", groupID, "user_id", user.ID)
	} else if s.readState != nil {
		if err := s.readState.Remove(ctx, groupID, user.ID); err != nil {
			s.logger.Warn("Failed to remove read state", "group_id", groupID, "user_id", user.ID, "error", err)
		}
	}

	return groupID, nil
}

// UpdateGroup 部分更新群组，调用者必须是成员
func (s *ChatService) UpdateGroup(ctx context.Context, groupID int64, update model.GroupUpdate) (*model.Group, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, appErrors.ErrInvalidParams.WithMessage("群名称不能为空")
	}

	if _, err := s.requireMember(ctx, groupID, user.ID); err != nil {
		return nil, err
	}

	group, err := s.groups.Update(ctx, groupID, update)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return group, nil
}

// MarkRead 推进调用者在群内的已读指针，返回推进后的值
func (s *ChatService) MarkRead(ctx context.Context, groupID, messageID int64) (int64, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return 0, err
	}
	if messageID <= 0 {
		return 0, appErrors.ErrInvalidParams
	}
	if _, err := s.requireMember(ctx, groupID, user.ID); err != nil {
		return 0, err
	}
	if s.readState == nil {
		return messageID, nil
	}

	lastRead, err := s.readState.Advance(ctx, groupID, user.ID, messageID)
	if err != nil {
		return 0, appErrors.ErrStorage.Wrap(err)
	}
	return lastRead, nil
}

// requireMember 群组不存在返回 ErrGroupNotFound，非成员返回 ErrForbidden
func (s *ChatService) requireMember(ctx context.Context, groupID, userID int64) (*model.Group, error) {
	return requireMember(ctx, s.groups, groupID, userID)
}

func requireMember(ctx context.Context, groups GroupStore, groupID, userID int64) (*model.Group, error) {
	group, err := groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	ok, err := groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if !ok {
		return nil, appErrors.ErrForbidden
	}
	return group, nil
}

// publish 写入成功后发布，失败只记录日志
func (s *ChatService) publish(ctx context.Context, ev eventbus.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Error("Failed to publish event", "topic", ev.Topic, "error", err)
	}
}

func (s *ChatService) advanceOwnRead(ctx context.Context, groupID, userID, messageID int64) {
	if s.readState == nil {
		return
	}
	if _, err := s.readState.Advance(ctx, groupID, userID, messageID); err != nil {
		s.logger.Warn("Failed to advance read state", "group_id", groupID, "user_id", userID, "error", err)
	}
}

func (s *ChatService) clearReadState(ctx context.Context, groupID int64) {
	if s.readState == nil {
		return
	}
	if err := s.readState.DeleteGroup(ctx, groupID); err != nil {
		s.logger.Warn("Failed to clear read state", "group_id", groupID, "error", err)
	}
}

func (s *ChatService) notifyMessage(ctx context.Context, group *model.Group, sender *model.User, msg *model.Message) {
	if s.push == nil {
		return
	}
	members, err := s.groups.GetMembers(ctx, group.ID)
	if err != nil {
		s.logger.Warn("Failed to load members for push", "group_id", group.ID, "error", err)
		return
	}
	s.dispatch(push.Notification{
		UserIDs:   otherMembers(members, sender.ID),
		GroupID:   group.ID,
		MessageID: msg.ID,
		Title:     group.Name,
		Body:      sender.Username + ": " + msg.Text,
	})
}

func (s *ChatService) dispatch(n push.Notification) {
	if s.push == nil {
		return
	}
	s.push.Dispatch(n)
}

func otherMembers(members []*model.User, exclude int64) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.ID != exclude {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
