package service

import (
	"context"
	"errors"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/push"
	"sudooom.im.chat/internal/repository"
	appErrors "sudooom.im.chat/pkg/errors"
)

// UserStore 用户与好友存储
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) (int, error)
	GetFriends(ctx context.Context, userID int64) ([]*model.User, error)
	GetFriendIDs(ctx context.Context, userID int64) ([]int64, error)
	AddFriend(ctx context.Context, userID, friendID int64) error
}

// GroupStore 群组与成员存储
type GroupStore interface {
	Create(ctx context.Context, group *model.Group, memberIDs []int64) error
	GetByID(ctx context.Context, id int64) (*model.Group, error)
	Update(ctx context.Context, id int64, update model.GroupUpdate) (*model.Group, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	GetMembers(ctx context.Context, groupID int64) ([]*model.User, error)
	GetUserGroups(ctx context.Context, userID int64) ([]*model.Group, error)
	RemoveMember(ctx context.Context, groupID, userID int64) (groupDeleted bool, err error)
	Delete(ctx context.Context, groupID int64) error
}

// MessageStore 消息存储
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	List(ctx context.Context, q repository.MessageQuery) ([]*model.Message, error)
	Exists(ctx context.Context, q repository.MessageQuery) (bool, error)
}

// ReadStateStore 已读指针存储
type ReadStateStore interface {
	Advance(ctx context.Context, groupID, userID, messageID int64) (int64, error)
	Get(ctx context.Context, groupID, userID int64) (int64, error)
	Remove(ctx context.Context, groupID, userID int64) error
	DeleteGroup(ctx context.Context, groupID int64) error
}

// TaskRunner 在有界 worker pool 上执行并等待任务
type TaskRunner interface {
	Run(ctx context.Context, fn func() error) error
}

// SessionRevoker 会话缓存的版本推进与淘汰
type SessionRevoker interface {
	Revoke(ctx context.Context, user *model.User) error
	Evict(ctx context.Context, userID int64)
}

// PushDispatcher 异步推送
type PushDispatcher interface {
	Dispatch(n push.Notification)
}

// translateStoreErr 把仓库哨兵错误映射为业务错误，其余错误视为存储故障
func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return appErrors.ErrUserNotFound
	case errors.Is(err, repository.ErrGroupNotFound):
		return appErrors.ErrGroupNotFound
	case errors.Is(err, repository.ErrEmailExists):
		return appErrors.ErrEmailTaken
	case errors.Is(err, repository.ErrGroupMemberNotFound):
		return appErrors.ErrForbidden
	case errors.Is(err, repository.ErrInvalidFriend):
		return appErrors.ErrInvalidParams
	default:
		return appErrors.ErrStorage.Wrap(err)
	}
}
