package service

import (
	"context"

	"sudooom.im.chat/internal/auth"
	"sudooom.im.chat/internal/model"
	appErrors "sudooom.im.chat/pkg/errors"
)

// QueryService user / group 查询
type QueryService struct {
	users     UserStore
	groups    GroupStore
	paginator *Paginator
	readState ReadStateStore
}

// NewQueryService 创建查询服务，readState 可为 nil
func NewQueryService(users UserStore, groups GroupStore, paginator *Paginator, readState ReadStateStore) *QueryService {
	return &QueryService{
		users:     users,
		groups:    groups,
		paginator: paginator,
		readState: readState,
	}
}

// User 查询用户资料及其好友、群组，只能查询自己；id 为 0 表示当前用户
func (s *QueryService) User(ctx context.Context, id int64) (*model.UserProfile, error) {
	current, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	if id != 0 && id != current.ID {
		return nil, appErrors.ErrForbidden
	}

	user, err := s.users.GetByID(ctx, current.ID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	friends, err := s.users.GetFriends(ctx, user.ID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	groups, err := s.groups.GetUserGroups(ctx, user.ID)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	return &model.UserProfile{
		User:    user,
		Friends: nonNil(friends),
		Groups:  nonNil(groups),
	}, nil
}

// Group 查询群组详情、成员与一页消息，调用者必须是成员
func (s *QueryService) Group(ctx context.Context, groupID int64, args PageArgs) (*model.GroupDetail, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	group, err := requireMember(ctx, s.groups, groupID, user.ID)
	if err != nil {
		return nil, err
	}

	members, err := s.groups.GetMembers(ctx, groupID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	group.Members = members

	messages, err := s.paginator.Messages(ctx, groupID, args)
	if err != nil {
		return nil, err
	}

	detail := &model.GroupDetail{Group: group, Messages: messages}
	if s.readState != nil {
		lastRead, err := s.readState.Get(ctx, groupID, user.ID)
		if err != nil {
			return nil, appErrors.ErrStorage.Wrap(err)
		}
		if lastRead > 0 {
			detail.LastRead = &lastRead
		}
	}
	return detail, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
