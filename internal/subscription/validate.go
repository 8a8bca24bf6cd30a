package subscription

import (
	"context"
	"fmt"

	"sudooom.im.chat/internal/model"
	appErrors "sudooom.im.chat/pkg/errors"
)

// GroupLister 列出用户所在群组
type GroupLister interface {
	GetUserGroups(ctx context.Context, userID int64) ([]*model.Group, error)
}

// PrepareMessageAdded 校验并补全 messageAdded 参数
// userId 必须是订阅者本人；groupIds 必须都是订阅者所在的群，缺省为订阅者当前所有群
func PrepareMessageAdded(ctx context.Context, groups GroupLister, args *MessageAddedArgs, subscriber *model.User) error {
	if args.UserID != nil && *args.UserID != subscriber.ID {
		return appErrors.ErrForbidden
	}

	joined, err := groups.GetUserGroups(ctx, subscriber.ID)
	if err != nil {
		return appErrors.ErrStorage.Wrap(err)
	}
	member := make(map[int64]struct{}, len(joined))
	for _, g := range joined {
		member[g.ID] = struct{}{}
	}

	if args.GroupIDs == nil {
		args.GroupIDs = make([]int64, 0, len(joined))
		for _, g := range joined {
			args.GroupIDs = append(args.GroupIDs, g.ID)
		}
		return nil
	}

	for _, id := range args.GroupIDs {
		if _, ok := member[id]; !ok {
			return appErrors.ErrForbidden.WithMessage(fmt.Sprintf("不是群 %d 的成员", id))
		}
	}
	return nil
}

// PrepareGroupAdded 校验并补全 groupAdded 参数，userId 缺省为订阅者本人
func PrepareGroupAdded(args *GroupAddedArgs, subscriber *model.User) error {
	if args.UserID == nil {
		id := subscriber.ID
		args.UserID = &id
		return nil
	}
	if *args.UserID != subscriber.ID {
		return appErrors.ErrForbidden
	}
	return nil
}
