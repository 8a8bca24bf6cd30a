package auth

import (
	"context"

	"sudooom.im.chat/internal/model"
	appErrors "sudooom.im.chat/pkg/errors"
)

type userKey struct{}

// WithUser 把已认证用户放入 context
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext 取出已认证用户，匿名请求返回 false
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey{}).(*model.User)
	return user, ok && user != nil
}

// GetAuthenticatedUser 所有查询与变更操作的入口检查
func GetAuthenticatedUser(ctx context.Context) (*model.User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, appErrors.ErrUnauthenticated
	}
	return user, nil
}
