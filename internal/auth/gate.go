// Package auth 会话校验：验证 Token、比对密码版本，并把已认证用户放入 context
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/repository"
	appErrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/jwt"
)

// TokenVerifier Token 校验
type TokenVerifier interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// UserLoader 按 ID 加载用户
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// SessionCache 用户快照缓存，未命中返回 nil, nil
// Set 不得用更低的密码版本覆盖已缓存的快照
type SessionCache interface {
	Get(ctx context.Context, userID int64) (*model.User, error)
	Set(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, userID int64) error
}

// Gate 认证网关
type Gate struct {
	tokens TokenVerifier
	users  UserLoader
	cache  SessionCache
	logger *slog.Logger
}

// NewGate 创建认证网关，cache 可为 nil
func NewGate(tokens TokenVerifier, users UserLoader, cache SessionCache) *Gate {
	return &Gate{
		tokens: tokens,
		users:  users,
		cache:  cache,
		logger: slog.Default(),
	}
}

// ResolveUser 校验 Token 并返回当前用户
// Token 非法或用户不存在返回 ErrInvalidToken；密码版本不一致返回 ErrStaleSession
func (g *Gate) ResolveUser(ctx context.Context, token string) (*model.User, error) {
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		return nil, appErrors.ErrInvalidToken.Wrap(err)
	}

	user, err := g.loadUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	if user.PasswordVersion != claims.Version {
		return nil, appErrors.ErrStaleSession
	}
	return user, nil
}

// Revoke 把缓存中的快照推进到 user 的密码版本，更低版本的 Token 立即失效
// 写入失败时返回错误，调用方不得继续变更密码
func (g *Gate) Revoke(ctx context.Context, user *model.User) error {
	if g.cache == nil {
		return nil
	}
	if err := g.cache.Set(ctx, user); err != nil {
		return appErrors.ErrStorage.Wrap(err)
	}
	return nil
}

// Evict 淘汰缓存中的用户快照，失败只记录日志
func (g *Gate) Evict(ctx context.Context, userID int64) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, userID); err != nil {
		g.logger.Warn("Failed to evict session cache", "user_id", userID, "error", err)
	}
}

func (g *Gate) loadUser(ctx context.Context, userID int64) (*model.User, error) {
	if g.cache != nil {
		user, err := g.cache.Get(ctx, userID)
		if err != nil {
			// 缓存不可用时退回存储
			g.logger.Warn("Session cache get failed", "user_id", userID, "error", err)
		} else if user != nil {
			return user, nil
		}
	}

	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidToken
		}
		return nil, appErrors.ErrStorage.Wrap(err)
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, user); err != nil {
			g.logger.Warn("Session cache set failed", "user_id", userID, "error", err)
		}
	}
	return user, nil
}

// ExtractBearer 从 Authorization header 提取 token
func ExtractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
