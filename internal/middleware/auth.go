package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"sudooom.im.chat/internal/auth"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/pkg/response"
)

const userKey = "user"

// UserResolver 根据 Token 解析当前用户
type UserResolver interface {
	ResolveUser(ctx context.Context, token string) (*model.User, error)
}

// Authenticate 解析 Authorization header，Token 存在但无效时返回 401
// 没有 Token 的请求照常放行，由业务层决定是否需要登录
func Authenticate(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		user, err := resolver.ResolveUser(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// RequireUser 要求已登录
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUser(c) == nil {
			response.Unauthorized(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUser 从 context 获取当前用户，未登录返回 nil
func GetUser(c *gin.Context) *model.User {
	v, exists := c.Get(userKey)
	if !exists {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
