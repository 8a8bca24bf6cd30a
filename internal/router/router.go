package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"sudooom.im.chat/internal/config"
	"sudooom.im.chat/internal/handler"
	"sudooom.im.chat/internal/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Auth          *handler.AuthHandler
	User          *handler.UserHandler
	Group         *handler.GroupHandler
	Subscriptions http.Handler
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, resolver middleware.UserResolver, h Handlers) *gin.Engine {
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(slog.Default()))
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))

	// Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")

	// 订阅流在 connection_init 中认证
	if h.Subscriptions != nil {
		v1.GET("/subscriptions", gin.WrapH(h.Subscriptions))
	}

	v1.Use(middleware.Timeout(cfg.Database.QueryTimeout))
	v1.Use(middleware.Authenticate(resolver))
	{
		// 认证接口（无需登录）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/signup", h.Auth.Signup)
		}

		// 需要认证的接口
		authenticated := v1.Group("")
		authenticated.Use(middleware.RequireUser())
		{
			authenticated.POST("/auth/password", h.Auth.ChangePassword)

			users := authenticated.Group("/users")
			{
				users.GET("/:id", h.User.GetUser)
				users.POST("/:id/friends", h.Auth.AddFriend)
			}

			groups := authenticated.Group("/groups")
			{
				groups.POST("", h.Group.CreateGroup)
				groups.GET("/:id", h.Group.GetGroup)
				groups.PATCH("/:id", h.Group.UpdateGroup)
				groups.DELETE("/:id", h.Group.DeleteGroup)
				groups.POST("/:id/leave", h.Group.LeaveGroup)
				groups.POST("/:id/messages", h.Group.CreateMessage)
				groups.POST("/:id/read", h.Group.MarkRead)
			}
		}
	}

	return r
}
