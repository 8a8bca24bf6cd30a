package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chat/internal/service"
	appErrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/response"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login 用户登录
// @Summary      用户登录
// @Description  邮箱密码登录，返回用户信息和 JWT
// @Tags         认证
// @Accept       json
// @Produce      json
// @Param        request body service.LoginRequest true "登录信息"
// @Success      200  {object}  response.Response{data=service.AuthResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, appErrors.ErrInvalidParams, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Signup 用户注册
// @Summary      用户注册
// @Description  创建账号并直接登录
// @Tags         认证
// @Accept       json
// @Produce      json
// @Param        request body service.SignupRequest true "注册信息"
// @Success      200  {object}  response.Response{data=service.AuthResponse}
// @Failure      409  {object}  response.Response
// @Router       /auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, appErrors.ErrInvalidParams, err.Error())
		return
	}

	resp, err := h.authService.Signup(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// ChangePassword 修改密码，旧 Token 全部失效
// @Summary      修改密码
// @Tags         认证
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body service.ChangePasswordRequest true "新旧密码"
// @Success      200  {object}  response.Response{data=service.AuthResponse}
// @Router       /auth/password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, appErrors.ErrInvalidParams, err.Error())
		return
	}

	resp, err := h.authService.ChangePassword(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// AddFriend 添加好友（双向）
// @Summary      添加好友
// @Tags         用户
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "好友用户 ID"
// @Success      200  {object}  response.Response{data=model.User}
// @Router       /users/{id}/friends [post]
func (h *AuthHandler) AddFriend(c *gin.Context) {
	friendID, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	friend, err := h.authService.AddFriend(c.Request.Context(), friendID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, friend)
}
