package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chat/internal/service"
	"sudooom.im.chat/pkg/response"
)

// UserHandler 用户查询处理器
type UserHandler struct {
	queryService *service.QueryService
}

// NewUserHandler 创建用户处理器
func NewUserHandler(queryService *service.QueryService) *UserHandler {
	return &UserHandler{queryService: queryService}
}

// GetUser 查询用户，id 为 me 时返回当前用户
// @Summary      查询用户
// @Description  返回用户及其好友和群组，只能查询自己
// @Tags         用户
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "用户 ID 或 me"
// @Success      200  {object}  response.Response{data=model.UserProfile}
// @Failure      403  {object}  response.Response
// @Router       /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	var id int64
	if c.Param("id") != "me" {
		parsed, err := parseID(c, "id")
		if err != nil {
			response.Error(c, err)
			return
		}
		id = parsed
	}

	profile, err := h.queryService.User(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, profile)
}
