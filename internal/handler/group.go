package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/service"
	appErrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/response"
)

// GroupHandler 群组与消息处理器
type GroupHandler struct {
	chat  service.MutationEngine
	query *service.QueryService
}

// NewGroupHandler 创建群组处理器
func NewGroupHandler(chat service.MutationEngine, query *service.QueryService) *GroupHandler {
	return &GroupHandler{chat: chat, query: query}
}

// GetGroup 查询群组及一页消息
// @Summary      查询群组
// @Description  消息按时间倒序，first/after 向更旧翻页，last/before 向更新翻页
// @Tags         群组
// @Produce      json
// @Security     BearerAuth
// @Param        id      path   int     true   "群组 ID"
// @Param        first   query  int     false  "前 N 条"
// @Param        after   query  string  false  "游标"
// @Param        last    query  int     false  "后 N 条"
// @Param        before  query  string  false  "游标"
// @Success      200  {object}  response.Response{data=model.GroupDetail}
// @Failure      403  {object}  response.Response
// @Router       /groups/{id} [get]
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	args := service.PageArgs{
		After:  c.Query("after"),
		Before: c.Query("before"),
	}
	if args.First, err = parseOptionalInt(c, "first"); err != nil {
		response.Error(c, err)
		return
	}
	if args.Last, err = parseOptionalInt(c, "last"); err != nil {
		response.Error(c, err)
		return
	}

	detail, err := h.query.Group(c.Request.Context(), groupID, args)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// CreateGroup 创建群组
// @Summary      创建群组
// @Description  成员为调用者加上 userIds 中调用者的好友
// @Tags         群组
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body service.CreateGroupRequest true "群组信息"
// @Success      200  {object}  response.Response{data=model.Group}
// @Router       /groups [post]
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req service.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, appErrors.ErrInvalidParams, err.Error())
		return
	}

	group, err := h.chat.CreateGroup(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, group)
}

// UpdateGroup 修改群名称或图标
// @Summary      修改群组
// @Tags         群组
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path  int               true  "群组 ID"
// @Param        request body  model.GroupUpdate true  "修改内容"
// @Success      200  {object}  response.Response{data=model.Group}
// @Router       /groups/{id} [patch]
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	groupID, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var update model.GroupUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		response.ErrorWithMsg(c, appErrors.ErrInvalidParams, err.Error())
		return
	}

	group, err := h.chat.UpdateGroup(c.Request.Context(), groupID, update)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, group)
}

// DeleteGroup 删除群组
// @Summary      删除群组
// @Tags         群组
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "群组 ID"
// @Success      200  {object}  response.Response{data=model.Group}
// @Router       /groups/{id} [delete]
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	group, err := h.chat.DeleteGroup(c.Request.Context(), groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, group)
}

// LeaveGroup 退出群组
// @Summary      退出群组
// @Description  最后一个成员退出时群组被删除
// @Tags         群组
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path  int                       true   "群组 ID"
// @Param        request body  service.LeaveGroupRequest false  "userId 必须是本人"
// @Success      200  {object}  response.Response{data=object{id=int64}}
// @Router       /groups/{id}/leave [post]
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.LeaveGroupRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	id, err := h.chat.LeaveGroup(c.Request.Context(), groupID, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// CreateMessage 发送消息
// @Summary      发送消息
// @Tags         消息
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path  int                          true  "群组 ID"
// @Param        request body  service.CreateMessageRequest true  "消息内容"
// @Success      200  {object}  response.Response{data=model.Message}
// @Router       /groups/{id}/messages [post]
func (h *GroupHandler) CreateMessage(c *gin.Context) {
	groupID, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, appErrors.ErrInvalidParams, err.Error())
		return
	}

	msg, err := h.chat.CreateMessage(c.Request.Context(), req.Text, groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

// MarkRead 标记已读
// @Summary      标记已读
// @Tags         消息
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path  int                     true  "群组 ID"
// @Param        request body  service.MarkReadRequest true  "已读到的消息 ID"
// @Success      200  {object}  response.Response{data=object{lastRead=int64}}
// @Router       /groups/{id}/read [post]
func (h *GroupHandler) MarkRead(c *gin.Context) {
	groupID, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, appErrors.ErrInvalidParams, err.Error())
		return
	}

	lastRead, err := h.chat.MarkRead(c.Request.Context(), groupID, req.MessageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"lastRead": lastRead})
}
