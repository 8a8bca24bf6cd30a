// Package handler HTTP 接口
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "sudooom.im.chat/pkg/errors"
)

// parseID 解析路径中的 ID 参数
func parseID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.ErrInvalidParams.WithMessage("invalid " + name)
	}
	return id, nil
}

// parseOptionalInt 解析可选的整数查询参数
func parseOptionalInt(c *gin.Context, name string) (*int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.ErrInvalidParams.WithMessage("invalid " + name)
	}
	return &n, nil
}

// bindJSON 绑定请求体，允许空 body
func bindJSON(c *gin.Context, req any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(req); err != nil {
		return appErrors.ErrInvalidParams.WithMessage(err.Error())
	}
	return nil
}
