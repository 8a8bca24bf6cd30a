package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "sudooom.im.chat/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    appErrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 从业务错误生成响应，非 AppError 一律按服务器错误处理
func Error(c *gin.Context, err error) {
	code := appErrors.GetCode(err)
	c.JSON(HTTPStatus(code), Response{
		Code:    code,
		Message: appErrors.GetMessage(err),
		Data:    nil,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, err *appErrors.AppError, message string) {
	Error(c, err.WithMessage(message))
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context) {
	Error(c, appErrors.ErrUnauthenticated)
}

// HTTPStatus 错误码到 HTTP 状态码的映射
// 未认证类错误统一 401，客户端据此强制登出；存储错误 503 可重试
func HTTPStatus(code int) int {
	switch code {
	case appErrors.CodeSuccess:
		return http.StatusOK
	case appErrors.CodeTokenInvalid, appErrors.CodeStaleSession, appErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case appErrors.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case appErrors.CodeForbidden:
		return http.StatusForbidden
	case appErrors.CodeUserNotFound, appErrors.CodeGroupNotFound:
		return http.StatusNotFound
	case appErrors.CodeEmailTaken:
		return http.StatusConflict
	case appErrors.CodeInvalidParams:
		return http.StatusBadRequest
	case appErrors.CodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
