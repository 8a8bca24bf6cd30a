package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 业务层统一返回该类型，传输层根据 Code 决定 HTTP 状态和客户端行为
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// WithMessage 替换用户可见消息，保留错误码
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// IsUnauthenticated 会话缺失、无效或过期都属于未认证，客户端需要强制登出
func IsUnauthenticated(err error) bool {
	switch GetCode(err) {
	case CodeTokenInvalid, CodeStaleSession, CodeUnauthenticated:
		return true
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeEmailTaken         = 10001
	CodeInvalidCredentials = 10002
	CodeTokenInvalid       = 10003
	CodeStaleSession       = 10004
	CodeUnauthenticated    = 10005

	// 用户相关 11000-11999
	CodeUserNotFound  = 11001
	CodeInvalidParams = 11002

	// 群组与消息 13000-13999
	CodeGroupNotFound = 13001
	CodeForbidden     = 13002

	// 系统错误 50000-50999
	CodeServerError = 50001
	CodeStorage     = 50002
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrEmailTaken         = NewError(CodeEmailTaken, "邮箱已被注册")
	ErrInvalidCredentials = NewError(CodeInvalidCredentials, "邮箱或密码错误")
	ErrInvalidToken       = NewError(CodeTokenInvalid, "Token 无效")
	ErrStaleSession       = NewError(CodeStaleSession, "会话已失效，请重新登录")
	ErrUnauthenticated    = NewError(CodeUnauthenticated, "未登录")
)

// 用户相关
var (
	ErrUserNotFound  = NewError(CodeUserNotFound, "用户不存在")
	ErrInvalidParams = NewError(CodeInvalidParams, "参数校验失败")
)

// 群组与消息
var (
	ErrGroupNotFound = NewError(CodeGroupNotFound, "群组不存在")
	ErrForbidden     = NewError(CodeForbidden, "无权操作该群组")
)

// 系统相关
var (
	ErrServerError = NewError(CodeServerError, "服务器内部错误")
	ErrStorage     = NewError(CodeStorage, "存储服务不可用，请稍后重试")
)
