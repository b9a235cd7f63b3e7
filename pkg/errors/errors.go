package errors

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	ErrNotFound          = New(404, "资源不存在")
	ErrInvalidCredential = New(401, "用户名或密码错误")
	ErrTokenExpired      = New(401, "令牌已过期")

	ErrSystemRole         = New(403, "系统角色不能删除")
	ErrRoleInUse          = New(409, "角色正在使用中，请先重新分配用户")
	ErrSessionNotFound    = New(401, "会话不存在或已过期")
	ErrBackendRejected    = New(502, "后端拒绝请求")
	ErrBackendUnavailable = New(503, "后端服务不可用")
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 500
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// NotFound 创建未找到错误
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    404,
		Message: fmt.Sprintf("%s不存在", resource),
		Err:     ErrNotFound,
	}
}

// BadRequest 创建请求错误
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    400,
		Message: message,
	}
}

// Unauthorized 创建未授权错误
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "未授权"
	}
	return &AppError{
		Code:    401,
		Message: message,
	}
}

// Forbidden 创建禁止访问错误
func Forbidden(message string) *AppError {
	if message == "" {
		message = "禁止访问"
	}
	return &AppError{
		Code:    403,
		Message: message,
	}
}

// Validation 创建验证错误
func Validation(message string) *AppError {
	return &AppError{
		Code:    422,
		Message: message,
	}
}

// Duplicate 创建重复错误
func Duplicate(field string) *AppError {
	return &AppError{
		Code:    409,
		Message: fmt.Sprintf("%s已存在", field),
	}
}

// RoleInUse 角色仍被用户使用
func RoleInUse(count int) *AppError {
	return &AppError{
		Code:    409,
		Message: fmt.Sprintf("该角色仍分配给 %d 个用户，请先重新分配后再删除", count),
		Err:     ErrRoleInUse,
	}
}

// Backend 后端返回的失败消息，原样透出
func Backend(status int, message string) *AppError {
	if message == "" {
		message = ErrBackendRejected.Message
	}
	code := status
	if code < 400 {
		code = ErrBackendRejected.Code
	}
	return &AppError{
		Code:    code,
		Message: message,
		Err:     ErrBackendRejected,
	}
}
