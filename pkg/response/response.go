package response

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/errors"
)

// Response 统一响应结构，success 与 HTTP 状态码保持一致
type Response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// 响应消息定义
const (
	MsgSuccess      = "success"
	MsgUnauthorized = "未授权"
	MsgServerError  = "服务器内部错误"
)

// Success 成功响应
func Success(c *fiber.Ctx, data any) error {
	return SuccessWithMessage(c, MsgSuccess, data)
}

// SuccessWithMessage 成功响应(带消息)
func SuccessWithMessage(c *fiber.Ctx, message string, data any) error {
	return c.Status(http.StatusOK).JSON(Response{
		Success: true,
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Created 创建成功
func Created(c *fiber.Ctx, message string, data any) error {
	return c.Status(http.StatusCreated).JSON(Response{
		Success: true,
		Code:    http.StatusCreated,
		Message: message,
		Data:    data,
	})
}

// Accepted 请求已受理但结果尚未就绪
func Accepted(c *fiber.Ctx, message string, data any) error {
	return c.Status(http.StatusAccepted).JSON(Response{
		Success: true,
		Code:    http.StatusAccepted,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *fiber.Ctx, status int, message string) error {
	return ErrorWithData(c, status, message, nil)
}

// ErrorWithData 错误响应(带数据)
func ErrorWithData(c *fiber.Ctx, status int, message string, data any) error {
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(Response{
		Success: false,
		Code:    status,
		Message: message,
		Data:    data,
	})
}

// FromError 按应用错误的错误码输出
func FromError(c *fiber.Ctx, err error) error {
	return Error(c, errors.GetCode(err), errors.GetMessage(err))
}

// Unauthorized 未授权
func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgUnauthorized
	}
	return Error(c, http.StatusUnauthorized, message)
}

// BadRequest 请求错误
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, http.StatusBadRequest, message)
}

// ServerError 服务器错误
func ServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgServerError
	}
	return Error(c, http.StatusInternalServerError, message)
}
