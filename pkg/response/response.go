// Package response 统一 gin 响应输出。
//
// 成功响应直接输出资源 JSON（posts 协议要求裸对象/数组），
// 失败响应统一为 {"error": {"code": ..., "message": ...}}。
package response

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// ErrorBody 错误信息
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response 错误响应外层
type Response struct {
	Error ErrorBody `json:"error"`
}

// Success 200 + 数据
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created 201 + 数据
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// Fail 以指定状态码和错误码输出
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Error: ErrorBody{Code: code, Message: message}})
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, "bad_request", message)
}

func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, "not_found", message)
}

func TooManyRequests(c *gin.Context) {
	Fail(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
}

// InternalError 记录错误并上报 sentry（若已初始化），对外只返回通用信息
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	Fail(c, http.StatusInternalServerError, "internal", "internal server error")
}
