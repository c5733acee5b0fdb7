package api

import (
	"errors"
	"net/http"

	"expensetracker/workflow"

	"github.com/gin-gonic/gin"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	List     interface{} `json:"list"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 401 错误响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// InternalError 500 错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// Forbidden 403 错误响应
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// Conflict 409 错误响应
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

// RespondError 按工作流错误分类返回对应状态码，其他错误按 500 处理
func RespondError(c *gin.Context, err error, fallback string) {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		InternalError(c, SafeErrorMessage(err, fallback))
		return
	}
	switch werr.Kind {
	case workflow.KindNotFound:
		NotFound(c, werr.Message)
	case workflow.KindInvalidState, workflow.KindConflict:
		Conflict(c, werr.Message)
	case workflow.KindUnauthorized:
		Forbidden(c, werr.Message)
	case workflow.KindValidation:
		BadRequest(c, werr.Message)
	default:
		InternalError(c, SafeErrorMessage(err, fallback))
	}
}
