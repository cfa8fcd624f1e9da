package api

import (
	"errors"
	"net/http"
	"strconv"

	"interior/internal/payment"
	"interior/internal/ratelimit"
	"interior/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 错误码定义
const (
	// 通用错误码
	ErrCodeInvalidRequest     = "ERR_INVALID_REQUEST"
	ErrCodeUnauthorized       = "ERR_UNAUTHORIZED"
	ErrCodeForbidden          = "ERR_FORBIDDEN"
	ErrCodeNotFound           = "ERR_NOT_FOUND"
	ErrCodeInternalError      = "ERR_INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        = "ERR_RATE_LIMITED"

	// 认证错误码
	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "ERR_EMAIL_EXISTS"
	ErrCodeUserDisabled       = "ERR_USER_DISABLED"
	ErrCodeSessionExpired     = "ERR_SESSION_EXPIRED"
	ErrCodeUserNotFound       = "ERR_USER_NOT_FOUND"

	// 生成
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	ErrCodeGenerationNotFound  = "ERR_GENERATION_NOT_FOUND"
	ErrCodeGenerationFailed    = "ERR_GENERATION_FAILED"
	ErrCodeGenerationNotReady  = "ERR_GENERATION_NOT_READY"

	// 支付
	ErrCodeInvalidSignature   = "ERR_INVALID_SIGNATURE"
	ErrCodePaymentNotVerified = "ERR_PAYMENT_NOT_VERIFIED"
	ErrCodePaymentUnavailable = "ERR_PAYMENT_UNAVAILABLE"
	ErrCodeMissingField       = "ERR_MISSING_FIELD"
)

// APIError 统一的 API 错误响应结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
	})
}

// ErrorResponseWithDetails 返回带详情的错误响应
func ErrorResponseWithDetails(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// NotFound 404 资源不存在
func NotFound(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusNotFound, code, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable 503 服务不可用
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// MissingField 缺少必填字段
func MissingField(c *gin.Context, field string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeMissingField, field+" is required", gin.H{"field": field})
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request payload")
}

// RespondError 把服务层错误映射为 HTTP 响应。未知错误只返回通用信息。
func RespondError(c *gin.Context, err error) {
	var (
		insufficient *service.InsufficientCreditsError
		validation   *service.ValidationError
		limited      *service.RateLimitedError
		genErr       *service.ImageGenerationError
	)
	switch {
	case errors.As(err, &insufficient):
		ErrorResponseWithDetails(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, "not enough credits", gin.H{
			"current":  insufficient.Current,
			"required": insufficient.Required,
		})
	case errors.As(err, &validation):
		ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeInvalidRequest, validation.Message, gin.H{"field": validation.Field})
	case errors.As(err, &limited):
		seconds := ratelimit.RetryAfterSeconds(limited.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(seconds))
		ErrorResponseWithDetails(c, http.StatusTooManyRequests, ErrCodeRateLimited, "trial limit reached", gin.H{"retry_after": seconds})
	case errors.As(err, &genErr):
		details := gin.H{"stage": genErr.Stage}
		if genErr.GenerationID > 0 {
			details["generation_id"] = genErr.GenerationID
		}
		ErrorResponseWithDetails(c, http.StatusBadGateway, ErrCodeGenerationFailed, "image generation could not be started", details)
	case errors.Is(err, service.ErrGenerationNotFound):
		NotFound(c, ErrCodeGenerationNotFound, "generation not found")
	case errors.Is(err, service.ErrAccountNotFound):
		NotFound(c, ErrCodeUserNotFound, "account not found")
	case errors.Is(err, service.ErrInvalidCredentials):
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, service.ErrEmailTaken):
		ErrorResponse(c, http.StatusConflict, ErrCodeEmailExists, "email already registered")
	case errors.Is(err, service.ErrAccountDisabled):
		ErrorResponse(c, http.StatusForbidden, ErrCodeUserDisabled, "account disabled")
	case errors.Is(err, service.ErrGenerationNotReady):
		ErrorResponse(c, http.StatusConflict, ErrCodeGenerationNotReady, "generation is not completed")
	case errors.Is(err, service.ErrPaymentNotVerified):
		ErrorResponse(c, http.StatusForbidden, ErrCodePaymentNotVerified, "payment could not be verified")
	case errors.Is(err, payment.ErrInvalidSignature):
		ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidSignature, "invalid signature")
	case errors.Is(err, service.ErrPaymentUnavailable), errors.Is(err, payment.ErrNotConfigured):
		ErrorResponse(c, http.StatusServiceUnavailable, ErrCodePaymentUnavailable, "payment provider unavailable")
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		InternalError(c, "internal error")
	}
}
