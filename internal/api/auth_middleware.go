package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"interior/internal/auth"
	"interior/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	currentUserContextKey = "current-user"
	userLookupTimeout     = 5 * time.Second
)

// RequestUser 通过认证的请求用户
type RequestUser struct {
	ID          uint
	Email       string
	DisplayName string
	Role        string
}

func abortWith(c *gin.Context, status int, code, message string) {
	ErrorResponse(c, status, code, message)
	c.Abort()
}

// AuthMiddleware 校验 Bearer 令牌并加载用户。令牌有效但用户已删除或停用时同样拒绝。
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWith(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.authManager.ParseToken(token)
		if err != nil {
			logrus.WithError(err).WithField("path", c.FullPath()).Warn("rejecting bearer token")
			abortWith(c, http.StatusUnauthorized, ErrCodeSessionExpired, "token invalid or expired")
			return
		}

		user, err := h.loadUser(c.Request.Context(), claims.UserID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			abortWith(c, http.StatusUnauthorized, ErrCodeUserNotFound, "user not found")
			return
		case err != nil:
			logrus.WithError(err).WithField("user_id", claims.UserID).Error("failed to load user")
			abortWith(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to verify user")
			return
		case !user.IsActive:
			abortWith(c, http.StatusForbidden, ErrCodeUserDisabled, "account disabled")
			return
		}

		c.Set(currentUserContextKey, &RequestUser{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			Role:        user.Role,
		})
		c.Next()
	}
}

func (h *HTTPHandler) loadUser(parent context.Context, id uint) (*entity.DbUser, error) {
	ctx, cancel := context.WithTimeout(parent, userLookupTimeout)
	defer cancel()
	return h.repo.GetUserByID(ctx, id)
}

// CurrentUser 返回 AuthMiddleware 写入的用户，未经过认证时为 nil。
func CurrentUser(c *gin.Context) *RequestUser {
	if value, ok := c.Get(currentUserContextKey); ok {
		if user, ok := value.(*RequestUser); ok {
			return user
		}
	}
	return nil
}
