package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"commission_backend/internal/auth"
	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/pkg/apperrors"
)

const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

// AuthMiddleware verifies the bearer token and stores the caller identity.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authorization header missing or invalid"))
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseToken(tokenStr, secret)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				message = "Token has expired"
			}
			logger.CtxDebug(c.Request.Context(), "token rejected", "reason", err.Error())
			apperrors.HandleError(c, apperrors.New(apperrors.CodeInvalidToken, "auth", message, http.StatusUnauthorized))
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// RequireRoles lets only the given roles through.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.HasAnyRole(GetRole(c), roles...) {
			apperrors.HandleError(c, apperrors.ErrInsufficientPermissions)
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id or "".
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return ""
	}

	id, ok := userID.(string)
	if !ok {
		return ""
	}

	return id
}

func GetRole(c *gin.Context) models.UserRole {
	roleVal, exists := c.Get(RoleKey)
	if !exists {
		return ""
	}
	role, _ := roleVal.(models.UserRole)
	return role
}
