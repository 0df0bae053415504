package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/medicore-backend/internal/http/response"
	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/services"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), authService: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("Authentication token required."))
			return
		}
		ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
		if err != nil {
			msg := services.ErrInvalidToken
			if errors.Is(err, services.ErrInactiveUser) {
				msg = services.ErrInactiveUser
			}
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", msg)
			return
		}
		rd := ctxutil.GetRequestData(ctx)
		if rd == nil || rd.UserID == uuid.Nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", services.ErrInvalidToken)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequirePermission must run after RequireAuth.
func (am *AuthMiddleware) RequirePermission(p services.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil || !services.HasPermission(rd.Role, p) {
			am.log.Debug("Permission denied", "permission", string(p))
			response.RespondError(c, http.StatusForbidden, "forbidden", errors.New("You do not have the required permission."))
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		tok := strings.TrimSpace(authHeader[7:])
		return tok, tok != ""
	}
	return "", false
}
