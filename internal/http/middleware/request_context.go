package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
)

// AttachRequestContext seeds RequestData with the caller's network identity;
// RequireAuth fills in the user.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
