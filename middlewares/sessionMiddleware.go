package middlewares

import (
	"context"
	"encoding/json"
	"net/http"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/gin-gonic/gin"
)

// Session is written to redis by the auth service at login; this backend only
// lifts it into the request context. Authentication itself lives elsewhere.
type Session struct {
	Username   string `json:"username"`
	BusinessId string `json:"business_id"`
	UserId     int    `json:"user_id"`
}

func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		value, exists, err := config.GetRedisValue("Session:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		var session Session
		if err := json.Unmarshal([]byte(value), &session); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
		ctx = context.WithValue(ctx, utils.ContextKeyUsername, session.Username)
		ctx = context.WithValue(ctx, utils.ContextKeyBusinessId, session.BusinessId)
		ctx = context.WithValue(ctx, utils.ContextKeyUserId, session.UserId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
