package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
)

const (
	ctxUserID    = "user_id"
	ctxUserEmail = "user_email"
	ctxUsername  = "username"
)

func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.SendUnauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.SendUnauthorized(c, "Bearer token required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, jwtSecret)
		if err != nil || claims.Type != string(utils.AccessToken) {
			utils.SendUnauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserEmail, claims.Email)
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// AdminOnly lets through callers whose email is on the admin allowlist.
func AdminOnly(p *policy.AuthorizationPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !p.IsAdmin(c.GetString(ctxUserEmail)) {
			utils.SendForbidden(c, "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentActor returns the caller set by AuthMiddleware.
func CurrentActor(c *gin.Context) services.Actor {
	return services.Actor{
		UserID:   c.GetString(ctxUserID),
		Email:    c.GetString(ctxUserEmail),
		Username: c.GetString(ctxUsername),
	}
}
