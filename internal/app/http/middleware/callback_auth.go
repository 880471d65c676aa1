package middleware

import (
	"net/http"

	"campaign-orchestrator/internal/infra/callbackauth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackAuth admits only requests bearing a token the verifier accepts.
func CallbackAuth(v callbackauth.Verifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED"})
			return
		}
		if err := v.Verify(c.Request.Context(), token); err != nil {
			log.Warn("callback rejected", zap.String("path", c.FullPath()), zap.String("ip", c.ClientIP()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED"})
			return
		}
		c.Next()
	}
}
