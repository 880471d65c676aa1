// Package respond holds the helpers handlers share for identifying the
// caller and writing errors.
package respond

import (
	"net/http"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/campaigns"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Actor reads the caller set by the auth middleware. It writes a 401 and
// returns false when there is none.
func Actor(c *gin.Context) (campaigns.Actor, bool) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": apperrors.CodeUnauthorized})
		return campaigns.Actor{}, false
	}
	return campaigns.Actor{UserID: userID, Role: c.GetString("role")}, true
}

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "INVALID_REQUEST"})
}

// Error writes err for a user-facing route: a message the user can act on
// plus its code. Unexpected failures are logged and hidden.
func Error(c *gin.Context, log *zap.Logger, err error) {
	e, ok := apperrors.As(err)
	if !ok || e.Kind == apperrors.KindInternal || e.Kind == apperrors.KindIntegrity {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	if !ok || e.Kind == apperrors.KindInternal {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong", "code": apperrors.CodeInternal})
		return
	}
	c.JSON(e.Kind.HTTPStatus(), gin.H{"error": e.Message, "code": e.Code})
}

// MachineError writes err for the inference service, which only gets codes.
func MachineError(c *gin.Context, log *zap.Logger, err error) {
	kind := apperrors.KindOf(err)
	code := apperrors.CodeOf(err)
	if kind == apperrors.KindInternal {
		log.Error("callback failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		log.Warn("callback refused", zap.String("path", c.FullPath()), zap.String("code", string(code)), zap.Error(err))
	}
	c.JSON(kind.HTTPStatus(), gin.H{"code": code})
}
