package routes

import (
	"context"
	"net/http"

	adminapi "campaign-orchestrator/internal/api/admin"
	"campaign-orchestrator/internal/api/callbacks"
	campaignsapi "campaign-orchestrator/internal/api/campaigns"
	"campaign-orchestrator/internal/app/http/middleware"
	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/domain/users"
	"campaign-orchestrator/internal/infra/callbackauth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Availability reports whether the inference service is reachable.
type Availability interface {
	Configured() bool
	CheckAvailability(ctx context.Context) bool
}

type Deps struct {
	Service   *campaigns.Service
	Gateway   Availability
	Callbacks callbackauth.Verifier
	JWTSecret string
	BlobRoot  string
	Logger    *zap.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r.GET("/health", func(c *gin.Context) {
		inference := "unconfigured"
		if d.Gateway != nil && d.Gateway.Configured() {
			inference = "down"
			if d.Gateway.CheckAvailability(c.Request.Context()) {
				inference = "up"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "inference": inference})
	})
	if d.BlobRoot != "" {
		r.Static("/uploads", d.BlobRoot)
	}

	owner := campaignsapi.NewHandler(d.Service, log)
	admin := adminapi.NewHandler(d.Service, log)
	hooks := callbacks.NewHandler(d.Service, log)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(d.JWTSecret), middleware.SanitizeAndCleanInputMiddleware())

	auth.POST("/campaigns", owner.Create)
	auth.GET("/campaigns", owner.List)
	auth.GET("/campaigns/:id", owner.Get)
	auth.PUT("/campaigns/:id", owner.Update)
	auth.DELETE("/campaigns/:id", owner.Delete)

	auth.POST("/campaigns/:id/images", owner.AddImage)
	auth.GET("/campaigns/:id/images", owner.ListImages)
	auth.PUT("/images/:id", owner.UpdateImage)
	auth.DELETE("/images/:id", owner.DeleteImage)

	auth.POST("/campaigns/:id/build", owner.RequestBuild)
	auth.POST("/merges", owner.RequestMerge)

	// Admin
	adminGroup := auth.Group("/admin")
	adminGroup.Use(middleware.RequireRole(users.RoleAdmin))
	adminGroup.GET("/campaigns/pending", admin.ListPending)
	adminGroup.GET("/campaigns/:id", admin.GetCampaign)
	adminGroup.POST("/campaigns/:id/review", admin.Review)
	adminGroup.POST("/campaigns/:id/reset-build", admin.ResetBuild)

	// Inference service callbacks
	cb := r.Group("/callbacks")
	cb.Use(middleware.CallbackAuth(d.Callbacks, log))
	cb.POST("/build", hooks.Build)
	cb.POST("/merge", hooks.Merge)
}
