// Package admin serves the review queue and operator overrides.
package admin

import (
	"context"
	"net/http"

	campaignsapi "campaign-orchestrator/internal/api/campaigns"
	"campaign-orchestrator/internal/api/respond"
	"campaign-orchestrator/internal/domain/campaigns"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Service interface {
	ListPendingReview(ctx context.Context, actor campaigns.Actor) ([]campaigns.Campaign, error)
	GetForAdmin(ctx context.Context, id string, actor campaigns.Actor) (*campaigns.Campaign, error)
	Review(ctx context.Context, id string, actor campaigns.Actor, decision, notes string) (*campaigns.Campaign, error)
	ResetBuild(ctx context.Context, id string, actor campaigns.Actor) (*campaigns.Campaign, error)
}

type ReviewRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes"`
}

// AdminCampaign adds the reviewing admin to the owner view.
type AdminCampaign struct {
	campaignsapi.CampaignDTO
	AdminID *uint `json:"admin_id,omitempty"`
}

func toAdminCampaign(c campaigns.Campaign) AdminCampaign {
	return AdminCampaign{CampaignDTO: campaignsapi.ToCampaignDTO(c), AdminID: c.AdminID}
}

type Handler struct {
	svc Service
	log *zap.Logger
}

func NewHandler(svc Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log.Named("api.admin")}
}

func (h *Handler) ListPending(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	list, err := h.svc.ListPendingReview(c.Request.Context(), actor)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	out := make([]AdminCampaign, 0, len(list))
	for _, cp := range list {
		out = append(out, toAdminCampaign(cp))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetCampaign(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	cp, err := h.svc.GetForAdmin(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toAdminCampaign(*cp))
}

func (h *Handler) Review(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	cp, err := h.svc.Review(c.Request.Context(), c.Param("id"), actor, req.Decision, req.Notes)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toAdminCampaign(*cp))
}

// ResetBuild clears a stuck in-flight build.
func (h *Handler) ResetBuild(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	cp, err := h.svc.ResetBuild(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toAdminCampaign(*cp))
}
