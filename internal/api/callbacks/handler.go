// Package callbacks receives completion notices from the inference service.
// Responses carry machine-readable codes only.
package callbacks

import (
	"context"
	"net/http"

	"campaign-orchestrator/internal/api/respond"
	"campaign-orchestrator/internal/domain/campaigns"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxBodyBytes caps callback payloads; they carry ids and flags only.
const maxBodyBytes = 64 << 10

type Service interface {
	CompleteBuild(ctx context.Context, in campaigns.BuildCallback) (*campaigns.Campaign, error)
	CompleteMerge(ctx context.Context, modelID, productID, outcome string) ([]campaigns.Campaign, error)
}

type BuildRequest struct {
	CampaignID   string `json:"campaign_id" binding:"required"`
	CampaignName string `json:"campaign_name"`
	ModelLabel   string `json:"model_label"`
	Status       string `json:"status" binding:"required"`
	IsModel      bool   `json:"is_model"`
	IsProduct    bool   `json:"is_product"`
}

type MergeRequest struct {
	ModelCampaignID   string `json:"model_campaign_id" binding:"required"`
	ProductCampaignID string `json:"product_campaign_id" binding:"required"`
	Outcome           string `json:"outcome" binding:"required"`
}

type Handler struct {
	svc Service
	log *zap.Logger
}

func NewHandler(svc Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log.Named("api.callbacks")}
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		h.log.Warn("malformed callback", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"code": "MALFORMED_PAYLOAD"})
		return false
	}
	return true
}

// ------------------------------
// POST /callbacks/build
// ------------------------------
func (h *Handler) Build(c *gin.Context) {
	var req BuildRequest
	if !h.bind(c, &req) {
		return
	}

	cp, err := h.svc.CompleteBuild(c.Request.Context(), campaigns.BuildCallback{
		CampaignID:   req.CampaignID,
		CampaignName: req.CampaignName,
		ModelLabel:   req.ModelLabel,
		Status:       req.Status,
		IsModel:      req.IsModel,
		IsProduct:    req.IsProduct,
	})
	if err != nil {
		respond.MachineError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":          "OK",
		"campaign_id":   cp.ID,
		"campaign_type": cp.CampaignType,
	})
}

// ------------------------------
// POST /callbacks/merge
// ------------------------------
func (h *Handler) Merge(c *gin.Context) {
	var req MergeRequest
	if !h.bind(c, &req) {
		return
	}

	out, err := h.svc.CompleteMerge(c.Request.Context(), req.ModelCampaignID, req.ProductCampaignID, req.Outcome)
	if err != nil {
		respond.MachineError(c, h.log, err)
		return
	}
	status := ""
	if len(out) > 0 && out[0].MergeStatus != nil {
		status = string(*out[0].MergeStatus)
	}
	c.JSON(http.StatusOK, gin.H{"code": "OK", "merge_status": status})
}
