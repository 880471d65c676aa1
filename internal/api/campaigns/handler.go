// Package campaigns serves the owner-facing campaign routes.
package campaigns

import (
	"context"
	"errors"
	"html"
	"mime/multipart"
	"net/http"
	"strings"

	"campaign-orchestrator/internal/api/respond"
	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/domain/media"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Service is the slice of the orchestrator these routes drive.
type Service interface {
	Create(ctx context.Context, actor campaigns.Actor, in campaigns.CreateInput) (*campaigns.Campaign, error)
	Update(ctx context.Context, id string, actor campaigns.Actor, in campaigns.UpdateInput) (*campaigns.Campaign, error)
	Delete(ctx context.Context, id string, actor campaigns.Actor) error
	Get(ctx context.Context, id string, actor campaigns.Actor) (*campaigns.Campaign, error)
	List(ctx context.Context, actor campaigns.Actor) ([]campaigns.Campaign, error)

	AddImage(ctx context.Context, campaignID string, actor campaigns.Actor, in campaigns.ImageInput) (*media.CampaignImage, error)
	UpdateImage(ctx context.Context, imageID string, actor campaigns.Actor, in campaigns.ImagePatch) (*media.CampaignImage, error)
	DeleteImage(ctx context.Context, imageID string, actor campaigns.Actor) error
	ListImages(ctx context.Context, campaignID string, actor campaigns.Actor) ([]media.CampaignImage, error)

	RequestBuild(ctx context.Context, id string, actor campaigns.Actor) (*campaigns.Campaign, error)
	RequestMerge(ctx context.Context, actor campaigns.Actor, modelID, productID string) error
}

type Handler struct {
	svc    Service
	log    *zap.Logger
	policy *bluemonday.Policy
}

func NewHandler(svc Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log.Named("api.campaigns"), policy: bluemonday.StrictPolicy()}
}

// multipart bodies skip the JSON sanitizer, so form text is cleaned here
func (h *Handler) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(h.policy.Sanitize(s)))
}

func (h *Handler) formField(c *gin.Context, key string) (*string, bool) {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil, false
	}
	v = h.clean(v)
	return &v, true
}

func (h *Handler) formList(c *gin.Context, key string) ([]string, bool) {
	values, ok := c.GetPostFormArray(key)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		// accept both repeated fields and a comma-separated value
		for _, part := range strings.Split(v, ",") {
			out = append(out, h.clean(part))
		}
	}
	return out, true
}

// formFile opens an optional upload. The returned close func is never nil.
func formFile(c *gin.Context, key string) (*campaigns.Upload, func(), error) {
	fh, err := c.FormFile(key)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	return openUpload(fh)
}

func openUpload(fh *multipart.FileHeader) (*campaigns.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &campaigns.Upload{Filename: fh.Filename, Body: f}, func() { f.Close() }, nil
}

// ------------------------------
// POST /campaigns (multipart)
// ------------------------------
func (h *Handler) Create(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}

	cover, closeCover, err := formFile(c, "image")
	if err != nil {
		respond.BadRequest(c, "Invalid image upload")
		return
	}
	defer closeCover()

	in := campaigns.CreateInput{
		Name:         h.clean(c.PostForm("name")),
		Description:  h.clean(c.PostForm("description")),
		ModelLabel:   h.clean(c.PostForm("model_label")),
		CampaignType: h.clean(c.PostForm("campaign_type")),
		Cover:        cover,
	}
	in.Capabilities, _ = h.formList(c, "capabilities")

	out, err := h.svc.Create(c.Request.Context(), actor, in)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, ToCampaignDTO(*out))
}

// ------------------------------
// GET /campaigns
// ------------------------------
func (h *Handler) List(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), actor)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ToCampaignDTOs(list))
}

// ------------------------------
// GET /campaigns/:id
// ------------------------------
func (h *Handler) Get(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	out, err := h.svc.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ToCampaignDTO(*out))
}

// ------------------------------
// PUT /campaigns/:id (multipart, every field optional)
// ------------------------------
func (h *Handler) Update(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}

	cover, closeCover, err := formFile(c, "image")
	if err != nil {
		respond.BadRequest(c, "Invalid image upload")
		return
	}
	defer closeCover()

	in := campaigns.UpdateInput{Cover: cover}
	in.Name, _ = h.formField(c, "name")
	in.Description, _ = h.formField(c, "description")
	in.ModelLabel, _ = h.formField(c, "model_label")
	in.CampaignType, _ = h.formField(c, "campaign_type")
	if caps, ok := h.formList(c, "capabilities"); ok {
		in.Capabilities = &caps
	}

	out, err := h.svc.Update(c.Request.Context(), c.Param("id"), actor, in)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ToCampaignDTO(*out))
}

// ------------------------------
// DELETE /campaigns/:id
// ------------------------------
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ------------------------------
// POST /campaigns/:id/images (multipart)
// ------------------------------
func (h *Handler) AddImage(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}

	file, closeFile, err := formFile(c, "image")
	if err != nil {
		respond.BadRequest(c, "Invalid image upload")
		return
	}
	defer closeFile()

	img, err := h.svc.AddImage(c.Request.Context(), c.Param("id"), actor, campaigns.ImageInput{
		File:        file,
		Title:       h.clean(c.PostForm("title")),
		Description: h.clean(c.PostForm("description")),
		Category:    h.clean(c.PostForm("category")),
	})
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, ToImageDTO(*img))
}

// ------------------------------
// GET /campaigns/:id/images
// ------------------------------
func (h *Handler) ListImages(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	images, err := h.svc.ListImages(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ToImageDTOs(images))
}

// ------------------------------
// PUT /images/:id (JSON)
// ------------------------------
func (h *Handler) UpdateImage(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	var req UpdateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	img, err := h.svc.UpdateImage(c.Request.Context(), c.Param("id"), actor, campaigns.ImagePatch{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ToImageDTO(*img))
}

// ------------------------------
// DELETE /images/:id
// ------------------------------
func (h *Handler) DeleteImage(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteImage(c.Request.Context(), c.Param("id"), actor); err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ------------------------------
// POST /campaigns/:id/build
// ------------------------------
func (h *Handler) RequestBuild(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	out, err := h.svc.RequestBuild(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, ToCampaignDTO(*out))
}

// ------------------------------
// POST /merges (JSON)
// ------------------------------
func (h *Handler) RequestMerge(c *gin.Context) {
	actor, ok := respond.Actor(c)
	if !ok {
		return
	}
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	err := h.svc.RequestMerge(c.Request.Context(), actor, req.ModelCampaignID, req.ProductCampaignID)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}
