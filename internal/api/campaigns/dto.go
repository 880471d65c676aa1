package campaigns

import (
	"time"

	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/domain/media"
)

type ImageDTO struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

type CampaignDTO struct {
	ID                string     `json:"id"`
	UserID            uint       `json:"user_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	ModelLabel        string     `json:"model_label"`
	Capabilities      []string   `json:"capabilities"`
	CoverURL          string     `json:"cover_url"`
	CampaignType      string     `json:"campaign_type"`
	IsModelCampaign   bool       `json:"is_model_campaign"`
	IsProductCampaign bool       `json:"is_product_campaign"`
	Status            string     `json:"status"`
	AdminNotes        *string    `json:"admin_notes,omitempty"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
	IsBuilt           bool       `json:"is_built"`
	IsBeingBuilt      bool       `json:"is_being_built"`
	BuildDate         *time.Time `json:"build_date,omitempty"`
	MergeStatus       *string    `json:"merge_status,omitempty"`
	MergeDate         *time.Time `json:"merge_date,omitempty"`
	Images            []ImageDTO `json:"images,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func ToImageDTO(img media.CampaignImage) ImageDTO {
	return ImageDTO{
		ID:          img.ID,
		URL:         img.URL,
		Title:       img.Title,
		Description: img.Description,
		Category:    string(img.Category),
		CreatedAt:   img.CreatedAt,
	}
}

func ToImageDTOs(images []media.CampaignImage) []ImageDTO {
	out := make([]ImageDTO, 0, len(images))
	for _, img := range images {
		out = append(out, ToImageDTO(img))
	}
	return out
}

// ToCampaignDTO flattens a campaign for clients. The model/product flags
// are derived from the type.
func ToCampaignDTO(c campaigns.Campaign) CampaignDTO {
	caps := []string(c.Capabilities)
	if caps == nil {
		caps = []string{}
	}
	dto := CampaignDTO{
		ID:                c.ID,
		UserID:            c.UserID,
		Name:              c.Name,
		Description:       c.Description,
		ModelLabel:        c.ModelLabel,
		Capabilities:      caps,
		CoverURL:          c.CoverURL,
		CampaignType:      string(c.CampaignType),
		IsModelCampaign:   c.IsModelCampaign(),
		IsProductCampaign: c.IsProductCampaign(),
		Status:            string(c.Status),
		AdminNotes:        c.AdminNotes,
		ReviewedAt:        c.ReviewedAt,
		IsBuilt:           c.IsBuilt,
		IsBeingBuilt:      c.IsBeingBuilt,
		BuildDate:         c.BuildDate,
		MergeDate:         c.MergeDate,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if c.MergeStatus != nil {
		s := string(*c.MergeStatus)
		dto.MergeStatus = &s
	}
	if len(c.Images) > 0 {
		dto.Images = ToImageDTOs(c.Images)
	}
	return dto
}

func ToCampaignDTOs(list []campaigns.Campaign) []CampaignDTO {
	out := make([]CampaignDTO, 0, len(list))
	for _, c := range list {
		out = append(out, ToCampaignDTO(c))
	}
	return out
}

type UpdateImageRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

type MergeRequest struct {
	ModelCampaignID   string `json:"model_campaign_id" binding:"required"`
	ProductCampaignID string `json:"product_campaign_id" binding:"required"`
}
