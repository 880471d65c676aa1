package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/media"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ImageInput struct {
	File        *Upload
	Title       string
	Description string
	// Category is optional; the title decides when it is empty.
	Category string
}

type ImagePatch struct {
	Title       *string
	Description *string
	Category    *string
}

func invalidCategory() error {
	return apperrors.Validation(apperrors.CodeImageInvalidCategory, "Category must be one of product, person or other")
}

func imageNotFound(id string) error {
	return apperrors.NotFound(apperrors.CodeImageNotFound, "Image not found").WithMetadata("image_id", id)
}

// AddImage uploads an image into an unbuilt campaign's catalog.
func (s *Service) AddImage(ctx context.Context, campaignID string, actor Actor, in ImageInput) (*media.CampaignImage, error) {
	if in.File == nil || in.File.Body == nil {
		return nil, apperrors.Validation(apperrors.CodeCampaignImageMissing, "An image file is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.Validation(apperrors.CodeImageTitleMissing, "Image title is required")
	}
	category, ok := media.ResolveCategory(in.Category, title)
	if !ok {
		return nil, invalidCategory()
	}

	img := &media.CampaignImage{
		ID:          uuid.NewString(),
		CampaignID:  campaignID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
	}
	img.StorageKey = blobKey(campaignID, "images", in.File.Filename)
	img.URL = s.blobs.URL(img.StorageKey)

	if err := s.putBlob(ctx, img.StorageKey, in.File); err != nil {
		return nil, err
	}

	_, err := s.mutateUnbuilt(ctx, campaignID, actor, apperrors.CodeImageLocked, func(tx *gorm.DB, _ *Campaign) (map[string]interface{}, error) {
		if err := tx.Create(img).Error; err != nil {
			return nil, fmt.Errorf("insert image: %w", err)
		}
		return map[string]interface{}{}, nil
	})
	if err != nil {
		s.deleteBlobs(img.StorageKey)
		return nil, err
	}
	return img, nil
}

func (s *Service) imageCampaign(ctx context.Context, imageID string) (string, error) {
	var img media.CampaignImage
	err := s.db.WithContext(ctx).Select("id", "campaign_id").First(&img, "id = ?", imageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", imageNotFound(imageID)
	}
	if err != nil {
		return "", fmt.Errorf("load image %s: %w", imageID, err)
	}
	return img.CampaignID, nil
}

// UpdateImage edits an image's text or category.
func (s *Service) UpdateImage(ctx context.Context, imageID string, actor Actor, in ImagePatch) (*media.CampaignImage, error) {
	updates := map[string]interface{}{}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, apperrors.Validation(apperrors.CodeImageTitleMissing, "Image title is required")
		}
		updates["title"] = t
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		cat, ok := media.ParseCategory(*in.Category)
		if !ok {
			return nil, invalidCategory()
		}
		updates["category"] = cat
	}
	if len(updates) == 0 {
		return nil, apperrors.Validation(apperrors.CodeCampaignFieldsMissing, "Nothing to update")
	}

	campaignID, err := s.imageCampaign(ctx, imageID)
	if err != nil {
		return nil, err
	}

	var out media.CampaignImage
	_, err = s.mutateUnbuilt(ctx, campaignID, actor, apperrors.CodeImageLocked, func(tx *gorm.DB, c *Campaign) (map[string]interface{}, error) {
		res := tx.Model(&media.CampaignImage{}).
			Where("id = ? AND campaign_id = ?", imageID, c.ID).
			Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("update image: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, imageNotFound(imageID)
		}
		if err := tx.First(&out, "id = ?", imageID).Error; err != nil {
			return nil, fmt.Errorf("reload image: %w", err)
		}
		return map[string]interface{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteImage removes an image; its blob is deleted after commit.
func (s *Service) DeleteImage(ctx context.Context, imageID string, actor Actor) error {
	campaignID, err := s.imageCampaign(ctx, imageID)
	if err != nil {
		return err
	}

	var key string
	_, err = s.mutateUnbuilt(ctx, campaignID, actor, apperrors.CodeImageLocked, func(tx *gorm.DB, c *Campaign) (map[string]interface{}, error) {
		var img media.CampaignImage
		err := tx.First(&img, "id = ? AND campaign_id = ?", imageID, c.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imageNotFound(imageID)
		}
		if err != nil {
			return nil, fmt.Errorf("load image: %w", err)
		}
		if err := tx.Delete(&img).Error; err != nil {
			return nil, fmt.Errorf("delete image: %w", err)
		}
		key = img.StorageKey
		return map[string]interface{}{}, nil
	})
	if err != nil {
		return err
	}
	s.deleteBlobs(key)
	return nil
}

// ListImages returns the images of one of the caller's campaigns.
func (s *Service) ListImages(ctx context.Context, campaignID string, actor Actor) ([]media.CampaignImage, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadOwned(db, campaignID, actor); err != nil {
		return nil, err
	}
	return media.ListByCampaign(db, campaignID)
}
